package telemetry

import (
	"context"

	"attendance-verification-engine/internal/telemetry/domain"
)

// EventEmitter emits stage events to the audit pipeline (e.g. Kafka).
// Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *domain.StageEvent) error
}
