// Package producer emits stage events to Kafka for the audit worker.
package producer

import (
	"context"

	"attendance-verification-engine/internal/telemetry/domain"
)

// Producer writes stage events to a message broker.
type Producer interface {
	Emit(ctx context.Context, event *domain.StageEvent) error
	Close() error
}
