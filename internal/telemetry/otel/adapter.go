package otel

import (
	"context"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"attendance-verification-engine/internal/telemetry"
	"attendance-verification-engine/internal/telemetry/domain"
)

// NewEventEmitter returns an EventEmitter that sends stage events as OTel log
// records via the given LoggerProvider. If provider is nil, returns a no-op emitter.
// Used when no Kafka brokers are configured so stage events still reach the collector.
func NewEventEmitter(provider *sdklog.LoggerProvider) telemetry.EventEmitter {
	if provider == nil {
		return noopEmitter{}
	}
	return &otelEmitter{logger: provider.Logger("attendance.audit")}
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, *domain.StageEvent) error { return nil }

type otelEmitter struct {
	logger otellog.Logger
}

// Emit converts the stage event to an OTel log record and emits it. Best-effort; errors are logged.
func (e *otelEmitter) Emit(ctx context.Context, event *domain.StageEvent) error {
	if event == nil {
		return nil
	}
	rec := otellog.Record{}
	if !event.CreatedAt.IsZero() {
		rec.SetTimestamp(event.CreatedAt)
	}
	rec.SetBody(otellog.StringValue(event.Action))
	if event.StudentID != "" {
		rec.AddAttributes(otellog.String("student_id", event.StudentID))
	}
	if event.LectureID != "" {
		rec.AddAttributes(otellog.String("lecture_id", event.LectureID))
	}
	if event.Stage != "" {
		rec.AddAttributes(otellog.String("stage", event.Stage))
	}
	if event.Reason != "" {
		rec.AddAttributes(otellog.String("reason", event.Reason))
	}
	if event.IP != "" {
		rec.AddAttributes(otellog.String("ip", event.IP))
	}
	if rec.Timestamp().IsZero() {
		rec.SetTimestamp(time.Now().UTC())
	}
	e.logger.Emit(ctx, rec)
	return nil
}
