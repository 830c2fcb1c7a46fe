package audit

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"attendance-verification-engine/internal/audit/domain"
	auditrepo "attendance-verification-engine/internal/audit/repository"
	"attendance-verification-engine/internal/telemetry"
	telemetrydomain "attendance-verification-engine/internal/telemetry/domain"
)

// IPExtractor returns the client IP from the request context.
type IPExtractor func(context.Context) string

// AuditLogger writes a single audit event with explicit action/resource.
// Every stage transition and failed try goes through here before a response is
// returned. LogEvent is best-effort: failures are logged and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, studentID, lectureID, action, resource, metadata string)
}

// Logger implements AuditLogger using the audit repository, an optional stage-event
// emitter for the Kafka/Loki pipeline, and an optional IP extractor.
type Logger struct {
	repo        auditrepo.Repository
	emitter     telemetry.EventEmitter
	ipExtractor IPExtractor
}

// NewLogger returns an AuditLogger that persists to repo and forwards to emitter.
// emitter and ipExtractor may be nil; then events are not forwarded and IP is recorded as "unknown".
func NewLogger(repo auditrepo.Repository, emitter telemetry.EventEmitter, ipExtractor IPExtractor) *Logger {
	return &Logger{repo: repo, emitter: emitter, ipExtractor: ipExtractor}
}

// LogEvent writes one audit log entry and forwards it to the stage-event pipeline.
// Best-effort: errors are logged and not returned.
func (l *Logger) LogEvent(ctx context.Context, studentID, lectureID, action, resource, metadata string) {
	ip := "unknown"
	if l.ipExtractor != nil {
		ip = l.ipExtractor(ctx)
	}
	now := time.Now().UTC()
	id := uuid.New().String()

	if l.repo != nil {
		entry := &domain.AuditLog{
			ID:        id,
			StudentID: studentID,
			LectureID: lectureID,
			Action:    action,
			Resource:  resource,
			IP:        ip,
			Metadata:  metadata,
			CreatedAt: now,
		}
		if err := l.repo.Create(ctx, entry); err != nil {
			log.Printf("audit: failed to log event %s/%s: %v", action, resource, err)
		}
	}

	telemetry.EmitAsync(l.emitter, ctx, &telemetrydomain.StageEvent{
		ID:        id,
		StudentID: studentID,
		LectureID: lectureID,
		Action:    action,
		Stage:     resource,
		Reason:    metadata,
		IP:        ip,
		CreatedAt: now,
	})
}
