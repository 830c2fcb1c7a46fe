package domain

import "time"

// AuditLog represents one audited verification event: a stage transition,
// failed try, retry exhaustion, token security signal, or override.
type AuditLog struct {
	ID        string
	StudentID string
	LectureID string
	Action    string
	Resource  string
	IP        string
	Metadata  string
	CreatedAt time.Time
}
