package repository

import (
	"context"
	"sync"

	"attendance-verification-engine/internal/audit/domain"
)

// MemoryRepository is an in-memory Repository for dev mode and tests.
type MemoryRepository struct {
	mu      sync.RWMutex
	entries []*domain.AuditLog
}

// NewMemoryRepository returns an empty in-memory audit repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

// Create appends the audit log entry.
func (r *MemoryRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, a)
	return nil
}

// ListByLecture returns entries for the lecture in insertion order, paginated by limit and offset.
func (r *MemoryRepository) ListByLecture(ctx context.Context, lectureID string, limit, offset int32) ([]*domain.AuditLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var matched []*domain.AuditLog
	for _, a := range r.entries {
		if a.LectureID == lectureID {
			matched = append(matched, a)
		}
	}
	if int(offset) >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if int(limit) < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}
