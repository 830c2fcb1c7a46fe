package repository

import (
	"context"
	"sync"

	"attendance-verification-engine/internal/attendance/domain"
)

// MemoryRepository is an in-memory Repository for dev mode and tests.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[string]*domain.Record // key: studentID + "/" + lectureID
}

// NewMemoryRepository returns an empty in-memory attendance repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[string]*domain.Record)}
}

// Create stores the record. A second record for the same (student, lecture) pair is rejected.
func (r *MemoryRepository) Create(ctx context.Context, rec *domain.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := rec.StudentID + "/" + rec.LectureID
	if _, exists := r.records[key]; exists {
		return ErrDuplicateRecord
	}
	r.records[key] = rec
	return nil
}

// GetByStudentAndLecture returns the record for the pair, or nil if not found.
func (r *MemoryRepository) GetByStudentAndLecture(ctx context.Context, studentID, lectureID string) (*domain.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.records[studentID+"/"+lectureID], nil
}
