package repository

import (
	"context"
	"sync"

	"attendance-verification-engine/internal/lecture/domain"
)

// MemoryRepository is an in-memory Repository for dev mode and tests.
type MemoryRepository struct {
	mu sync.RWMutex
	m  map[string]*domain.Lecture
}

// NewMemoryRepository returns an empty in-memory lecture repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{m: make(map[string]*domain.Lecture)}
}

// GetByID returns the lecture for id, or nil if not found.
func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.Lecture, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.m[id], nil
}

// Create stores the lecture.
func (r *MemoryRepository) Create(ctx context.Context, l *domain.Lecture) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[l.ID] = l
	return nil
}
