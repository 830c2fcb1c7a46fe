package repository

import (
	"context"
	"sync"

	"attendance-verification-engine/internal/devicekey/domain"
)

// MemoryRepository is an in-memory Repository for dev mode and tests.
type MemoryRepository struct {
	mu sync.RWMutex
	m  map[string]*domain.DeviceKey
}

// NewMemoryRepository returns an empty in-memory device key repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{m: make(map[string]*domain.DeviceKey)}
}

// GetByStudent returns the student's active device key, or nil if none is registered.
func (r *MemoryRepository) GetByStudent(ctx context.Context, studentID string) (*domain.DeviceKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k := r.m[studentID]
	if !k.Active() {
		return nil, nil
	}
	return k, nil
}

// Create stores the device key.
func (r *MemoryRepository) Create(ctx context.Context, k *domain.DeviceKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[k.StudentID] = k
	return nil
}
