package repository

import (
	"context"

	"attendance-verification-engine/internal/devicekey/domain"
)

// Repository defines read access to registered device keys.
type Repository interface {
	// GetByStudent returns the student's active device key, or nil if none is registered.
	GetByStudent(ctx context.Context, studentID string) (*domain.DeviceKey, error)
	Create(ctx context.Context, k *domain.DeviceKey) error
}
