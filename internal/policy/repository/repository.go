package repository

import (
	"context"

	"attendance-verification-engine/internal/policy/domain"
)

// Repository defines persistence for override policies.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Policy, error)
	// ListEnabledForLecture returns enabled policies scoped to the lecture plus enabled global policies.
	ListEnabledForLecture(ctx context.Context, lectureID string) ([]*domain.Policy, error)
	Create(ctx context.Context, p *domain.Policy) error
	Update(ctx context.Context, p *domain.Policy) error
}
