package repository

import (
	"context"

	"attendance-verification-engine/internal/lecture/domain"
)

// Repository defines read access to scheduled lectures.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Lecture, error)
	Create(ctx context.Context, l *domain.Lecture) error
}
