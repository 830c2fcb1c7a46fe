package repository

import (
	"context"

	"attendance-verification-engine/internal/room/domain"
)

// Repository defines persistence for published room geometries.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Room, error)
	List(ctx context.Context) ([]*domain.Room, error)
	// Upsert replaces the whole room row atomically (re-calibration is never a partial update).
	Upsert(ctx context.Context, r *domain.Room) error
}
