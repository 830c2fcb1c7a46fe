package repository

import (
	"context"

	"attendance-verification-engine/internal/audit/domain"
)

// Repository defines persistence for audit logs.
type Repository interface {
	Create(ctx context.Context, a *domain.AuditLog) error
	ListByLecture(ctx context.Context, lectureID string, limit, offset int32) ([]*domain.AuditLog, error)
}
