package repository

import (
	"context"
	"time"

	"attendance-verification-engine/internal/token/domain"
)

// Repository defines the audit-retention store for issued tokens.
// The in-process ledger is authoritative for validation; this store keeps the
// token trail queryable until the retention window elapses.
type Repository interface {
	Create(ctx context.Context, t *domain.Token) error
	MarkConsumed(ctx context.Context, id string, at time.Time) error
	MarkSuperseded(ctx context.Context, id string, at time.Time) error
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) error
}
