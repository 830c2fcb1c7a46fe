package repository

import (
	"context"
	"database/sql"
	"time"

	"attendance-verification-engine/internal/token/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a token repository that uses the given db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create persists the issued token. Only the value hash is stored, never the value.
func (r *PostgresRepository) Create(ctx context.Context, t *domain.Token) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO verification_tokens (id, lecture_id, value_hash, issued_at, expires_at, consumed_at, superseded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		t.ID, t.LectureID, t.ValueHash, t.IssuedAt, t.ExpiresAt, timeToNullTime(t.ConsumedAt), timeToNullTime(t.SupersededAt))
	return err
}

// MarkConsumed sets the consumed timestamp once; later calls are no-ops.
func (r *PostgresRepository) MarkConsumed(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE verification_tokens SET consumed_at = $2 WHERE id = $1 AND consumed_at IS NULL`, id, at)
	return err
}

// MarkSuperseded sets the superseded timestamp once; later calls are no-ops.
func (r *PostgresRepository) MarkSuperseded(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE verification_tokens SET superseded_at = $2 WHERE id = $1 AND superseded_at IS NULL`, id, at)
	return err
}

// DeleteExpiredBefore purges tokens whose expiry predates the retention cutoff.
func (r *PostgresRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM verification_tokens WHERE expires_at < $1`, cutoff)
	return err
}

func timeToNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
