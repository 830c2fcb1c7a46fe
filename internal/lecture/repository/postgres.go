package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"attendance-verification-engine/internal/lecture/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a lecture repository that uses the given db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the lecture for id, or nil if not found.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Lecture, error) {
	var l domain.Lecture
	var minTTL, maxTTL int64
	err := r.db.QueryRowContext(ctx, `
		SELECT id, room_id, title, starts_at, ends_at, token_min_ttl_seconds, token_max_ttl_seconds
		FROM lectures WHERE id = $1`, id).
		Scan(&l.ID, &l.RoomID, &l.Title, &l.StartsAt, &l.EndsAt, &minTTL, &maxTTL)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	l.TokenMinTTL = time.Duration(minTTL) * time.Second
	l.TokenMaxTTL = time.Duration(maxTTL) * time.Second
	return &l, nil
}

// Create persists the lecture. Used by cmd/seed; production lectures come from the scheduler.
func (r *PostgresRepository) Create(ctx context.Context, l *domain.Lecture) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO lectures (id, room_id, title, starts_at, ends_at, token_min_ttl_seconds, token_max_ttl_seconds)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		l.ID, l.RoomID, l.Title, l.StartsAt, l.EndsAt,
		int64(l.TokenMinTTL/time.Second), int64(l.TokenMaxTTL/time.Second))
	return err
}
