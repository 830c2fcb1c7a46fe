package repository

import (
	"context"
	"database/sql"
	"errors"

	"attendance-verification-engine/internal/policy/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a policy repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the policy for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Policy, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, lecture_id, rules, enabled, created_at
		FROM override_policies
		WHERE id = $1`, id)
	var p domain.Policy
	if err := row.Scan(&p.ID, &p.LectureID, &p.Rules, &p.Enabled, &p.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// ListEnabledForLecture returns enabled policies for the lecture and enabled global policies.
// Returns (nil, error) only on database errors.
func (r *PostgresRepository) ListEnabledForLecture(ctx context.Context, lectureID string) ([]*domain.Policy, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, lecture_id, rules, enabled, created_at
		FROM override_policies
		WHERE enabled = TRUE AND (lecture_id = $1 OR lecture_id = '')
		ORDER BY created_at`, lectureID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Policy
	for rows.Next() {
		var p domain.Policy
		if err := rows.Scan(&p.ID, &p.LectureID, &p.Rules, &p.Enabled, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// Create persists the policy to the database. The policy must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, p *domain.Policy) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO override_policies (id, lecture_id, rules, enabled, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		p.ID, p.LectureID, p.Rules, p.Enabled, p.CreatedAt)
	return err
}

// Update updates the existing policy record in the database. Returns an error if the update fails.
func (r *PostgresRepository) Update(ctx context.Context, p *domain.Policy) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE override_policies
		SET rules = $2, enabled = $3
		WHERE id = $1`,
		p.ID, p.Rules, p.Enabled)
	return err
}
