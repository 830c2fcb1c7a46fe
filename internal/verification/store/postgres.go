package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"attendance-verification-engine/internal/verification/domain"
)

// PostgresStore persists sessions with a version column for optimistic locking.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore returns a session store that uses the given db.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const sessionColumns = `id, student_id, lecture_id, stage, version,
	location_tries, token_tries, biometric_tries,
	started_at, updated_at, deadline, failure_reason,
	override_approved_by, override_justification`

// Get returns the session for the pair, or (nil, nil) if absent.
func (p *PostgresStore) Get(ctx context.Context, studentID, lectureID string) (*domain.Session, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT `+sessionColumns+`
		FROM verification_sessions
		WHERE student_id = $1 AND lecture_id = $2`, studentID, lectureID)
	s, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

// Create inserts the session. The unique (student_id, lecture_id) constraint
// turns a racing insert into ErrAlreadyExists.
func (p *PostgresStore) Create(ctx context.Context, s *domain.Session) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO verification_sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (student_id, lecture_id) DO NOTHING`,
		s.ID, s.StudentID, s.LectureID, string(s.Stage), s.Version,
		s.LocationTries, s.TokenTries, s.BiometricTries,
		s.StartedAt, s.UpdatedAt, s.Deadline, s.FailureReason,
		s.OverrideApprovedBy, s.OverrideJustification)
	if err != nil {
		return err
	}
	existing, err := p.Get(ctx, s.StudentID, s.LectureID)
	if err != nil {
		return err
	}
	if existing != nil && existing.ID != s.ID {
		return ErrAlreadyExists
	}
	return nil
}

// Update writes the session only when the stored version matches s.Version,
// then increments s.Version. Returns ErrStaleState on a version mismatch.
func (p *PostgresStore) Update(ctx context.Context, s *domain.Session) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE verification_sessions
		SET stage = $3, version = version + 1,
			location_tries = $4, token_tries = $5, biometric_tries = $6,
			updated_at = $7, deadline = $8, failure_reason = $9,
			override_approved_by = $10, override_justification = $11
		WHERE student_id = $1 AND lecture_id = $2 AND version = $12`,
		s.StudentID, s.LectureID, string(s.Stage),
		s.LocationTries, s.TokenTries, s.BiometricTries,
		s.UpdatedAt, s.Deadline, s.FailureReason,
		s.OverrideApprovedBy, s.OverrideJustification, s.Version)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStaleState
	}
	s.Version++
	return nil
}

// ListExpired returns open sessions whose deadline passed before now.
func (p *PostgresStore) ListExpired(ctx context.Context, now time.Time) ([]*domain.Session, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM verification_sessions
		WHERE stage NOT IN ('finalized_success', 'finalized_failed', 'exceptional') AND deadline < $1`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var s domain.Session
	var stage string
	if err := row.Scan(&s.ID, &s.StudentID, &s.LectureID, &stage, &s.Version,
		&s.LocationTries, &s.TokenTries, &s.BiometricTries,
		&s.StartedAt, &s.UpdatedAt, &s.Deadline, &s.FailureReason,
		&s.OverrideApprovedBy, &s.OverrideJustification); err != nil {
		return nil, err
	}
	s.Stage = domain.Stage(stage)
	return &s, nil
}
