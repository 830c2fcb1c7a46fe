package repository

import (
	"context"
	"database/sql"
	"errors"

	"attendance-verification-engine/internal/attendance/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an attendance repository that uses the given db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create persists the record. The (student, lecture) pair is unique: a second
// insert for the same pair fails at the database, backing the at-most-once
// emission guarantee.
func (r *PostgresRepository) Create(ctx context.Context, rec *domain.Record) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_records
			(id, student_id, lecture_id, check_in_at, present, method,
			 location_outcome, token_outcome, biometric_outcome, approved_by, justification)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.ID, rec.StudentID, rec.LectureID, rec.CheckInAt, rec.Present, rec.Method,
		rec.LocationOutcome, rec.TokenOutcome, rec.BiometricOutcome, rec.ApprovedBy, rec.Justification)
	return err
}

// GetByStudentAndLecture returns the record for the pair, or nil if not found.
func (r *PostgresRepository) GetByStudentAndLecture(ctx context.Context, studentID, lectureID string) (*domain.Record, error) {
	var rec domain.Record
	err := r.db.QueryRowContext(ctx, `
		SELECT id, student_id, lecture_id, check_in_at, present, method,
		       location_outcome, token_outcome, biometric_outcome, approved_by, justification
		FROM attendance_records
		WHERE student_id = $1 AND lecture_id = $2`, studentID, lectureID).
		Scan(&rec.ID, &rec.StudentID, &rec.LectureID, &rec.CheckInAt, &rec.Present, &rec.Method,
			&rec.LocationOutcome, &rec.TokenOutcome, &rec.BiometricOutcome, &rec.ApprovedBy, &rec.Justification)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}
