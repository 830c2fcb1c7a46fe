package repository

import (
	"context"
	"errors"

	"attendance-verification-engine/internal/attendance/domain"
)

// ErrDuplicateRecord is returned when a record already exists for the (student, lecture) pair.
var ErrDuplicateRecord = errors.New("attendance record already exists")

// Repository is the persistence sink receiving exactly one record per finalized session.
type Repository interface {
	Create(ctx context.Context, r *domain.Record) error
	GetByStudentAndLecture(ctx context.Context, studentID, lectureID string) (*domain.Record, error)
}
