// Package store persists verification sessions with optimistic concurrency.
package store

import (
	"context"
	"errors"
	"time"

	"attendance-verification-engine/internal/verification/domain"
)

var (
	// ErrStaleState is returned by Update when the stored version no longer
	// matches the caller's snapshot. The caller must reload and retry.
	ErrStaleState = errors.New("session state is stale")
	// ErrAlreadyExists is returned by Create when a session for the
	// (student, lecture) pair already exists.
	ErrAlreadyExists = errors.New("session already exists")
)

// Store persists sessions. Get returns (nil, nil) when no session exists.
// Update is a compare-and-swap on Version: it writes only if the stored
// version equals s.Version, then increments s.Version in place.
type Store interface {
	Get(ctx context.Context, studentID, lectureID string) (*domain.Session, error)
	Create(ctx context.Context, s *domain.Session) error
	Update(ctx context.Context, s *domain.Session) error
	// ListExpired returns open sessions whose deadline passed before now.
	ListExpired(ctx context.Context, now time.Time) ([]*domain.Session, error)
}
