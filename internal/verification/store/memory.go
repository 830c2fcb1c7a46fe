package store

import (
	"context"
	"sync"
	"time"

	"attendance-verification-engine/internal/verification/domain"
)

// MemoryStore is an in-memory Store for dev mode and tests.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
}

// NewMemoryStore returns an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*domain.Session)}
}

func sessionKey(studentID, lectureID string) string {
	return studentID + "|" + lectureID
}

// Get returns a copy of the session for the pair, or (nil, nil) if absent.
func (m *MemoryStore) Get(ctx context.Context, studentID, lectureID string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionKey(studentID, lectureID)]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

// Create stores the session. Returns ErrAlreadyExists if one is present for the pair.
func (m *MemoryStore) Create(ctx context.Context, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := sessionKey(s.StudentID, s.LectureID)
	if _, ok := m.sessions[key]; ok {
		return ErrAlreadyExists
	}
	cp := *s
	m.sessions[key] = &cp
	return nil
}

// Update writes the session if the stored version matches s.Version, then
// increments s.Version. Returns ErrStaleState on a version mismatch.
func (m *MemoryStore) Update(ctx context.Context, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := sessionKey(s.StudentID, s.LectureID)
	cur, ok := m.sessions[key]
	if !ok || cur.Version != s.Version {
		return ErrStaleState
	}
	s.Version++
	cp := *s
	m.sessions[key] = &cp
	return nil
}

// ListExpired returns copies of open sessions past their deadline.
func (m *MemoryStore) ListExpired(ctx context.Context, now time.Time) ([]*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Session
	for _, s := range m.sessions {
		if s.TimedOut(now) {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}
