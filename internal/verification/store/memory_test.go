package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"attendance-verification-engine/internal/verification/domain"
)

func newSession(student, lecture string, deadline time.Time) *domain.Session {
	return &domain.Session{
		ID:        student + "-" + lecture,
		StudentID: student,
		LectureID: lecture,
		Stage:     domain.StageStarted,
		Version:   1,
		Deadline:  deadline,
	}
}

func TestMemoryStore_CreateAndGet(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	got, err := m.Get(ctx, "stu-1", "lec-1")
	if err != nil || got != nil {
		t.Fatalf("Get on empty store = (%v, %v), want (nil, nil)", got, err)
	}

	s := newSession("stu-1", "lec-1", time.Now().Add(time.Minute))
	if err := m.Create(ctx, s); err != nil {
		t.Fatal(err)
	}
	if err := m.Create(ctx, newSession("stu-1", "lec-1", time.Now())); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("second create = %v, want ErrAlreadyExists", err)
	}

	got, err = m.Get(ctx, "stu-1", "lec-1")
	if err != nil || got == nil || got.ID != s.ID {
		t.Fatalf("Get = (%+v, %v)", got, err)
	}
	// Get returns a copy: mutating it must not touch the stored session.
	got.Stage = domain.StageTokenVerified
	again, _ := m.Get(ctx, "stu-1", "lec-1")
	if again.Stage != domain.StageStarted {
		t.Error("Get must return a copy")
	}
}

func TestMemoryStore_UpdateCAS(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	s := newSession("stu-1", "lec-1", time.Now().Add(time.Minute))
	if err := m.Create(ctx, s); err != nil {
		t.Fatal(err)
	}

	a, _ := m.Get(ctx, "stu-1", "lec-1")
	b, _ := m.Get(ctx, "stu-1", "lec-1")

	a.Stage = domain.StageLocationVerified
	if err := m.Update(ctx, a); err != nil {
		t.Fatalf("first update = %v", err)
	}
	if a.Version != 2 {
		t.Errorf("version = %d, want 2", a.Version)
	}

	b.Stage = domain.StageTokenVerified
	if err := m.Update(ctx, b); !errors.Is(err, ErrStaleState) {
		t.Fatalf("stale update = %v, want ErrStaleState", err)
	}

	got, _ := m.Get(ctx, "stu-1", "lec-1")
	if got.Stage != domain.StageLocationVerified {
		t.Errorf("stage = %s, stale writer must not win", got.Stage)
	}
}

func TestMemoryStore_ListExpired(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	open := newSession("stu-1", "lec-1", now.Add(time.Minute))
	expired := newSession("stu-2", "lec-1", now.Add(-time.Minute))
	closed := newSession("stu-3", "lec-1", now.Add(-time.Minute))
	closed.Stage = domain.StageFinalizedFailed
	for _, s := range []*domain.Session{open, expired, closed} {
		if err := m.Create(ctx, s); err != nil {
			t.Fatal(err)
		}
	}

	got, err := m.ListExpired(ctx, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].StudentID != "stu-2" {
		t.Fatalf("ListExpired = %+v, want only stu-2", got)
	}
}
