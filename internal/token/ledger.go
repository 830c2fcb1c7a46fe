// Package token issues, validates, and retires the short-lived session tokens
// that students scan as dynamic QR codes. Each token is consumed at most once;
// issuing a new token for a lecture supersedes (never deletes) the previous one.
package token

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	lecturedomain "attendance-verification-engine/internal/lecture/domain"
	"attendance-verification-engine/internal/token/domain"
	tokenrepo "attendance-verification-engine/internal/token/repository"
)

// entry is the in-memory state of one token. The consumed flag is the
// linearization point for validation: concurrent validators race on a single
// compare-and-swap, so at most one of them observes Accepted.
type entry struct {
	token    domain.Token
	consumed atomic.Bool
}

// Ledger is the in-process token authority. A Postgres repository, when set,
// receives a write-through copy of every token event for audit retention;
// validation outcomes are decided in memory.
type Ledger struct {
	mu      sync.RWMutex
	byHash  map[string]*entry
	active  map[string]*entry // lectureID -> current active token (single slot per lecture)
	repo    tokenrepo.Repository
	minTTL  time.Duration
	maxTTL  time.Duration
	keepFor time.Duration
	nowF    func() time.Time
}

// NewLedger returns a token ledger with engine-wide TTL bounds and audit retention.
// repo may be nil (dev mode).
func NewLedger(repo tokenrepo.Repository, minTTL, maxTTL, retention time.Duration) *Ledger {
	return &Ledger{
		byHash:  make(map[string]*entry),
		active:  make(map[string]*entry),
		repo:    repo,
		minTTL:  minTTL,
		maxTTL:  maxTTL,
		keepFor: retention,
		nowF:    func() time.Time { return time.Now().UTC() },
	}
}

// Issue creates a new token bound to the lecture and returns it along with the
// opaque value to encode in the QR. Any still-active token for the lecture is
// marked superseded. ttl must fall within the lecture's configured bounds.
func (l *Ledger) Issue(ctx context.Context, lecture *lecturedomain.Lecture, ttl time.Duration) (*domain.Token, string, error) {
	minTTL, maxTTL := lecture.TTLBounds(l.minTTL, l.maxTTL)
	if ttl < minTTL || ttl > maxTTL {
		return nil, "", fmt.Errorf("%w: %s outside [%s, %s]", domain.ErrInvalidTTL, ttl, minTTL, maxTTL)
	}

	value, err := domain.NewValue()
	if err != nil {
		return nil, "", err
	}
	now := l.nowF()
	tok := domain.Token{
		ID:        uuid.New().String(),
		LectureID: lecture.ID,
		ValueHash: domain.HashValue(value),
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}

	l.mu.Lock()
	if prev, ok := l.active[lecture.ID]; ok && prev.token.SupersededAt == nil {
		at := now
		prev.token.SupersededAt = &at
		if l.repo != nil {
			if err := l.repo.MarkSuperseded(ctx, prev.token.ID, at); err != nil {
				log.Printf("token: mark superseded %s: %v", prev.token.ID, err)
			}
		}
	}
	e := &entry{token: tok}
	l.byHash[tok.ValueHash] = e
	l.active[lecture.ID] = e
	l.mu.Unlock()

	if l.repo != nil {
		if err := l.repo.Create(ctx, &tok); err != nil {
			log.Printf("token: persist %s: %v", tok.ID, err)
		}
	}
	return &tok, value, nil
}

// Validate checks a presented token value against the lecture and, on success,
// atomically marks the token consumed. Concurrent validators racing on the
// same token see at most one OutcomeAccepted; all others see AlreadyConsumed.
func (l *Ledger) Validate(ctx context.Context, value, lectureID string) domain.Outcome {
	l.mu.RLock()
	e, ok := l.byHash[domain.HashValue(value)]
	superseded := ok && e.token.SupersededAt != nil
	l.mu.RUnlock()
	if !ok {
		return domain.OutcomeUnknown
	}
	if e.token.LectureID != lectureID {
		return domain.OutcomeWrongLecture
	}
	now := l.nowF()
	if now.After(e.token.ExpiresAt) || superseded {
		return domain.OutcomeExpired
	}
	if !e.consumed.CompareAndSwap(false, true) {
		return domain.OutcomeAlreadyConsumed
	}
	at := now
	l.mu.Lock()
	e.token.ConsumedAt = &at
	l.mu.Unlock()
	if l.repo != nil {
		if err := l.repo.MarkConsumed(ctx, e.token.ID, at); err != nil {
			log.Printf("token: mark consumed %s: %v", e.token.ID, err)
		}
	}
	return domain.OutcomeAccepted
}

// StartReaper runs the background purge loop until ctx is cancelled.
// Purging affects only storage growth, never validation correctness.
func (l *Ledger) StartReaper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.reap(ctx)
			}
		}
	}()
}

// reap removes tokens past expiry plus the retention window.
func (l *Ledger) reap(ctx context.Context) {
	cutoff := l.nowF().Add(-l.keepFor)
	l.mu.Lock()
	for hash, e := range l.byHash {
		if e.token.ExpiresAt.Before(cutoff) {
			delete(l.byHash, hash)
			if cur, ok := l.active[e.token.LectureID]; ok && cur == e {
				delete(l.active, e.token.LectureID)
			}
		}
	}
	l.mu.Unlock()

	if l.repo != nil {
		if err := l.repo.DeleteExpiredBefore(ctx, cutoff); err != nil {
			log.Printf("token: reap: %v", err)
		}
	}
}
