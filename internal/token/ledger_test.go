package token

import (
	"context"
	"sync"
	"testing"
	"time"

	lecturedomain "attendance-verification-engine/internal/lecture/domain"
	"attendance-verification-engine/internal/token/domain"
)

func testLecture() *lecturedomain.Lecture {
	now := time.Now().UTC()
	return &lecturedomain.Lecture{
		ID:       "lec-1",
		RoomID:   "r1",
		StartsAt: now.Add(-time.Minute),
		EndsAt:   now.Add(time.Hour),
	}
}

func testLedger() *Ledger {
	return NewLedger(nil, 30*time.Second, 300*time.Second, 24*time.Hour)
}

func TestIssue_TTLBounds(t *testing.T) {
	tests := []struct {
		name    string
		ttl     time.Duration
		wantErr bool
	}{
		{"at lower bound", 30 * time.Second, false},
		{"at upper bound", 300 * time.Second, false},
		{"below lower bound", 29 * time.Second, true},
		{"above upper bound", 301 * time.Second, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := testLedger().Issue(context.Background(), testLecture(), tt.ttl)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Issue should fail with ErrInvalidTTL")
				}
				return
			}
			if err != nil {
				t.Fatalf("Issue: %v", err)
			}
		})
	}
}

func TestValidate_Accepted(t *testing.T) {
	l := testLedger()
	_, value, err := l.Issue(context.Background(), testLecture(), 60*time.Second)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if got := l.Validate(context.Background(), value, "lec-1"); got != domain.OutcomeAccepted {
		t.Errorf("Validate = %q, want %q", got, domain.OutcomeAccepted)
	}
}

func TestValidate_UnknownToken(t *testing.T) {
	l := testLedger()
	if got := l.Validate(context.Background(), "never-issued", "lec-1"); got != domain.OutcomeUnknown {
		t.Errorf("Validate = %q, want %q", got, domain.OutcomeUnknown)
	}
}

func TestValidate_WrongLecture(t *testing.T) {
	l := testLedger()
	_, value, _ := l.Issue(context.Background(), testLecture(), 60*time.Second)
	if got := l.Validate(context.Background(), value, "lec-other"); got != domain.OutcomeWrongLecture {
		t.Errorf("Validate = %q, want %q", got, domain.OutcomeWrongLecture)
	}
}

func TestValidate_ExpiryAndReuse(t *testing.T) {
	l := testLedger()
	base := time.Now().UTC()
	now := base
	l.nowF = func() time.Time { return now }

	// Issue with TTL=60s at t=0.
	_, value, err := l.Issue(context.Background(), testLecture(), 60*time.Second)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	// Validate at t=30 -> Accepted.
	now = base.Add(30 * time.Second)
	if got := l.Validate(context.Background(), value, "lec-1"); got != domain.OutcomeAccepted {
		t.Fatalf("Validate at t=30 = %q, want %q", got, domain.OutcomeAccepted)
	}

	// Re-validate same token at t=31 -> AlreadyConsumed.
	now = base.Add(31 * time.Second)
	if got := l.Validate(context.Background(), value, "lec-1"); got != domain.OutcomeAlreadyConsumed {
		t.Errorf("Validate at t=31 = %q, want %q", got, domain.OutcomeAlreadyConsumed)
	}
}

func TestValidate_ExpiredNeverAccepted(t *testing.T) {
	l := testLedger()
	base := time.Now().UTC()
	now := base
	l.nowF = func() time.Time { return now }

	_, value, _ := l.Issue(context.Background(), testLecture(), 60*time.Second)

	// Validate at t=61 -> Expired, even though never consumed.
	now = base.Add(61 * time.Second)
	if got := l.Validate(context.Background(), value, "lec-1"); got != domain.OutcomeExpired {
		t.Errorf("Validate at t=61 = %q, want %q", got, domain.OutcomeExpired)
	}
}

func TestValidate_ExpiresUnderDefaultClock(t *testing.T) {
	// No injected clock here: the ledger's own clock must advance past the TTL.
	l := NewLedger(nil, time.Millisecond, time.Second, time.Hour)
	_, value, err := l.Issue(context.Background(), testLecture(), 10*time.Millisecond)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	if got := l.Validate(context.Background(), value, "lec-1"); got != domain.OutcomeExpired {
		t.Errorf("Validate past TTL = %q, want %q", got, domain.OutcomeExpired)
	}
}

func TestValidate_SupersededResolvesToExpired(t *testing.T) {
	l := testLedger()
	ctx := context.Background()
	lec := testLecture()

	_, first, _ := l.Issue(ctx, lec, 60*time.Second)
	_, second, _ := l.Issue(ctx, lec, 60*time.Second)

	if got := l.Validate(ctx, first, "lec-1"); got != domain.OutcomeExpired {
		t.Errorf("superseded token Validate = %q, want %q", got, domain.OutcomeExpired)
	}
	if got := l.Validate(ctx, second, "lec-1"); got != domain.OutcomeAccepted {
		t.Errorf("active token Validate = %q, want %q", got, domain.OutcomeAccepted)
	}
}

func TestValidate_ExactlyOnceUnderConcurrency(t *testing.T) {
	l := testLedger()
	_, value, err := l.Issue(context.Background(), testLecture(), 60*time.Second)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	const n = 50
	outcomes := make([]domain.Outcome, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			outcomes[i] = l.Validate(context.Background(), value, "lec-1")
		}(i)
	}
	wg.Wait()

	accepted, consumed := 0, 0
	for _, o := range outcomes {
		switch o {
		case domain.OutcomeAccepted:
			accepted++
		case domain.OutcomeAlreadyConsumed:
			consumed++
		default:
			t.Errorf("unexpected outcome %q", o)
		}
	}
	if accepted != 1 {
		t.Errorf("accepted = %d, want exactly 1", accepted)
	}
	if consumed != n-1 {
		t.Errorf("already_consumed = %d, want %d", consumed, n-1)
	}
}

func TestReap_PurgesOnlyPastRetention(t *testing.T) {
	l := NewLedger(nil, 30*time.Second, 300*time.Second, time.Hour)
	base := time.Now().UTC()
	now := base
	l.nowF = func() time.Time { return now }

	_, value, _ := l.Issue(context.Background(), testLecture(), 60*time.Second)

	// Expired but inside the retention window: still known (AlreadyConsumed/Expired, not Unknown).
	now = base.Add(30 * time.Minute)
	l.reap(context.Background())
	if got := l.Validate(context.Background(), value, "lec-1"); got != domain.OutcomeExpired {
		t.Fatalf("Validate inside retention = %q, want %q", got, domain.OutcomeExpired)
	}

	// Past expiry + retention: purged.
	now = base.Add(2 * time.Hour)
	l.reap(context.Background())
	if got := l.Validate(context.Background(), value, "lec-1"); got != domain.OutcomeUnknown {
		t.Errorf("Validate after reap = %q, want %q", got, domain.OutcomeUnknown)
	}
}
