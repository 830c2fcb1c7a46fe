// Package verification drives the three-stage check-in flow. The orchestrator
// owns the session state machine: it accepts stage submissions in order,
// enforces retry budgets and the session deadline, and finalizes each session
// into exactly one attendance record.
package verification

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	attendancedomain "attendance-verification-engine/internal/attendance/domain"
	attendancerepo "attendance-verification-engine/internal/attendance/repository"
	"attendance-verification-engine/internal/audit"
	"attendance-verification-engine/internal/biometric"
	"attendance-verification-engine/internal/geo"
	lecturedomain "attendance-verification-engine/internal/lecture/domain"
	"attendance-verification-engine/internal/policy/engine"
	roomdomain "attendance-verification-engine/internal/room/domain"
	tokendomain "attendance-verification-engine/internal/token/domain"
	"attendance-verification-engine/internal/verification/domain"
	"attendance-verification-engine/internal/verification/store"
)

var (
	// ErrUnknownLecture is returned when the lecture does not exist.
	ErrUnknownLecture = errors.New("unknown lecture")
	// ErrLectureClosed is returned when the lecture is outside its scheduled window.
	ErrLectureClosed = errors.New("lecture is not active")
	// ErrUnknownRoom is returned when the lecture's room has no published geometry.
	ErrUnknownRoom = errors.New("unknown room")
	// ErrSessionClosed is returned when the session already reached a terminal stage.
	ErrSessionClosed = errors.New("session already finalized")
	// ErrWrongStage is returned when a check is submitted out of sequence.
	ErrWrongStage = errors.New("check submitted out of order")
	// ErrOverrideDenied is returned when policy rejects an exceptional override.
	ErrOverrideDenied = errors.New("override denied by policy")
)

// maxStateRetries bounds reload-and-retry cycles on optimistic lock conflicts.
const maxStateRetries = 3

// Config holds the orchestrator's retry budgets and session deadline.
type Config struct {
	LocationMaxTries  int
	TokenMaxTries     int
	BiometricMaxTries int
	SessionTimeout    time.Duration
}

// TokenAuthority issues and validates rotating lecture tokens.
type TokenAuthority interface {
	Issue(ctx context.Context, lecture *lecturedomain.Lecture, ttl time.Duration) (*tokendomain.Token, string, error)
	Validate(ctx context.Context, value, lectureID string) tokendomain.Outcome
}

// AssertionVerifier checks a signed biometric assertion for a student.
type AssertionVerifier interface {
	Verify(ctx context.Context, studentID, lectureID, signedAssertion string) (*biometric.Assertion, error)
}

// RoomSource resolves room geometry. Get returns (nil, nil) for unknown rooms.
type RoomSource interface {
	Get(ctx context.Context, id string) (*roomdomain.Room, error)
}

// LectureSource resolves scheduled lectures. GetByID returns (nil, nil) for unknown IDs.
type LectureSource interface {
	GetByID(ctx context.Context, id string) (*lecturedomain.Lecture, error)
}

// Deps bundles the orchestrator's collaborators. Audit and Tracer may be nil.
type Deps struct {
	Sessions   store.Store
	Rooms      RoomSource
	Lectures   LectureSource
	Tokens     TokenAuthority
	Biometrics AssertionVerifier
	Overrides  engine.Evaluator
	Records    attendancerepo.Repository
	Audit      audit.AuditLogger
	Tracer     trace.Tracer
}

// StageResult reports the effect of one stage submission.
type StageResult struct {
	Session *domain.Session
	// Passed is true when this submission advanced or finalized the session successfully.
	Passed bool
	// Reason explains a non-passing submission (geofence reason, token outcome,
	// biometric rejection, or a finalization failure reason).
	Reason string
	// TriesRemaining is how many attempts are left for the submitted stage.
	// Zero once the stage passed or the session finalized.
	TriesRemaining int
}

// Orchestrator coordinates the verification stages for all sessions.
type Orchestrator struct {
	sessions   store.Store
	rooms      RoomSource
	lectures   LectureSource
	tokens     TokenAuthority
	biometrics AssertionVerifier
	overrides  engine.Evaluator
	records    attendancerepo.Repository
	audit      audit.AuditLogger
	tracer     trace.Tracer
	cfg        Config

	nowF func() time.Time
}

// NewOrchestrator wires an orchestrator from its dependencies.
func NewOrchestrator(d Deps, cfg Config) *Orchestrator {
	tracer := d.Tracer
	if tracer == nil {
		tracer = otel.Tracer("attendance-verification-engine/verification")
	}
	return &Orchestrator{
		sessions:   d.Sessions,
		rooms:      d.Rooms,
		lectures:   d.Lectures,
		tokens:     d.Tokens,
		biometrics: d.Biometrics,
		overrides:  d.Overrides,
		records:    d.Records,
		audit:      d.Audit,
		tracer:     tracer,
		cfg:        cfg,
		nowF:       time.Now,
	}
}

func (o *Orchestrator) now() time.Time { return o.nowF().UTC() }

func (o *Orchestrator) logEvent(ctx context.Context, studentID, lectureID, action, resource, metadata string) {
	if o.audit != nil {
		o.audit.LogEvent(ctx, studentID, lectureID, action, resource, metadata)
	}
}

// activeLecture loads the lecture and checks it is inside its scheduled window.
func (o *Orchestrator) activeLecture(ctx context.Context, lectureID string) (*lecturedomain.Lecture, error) {
	lec, err := o.lectures.GetByID(ctx, lectureID)
	if err != nil {
		return nil, err
	}
	if lec == nil {
		return nil, ErrUnknownLecture
	}
	if !lec.ActiveAt(o.now()) {
		return nil, ErrLectureClosed
	}
	return lec, nil
}

// ensureSession returns the open session for the pair, creating one when absent.
// Creation is idempotent: a racing create resolves to the stored session. The
// deadline is the session timeout clamped to the lecture's end.
func (o *Orchestrator) ensureSession(ctx context.Context, studentID, lectureID string) (*domain.Session, error) {
	s, err := o.sessions.Get(ctx, studentID, lectureID)
	if err != nil {
		return nil, err
	}
	if s != nil {
		return s, nil
	}
	now := o.now()
	deadline := now.Add(o.cfg.SessionTimeout)
	if lec, err := o.lectures.GetByID(ctx, lectureID); err == nil && lec != nil && lec.EndsAt.Before(deadline) {
		deadline = lec.EndsAt
	}
	s = &domain.Session{
		ID:        uuid.New().String(),
		StudentID: studentID,
		LectureID: lectureID,
		Stage:     domain.StageStarted,
		Version:   1,
		StartedAt: now,
		UpdatedAt: now,
		Deadline:  deadline,
	}
	if err := o.sessions.Create(ctx, s); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return o.sessions.Get(ctx, studentID, lectureID)
		}
		return nil, err
	}
	o.logEvent(ctx, studentID, lectureID, "session_created", "session", "")
	return s, nil
}

// applyFunc mutates the session for one submission. It returns the submission
// result and whether the mutation should be committed.
type applyFunc func(s *domain.Session) (res StageResult, commit bool, err error)

// transition runs one optimistic-lock cycle: load the session, apply the
// mutation, and commit it with a version check, reloading on conflicts.
// Expired sessions are finalized as timed out before the mutation runs.
func (o *Orchestrator) transition(ctx context.Context, studentID, lectureID string, apply applyFunc) (StageResult, error) {
	var lastErr error
	for attempt := 0; attempt < maxStateRetries; attempt++ {
		s, err := o.ensureSession(ctx, studentID, lectureID)
		if err != nil {
			return StageResult{}, err
		}
		now := o.now()
		if s.Closed() {
			return StageResult{Session: s}, ErrSessionClosed
		}
		if s.TimedOut(now) {
			prev := s.Stage
			o.finalizeFailed(s, domain.ReasonTimeout, now)
			if err := o.sessions.Update(ctx, s); err != nil {
				if errors.Is(err, store.ErrStaleState) {
					lastErr = err
					continue
				}
				return StageResult{}, err
			}
			o.afterFinalize(ctx, s, prev)
			return StageResult{Session: s, Reason: domain.ReasonTimeout}, ErrSessionClosed
		}
		prev := s.Stage
		res, commit, err := apply(s)
		if err != nil {
			return StageResult{Session: s}, err
		}
		if !commit {
			res.Session = s
			return res, nil
		}
		s.UpdatedAt = now
		if err := o.sessions.Update(ctx, s); err != nil {
			if errors.Is(err, store.ErrStaleState) {
				lastErr = err
				continue
			}
			return StageResult{}, err
		}
		if s.Closed() {
			o.afterFinalize(ctx, s, prev)
		}
		res.Session = s
		return res, nil
	}
	return StageResult{}, lastErr
}

func (o *Orchestrator) finalizeFailed(s *domain.Session, reason string, now time.Time) {
	s.Stage = domain.StageFinalizedFailed
	s.FailureReason = reason
	s.UpdatedAt = now
}

// afterFinalize runs the post-commit effects of a terminal transition: the
// attendance record write and the audit entry. The version check on the commit
// guarantees only one caller gets here per session.
func (o *Orchestrator) afterFinalize(ctx context.Context, s *domain.Session, prev domain.Stage) {
	rec := buildRecord(s, prev)
	if err := o.records.Create(ctx, rec); err != nil {
		if errors.Is(err, attendancerepo.ErrDuplicateRecord) {
			log.Printf("verification: record for %s/%s already exists", s.StudentID, s.LectureID)
		} else {
			log.Printf("verification: failed to write record for %s/%s: %v", s.StudentID, s.LectureID, err)
		}
	}
	meta := s.FailureReason
	if meta == "" {
		meta = string(rec.Method)
	}
	o.logEvent(ctx, s.StudentID, s.LectureID, "session_finalized", string(s.Stage), meta)
}

// buildRecord derives the immutable attendance record from a finalized session.
// prev is the stage the session held before the terminal transition.
func buildRecord(s *domain.Session, prev domain.Stage) *attendancedomain.Record {
	rec := &attendancedomain.Record{
		ID:        uuid.New().String(),
		StudentID: s.StudentID,
		LectureID: s.LectureID,
		CheckInAt: s.UpdatedAt,
	}

	reached := func(stage domain.Stage) bool {
		switch stage {
		case domain.StageLocationVerified:
			return prev == domain.StageLocationVerified || prev == domain.StageTokenVerified
		case domain.StageTokenVerified:
			return prev == domain.StageTokenVerified
		}
		return false
	}

	switch {
	case s.Stage == domain.StageExceptional:
		rec.Present = true
		rec.Method = attendancedomain.MethodExceptional
		rec.ApprovedBy = s.OverrideApprovedBy
		rec.Justification = s.OverrideJustification
		rec.LocationOutcome = passedOrSkipped(reached(domain.StageLocationVerified))
		rec.TokenOutcome = passedOrSkipped(reached(domain.StageTokenVerified))
		rec.BiometricOutcome = attendancedomain.StageSkipped

	case s.Stage == domain.StageFinalizedSuccess:
		rec.Present = true
		rec.Method = attendancedomain.MethodTriple
		rec.LocationOutcome = attendancedomain.StagePassed
		rec.TokenOutcome = attendancedomain.StagePassed
		rec.BiometricOutcome = attendancedomain.StagePassed

	default:
		rec.Present = false
		rec.Method = attendancedomain.MethodTriple
		switch s.FailureReason {
		case domain.ReasonLocationExceededRetries:
			rec.LocationOutcome = attendancedomain.StageFailed
			rec.TokenOutcome = attendancedomain.StageSkipped
			rec.BiometricOutcome = attendancedomain.StageSkipped
		case domain.ReasonTokenExceededRetries:
			rec.LocationOutcome = attendancedomain.StagePassed
			rec.TokenOutcome = attendancedomain.StageFailed
			rec.BiometricOutcome = attendancedomain.StageSkipped
		case domain.ReasonBiometricRejected:
			rec.LocationOutcome = attendancedomain.StagePassed
			rec.TokenOutcome = attendancedomain.StagePassed
			rec.BiometricOutcome = attendancedomain.StageFailed
		default:
			rec.LocationOutcome = passedOrSkipped(reached(domain.StageLocationVerified))
			rec.TokenOutcome = passedOrSkipped(reached(domain.StageTokenVerified))
			rec.BiometricOutcome = attendancedomain.StageSkipped
		}
	}
	return rec
}

func passedOrSkipped(passed bool) attendancedomain.StageOutcome {
	if passed {
		return attendancedomain.StagePassed
	}
	return attendancedomain.StageSkipped
}

// ReportLocation evaluates a position against the lecture room's fence. An
// inside decision advances the session; a low-accuracy reading is inconclusive
// and does not consume a try; a containment failure consumes one try and
// finalizes the session once the budget is exhausted.
func (o *Orchestrator) ReportLocation(ctx context.Context, studentID, lectureID string, pos geo.Position) (StageResult, error) {
	ctx, span := o.tracer.Start(ctx, "verification.ReportLocation", trace.WithAttributes(
		attribute.String("student.id", studentID),
		attribute.String("lecture.id", lectureID),
	))
	defer span.End()

	lec, err := o.activeLecture(ctx, lectureID)
	if err != nil {
		return StageResult{}, err
	}
	rm, err := o.rooms.Get(ctx, lec.RoomID)
	if err != nil {
		return StageResult{}, err
	}
	if rm == nil {
		return StageResult{}, ErrUnknownRoom
	}
	if pos.HasLatLng {
		pos.Point = geo.ProjectLatLng(rm.RefLat, rm.RefLng, pos.Lat, pos.Lng)
	}
	decision := geo.Evaluate(pos, rm.Fence())

	res, err := o.transition(ctx, studentID, lectureID, func(s *domain.Session) (StageResult, bool, error) {
		if s.Stage != domain.StageStarted {
			return StageResult{}, false, ErrWrongStage
		}
		if decision.Inside {
			s.Stage = domain.StageLocationVerified
			return StageResult{Passed: true}, true, nil
		}
		if decision.Reason == geo.ReasonLowAccuracy {
			return StageResult{Reason: string(decision.Reason), TriesRemaining: o.cfg.LocationMaxTries - s.LocationTries}, false, nil
		}
		s.LocationTries++
		if s.LocationTries >= o.cfg.LocationMaxTries {
			o.finalizeFailed(s, domain.ReasonLocationExceededRetries, o.now())
			return StageResult{Reason: domain.ReasonLocationExceededRetries}, true, nil
		}
		return StageResult{Reason: string(decision.Reason), TriesRemaining: o.cfg.LocationMaxTries - s.LocationTries}, true, nil
	})
	if err != nil {
		return res, err
	}
	meta := res.Reason
	if pos.PressureHPa > 0 {
		meta = strings.TrimSpace(fmt.Sprintf("%s pressure_hpa=%.2f", res.Reason, pos.PressureHPa))
	}
	o.auditStage(ctx, studentID, lectureID, "location", res, meta)
	return res, nil
}

// SubmitToken validates a presented token for the session's lecture. The
// ledger guarantees at most one accepted consumption per token; any other
// outcome consumes a try.
func (o *Orchestrator) SubmitToken(ctx context.Context, studentID, lectureID, value string) (StageResult, error) {
	ctx, span := o.tracer.Start(ctx, "verification.SubmitToken", trace.WithAttributes(
		attribute.String("student.id", studentID),
		attribute.String("lecture.id", lectureID),
	))
	defer span.End()

	if _, err := o.activeLecture(ctx, lectureID); err != nil {
		return StageResult{}, err
	}

	// Check ordering before consuming the token so an out-of-order submission
	// cannot burn a classmate's still-valid token.
	s, err := o.ensureSession(ctx, studentID, lectureID)
	if err != nil {
		return StageResult{}, err
	}
	if s.Closed() {
		return StageResult{Session: s}, ErrSessionClosed
	}
	if s.Stage != domain.StageLocationVerified {
		return StageResult{Session: s}, ErrWrongStage
	}

	// The deadline can still trip between this consumption and the commit
	// below; the token is then spent without stage credit. Tokens rotate
	// every TTL, so the student scans the next one.
	outcome := o.tokens.Validate(ctx, value, lectureID)

	res, err := o.transition(ctx, studentID, lectureID, func(s *domain.Session) (StageResult, bool, error) {
		if s.Stage != domain.StageLocationVerified {
			return StageResult{}, false, ErrWrongStage
		}
		if outcome == tokendomain.OutcomeAccepted {
			s.Stage = domain.StageTokenVerified
			return StageResult{Passed: true}, true, nil
		}
		s.TokenTries++
		if s.TokenTries >= o.cfg.TokenMaxTries {
			o.finalizeFailed(s, domain.ReasonTokenExceededRetries, o.now())
			return StageResult{Reason: domain.ReasonTokenExceededRetries}, true, nil
		}
		return StageResult{Reason: string(outcome), TriesRemaining: o.cfg.TokenMaxTries - s.TokenTries}, true, nil
	})
	if err != nil {
		return res, err
	}
	o.auditStage(ctx, studentID, lectureID, "token", res, res.Reason)
	return res, nil
}

// SubmitBiometric verifies a signed biometric assertion. A matched, live
// assertion finalizes the session as successful; a rejected one consumes a
// try. A student with no registered device key gets ErrNoDeviceKey without
// consuming a try.
func (o *Orchestrator) SubmitBiometric(ctx context.Context, studentID, lectureID, signedAssertion string) (StageResult, error) {
	ctx, span := o.tracer.Start(ctx, "verification.SubmitBiometric", trace.WithAttributes(
		attribute.String("student.id", studentID),
		attribute.String("lecture.id", lectureID),
	))
	defer span.End()

	if _, err := o.activeLecture(ctx, lectureID); err != nil {
		return StageResult{}, err
	}

	s, err := o.ensureSession(ctx, studentID, lectureID)
	if err != nil {
		return StageResult{}, err
	}
	if s.Closed() {
		return StageResult{Session: s}, ErrSessionClosed
	}
	if s.Stage != domain.StageTokenVerified {
		return StageResult{Session: s}, ErrWrongStage
	}

	assertion, verr := o.biometrics.Verify(ctx, studentID, lectureID, signedAssertion)
	if errors.Is(verr, biometric.ErrNoDeviceKey) {
		return StageResult{Session: s}, verr
	}
	accepted := verr == nil && assertion.Matched && assertion.LivenessPassed
	reason := "no_match"
	if verr != nil {
		reason = "invalid_assertion"
	} else if assertion.Matched && !assertion.LivenessPassed {
		reason = "liveness_failed"
	}

	res, err := o.transition(ctx, studentID, lectureID, func(s *domain.Session) (StageResult, bool, error) {
		if s.Stage != domain.StageTokenVerified {
			return StageResult{}, false, ErrWrongStage
		}
		if accepted {
			s.Stage = domain.StageFinalizedSuccess
			return StageResult{Passed: true}, true, nil
		}
		s.BiometricTries++
		if s.BiometricTries >= o.cfg.BiometricMaxTries {
			o.finalizeFailed(s, domain.ReasonBiometricRejected, o.now())
			return StageResult{Reason: domain.ReasonBiometricRejected}, true, nil
		}
		return StageResult{Reason: reason, TriesRemaining: o.cfg.BiometricMaxTries - s.BiometricTries}, true, nil
	})
	if err != nil {
		return res, err
	}
	o.auditStage(ctx, studentID, lectureID, "biometric", res, res.Reason)
	return res, nil
}

// OverrideExceptional finalizes the session as present without the remaining
// checks, when the override policy allows it. Works on a session at any open
// stage, creating one if needed.
func (o *Orchestrator) OverrideExceptional(ctx context.Context, studentID, lectureID, approverID, approverRole, justification string) (StageResult, error) {
	ctx, span := o.tracer.Start(ctx, "verification.OverrideExceptional", trace.WithAttributes(
		attribute.String("student.id", studentID),
		attribute.String("lecture.id", lectureID),
		attribute.String("approver.id", approverID),
	))
	defer span.End()

	lec, err := o.lectures.GetByID(ctx, lectureID)
	if err != nil {
		return StageResult{}, err
	}
	if lec == nil {
		return StageResult{}, ErrUnknownLecture
	}

	verdict, err := o.overrides.EvaluateOverride(ctx, engine.OverrideInput{
		StudentID:     studentID,
		LectureID:     lectureID,
		LectureActive: lec.ActiveAt(o.now()),
		ApproverID:    approverID,
		ApproverRole:  approverRole,
		Justification: justification,
	})
	if err != nil {
		return StageResult{Reason: verdict.Reason}, ErrOverrideDenied
	}
	if !verdict.Allowed {
		o.logEvent(ctx, studentID, lectureID, "override_denied", "override", verdict.Reason)
		return StageResult{Reason: verdict.Reason}, ErrOverrideDenied
	}

	res, err := o.transition(ctx, studentID, lectureID, func(s *domain.Session) (StageResult, bool, error) {
		s.Stage = domain.StageExceptional
		s.OverrideApprovedBy = approverID
		s.OverrideJustification = justification
		return StageResult{Passed: true, Reason: verdict.Reason}, true, nil
	})
	if err != nil {
		return res, err
	}
	o.logEvent(ctx, studentID, lectureID, "override_applied", "override", "approved_by="+approverID)
	return res, nil
}

// IssueToken mints a fresh display token for an active lecture, superseding
// the previous one. Returns the stored token and its plaintext value.
func (o *Orchestrator) IssueToken(ctx context.Context, lectureID string, ttl time.Duration) (*tokendomain.Token, string, error) {
	ctx, span := o.tracer.Start(ctx, "verification.IssueToken", trace.WithAttributes(
		attribute.String("lecture.id", lectureID),
	))
	defer span.End()

	lec, err := o.activeLecture(ctx, lectureID)
	if err != nil {
		return nil, "", err
	}
	tok, value, err := o.tokens.Issue(ctx, lec, ttl)
	if err != nil {
		return nil, "", err
	}
	o.logEvent(ctx, "", lectureID, "token_issued", "token", tok.ID)
	return tok, value, nil
}

func (o *Orchestrator) auditStage(ctx context.Context, studentID, lectureID, stage string, res StageResult, metadata string) {
	action := "stage_retry"
	if res.Passed {
		action = "stage_advanced"
	} else if res.Session != nil && res.Session.Closed() {
		action = "stage_failed"
	}
	o.logEvent(ctx, studentID, lectureID, action, stage, metadata)
}

// SweepExpired finalizes every open session past its deadline as a timeout
// failure. Returns the number of sessions it closed.
func (o *Orchestrator) SweepExpired(ctx context.Context) (int, error) {
	now := o.now()
	expired, err := o.sessions.ListExpired(ctx, now)
	if err != nil {
		return 0, err
	}
	closed := 0
	for _, s := range expired {
		prev := s.Stage
		o.finalizeFailed(s, domain.ReasonTimeout, now)
		if err := o.sessions.Update(ctx, s); err != nil {
			// A concurrent submission won the version race; leave it to them.
			if !errors.Is(err, store.ErrStaleState) {
				log.Printf("verification: sweep failed for %s/%s: %v", s.StudentID, s.LectureID, err)
			}
			continue
		}
		o.afterFinalize(ctx, s, prev)
		closed++
	}
	return closed, nil
}

// StartSweeper finalizes timed-out sessions on the given interval until ctx is done.
func (o *Orchestrator) StartSweeper(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := o.SweepExpired(ctx); err != nil {
					log.Printf("verification: sweep error: %v", err)
				}
			}
		}
	}()
}
