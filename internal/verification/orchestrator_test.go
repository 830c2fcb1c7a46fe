package verification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	attendancedomain "attendance-verification-engine/internal/attendance/domain"
	attendancerepo "attendance-verification-engine/internal/attendance/repository"
	"attendance-verification-engine/internal/biometric"
	"attendance-verification-engine/internal/geo"
	lecturedomain "attendance-verification-engine/internal/lecture/domain"
	"attendance-verification-engine/internal/policy/engine"
	roomdomain "attendance-verification-engine/internal/room/domain"
	tokendomain "attendance-verification-engine/internal/token/domain"
	"attendance-verification-engine/internal/verification/domain"
	"attendance-verification-engine/internal/verification/store"
)

var testStart = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fakeRooms struct {
	rooms map[string]*roomdomain.Room
}

func (f *fakeRooms) Get(ctx context.Context, id string) (*roomdomain.Room, error) {
	return f.rooms[id], nil
}

type fakeLectures struct {
	lectures map[string]*lecturedomain.Lecture
}

func (f *fakeLectures) GetByID(ctx context.Context, id string) (*lecturedomain.Lecture, error) {
	return f.lectures[id], nil
}

type fakeTokens struct {
	mu       sync.Mutex
	outcome  tokendomain.Outcome
	validate int
}

func (f *fakeTokens) Issue(ctx context.Context, lec *lecturedomain.Lecture, ttl time.Duration) (*tokendomain.Token, string, error) {
	return &tokendomain.Token{ID: "tok-1", LectureID: lec.ID}, "plaintext", nil
}

func (f *fakeTokens) Validate(ctx context.Context, value, lectureID string) tokendomain.Outcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.validate++
	return f.outcome
}

func (f *fakeTokens) validateCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.validate
}

type fakeBiometrics struct {
	assertion *biometric.Assertion
	err       error
}

func (f *fakeBiometrics) Verify(ctx context.Context, studentID, lectureID, signed string) (*biometric.Assertion, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.assertion, nil
}

type fakeOverrides struct {
	result engine.OverrideResult
	err    error
}

func (f *fakeOverrides) EvaluateOverride(ctx context.Context, in engine.OverrideInput) (engine.OverrideResult, error) {
	return f.result, f.err
}

type testHarness struct {
	orch    *Orchestrator
	tokens  *fakeTokens
	bio     *fakeBiometrics
	over    *fakeOverrides
	records *attendancerepo.MemoryRepository
	now     time.Time
	mu      sync.Mutex
}

func (h *testHarness) advance(d time.Duration) {
	h.mu.Lock()
	h.now = h.now.Add(d)
	h.mu.Unlock()
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	room := &roomdomain.Room{
		ID: "room-1",
		Vertices: []geo.Point{
			{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}, {X: 0, Y: 10},
		},
		FloorAltitudeM:       0,
		CeilingAltitudeM:     3,
		RefLat:               12.9716,
		RefLng:               77.5946,
		HorizontalToleranceM: 3,
		VerticalToleranceM:   0.5,
	}
	lec := &lecturedomain.Lecture{
		ID:       "lec-1",
		RoomID:   "room-1",
		StartsAt: testStart.Add(-time.Hour),
		EndsAt:   testStart.Add(time.Hour),
	}
	h := &testHarness{
		tokens:  &fakeTokens{outcome: tokendomain.OutcomeAccepted},
		bio:     &fakeBiometrics{assertion: &biometric.Assertion{Matched: true, LivenessPassed: true}},
		over:    &fakeOverrides{result: engine.OverrideResult{Allowed: true, Reason: "allowed"}},
		records: attendancerepo.NewMemoryRepository(),
		now:     testStart,
	}
	h.orch = NewOrchestrator(Deps{
		Sessions:   store.NewMemoryStore(),
		Rooms:      &fakeRooms{rooms: map[string]*roomdomain.Room{"room-1": room}},
		Lectures:   &fakeLectures{lectures: map[string]*lecturedomain.Lecture{"lec-1": lec}},
		Tokens:     h.tokens,
		Biometrics: h.bio,
		Overrides:  h.over,
		Records:    h.records,
	}, Config{
		LocationMaxTries:  3,
		TokenMaxTries:     3,
		BiometricMaxTries: 3,
		SessionTimeout:    10 * time.Minute,
	})
	h.orch.nowF = func() time.Time {
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.now
	}
	return h
}

func insidePos() geo.Position {
	return geo.Position{Point: geo.Point{X: 5, Y: 5}, AltitudeM: 1.5, AccuracyM: 2}
}

func outsidePos() geo.Position {
	return geo.Position{Point: geo.Point{X: 50, Y: 5}, AltitudeM: 1.5, AccuracyM: 2}
}

func TestOrchestrator_HappyPath(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.orch.ReportLocation(ctx, "stu-1", "lec-1", insidePos())
	if err != nil || !res.Passed {
		t.Fatalf("ReportLocation = (%+v, %v), want passed", res, err)
	}
	if res.Session.Stage != domain.StageLocationVerified {
		t.Fatalf("stage = %s", res.Session.Stage)
	}

	res, err = h.orch.SubmitToken(ctx, "stu-1", "lec-1", "val")
	if err != nil || !res.Passed {
		t.Fatalf("SubmitToken = (%+v, %v), want passed", res, err)
	}

	res, err = h.orch.SubmitBiometric(ctx, "stu-1", "lec-1", "jws")
	if err != nil || !res.Passed {
		t.Fatalf("SubmitBiometric = (%+v, %v), want passed", res, err)
	}
	if res.Session.Stage != domain.StageFinalizedSuccess {
		t.Fatalf("stage = %s", res.Session.Stage)
	}

	rec, _ := h.records.GetByStudentAndLecture(ctx, "stu-1", "lec-1")
	if rec == nil {
		t.Fatal("no attendance record written")
	}
	if !rec.Present || rec.Method != attendancedomain.MethodTriple {
		t.Errorf("record = present=%v method=%s", rec.Present, rec.Method)
	}
	if rec.LocationOutcome != attendancedomain.StagePassed ||
		rec.TokenOutcome != attendancedomain.StagePassed ||
		rec.BiometricOutcome != attendancedomain.StagePassed {
		t.Errorf("outcomes = %s/%s/%s, want all passed", rec.LocationOutcome, rec.TokenOutcome, rec.BiometricOutcome)
	}

	// Closed session rejects further submissions.
	if _, err := h.orch.SubmitBiometric(ctx, "stu-1", "lec-1", "jws"); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("resubmit after finalize = %v, want ErrSessionClosed", err)
	}
}

func TestOrchestrator_OutOfOrderDoesNotConsumeToken(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.orch.SubmitToken(ctx, "stu-1", "lec-1", "val"); !errors.Is(err, ErrWrongStage) {
		t.Fatalf("SubmitToken before location = %v, want ErrWrongStage", err)
	}
	if got := h.tokens.validateCalls(); got != 0 {
		t.Errorf("token validated %d times on out-of-order submission, want 0", got)
	}
	if _, err := h.orch.SubmitBiometric(ctx, "stu-1", "lec-1", "jws"); !errors.Is(err, ErrWrongStage) {
		t.Errorf("SubmitBiometric before token = %v, want ErrWrongStage", err)
	}
}

func TestOrchestrator_GeographicReportIsProjected(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// ~5 m north-east of the room's calibration reference: inside.
	near := geo.Position{AltitudeM: 1.5, AccuracyM: 2, Lat: 12.971645, Lng: 77.594646, HasLatLng: true}
	res, err := h.orch.ReportLocation(ctx, "stu-1", "lec-1", near)
	if err != nil || !res.Passed {
		t.Fatalf("near reading = (%+v, %v), want passed", res, err)
	}

	// ~50 m east: outside, even though the unset X/Y would sit on a vertex.
	far := geo.Position{AltitudeM: 1.5, AccuracyM: 2, Lat: 12.9716, Lng: 77.595061, HasLatLng: true}
	res, err = h.orch.ReportLocation(ctx, "stu-2", "lec-1", far)
	if err != nil {
		t.Fatal(err)
	}
	if res.Passed || res.Reason != string(geo.ReasonOutsideHorizontal) {
		t.Fatalf("far reading = %+v, want outside_horizontal", res)
	}
}

func TestOrchestrator_LocationRetriesExhausted(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := h.orch.ReportLocation(ctx, "stu-1", "lec-1", outsidePos())
		if err != nil {
			t.Fatalf("try %d: %v", i, err)
		}
		if res.Passed || res.Session.Closed() {
			t.Fatalf("try %d: session should stay open, got %+v", i, res)
		}
		if res.Reason != string(geo.ReasonOutsideHorizontal) {
			t.Errorf("try %d reason = %q", i, res.Reason)
		}
		if want := 2 - i; res.TriesRemaining != want {
			t.Errorf("try %d tries remaining = %d, want %d", i, res.TriesRemaining, want)
		}
	}

	res, err := h.orch.ReportLocation(ctx, "stu-1", "lec-1", outsidePos())
	if err != nil {
		t.Fatalf("final try: %v", err)
	}
	if res.Session.Stage != domain.StageFinalizedFailed || res.Reason != domain.ReasonLocationExceededRetries {
		t.Fatalf("final try = %+v, want failed finalization", res)
	}

	rec, _ := h.records.GetByStudentAndLecture(ctx, "stu-1", "lec-1")
	if rec == nil || rec.Present {
		t.Fatalf("record = %+v, want absent record", rec)
	}
	if rec.LocationOutcome != attendancedomain.StageFailed || rec.TokenOutcome != attendancedomain.StageSkipped {
		t.Errorf("outcomes = %s/%s", rec.LocationOutcome, rec.TokenOutcome)
	}
}

func TestOrchestrator_LowAccuracyDoesNotConsumeTry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	blurry := geo.Position{Point: geo.Point{X: 5, Y: 5}, AltitudeM: 1.5, AccuracyM: 50}
	for i := 0; i < 5; i++ {
		res, err := h.orch.ReportLocation(ctx, "stu-1", "lec-1", blurry)
		if err != nil {
			t.Fatalf("try %d: %v", i, err)
		}
		if res.Reason != string(geo.ReasonLowAccuracy) {
			t.Fatalf("reason = %q", res.Reason)
		}
		if res.Session.LocationTries != 0 {
			t.Fatalf("tries = %d after inconclusive reading, want 0", res.Session.LocationTries)
		}
		if res.TriesRemaining != 3 {
			t.Fatalf("tries remaining = %d, want full budget", res.TriesRemaining)
		}
	}

	// A sharp reading still succeeds afterwards.
	res, err := h.orch.ReportLocation(ctx, "stu-1", "lec-1", insidePos())
	if err != nil || !res.Passed {
		t.Fatalf("sharp reading = (%+v, %v), want passed", res, err)
	}
}

func TestOrchestrator_TokenRetriesExhausted(t *testing.T) {
	h := newHarness(t)
	h.tokens.outcome = tokendomain.OutcomeExpired
	ctx := context.Background()

	if _, err := h.orch.ReportLocation(ctx, "stu-1", "lec-1", insidePos()); err != nil {
		t.Fatal(err)
	}
	var res StageResult
	var err error
	for i := 0; i < 3; i++ {
		res, err = h.orch.SubmitToken(ctx, "stu-1", "lec-1", "stale")
		if err != nil {
			t.Fatalf("try %d: %v", i, err)
		}
	}
	if res.Session.Stage != domain.StageFinalizedFailed || res.Reason != domain.ReasonTokenExceededRetries {
		t.Fatalf("final = %+v", res)
	}

	rec, _ := h.records.GetByStudentAndLecture(ctx, "stu-1", "lec-1")
	if rec == nil || rec.Present {
		t.Fatalf("record = %+v", rec)
	}
	if rec.LocationOutcome != attendancedomain.StagePassed || rec.TokenOutcome != attendancedomain.StageFailed {
		t.Errorf("outcomes = %s/%s", rec.LocationOutcome, rec.TokenOutcome)
	}
}

func TestOrchestrator_BiometricRejected(t *testing.T) {
	h := newHarness(t)
	h.bio.assertion = &biometric.Assertion{Matched: false, LivenessPassed: true}
	ctx := context.Background()

	if _, err := h.orch.ReportLocation(ctx, "stu-1", "lec-1", insidePos()); err != nil {
		t.Fatal(err)
	}
	if _, err := h.orch.SubmitToken(ctx, "stu-1", "lec-1", "val"); err != nil {
		t.Fatal(err)
	}

	var res StageResult
	var err error
	for i := 0; i < 3; i++ {
		res, err = h.orch.SubmitBiometric(ctx, "stu-1", "lec-1", "jws")
		if err != nil {
			t.Fatalf("try %d: %v", i, err)
		}
	}
	if res.Session.Stage != domain.StageFinalizedFailed || res.Reason != domain.ReasonBiometricRejected {
		t.Fatalf("final = %+v", res)
	}

	rec, _ := h.records.GetByStudentAndLecture(ctx, "stu-1", "lec-1")
	if rec == nil || rec.BiometricOutcome != attendancedomain.StageFailed {
		t.Fatalf("record = %+v", rec)
	}
}

func TestOrchestrator_NoDeviceKeyDoesNotConsumeTry(t *testing.T) {
	h := newHarness(t)
	h.bio.err = biometric.ErrNoDeviceKey
	ctx := context.Background()

	if _, err := h.orch.ReportLocation(ctx, "stu-1", "lec-1", insidePos()); err != nil {
		t.Fatal(err)
	}
	if _, err := h.orch.SubmitToken(ctx, "stu-1", "lec-1", "val"); err != nil {
		t.Fatal(err)
	}

	res, err := h.orch.SubmitBiometric(ctx, "stu-1", "lec-1", "jws")
	if !errors.Is(err, biometric.ErrNoDeviceKey) {
		t.Fatalf("err = %v, want ErrNoDeviceKey", err)
	}
	if res.Session.BiometricTries != 0 {
		t.Errorf("tries = %d, want 0", res.Session.BiometricTries)
	}
}

func TestOrchestrator_OverrideExceptional(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// Student got past the geofence, then the fingerprint reader died.
	if _, err := h.orch.ReportLocation(ctx, "stu-1", "lec-1", insidePos()); err != nil {
		t.Fatal(err)
	}

	res, err := h.orch.OverrideExceptional(ctx, "stu-1", "lec-1", "lect-9", "lecturer", "reader broken")
	if err != nil || !res.Passed {
		t.Fatalf("override = (%+v, %v)", res, err)
	}
	if res.Session.Stage != domain.StageExceptional {
		t.Fatalf("stage = %s", res.Session.Stage)
	}

	rec, _ := h.records.GetByStudentAndLecture(ctx, "stu-1", "lec-1")
	if rec == nil {
		t.Fatal("no record")
	}
	if !rec.Present || rec.Method != attendancedomain.MethodExceptional {
		t.Errorf("record = present=%v method=%s", rec.Present, rec.Method)
	}
	if rec.ApprovedBy != "lect-9" || rec.Justification != "reader broken" {
		t.Errorf("approval = %s/%s", rec.ApprovedBy, rec.Justification)
	}
	if rec.LocationOutcome != attendancedomain.StagePassed || rec.TokenOutcome != attendancedomain.StageSkipped {
		t.Errorf("outcomes = %s/%s", rec.LocationOutcome, rec.TokenOutcome)
	}
}

func TestOrchestrator_OverrideDenied(t *testing.T) {
	h := newHarness(t)
	h.over.result = engine.OverrideResult{Allowed: false, Reason: "self_approval"}
	ctx := context.Background()

	res, err := h.orch.OverrideExceptional(ctx, "stu-1", "lec-1", "stu-1", "lecturer", "please")
	if !errors.Is(err, ErrOverrideDenied) {
		t.Fatalf("err = %v, want ErrOverrideDenied", err)
	}
	if res.Reason != "self_approval" {
		t.Errorf("reason = %q", res.Reason)
	}
	if rec, _ := h.records.GetByStudentAndLecture(ctx, "stu-1", "lec-1"); rec != nil {
		t.Error("denied override must not write a record")
	}
}

func TestOrchestrator_SessionTimeout(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.orch.ReportLocation(ctx, "stu-1", "lec-1", insidePos()); err != nil {
		t.Fatal(err)
	}

	h.advance(11 * time.Minute)

	res, err := h.orch.SubmitToken(ctx, "stu-1", "lec-1", "val")
	if !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("err = %v, want ErrSessionClosed", err)
	}
	if res.Session.Stage != domain.StageFinalizedFailed || res.Session.FailureReason != domain.ReasonTimeout {
		t.Fatalf("session = %+v", res.Session)
	}

	rec, _ := h.records.GetByStudentAndLecture(ctx, "stu-1", "lec-1")
	if rec == nil || rec.Present {
		t.Fatalf("record = %+v, want absent timeout record", rec)
	}
	if rec.LocationOutcome != attendancedomain.StagePassed || rec.TokenOutcome != attendancedomain.StageSkipped {
		t.Errorf("outcomes = %s/%s", rec.LocationOutcome, rec.TokenOutcome)
	}
}

func TestOrchestrator_SweepExpired(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.orch.ReportLocation(ctx, "stu-1", "lec-1", insidePos()); err != nil {
		t.Fatal(err)
	}
	if _, err := h.orch.ReportLocation(ctx, "stu-2", "lec-1", insidePos()); err != nil {
		t.Fatal(err)
	}

	h.advance(11 * time.Minute)

	closed, err := h.orch.SweepExpired(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if closed != 2 {
		t.Fatalf("closed = %d, want 2", closed)
	}
	for _, stu := range []string{"stu-1", "stu-2"} {
		rec, _ := h.records.GetByStudentAndLecture(ctx, stu, "lec-1")
		if rec == nil || rec.Present {
			t.Errorf("%s: record = %+v, want absent timeout record", stu, rec)
		}
	}

	// Sweep is idempotent once sessions are closed.
	closed, err = h.orch.SweepExpired(ctx)
	if err != nil || closed != 0 {
		t.Errorf("second sweep = (%d, %v), want (0, nil)", closed, err)
	}
}

func TestOrchestrator_UnknownAndClosedLecture(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.orch.ReportLocation(ctx, "stu-1", "lec-404", insidePos()); !errors.Is(err, ErrUnknownLecture) {
		t.Errorf("unknown lecture = %v", err)
	}

	h.advance(2 * time.Hour)
	if _, err := h.orch.ReportLocation(ctx, "stu-1", "lec-1", insidePos()); !errors.Is(err, ErrLectureClosed) {
		t.Errorf("closed lecture = %v", err)
	}
	if _, _, err := h.orch.IssueToken(ctx, "lec-1", time.Minute); !errors.Is(err, ErrLectureClosed) {
		t.Errorf("issue on closed lecture = %v", err)
	}
}

func TestOrchestrator_ConcurrentFinalizeWritesOneRecord(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.orch.ReportLocation(ctx, "stu-1", "lec-1", insidePos()); err != nil {
		t.Fatal(err)
	}
	if _, err := h.orch.SubmitToken(ctx, "stu-1", "lec-1", "val"); err != nil {
		t.Fatal(err)
	}

	const n = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			res, err := h.orch.SubmitBiometric(ctx, "stu-1", "lec-1", "jws")
			if err == nil && res.Passed {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != 1 {
		t.Errorf("succeeded = %d, want exactly 1", succeeded)
	}
	rec, _ := h.records.GetByStudentAndLecture(ctx, "stu-1", "lec-1")
	if rec == nil || !rec.Present {
		t.Fatalf("record = %+v", rec)
	}
}

func TestOrchestrator_SessionsIndependentAcrossLectures(t *testing.T) {
	h := newHarness(t)
	lec2 := &lecturedomain.Lecture{
		ID:       "lec-2",
		RoomID:   "room-1",
		StartsAt: testStart.Add(-time.Hour),
		EndsAt:   testStart.Add(time.Hour),
	}
	h.orch.lectures.(*fakeLectures).lectures["lec-2"] = lec2
	ctx := context.Background()

	if _, err := h.orch.ReportLocation(ctx, "stu-1", "lec-1", insidePos()); err != nil {
		t.Fatal(err)
	}
	res, err := h.orch.ReportLocation(ctx, "stu-1", "lec-2", insidePos())
	if err != nil || !res.Passed {
		t.Fatalf("second lecture session = (%+v, %v)", res, err)
	}
	if res.Session.LectureID != "lec-2" || res.Session.Stage != domain.StageLocationVerified {
		t.Errorf("session = %+v", res.Session)
	}
}
