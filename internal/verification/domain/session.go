// Package domain defines the verification session state machine. A session
// walks a student through location, token, and biometric checks in order and
// finalizes into exactly one attendance record.
package domain

import "time"

// Stage is the session's position in the verification sequence. The stage
// names the last check that passed; the next check expected is the one after it.
type Stage string

const (
	// StageStarted means no check has passed yet; location proof is expected next.
	StageStarted Stage = "started"
	// StageLocationVerified means the geofence check passed; a token is expected next.
	StageLocationVerified Stage = "location_verified"
	// StageTokenVerified means the token was consumed; a biometric assertion is expected next.
	StageTokenVerified Stage = "token_verified"
	// StageFinalizedSuccess is terminal: attendance was granted.
	StageFinalizedSuccess Stage = "finalized_success"
	// StageFinalizedFailed is terminal: attendance was denied.
	StageFinalizedFailed Stage = "finalized_failed"
	// StageExceptional is terminal: a policy-approved override granted attendance
	// without the remaining checks.
	StageExceptional Stage = "exceptional"
)

// Failure reasons recorded on a failed finalization.
const (
	ReasonLocationExceededRetries = "location_exceeded_retries"
	ReasonTokenExceededRetries    = "token_exceeded_retries"
	ReasonBiometricRejected       = "biometric_rejected"
	ReasonTimeout                 = "timeout"
)

// Session is the verification state for one (student, lecture) pair. At most
// one session exists per pair. Version guards concurrent updates: a store
// write succeeds only when the stored version matches, so racing submissions
// resolve to one winner per transition.
type Session struct {
	ID        string
	StudentID string
	LectureID string

	Stage   Stage
	Version int64

	LocationTries  int
	TokenTries     int
	BiometricTries int

	StartedAt time.Time
	UpdatedAt time.Time
	// Deadline is when an open session times out and finalizes as failed.
	Deadline time.Time

	// FailureReason is set only when Stage is StageFinalizedFailed.
	FailureReason string

	// Override fields, set only when Stage is StageExceptional.
	OverrideApprovedBy    string
	OverrideJustification string
}

// Closed reports whether the session reached a terminal stage.
func (s *Session) Closed() bool {
	return s.Stage == StageFinalizedSuccess || s.Stage == StageFinalizedFailed || s.Stage == StageExceptional
}

// TimedOut reports whether the open session passed its deadline.
func (s *Session) TimedOut(now time.Time) bool {
	return !s.Closed() && now.After(s.Deadline)
}
