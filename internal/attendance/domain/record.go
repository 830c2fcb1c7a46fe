// Package domain defines the finalized attendance record, the single output of
// a verification session. Records are immutable once written.
package domain

import "time"

// Method is how the attendance was verified.
type Method string

const (
	// MethodTriple means all three checks (location, token, biometric) passed.
	MethodTriple Method = "triple"
	// MethodExceptional means an administrative override bypassed remaining checks.
	MethodExceptional Method = "exceptional"
	// MethodManual means the record was entered by hand outside the engine.
	MethodManual Method = "manual"
)

// StageOutcome is the recorded result of one verification stage.
type StageOutcome string

const (
	StagePassed  StageOutcome = "passed"
	StageFailed  StageOutcome = "failed"
	StageSkipped StageOutcome = "skipped"
)

// Record is one finalized attendance decision for a (student, lecture) pair.
type Record struct {
	ID        string
	StudentID string
	LectureID string
	CheckInAt time.Time
	Present   bool
	Method    Method

	LocationOutcome  StageOutcome
	TokenOutcome     StageOutcome
	BiometricOutcome StageOutcome

	// ApprovedBy and Justification are set only for exceptional records.
	ApprovedBy    string
	Justification string
}
