// Package domain defines the stage-transition event emitted to the audit pipeline.
package domain

import "time"

// StageEvent is one security-relevant verification event: a stage transition,
// a failed try, or a suspicious token outcome (already_consumed, wrong_lecture).
type StageEvent struct {
	ID        string `json:"id"`
	StudentID string `json:"studentId"`
	LectureID string `json:"lectureId"`
	// Action is what happened (e.g. "stage_advanced", "stage_retry", "token_already_consumed").
	Action string `json:"action"`
	// Stage is the session stage the event refers to.
	Stage string `json:"stage"`
	// Reason carries the retry/failure reason code when present.
	Reason    string    `json:"reason,omitempty"`
	IP        string    `json:"ip,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
