package engine

import "context"

// OverrideInput carries the facts an override policy is evaluated against.
type OverrideInput struct {
	StudentID     string
	LectureID     string
	LectureActive bool
	ApproverID    string
	ApproverRole  string
	Justification string
}

// OverrideResult holds the result of override policy evaluation.
type OverrideResult struct {
	Allowed bool
	Reason  string
}

// Evaluator decides whether an exceptional override may be applied, using OPA or other engines.
type Evaluator interface {
	// EvaluateOverride evaluates the enabled policies for the lecture against the input.
	// A non-nil error means evaluation could not run; the caller must treat that as denied.
	EvaluateOverride(ctx context.Context, input OverrideInput) (OverrideResult, error)
}
