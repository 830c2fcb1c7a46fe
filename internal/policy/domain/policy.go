package domain

import "time"

// Policy holds a Rego ruleset governing exceptional overrides for a lecture.
// An empty LectureID marks a global policy applied to every lecture.
type Policy struct {
	ID        string
	LectureID string
	Rules     string
	Enabled   bool
	CreatedAt time.Time
}
