// Package domain defines the lecture occurrence record consumed by the engine.
// Lectures are created by the external scheduling system and are read-only here.
package domain

import "time"

// Lecture is one scheduled lecture occurrence in a room.
type Lecture struct {
	ID     string
	RoomID string
	Title  string

	// StartsAt and EndsAt bound the window in which verification submissions are accepted.
	StartsAt time.Time
	EndsAt   time.Time

	// TokenMinTTL and TokenMaxTTL bound the TTL of tokens issued for this lecture.
	// Zero values fall back to the engine-wide bounds.
	TokenMinTTL time.Duration
	TokenMaxTTL time.Duration
}

// ActiveAt reports whether now falls inside the lecture's scheduled window.
func (l *Lecture) ActiveAt(now time.Time) bool {
	return !now.Before(l.StartsAt) && !now.After(l.EndsAt)
}

// TTLBounds returns the effective token TTL bounds, falling back to the given
// engine defaults where the lecture declares none.
func (l *Lecture) TTLBounds(defaultMin, defaultMax time.Duration) (time.Duration, time.Duration) {
	minTTL, maxTTL := l.TokenMinTTL, l.TokenMaxTTL
	if minTTL <= 0 {
		minTTL = defaultMin
	}
	if maxTTL <= 0 {
		maxTTL = defaultMax
	}
	return minTTL, maxTTL
}
