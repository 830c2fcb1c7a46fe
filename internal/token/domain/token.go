// Package domain defines verification tokens (the "dynamic QR" credential).
package domain

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"time"
)

// ErrInvalidTTL is returned when an issuance TTL falls outside the lecture's configured bounds.
var ErrInvalidTTL = errors.New("invalid ttl")

// Outcome is the result of validating a presented token.
type Outcome string

const (
	OutcomeAccepted        Outcome = "accepted"
	OutcomeExpired         Outcome = "expired"
	OutcomeAlreadyConsumed Outcome = "already_consumed"
	OutcomeWrongLecture    Outcome = "wrong_lecture"
	OutcomeUnknown         Outcome = "unknown"
)

// Token is a short-lived, single-use credential bound to one lecture occurrence.
// The opaque value is never stored; only its hash is.
type Token struct {
	ID        string
	LectureID string
	// ValueHash is the SHA-256 hash of the opaque token value, hex-encoded.
	ValueHash    string
	IssuedAt     time.Time
	ExpiresAt    time.Time
	ConsumedAt   *time.Time // nil until consumed; set exactly once
	SupersededAt *time.Time // nil until a newer token is issued for the lecture
}

const valueBytes = 32

// NewValue returns a new opaque token value, url-safe for QR encoding.
// Uses crypto/rand for randomness.
func NewValue() (string, error) {
	b := make([]byte, valueBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashValue returns a SHA-256 hash of the token value, hex-encoded.
func HashValue(value string) string {
	h := sha256.Sum256([]byte(value))
	return hex.EncodeToString(h[:])
}
