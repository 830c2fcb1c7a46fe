// Package biometric verifies signed biometric assertions. The match itself runs
// on the student's device; the engine only checks that the assertion was signed
// by the student's registered device key and is bound to the right lecture.
// No biometric data ever reaches the server.
package biometric

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	devicekeyrepo "attendance-verification-engine/internal/devicekey/repository"
	"attendance-verification-engine/internal/security"
)

var (
	// ErrNoDeviceKey is returned when the student has no active registered device key.
	ErrNoDeviceKey = errors.New("no device key registered")
	// ErrInvalidAssertion is returned when the assertion is malformed, expired,
	// not signed by the registered key, or bound to a different student/lecture.
	ErrInvalidAssertion = errors.New("invalid biometric assertion")
)

// Claims is the JWS payload a device signs after a local biometric check.
type Claims struct {
	jwt.RegisteredClaims
	StudentID      string `json:"student_id"`
	LectureID      string `json:"lecture_id"`
	Matched        bool   `json:"matched"`
	LivenessPassed bool   `json:"liveness_passed"`
}

// Assertion is the verified statement extracted from a valid JWS.
type Assertion struct {
	Matched        bool
	LivenessPassed bool
	DeviceID       string
}

// Verifier checks assertion signatures against registered device keys.
type Verifier struct {
	keys devicekeyrepo.Repository
	nowF func() time.Time
}

// NewVerifier returns a Verifier backed by the given device key repository.
func NewVerifier(keys devicekeyrepo.Repository) *Verifier {
	return &Verifier{keys: keys, nowF: func() time.Time { return time.Now().UTC() }}
}

// Verify validates the signed assertion for (studentID, lectureID) and returns
// the asserted match/liveness statement. Signature, expiry, and student/lecture
// binding must all hold; the asserted booleans themselves are not judged here.
func (v *Verifier) Verify(ctx context.Context, studentID, lectureID, signedAssertion string) (*Assertion, error) {
	key, err := v.keys.GetByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if !key.Active() {
		return nil, ErrNoDeviceKey
	}
	pub, err := security.ParsePublicKey(key.PublicKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoDeviceKey, err)
	}
	alg := security.KeyAlg(pub)
	if alg == "" {
		return nil, ErrNoDeviceKey
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{alg}),
		jwt.WithTimeFunc(v.nowF),
		jwt.WithExpirationRequired(),
	)
	var claims Claims
	if _, err := parser.ParseWithClaims(signedAssertion, &claims, func(*jwt.Token) (any, error) {
		return pub, nil
	}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAssertion, err)
	}
	if claims.StudentID != studentID || claims.LectureID != lectureID {
		return nil, fmt.Errorf("%w: assertion bound to another student or lecture", ErrInvalidAssertion)
	}

	return &Assertion{
		Matched:        claims.Matched,
		LivenessPassed: claims.LivenessPassed,
		DeviceID:       key.DeviceID,
	}, nil
}
