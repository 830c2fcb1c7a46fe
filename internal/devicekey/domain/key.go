// Package domain defines the registered device key used to verify a student's
// biometric assertions. Key enrollment is owned by the external device-management
// system; the engine only reads keys.
package domain

import "time"

// DeviceKey is a student's registered device public key.
type DeviceKey struct {
	StudentID string
	DeviceID  string
	// PublicKeyPEM is the PEM-encoded public key (RSA or ECDSA).
	PublicKeyPEM string
	RegisteredAt time.Time
	RevokedAt    *time.Time // nil when not revoked
}

// Active reports whether the key may be used for verification.
func (k *DeviceKey) Active() bool {
	return k != nil && k.RevokedAt == nil
}
