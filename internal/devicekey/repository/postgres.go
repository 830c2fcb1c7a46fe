package repository

import (
	"context"
	"database/sql"
	"errors"

	"attendance-verification-engine/internal/devicekey/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a device key repository that uses the given db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByStudent returns the student's active device key, or nil if none is registered.
func (r *PostgresRepository) GetByStudent(ctx context.Context, studentID string) (*domain.DeviceKey, error) {
	var k domain.DeviceKey
	var revokedAt sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT student_id, device_id, public_key_pem, registered_at, revoked_at
		FROM device_keys
		WHERE student_id = $1 AND revoked_at IS NULL
		ORDER BY registered_at DESC
		LIMIT 1`, studentID).
		Scan(&k.StudentID, &k.DeviceID, &k.PublicKeyPEM, &k.RegisteredAt, &revokedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if revokedAt.Valid {
		k.RevokedAt = &revokedAt.Time
	}
	return &k, nil
}

// Create persists the device key.
func (r *PostgresRepository) Create(ctx context.Context, k *domain.DeviceKey) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO device_keys (student_id, device_id, public_key_pem, registered_at)
		VALUES ($1, $2, $3, $4)`,
		k.StudentID, k.DeviceID, k.PublicKeyPEM, k.RegisteredAt)
	return err
}
