// Package migrate applies the embedded schema migrations with golang-migrate.
package migrate

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"attendance-verification-engine/internal/db"
)

// Direction selects whether migrations are applied or rolled back.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// ParseDirection validates a direction string from a flag or env var.
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case Up, Down:
		return Direction(s), nil
	default:
		return "", fmt.Errorf("direction must be %q or %q, got %q", Up, Down, s)
	}
}

// ErrNoChange means the schema is already at the target version.
var ErrNoChange = migrate.ErrNoChange

// Run applies the embedded migrations against dsn in the given direction.
// It returns ErrNoChange when there is nothing to do; callers decide whether
// that is success.
func Run(dsn string, dir Direction) error {
	if dsn == "" {
		return errors.New("database DSN is empty")
	}
	if _, err := ParseDirection(string(dir)); err != nil {
		return err
	}

	src, err := iofs.New(db.MigrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("migrate source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	if dir == Up {
		return m.Up()
	}
	return m.Down()
}
