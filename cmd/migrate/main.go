// migrate applies the embedded schema migrations; use with go run ./cmd/migrate.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"attendance-verification-engine/internal/config"
	"attendance-verification-engine/internal/db/migrate"
)

func main() {
	directionFlag := flag.String("direction", "up", "migration direction: up or down")
	flag.Parse()

	dir, err := migrate.ParseDirection(*directionFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	if cfg.DatabaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
		os.Exit(1)
	}

	switch err := migrate.Run(cfg.DatabaseURL, dir); {
	case err == nil:
		fmt.Println("migrations applied")
	case errors.Is(err, migrate.ErrNoChange):
		fmt.Println("schema already at target version")
	default:
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}
