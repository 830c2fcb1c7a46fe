package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"attendance-verification-engine/internal/room/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a room repository that uses the given db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const roomColumns = `id, name, building, floor, capacity, vertices,
	floor_altitude_m, ceiling_altitude_m, reference_pressure_hpa,
	ref_lat, ref_lng,
	horizontal_tolerance_m, vertical_tolerance_m, calibrated_at`

// GetByID returns the room for id, or nil if not found.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Room, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = $1`, id)
	rm, err := scanRoom(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return rm, nil
}

// List returns all published rooms.
func (r *PostgresRepository) List(ctx context.Context) ([]*domain.Room, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+roomColumns+` FROM rooms ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Room
	for rows.Next() {
		rm, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rm)
	}
	return out, rows.Err()
}

// Upsert writes the room, replacing any existing row for the same id in one statement.
func (r *PostgresRepository) Upsert(ctx context.Context, rm *domain.Room) error {
	vertices, err := json.Marshal(rm.Vertices)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO rooms (`+roomColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			building = EXCLUDED.building,
			floor = EXCLUDED.floor,
			capacity = EXCLUDED.capacity,
			vertices = EXCLUDED.vertices,
			floor_altitude_m = EXCLUDED.floor_altitude_m,
			ceiling_altitude_m = EXCLUDED.ceiling_altitude_m,
			reference_pressure_hpa = EXCLUDED.reference_pressure_hpa,
			ref_lat = EXCLUDED.ref_lat,
			ref_lng = EXCLUDED.ref_lng,
			horizontal_tolerance_m = EXCLUDED.horizontal_tolerance_m,
			vertical_tolerance_m = EXCLUDED.vertical_tolerance_m,
			calibrated_at = EXCLUDED.calibrated_at`,
		rm.ID, rm.Name, rm.Building, rm.Floor, rm.Capacity, vertices,
		rm.FloorAltitudeM, rm.CeilingAltitudeM, rm.ReferencePressureHPa,
		rm.RefLat, rm.RefLng,
		rm.HorizontalToleranceM, rm.VerticalToleranceM, rm.CalibratedAt)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoom(s rowScanner) (*domain.Room, error) {
	var rm domain.Room
	var vertices []byte
	if err := s.Scan(&rm.ID, &rm.Name, &rm.Building, &rm.Floor, &rm.Capacity, &vertices,
		&rm.FloorAltitudeM, &rm.CeilingAltitudeM, &rm.ReferencePressureHPa,
		&rm.RefLat, &rm.RefLng,
		&rm.HorizontalToleranceM, &rm.VerticalToleranceM, &rm.CalibratedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(vertices, &rm.Vertices); err != nil {
		return nil, err
	}
	return &rm, nil
}
