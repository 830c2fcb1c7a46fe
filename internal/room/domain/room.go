// Package domain defines the Room geometry record and its publish-time validation.
package domain

import (
	"errors"
	"fmt"
	"time"

	"attendance-verification-engine/internal/geo"
)

// ErrInvalidGeometry is returned when a room definition fails validation.
// Publish rejects the room and any previously published geometry stays active.
var ErrInvalidGeometry = errors.New("invalid geometry")

const (
	// MinVertices and MaxVertices bound the polygon size.
	MinVertices = 3
	MaxVertices = 20

	// DefaultHorizontalToleranceM is applied when a room declares no horizontal tolerance.
	DefaultHorizontalToleranceM = 3.0
	// DefaultVerticalToleranceM is applied when a room declares no vertical tolerance.
	DefaultVerticalToleranceM = 0.5
)

// Room is a lecture room's published 3D boundary plus calibration metadata.
// Published rooms are immutable; re-calibration replaces the whole value.
type Room struct {
	ID       string
	Name     string
	Building string
	Floor    int
	Capacity int

	// Vertices is the simple polygon boundary in polygon-space meters.
	Vertices []geo.Point
	// FloorAltitudeM and CeilingAltitudeM bound the room volume vertically.
	FloorAltitudeM   float64
	CeilingAltitudeM float64
	// ReferencePressureHPa is the barometric pressure captured at calibration,
	// kept so client altitude estimates can be audited for drift.
	ReferencePressureHPa float64
	// RefLat and RefLng anchor the polygon space: geographic position
	// readings are projected relative to this calibration coordinate.
	RefLat float64
	RefLng float64

	HorizontalToleranceM float64
	VerticalToleranceM   float64

	CalibratedAt time.Time
}

// ApplyDefaults fills in default tolerances on a room that declares none.
func (r *Room) ApplyDefaults() {
	if r.HorizontalToleranceM == 0 {
		r.HorizontalToleranceM = DefaultHorizontalToleranceM
	}
	if r.VerticalToleranceM == 0 {
		r.VerticalToleranceM = DefaultVerticalToleranceM
	}
}

// Validate checks the room definition. Returns an error wrapping ErrInvalidGeometry
// when the polygon or altitude band is unusable.
func (r *Room) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: room id required", ErrInvalidGeometry)
	}
	if n := len(r.Vertices); n < MinVertices || n > MaxVertices {
		return fmt.Errorf("%w: vertex count %d outside [%d, %d]", ErrInvalidGeometry, n, MinVertices, MaxVertices)
	}
	if r.CeilingAltitudeM <= r.FloorAltitudeM {
		return fmt.Errorf("%w: ceiling %.2f must be above floor %.2f", ErrInvalidGeometry, r.CeilingAltitudeM, r.FloorAltitudeM)
	}
	if r.HorizontalToleranceM < 0 || r.VerticalToleranceM < 0 {
		return fmt.Errorf("%w: tolerances must not be negative", ErrInvalidGeometry)
	}
	if err := validateSimplePolygon(r.Vertices); err != nil {
		return err
	}
	return nil
}

// Fence returns the geofence volume for evaluation.
func (r *Room) Fence() geo.Fence {
	return geo.Fence{
		Vertices:  r.Vertices,
		FloorM:    r.FloorAltitudeM,
		CeilingM:  r.CeilingAltitudeM,
		HorizTolM: r.HorizontalToleranceM,
		VertTolM:  r.VerticalToleranceM,
	}
}

// validateSimplePolygon rejects degenerate edges and self-intersections.
// Edges sharing a vertex (adjacent edges) are allowed to touch at that vertex only.
func validateSimplePolygon(vs []geo.Point) error {
	n := len(vs)
	for i := 0; i < n; i++ {
		if vs[i] == vs[(i+1)%n] {
			return fmt.Errorf("%w: duplicate consecutive vertex at index %d", ErrInvalidGeometry, i)
		}
	}
	for i := 0; i < n; i++ {
		a1, a2 := vs[i], vs[(i+1)%n]
		for j := i + 1; j < n; j++ {
			// Skip adjacent edges: they share an endpoint.
			if j == i || (j+1)%n == i || (i+1)%n == j {
				continue
			}
			b1, b2 := vs[j], vs[(j+1)%n]
			if segmentsIntersect(a1, a2, b1, b2) {
				return fmt.Errorf("%w: polygon self-intersects (edges %d and %d)", ErrInvalidGeometry, i, j)
			}
		}
	}
	return nil
}

func segmentsIntersect(p1, p2, p3, p4 geo.Point) bool {
	d1 := cross(p3, p4, p1)
	d2 := cross(p3, p4, p2)
	d3 := cross(p1, p2, p3)
	d4 := cross(p1, p2, p4)

	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	// Collinear overlap counts as an intersection.
	if d1 == 0 && onSegment(p3, p4, p1) {
		return true
	}
	if d2 == 0 && onSegment(p3, p4, p2) {
		return true
	}
	if d3 == 0 && onSegment(p1, p2, p3) {
		return true
	}
	if d4 == 0 && onSegment(p1, p2, p4) {
		return true
	}
	return false
}

func cross(a, b, c geo.Point) float64 {
	return (b.X-a.X)*(c.Y-a.Y) - (b.Y-a.Y)*(c.X-a.X)
}

func onSegment(a, b, p geo.Point) bool {
	return min(a.X, b.X) <= p.X && p.X <= max(a.X, b.X) &&
		min(a.Y, b.Y) <= p.Y && p.Y <= max(a.Y, b.Y)
}
