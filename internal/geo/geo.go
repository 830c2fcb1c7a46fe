// Package geo evaluates 3D room containment for reported positions.
// Evaluation is pure and deterministic: no state, no clock, no I/O.
package geo

import "math"

// Reason explains a non-inside evaluation result.
type Reason string

const (
	// ReasonNone is set when the position is inside the fence.
	ReasonNone Reason = ""
	// ReasonOutsideHorizontal means the position is outside the polygon by more than the horizontal tolerance.
	ReasonOutsideHorizontal Reason = "outside_horizontal"
	// ReasonOutsideVertical means the altitude is outside the floor–ceiling band by more than the vertical tolerance.
	ReasonOutsideVertical Reason = "outside_vertical"
	// ReasonLowAccuracy means the reported accuracy is worse than the fence tolerance.
	// The reading is inconclusive and should be retried; it is not a containment failure.
	ReasonLowAccuracy Reason = "low_accuracy"
)

// Point is a polygon-space coordinate in meters.
type Point struct {
	X float64
	Y float64
}

// Position is a reported position in polygon space.
type Position struct {
	Point
	// AltitudeM is the client-resolved altitude estimate in meters.
	AltitudeM float64
	// AccuracyM is the reported horizontal accuracy estimate in meters.
	AccuracyM float64
	// PressureHPa is the raw barometric reading behind the altitude estimate.
	// Recorded in the audit trail for calibration drift analysis; containment
	// decisions never read it.
	PressureHPa float64
	// Lat and Lng carry a geographic coordinate for clients that cannot
	// resolve polygon-space X/Y themselves. HasLatLng marks them present;
	// the reading is projected against the room's calibration reference
	// before evaluation.
	Lat       float64
	Lng       float64
	HasLatLng bool
}

// Fence is a room volume: a simple polygon extruded between floor and ceiling altitudes.
type Fence struct {
	Vertices  []Point
	FloorM    float64
	CeilingM  float64
	HorizTolM float64
	VertTolM  float64
}

// Decision is the result of evaluating a position against a fence.
type Decision struct {
	Inside bool
	Reason Reason
}

// Evaluate decides whether pos lies inside fence.
//
// Horizontal containment is a ray-casting point-in-polygon test, with the
// boundary inflated by the fence's horizontal tolerance so a GPS-noisy reading
// at the edge is not rejected. Vertical containment allows the vertical
// tolerance on both sides of the floor–ceiling band. A reading whose accuracy
// is worse than the horizontal tolerance is inconclusive (ReasonLowAccuracy).
func Evaluate(pos Position, fence Fence) Decision {
	if pos.AccuracyM > fence.HorizTolM {
		return Decision{Inside: false, Reason: ReasonLowAccuracy}
	}
	if !horizontallyInside(pos.Point, fence) {
		return Decision{Inside: false, Reason: ReasonOutsideHorizontal}
	}
	if pos.AltitudeM < fence.FloorM-fence.VertTolM || pos.AltitudeM > fence.CeilingM+fence.VertTolM {
		return Decision{Inside: false, Reason: ReasonOutsideVertical}
	}
	return Decision{Inside: true}
}

func horizontallyInside(p Point, fence Fence) bool {
	if len(fence.Vertices) < 3 {
		return false
	}
	if pointInPolygon(p, fence.Vertices) {
		return true
	}
	// Boundary inflation: outside the raw polygon still counts as inside when
	// the point is within the horizontal tolerance of the nearest edge.
	return distanceToPolygon(p, fence.Vertices) <= fence.HorizTolM
}

// pointInPolygon is the standard ray-casting test (odd number of crossings).
func pointInPolygon(p Point, vs []Point) bool {
	inside := false
	n := len(vs)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		vi, vj := vs[i], vs[j]
		if (vi.Y > p.Y) != (vj.Y > p.Y) {
			x := (vj.X-vi.X)*(p.Y-vi.Y)/(vj.Y-vi.Y) + vi.X
			if p.X < x {
				inside = !inside
			}
		}
	}
	return inside
}

// distanceToPolygon returns the shortest distance from p to any polygon edge.
func distanceToPolygon(p Point, vs []Point) float64 {
	min := math.Inf(1)
	n := len(vs)
	for i := 0; i < n; i++ {
		d := distanceToSegment(p, vs[i], vs[(i+1)%n])
		if d < min {
			min = d
		}
	}
	return min
}

func distanceToSegment(p, a, b Point) float64 {
	dx, dy := b.X-a.X, b.Y-a.Y
	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		return math.Hypot(p.X-a.X, p.Y-a.Y)
	}
	t := ((p.X-a.X)*dx + (p.Y-a.Y)*dy) / lenSq
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return math.Hypot(p.X-(a.X+t*dx), p.Y-(a.Y+t*dy))
}

const earthRadiusM = 6371000

// ProjectLatLng converts a geographic coordinate to polygon space (meters east/north
// of the reference coordinate) using an equirectangular approximation, which is
// accurate to well under the horizontal tolerance at room scale.
func ProjectLatLng(refLat, refLng, lat, lng float64) Point {
	latRad := refLat * math.Pi / 180
	return Point{
		X: (lng - refLng) * math.Pi / 180 * earthRadiusM * math.Cos(latRad),
		Y: (lat - refLat) * math.Pi / 180 * earthRadiusM,
	}
}
