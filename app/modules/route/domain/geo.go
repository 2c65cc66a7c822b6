package routedomain

import "math"

// metersPerDegree converts angular distance at the equator to meters.
// The same constant the route files were prepared with; all distance math in
// this package goes through the local flat-earth projection below so scores
// stay comparable across runs.
const metersPerDegree = 111319.9

// Point is a single GPS coordinate.
type Point struct {
	Lat float64
	Lon float64
}

// Polyline is an ordered sequence of points forming a route or trace.
type Polyline []Point

// planar projects p into a local flat-earth plane anchored at origin,
// returning x/y in meters. Longitude is scaled by the cosine of the anchor
// latitude, which is accurate at the scale of a single route.
func planar(p, origin Point) (x, y float64) {
	x = (p.Lon - origin.Lon) * math.Cos(origin.Lat*math.Pi/180) * metersPerDegree
	y = (p.Lat - origin.Lat) * metersPerDegree
	return x, y
}

// DistanceM returns the flat-earth distance between two points in meters.
func DistanceM(a, b Point) float64 {
	x, y := planar(b, a)
	return math.Hypot(x, y)
}

// SegmentDistanceM returns the distance in meters from p to the segment a-b.
// The projection onto the segment is clamped to the segment's endpoints, so a
// point beyond either end measures against the nearest endpoint rather than
// the infinite line.
func SegmentDistanceM(p, a, b Point) float64 {
	ax, ay := planar(a, a)
	bx, by := planar(b, a)
	px, py := planar(p, a)

	dx, dy := bx-ax, by-ay
	segLenSq := dx*dx + dy*dy
	if segLenSq == 0 {
		// Degenerate segment: both endpoints coincide.
		return math.Hypot(px-ax, py-ay)
	}

	t := ((px-ax)*dx + (py-ay)*dy) / segLenSq
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}

	cx := ax + t*dx
	cy := ay + t*dy
	return math.Hypot(px-cx, py-cy)
}

// PolylineDistanceM returns the minimum distance in meters from p to any
// segment of line. line must contain at least two points.
func PolylineDistanceM(p Point, line Polyline) float64 {
	min := math.Inf(1)
	for i := 0; i < len(line)-1; i++ {
		if d := SegmentDistanceM(p, line[i], line[i+1]); d < min {
			min = d
		}
	}
	return min
}

// LengthM returns the total flat-earth length of the polyline in meters.
func LengthM(line Polyline) float64 {
	var total float64
	for i := 0; i < len(line)-1; i++ {
		total += DistanceM(line[i], line[i+1])
	}
	return total
}
