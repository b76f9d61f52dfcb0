// Package geo provides the 2D polyline operations the matching engine uses to
// project raw vehicle fixes onto trip shapes: closest-point projection,
// splitting a polyline at an arclength, and enumerating the distinct
// candidate projections produced when a shape passes close to a point more
// than once (a shape that loops back on itself).
//
// All work happens in a local planar projection, in metres. Geographic
// coordinates are converted on ingress with FromLatLon, generalizing the
// flat-earth approximation the teacher used for single-segment distance
// checks (simpleLatLngDistance, nearestLatLngToLineFromPoint in
// tripdistance.go) to whole polylines.
package geo

import "math"

// metresPerDegreeLat is the approximate number of metres per degree of
// latitude, used (along with a cosine correction for longitude) the same way
// the teacher's simpleLatLngDistance does.
const metresPerDegreeLat = 111300.0

// Point is a location in the local planar projection, in metres.
type Point struct {
	X, Y float64
}

// LatLon is a geographic coordinate.
type LatLon struct {
	Lat, Lon float64
}

// FromLatLon converts a geographic coordinate into the local planar
// projection centered on refLat. Accurate for coordinates that stay within a
// single transit service area; not valid across the antimeridian.
func FromLatLon(ll LatLon, refLat float64) Point {
	latRad := refLat * math.Pi / 180
	return Point{
		X: metresPerDegreeLat * math.Cos(latRad) * ll.Lon,
		Y: metresPerDegreeLat * ll.Lat,
	}
}

// Distance returns the euclidean distance between two points, in metres.
func Distance(a, b Point) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Polyline is an ordered sequence of points with a parallel slice of
// cumulative arclength from the start of the ORIGINAL line each point (and,
// in the case of a line produced by Cut or RemoveClosestSegments, each
// remainder) was derived from. Cumulative values are therefore absolute, not
// rebased to zero for sub-polylines: this lets candidate arclengths produced
// by recursing into a remainder be read back directly as distances on the
// original trip shape, and lets Cut's two halves be concatenated back into
// the original line without any offset bookkeeping.
type Polyline struct {
	Points     []Point
	Cumulative []float64
}

// New builds a Polyline from points, computing cumulative arclength from the
// first point.
func New(points []Point) Polyline {
	if len(points) == 0 {
		return Polyline{}
	}
	cumulative := make([]float64, len(points))
	for i := 1; i < len(points); i++ {
		cumulative[i] = cumulative[i-1] + Distance(points[i-1], points[i])
	}
	return Polyline{Points: points, Cumulative: cumulative}
}

// Length returns the total arclength of the line, relative to its own first
// point (not the absolute starting offset carried by Cumulative).
func (l Polyline) Length() float64 {
	if len(l.Cumulative) == 0 {
		return 0
	}
	return l.Cumulative[len(l.Cumulative)-1] - l.Cumulative[0]
}

// Start returns the absolute arclength of the first point, or zero for an
// empty line.
func (l Polyline) Start() float64 {
	if len(l.Cumulative) == 0 {
		return 0
	}
	return l.Cumulative[0]
}

// End returns the absolute arclength of the last point, or zero for an empty line.
func (l Polyline) End() float64 {
	if len(l.Cumulative) == 0 {
		return 0
	}
	return l.Cumulative[len(l.Cumulative)-1]
}

// Empty reports whether the line has fewer than two points, i.e. cannot form
// a segment.
func (l Polyline) Empty() bool {
	return len(l.Points) < 2
}

// PointAt returns the point on the line at absolute arclength d, clamping to
// the line's endpoints.
func (l Polyline) PointAt(d float64) Point {
	if len(l.Points) == 0 {
		return Point{}
	}
	if d <= l.Start() {
		return l.Points[0]
	}
	if d >= l.End() {
		return l.Points[len(l.Points)-1]
	}
	for i := 1; i < len(l.Points); i++ {
		if l.Cumulative[i] >= d {
			segLen := l.Cumulative[i] - l.Cumulative[i-1]
			if segLen <= 0 {
				return l.Points[i-1]
			}
			t := (d - l.Cumulative[i-1]) / segLen
			return lerp(l.Points[i-1], l.Points[i], t)
		}
	}
	return l.Points[len(l.Points)-1]
}

func lerp(a, b Point, t float64) Point {
	return Point{X: a.X + (b.X-a.X)*t, Y: a.Y + (b.Y-a.Y)*t}
}

// nearestOnSegment projects p onto the segment [a,b], generalizing the
// teacher's nearestLatLngToLineFromPoint from lat/lon to planar metres.
// Returns the parametric position t in [0,1] and the perpendicular distance.
func nearestOnSegment(a, b, p Point) (t float64, dist float64) {
	abx, aby := b.X-a.X, b.Y-a.Y
	apx, apy := p.X-a.X, p.Y-a.Y
	abLenSquared := abx*abx + aby*aby
	if abLenSquared > 0 {
		t = (apx*abx + apy*aby) / abLenSquared
		if t < 0 {
			t = 0
		} else if t > 1 {
			t = 1
		}
	}
	nearest := lerp(a, b, t)
	return t, Distance(nearest, p)
}

// Project returns the absolute arclength along line of the point closest to p,
// and the perpendicular distance to that point.
func Project(line Polyline, p Point) (arclength float64, distance float64) {
	if line.Empty() {
		return line.Start(), math.Inf(1)
	}
	best := math.Inf(1)
	bestD := line.Start()
	for i := 1; i < len(line.Points); i++ {
		t, d := nearestOnSegment(line.Points[i-1], line.Points[i], p)
		if d < best {
			best = d
			segLen := line.Cumulative[i] - line.Cumulative[i-1]
			bestD = line.Cumulative[i-1] + t*segLen
		}
	}
	return bestD, best
}

// DistanceAt returns the distance from p to the point on line at absolute
// arclength d.
func DistanceAt(line Polyline, d float64, p Point) float64 {
	return Distance(line.PointAt(d), p)
}

// Cut splits line at absolute arclength d into a prefix ending at d and a
// suffix beginning at d, inserting an interpolated point at the cut so that
// concatenating prefix.Points with suffix.Points[1:] reproduces line's points
// with that one cut point added (up to floating point tolerance). Degenerates to (empty, line) for
// d <= line.Start() and (line, empty) for d >= line.End().
func Cut(line Polyline, d float64) (prefix Polyline, suffix Polyline) {
	if line.Empty() {
		return Polyline{}, line
	}
	if d <= line.Start() {
		return Polyline{}, line
	}
	if d >= line.End() {
		return line, Polyline{}
	}

	var prefixPoints, suffixPoints []Point
	var prefixCum, suffixCum []float64
	for i, c := range line.Cumulative {
		if c <= d {
			prefixPoints = append(prefixPoints, line.Points[i])
			prefixCum = append(prefixCum, c)
		}
	}
	cutPoint := line.PointAt(d)
	prefixPoints = append(prefixPoints, cutPoint)
	prefixCum = append(prefixCum, d)

	suffixPoints = append(suffixPoints, cutPoint)
	suffixCum = append(suffixCum, d)
	for i, c := range line.Cumulative {
		if c > d {
			suffixPoints = append(suffixPoints, line.Points[i])
			suffixCum = append(suffixCum, c)
		}
	}

	return Polyline{Points: prefixPoints, Cumulative: prefixCum},
		Polyline{Points: suffixPoints, Cumulative: suffixCum}
}

// RemoveClosestSegments removes the portion of line within radius metres of p
// and returns the remainder before that portion (left) and after it (right).
// The boundaries are found by binary search on cumulative arclength outward
// from the closest approach to p, the way the spec describes: this assumes
// distance-to-p trends monotonically away from the closest point on each
// side, which holds for the local neighbourhood of a single pass near p even
// when the overall shape loops back elsewhere.
func RemoveClosestSegments(line Polyline, p Point, radius float64) (left Polyline, right Polyline) {
	if line.Empty() {
		return line, line
	}
	closest, dist := Project(line, p)
	if dist > radius {
		// p isn't actually near this line; nothing to remove.
		return line, Polyline{}
	}

	leftBoundary := searchBoundary(line, p, radius, line.Start(), closest)
	rightBoundary := searchBoundary(line, p, radius, line.End(), closest)

	left, _ = Cut(line, leftBoundary)
	_, right = Cut(line, rightBoundary)
	return left, right
}

// searchBoundary binary searches between inside (known to be within radius of
// p, or the closest approach) and outside (an end of the line) for the
// arclength where DistanceAt crosses radius.
func searchBoundary(line Polyline, p Point, radius float64, outsideEnd float64, inside float64) float64 {
	lo, hi := outsideEnd, inside
	if lo > hi {
		lo, hi = hi, lo
	}
	// if the line's end itself is still within radius, there's nothing to trim on this side.
	if DistanceAt(line, outsideEnd, p) <= radius {
		return outsideEnd
	}
	for i := 0; i < 40 && hi-lo > 1e-6; i++ {
		mid := (lo + hi) / 2
		if DistanceAt(line, mid, p) <= radius {
			if outsideEnd < inside {
				hi = mid
			} else {
				lo = mid
			}
		} else {
			if outsideEnd < inside {
				lo = mid
			} else {
				hi = mid
			}
		}
	}
	if outsideEnd < inside {
		return lo
	}
	return hi
}

// Candidate is a single candidate projection of a point onto a shape.
type Candidate struct {
	// Distance is the absolute arclength along the shape of the projection.
	Distance float64
	// PerpDistance is the perpendicular distance from the point to the shape
	// at Distance.
	PerpDistance float64
}

// CandidateShapeDistances recursively projects p onto line, strips the local
// neighbourhood of each projection found, and recurses into the remainders on
// either side. It terminates when a remainder is empty or its closest
// approach to p exceeds threshold, and returns every candidate found this
// way -- more than one when the shape passes near p more than once (a shape
// that doubles back).
func CandidateShapeDistances(line Polyline, p Point, threshold float64) []Candidate {
	if line.Empty() {
		return nil
	}
	d, dist := Project(line, p)
	if dist > threshold {
		return nil
	}
	candidates := []Candidate{{Distance: d, PerpDistance: dist}}

	left, right := RemoveClosestSegments(line, p, threshold)
	if !left.Empty() {
		candidates = append(candidates, CandidateShapeDistances(left, p, threshold)...)
	}
	if !right.Empty() {
		candidates = append(candidates, CandidateShapeDistances(right, p, threshold)...)
	}
	return candidates
}

// ClosestCandidateNotBelow returns the candidate closest to anchor among
// candidates whose Distance is >= anchor - slack, or nil if none qualify.
// Used by the update stage to prefer forward progress along the shape from a
// prior position, with a small tolerance for GPS jitter and rounding.
func ClosestCandidateNotBelow(candidates []Candidate, anchor float64, slack float64) *Candidate {
	var best *Candidate
	bestDiff := math.Inf(1)
	for i := range candidates {
		c := candidates[i]
		if c.Distance < anchor-slack {
			continue
		}
		diff := math.Abs(c.Distance - anchor)
		if diff < bestDiff {
			bestDiff = diff
			best = &candidates[i]
		}
	}
	return best
}

// ClosestCandidate returns the candidate with the smallest Distance, or nil
// if candidates is empty. Used by the cold guess stage, which has no prior
// anchor and prefers the projection nearest the start of the shape.
func ClosestCandidate(candidates []Candidate) *Candidate {
	var best *Candidate
	bestDist := math.Inf(1)
	for i := range candidates {
		if candidates[i].Distance < bestDist {
			bestDist = candidates[i].Distance
			best = &candidates[i]
		}
	}
	return best
}
