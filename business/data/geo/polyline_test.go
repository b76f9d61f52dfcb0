package geo

import (
	"math"
	"testing"
)

func straightLine() Polyline {
	return New([]Point{
		{X: 0, Y: 0},
		{X: 100, Y: 0},
		{X: 200, Y: 0},
		{X: 300, Y: 0},
	})
}

func TestCut_Degenerate(t *testing.T) {
	line := straightLine()

	prefix, suffix := Cut(line, -10)
	if !prefix.Empty() {
		t.Errorf("expected empty prefix for d<=0, got %d points", len(prefix.Points))
	}
	if len(suffix.Points) != len(line.Points) {
		t.Errorf("expected suffix to equal line for d<=0")
	}

	prefix, suffix = Cut(line, 1000)
	if !suffix.Empty() {
		t.Errorf("expected empty suffix for d>=length, got %d points", len(suffix.Points))
	}
	if len(prefix.Points) != len(line.Points) {
		t.Errorf("expected prefix to equal line for d>=length")
	}
}

func TestCut_Reconstructs(t *testing.T) {
	line := straightLine()
	prefix, suffix := Cut(line, 150)

	if got := prefix.End(); math.Abs(got-150) > 1e-9 {
		t.Errorf("prefix should end at 150, got %v", got)
	}
	if got := suffix.Start(); math.Abs(got-150) > 1e-9 {
		t.Errorf("suffix should start at 150, got %v", got)
	}

	// reconstruct by dropping the duplicated cut point from suffix
	reconstructed := append(append([]Point{}, prefix.Points...), suffix.Points[1:]...)
	if len(reconstructed) != len(line.Points)+1 {
		t.Fatalf("expected %d points after reinserting the cut point, got %d", len(line.Points)+1, len(reconstructed))
	}
}

func TestProject(t *testing.T) {
	line := straightLine()
	d, dist := Project(line, Point{X: 150, Y: 10})
	if math.Abs(d-150) > 1e-6 {
		t.Errorf("expected arclength 150, got %v", d)
	}
	if math.Abs(dist-10) > 1e-6 {
		t.Errorf("expected perpendicular distance 10, got %v", dist)
	}
}

func TestCandidateShapeDistances_DoublesBack(t *testing.T) {
	// an out-and-back shape: travels out to x=200 then returns to x=0,
	// passing near x=100 twice.
	line := New([]Point{
		{X: 0, Y: 0},
		{X: 100, Y: 0},
		{X: 200, Y: 0},
		{X: 100, Y: 5},
		{X: 0, Y: 5},
	})

	candidates := CandidateShapeDistances(line, Point{X: 100, Y: 2}, 50)
	if len(candidates) < 2 {
		t.Fatalf("expected at least 2 candidates for a shape that doubles back, got %d", len(candidates))
	}

	closest := ClosestCandidate(candidates)
	if closest == nil {
		t.Fatal("expected a closest candidate")
	}
	if math.Abs(closest.Distance-100) > 1e-6 {
		t.Errorf("expected closest candidate at arclength 100, got %v", closest.Distance)
	}
}

func TestClosestCandidateNotBelow(t *testing.T) {
	candidates := []Candidate{
		{Distance: 50, PerpDistance: 1},
		{Distance: 300, PerpDistance: 1},
	}
	got := ClosestCandidateNotBelow(candidates, 290, 10)
	if got == nil {
		t.Fatal("expected a candidate")
	}
	if got.Distance != 300 {
		t.Errorf("expected candidate at 300, got %v", got.Distance)
	}

	// below anchor minus slack should be excluded, even when it is nearer the anchor
	got = ClosestCandidateNotBelow(candidates, 100, 10)
	if got == nil {
		t.Fatal("expected a candidate not below anchor 100 minus slack")
	}
	if got.Distance != 300 {
		t.Errorf("expected candidate at 300 (50 is below anchor minus slack), got %v", got.Distance)
	}
}

func TestFromLatLon_RoundTripsDistanceApproximately(t *testing.T) {
	origin := FromLatLon(LatLon{Lat: 45.5, Lon: -122.6}, 45.5)
	oneKmNorth := FromLatLon(LatLon{Lat: 45.5 + 1.0/111.3, Lon: -122.6}, 45.5)
	d := Distance(origin, oneKmNorth)
	if math.Abs(d-1000) > 5 {
		t.Errorf("expected approximately 1000m, got %v", d)
	}
}
