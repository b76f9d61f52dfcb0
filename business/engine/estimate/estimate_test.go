package estimate

import (
	"testing"
	"time"
)

type hopKey struct {
	from, to string
	hour     int
}

type fakeHopSource map[hopKey][]HopSample

func (f fakeHopSource) Hop(from, to string, hour int) ([]HopSample, error) {
	return f[hopKey{from, to, hour}], nil
}

func TestSingleStop_FutureEstimationCollapse(t *testing.T) {
	midnight := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t0 := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	source := fakeHopSource{
		{"A", "B", 12}: {{DurationSeconds: 60, Count: 2}},
		{"B", "C", 12}: {{DurationSeconds: 90, Count: 3}},
	}

	trigger := Trigger{
		ArrivalUnix:             t0.Unix(),
		StopId:                  "A",
		ArrivalSeconds:          43200,
		ServiceDateMidnightUnix: midnight.Unix(),
	}
	downstream := []StopPoint{
		{StopSequence: 2, StopId: "B", ArrivalSeconds: 43200 + 60},
		{StopSequence: 3, StopId: "C", ArrivalSeconds: 43200 + 150},
	}

	strategy := SingleStop{RoundSeconds: 1}
	raw, err := strategy.Estimate(source, trigger, downstream)
	if err != nil {
		t.Fatal(err)
	}

	finalB := Finalize(raw[2])
	finalC := Finalize(raw[3])

	wantB := t0.Add(60 * time.Second).Unix()
	wantC := t0.Add(150 * time.Second).Unix() / 60 * 60

	if p := finalB[wantB/60*60]; p != 1.0 {
		t.Errorf("expected P(arr(B)=%v) = 1.0, got distribution %v", time.Unix(wantB, 0).UTC(), finalB)
	}
	if p := finalC[wantC]; p != 1.0 {
		t.Errorf("expected P(arr(C)=%v) = 1.0, got distribution %v", time.Unix(wantC, 0).UTC(), finalC)
	}
}

func TestFinalize_DropsBelowThreshold(t *testing.T) {
	dist := Distribution{
		960:  39,
		1020: 1,
	}
	out := Finalize(dist)
	if _, ok := out[1020]; ok {
		t.Error("expected the 2.5%-weight bucket dropped below the 0.05 threshold")
	}
	if out[960] != 0.975 {
		t.Errorf("expected the surviving bucket at probability 0.975, got %v", out[960])
	}
}

func TestFinalize_EmptyDistributionIsNil(t *testing.T) {
	if Finalize(nil) != nil {
		t.Error("expected an empty distribution to finalize to nil")
	}
}

func TestFinalize_CollapsesSubMinuteBucketsTogether(t *testing.T) {
	base := time.Date(2024, 1, 1, 12, 1, 0, 0, time.UTC).Unix()
	dist := Distribution{
		base + 5:  1,
		base + 40: 1,
	}
	out := Finalize(dist)
	if len(out) != 1 {
		t.Fatalf("expected both sub-minute buckets collapsed into one, got %d buckets", len(out))
	}
	if out[base] != 1.0 {
		t.Errorf("expected all weight collapsed to minute %v, got %v", time.Unix(base, 0).UTC(), out)
	}
}

func TestDirect_SingleHopNoConvolution(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	source := fakeHopSource{
		{"A", "C", 12}: {{DurationSeconds: 200, Count: 4}},
	}
	trigger := Trigger{ArrivalUnix: t0.Unix(), StopId: "A", ArrivalSeconds: 43200, ServiceDateMidnightUnix: t0.Truncate(24 * time.Hour).Unix()}
	downstream := []StopPoint{{StopSequence: 5, StopId: "C", ArrivalSeconds: 43200 + 200}}

	raw, err := Direct{RoundSeconds: 1}.Estimate(source, trigger, downstream)
	if err != nil {
		t.Fatal(err)
	}
	final := Finalize(raw[5])
	want := t0.Add(200 * time.Second).Unix() / 60 * 60
	if final[want] != 1.0 {
		t.Errorf("expected all weight at %v, got %v", time.Unix(want, 0).UTC(), final)
	}
}
