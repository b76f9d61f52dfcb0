package traveltime

import (
	"testing"
	"time"

	"github.com/transitwatch/transitwatch/business/data/gtfs"
)

func vst(id int64, seq int, stopId string, arrival time.Time) *gtfs.VehicleStopTime {
	t := arrival
	return &gtfs.VehicleStopTime{Id: id, StopSequence: seq, StopId: stopId, ArrivalTime: &t}
}

func TestBuildSamples_AdjacentAndSkippedHops(t *testing.T) {
	base := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	stops := []*gtfs.VehicleStopTime{
		vst(1, 1, "A", base),
		vst(2, 2, "B", base.Add(60*time.Second)),
		vst(3, 3, "C", base.Add(150*time.Second)),
	}
	instances := []TripInstanceStops{{TripInstanceId: 1, Stops: stops}}

	samples := BuildSamples(instances, base.Add(-time.Hour), base.Add(time.Hour), UnlimitedHorizon)
	if len(samples) != 3 {
		t.Fatalf("expected 3 pairs (A-B, A-C, B-C), got %d", len(samples))
	}

	var abSeen, acSeen bool
	for _, s := range samples {
		if s.FromStopId == "A" && s.ToStopId == "B" {
			abSeen = true
			if s.DurationSeconds != 60 {
				t.Errorf("expected A->B duration 60s, got %d", s.DurationSeconds)
			}
		}
		if s.FromStopId == "A" && s.ToStopId == "C" {
			acSeen = true
			if s.DurationSeconds != 150 {
				t.Errorf("expected A->C duration 150s, got %d", s.DurationSeconds)
			}
		}
	}
	if !abSeen || !acSeen {
		t.Error("expected both adjacent and skipped-hop pairs")
	}
}

func TestBuildSamples_HorizonBoundsHopCount(t *testing.T) {
	base := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	stops := []*gtfs.VehicleStopTime{
		vst(1, 1, "A", base),
		vst(2, 2, "B", base.Add(60*time.Second)),
		vst(3, 3, "C", base.Add(150*time.Second)),
	}
	instances := []TripInstanceStops{{TripInstanceId: 1, Stops: stops}}

	samples := BuildSamples(instances, base.Add(-time.Hour), base.Add(time.Hour), 1)
	if len(samples) != 2 {
		t.Fatalf("expected only adjacent hops (A-B, B-C) with horizon 1, got %d", len(samples))
	}
}

func TestBuildSamples_FiltersByFromArrivalWindow(t *testing.T) {
	base := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	stops := []*gtfs.VehicleStopTime{
		vst(1, 1, "A", base),
		vst(2, 2, "B", base.Add(60*time.Second)),
	}
	instances := []TripInstanceStops{{TripInstanceId: 1, Stops: stops}}

	// window excludes the only "from" arrival entirely
	samples := BuildSamples(instances, base.Add(time.Hour), base.Add(2*time.Hour), UnlimitedHorizon)
	if len(samples) != 0 {
		t.Errorf("expected no samples when from-arrival falls outside the window, got %d", len(samples))
	}
}

func TestBuildSamples_DiscardsNegativeDurations(t *testing.T) {
	base := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	stops := []*gtfs.VehicleStopTime{
		vst(1, 1, "A", base),
		vst(2, 2, "B", base.Add(-10*time.Second)), // out-of-order arrival
	}
	instances := []TripInstanceStops{{TripInstanceId: 1, Stops: stops}}

	samples := BuildSamples(instances, base.Add(-time.Hour), base.Add(time.Hour), UnlimitedHorizon)
	if len(samples) != 0 {
		t.Errorf("expected negative-duration pair discarded, got %d samples", len(samples))
	}
}

func TestBuildSamples_SkipsUnarrivedStops(t *testing.T) {
	base := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	stops := []*gtfs.VehicleStopTime{
		vst(1, 1, "A", base),
		{Id: 2, StopSequence: 2, StopId: "B", ArrivalTime: nil},
	}
	instances := []TripInstanceStops{{TripInstanceId: 1, Stops: stops}}

	samples := BuildSamples(instances, base.Add(-time.Hour), base.Add(time.Hour), UnlimitedHorizon)
	if len(samples) != 0 {
		t.Errorf("expected no samples when the to-stop has no arrival, got %d", len(samples))
	}
}

func TestBuildAverages_BinsRelativeToPairMinimum(t *testing.T) {
	samples := []*TravelTime{
		{FromStopId: "A", ToStopId: "B", FromArrivalHour: 8, DurationSeconds: 60},
		{FromStopId: "A", ToStopId: "B", FromArrivalHour: 8, DurationSeconds: 90},  // bin (90-60)/30 = 1
		{FromStopId: "A", ToStopId: "B", FromArrivalHour: 8, DurationSeconds: 150}, // bin (150-60)/30 = 3
	}

	averages := BuildAverages(samples, BinWidthSeconds)
	if len(averages) != 3 {
		t.Fatalf("expected 3 distinct bins, got %d", len(averages))
	}

	byBin := make(map[int]*AverageTravelTime)
	for _, a := range averages {
		byBin[a.BinIndex] = a
	}
	if byBin[0] == nil || byBin[0].MeanDurationSeconds != 60 || byBin[0].SampleCount != 1 {
		t.Errorf("expected bin 0 to hold the single 60s sample, got %+v", byBin[0])
	}
	if byBin[1] == nil || byBin[1].MeanDurationSeconds != 90 {
		t.Errorf("expected bin 1 to hold the 90s sample, got %+v", byBin[1])
	}
	if byBin[3] == nil || byBin[3].MeanDurationSeconds != 150 {
		t.Errorf("expected bin 3 to hold the 150s sample, got %+v", byBin[3])
	}
}

func TestBuildAverages_SeparatesPairsAndHours(t *testing.T) {
	samples := []*TravelTime{
		{FromStopId: "A", ToStopId: "B", FromArrivalHour: 8, DurationSeconds: 60},
		{FromStopId: "A", ToStopId: "B", FromArrivalHour: 9, DurationSeconds: 60},
		{FromStopId: "B", ToStopId: "C", FromArrivalHour: 8, DurationSeconds: 60},
	}

	averages := BuildAverages(samples, BinWidthSeconds)
	if len(averages) != 3 {
		t.Fatalf("expected one bin per distinct (pair, hour), got %d", len(averages))
	}
}
