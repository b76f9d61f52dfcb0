package integrity

import (
	"testing"
	"time"

	"github.com/transitwatch/transitwatch/business/data/gtfs"
)

func at(seconds int) *time.Time {
	t := time.Date(2024, 1, 1, 0, 0, seconds, 0, time.UTC)
	return &t
}

func TestMonotoneArrivals_NonDecreasingPasses(t *testing.T) {
	vsts := []*gtfs.VehicleStopTime{
		{StopSequence: 1, ArrivalTime: at(0)},
		{StopSequence: 2, ArrivalTime: at(60)},
		{StopSequence: 3, ArrivalTime: at(60)},
	}
	if !monotoneArrivals(vsts) {
		t.Error("expected non-decreasing arrivals to be monotone")
	}
}

func TestMonotoneArrivals_OutOfOrderFails(t *testing.T) {
	vsts := []*gtfs.VehicleStopTime{
		{StopSequence: 1, ArrivalTime: at(120)},
		{StopSequence: 2, ArrivalTime: at(60)},
	}
	if monotoneArrivals(vsts) {
		t.Error("expected an earlier arrival at a later stop to fail monotonicity")
	}
}

func TestMonotoneArrivals_SkipsUnarrivedStops(t *testing.T) {
	vsts := []*gtfs.VehicleStopTime{
		{StopSequence: 1, ArrivalTime: at(0)},
		{StopSequence: 2, ArrivalTime: nil},
		{StopSequence: 3, ArrivalTime: at(60)},
	}
	if !monotoneArrivals(vsts) {
		t.Error("expected a nil arrival to be skipped rather than break monotonicity")
	}
}

func TestToCivilDate_IgnoresTimeOfDay(t *testing.T) {
	a := toCivilDate(time.Date(2024, 3, 5, 1, 0, 0, 0, time.UTC))
	b := toCivilDate(time.Date(2024, 3, 5, 23, 59, 0, 0, time.UTC))
	if a != b {
		t.Errorf("expected same civil date, got %+v and %+v", a, b)
	}
}
