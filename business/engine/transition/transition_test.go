package transition

import (
	"testing"
	"time"

	"github.com/transitwatch/transitwatch/business/data/gtfs"
	"github.com/transitwatch/transitwatch/business/engine/matching"
)

func TestDetect_InterpolatedArrival(t *testing.T) {
	stopTimes := []*gtfs.StopTime{
		{StopSequence: 1, ShapeDistTraveled: 0},
		{StopSequence: 2, ShapeDistTraveled: 400, StopId: "S2"},
		{StopSequence: 3, ShapeDistTraveled: 700},
	}
	base := time.Date(2024, 1, 1, 6, 15, 0, 0, time.UTC)

	old := &matching.VehicleState{
		StopTimes:     stopTimes,
		ShapeDistance: 300,
		NextStopTime:  stopTimes[1],
		LastTimestamp: base,
	}
	cur := &matching.VehicleState{
		StopTimes:     stopTimes,
		ShapeDistance: 500,
		NextStopTime:  stopTimes[2],
		LastTimestamp: base.Add(40 * time.Second),
	}

	event := Detect(old, cur)
	if event.Arrived == nil {
		t.Fatal("expected an arrival event")
	}
	got := *event.Arrived.VehicleStopTime.ArrivalTime
	want := base.Add(20 * time.Second) // 40s * (100/200)
	if !got.Equal(want) {
		t.Errorf("expected interpolated arrival %v, got %v", want, got)
	}
	if event.Arrived.VehicleStopTime.DepartureTime == nil || !event.Arrived.VehicleStopTime.DepartureTime.Equal(want) {
		t.Error("expected interpolated arrival to also set departure to the same instant")
	}
	if cur.CurrentStopTime == nil {
		t.Error("expected cur.CurrentStopTime to be set to the arrived stop")
	}
}

func TestDetect_DirectArrival(t *testing.T) {
	stopTimes := []*gtfs.StopTime{
		{StopSequence: 1, ShapeDistTraveled: 0},
		{StopSequence: 2, ShapeDistTraveled: 400},
		{StopSequence: 3, ShapeDistTraveled: 700},
	}
	base := time.Now()
	old := &matching.VehicleState{StopTimes: stopTimes, ShapeDistance: 350, NextStopTime: stopTimes[1], LastTimestamp: base}
	cur := &matching.VehicleState{StopTimes: stopTimes, ShapeDistance: 390, NextStopTime: stopTimes[2], LastTimestamp: base.Add(10 * time.Second)}

	event := Detect(old, cur)
	if event.Arrived == nil {
		t.Fatal("expected direct arrival (within 30m tolerance)")
	}
	if event.Arrived.VehicleStopTime.DepartureTime != nil {
		t.Error("a direct arrival should not pre-fill a departure time")
	}
}

func TestDetect_Departure(t *testing.T) {
	arrival := time.Now().Add(-30 * time.Second)
	stopTimes := []*gtfs.StopTime{
		{StopSequence: 1, ShapeDistTraveled: 400},
	}
	old := &matching.VehicleState{
		StopTimes: stopTimes,
		CurrentStopTime: &gtfs.VehicleStopTime{
			Id: 42, StopSequence: 1, ArrivalTime: &arrival,
		},
		ShapeDistance: 400,
		LastTimestamp: arrival,
	}
	cur := &matching.VehicleState{StopTimes: stopTimes, ShapeDistance: 430, LastTimestamp: time.Now()}

	event := Detect(old, cur)
	if event.Departed == nil {
		t.Fatal("expected a departure event")
	}
	if event.Departed.VehicleStopTimeId != 42 {
		t.Errorf("expected departure for vst 42, got %d", event.Departed.VehicleStopTimeId)
	}
	if cur.CurrentStopTime != nil {
		t.Error("expected cur.CurrentStopTime cleared after departure")
	}
}
