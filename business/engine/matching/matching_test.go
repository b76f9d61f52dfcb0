package matching

import (
	"testing"
	"time"

	"github.com/transitwatch/transitwatch/business/data/gtfs"
)

func TestDelayFor_SameDay(t *testing.T) {
	trip := &gtfs.Trip{StartSeconds: 21600, EndSeconds: 25200} // 06:00-07:00
	nextStop := &gtfs.StopTime{DepartureSeconds: 22500}        // 06:15
	fix := gtfs.RawFix{Timestamp: time.Date(2024, 1, 1, 6, 14, 45, 0, time.UTC)}

	got := delayFor(trip, nextStop, fix)
	if got != 15 {
		t.Fatalf("expected delay of 15s, got %d", got)
	}
}

func TestDelayFor_OvernightWrap(t *testing.T) {
	// trip runs 25:00-26:00 (1am-2am the next civil day); fix lands at 01:10
	// on that following civil day, so offsetToday (4200s) already falls
	// within [90000,93600) only after adding 86400.
	trip := &gtfs.Trip{StartSeconds: 90000, EndSeconds: 93600}
	nextStop := &gtfs.StopTime{DepartureSeconds: 91200} // 25:20
	fix := gtfs.RawFix{Timestamp: time.Date(2024, 1, 2, 1, 10, 0, 0, time.UTC)}

	got := delayFor(trip, nextStop, fix)
	if got != 600 {
		t.Fatalf("expected delay of 600s, got %d", got)
	}
}

func TestNextStopOrEnd_RanOff(t *testing.T) {
	stopTimes := []*gtfs.StopTime{
		{StopSequence: 1, ShapeDistTraveled: 0},
		{StopSequence: 2, ShapeDistTraveled: 500},
	}
	next, ranOff := nextStopOrEnd(stopTimes, 600, NextStopSlack)
	if next != stopTimes[1] {
		t.Fatalf("expected last stop returned, got %+v", next)
	}
	if !ranOff {
		t.Error("expected ranOff to be true when distance exceeds final stop by more than slack")
	}
}

func TestNextStopOrEnd_StillApproaching(t *testing.T) {
	stopTimes := []*gtfs.StopTime{
		{StopSequence: 1, ShapeDistTraveled: 0},
		{StopSequence: 2, ShapeDistTraveled: 500},
	}
	next, ranOff := nextStopOrEnd(stopTimes, 470, NextStopSlack)
	if next != stopTimes[1] {
		t.Fatalf("expected last stop still to be the next stop, got %+v", next)
	}
	if ranOff {
		t.Error("expected ranOff to be false while still approaching the final stop")
	}
}
