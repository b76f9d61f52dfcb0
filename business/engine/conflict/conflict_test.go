package conflict

import (
	"testing"
	"time"

	"github.com/transitwatch/transitwatch/business/data/gtfs"
	"github.com/transitwatch/transitwatch/business/engine/matching"
)

type fakeOccupants map[string]*matching.VehicleState

func (f fakeOccupants) Holder(tripId string) (*matching.VehicleState, bool) {
	s, ok := f[tripId]
	return s, ok
}

func stateFor(vehicleId int64, tripId string, nextStopDeparture int, offsetSeconds int, at time.Time) *matching.VehicleState {
	return &matching.VehicleState{
		VehicleId:    vehicleId,
		Trip:         &gtfs.Trip{TripId: tripId, StartSeconds: 0, EndSeconds: 100000},
		NextStopTime: &gtfs.StopTime{DepartureSeconds: nextStopDeparture},
		LastFix: gtfs.RawFix{
			VehicleId: vehicleId,
			Timestamp: at,
		},
		LastTimestamp: at,
	}
}

func TestResolve_NoContest(t *testing.T) {
	candidate := stateFor(1, "T1", 100, 0, time.Now())
	res, err := Resolve(nil, fakeOccupants{}, candidate, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Winner != candidate {
		t.Fatal("expected uncontested candidate to win immediately")
	}
	if len(res.Displaced) != 0 {
		t.Errorf("expected no displaced vehicles, got %v", res.Displaced)
	}
}

func TestResolve_StaleOtherEvicted(t *testing.T) {
	now := time.Now()
	other := stateFor(2, "T1", 100, 0, now.Add(-10*time.Minute))
	candidate := stateFor(1, "T1", 100, 0, now)

	occupants := fakeOccupants{"T1": other}
	res, err := Resolve(nil, occupants, candidate, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Winner != candidate {
		t.Fatal("expected candidate to win against a stale occupant")
	}
	if len(res.Displaced) != 1 || res.Displaced[0] != 2 {
		t.Errorf("expected vehicle 2 displaced, got %v", res.Displaced)
	}
}

func TestResolve_SmallerDelayWins(t *testing.T) {
	midnight := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	// next stop scheduled to depart 100s after midnight.
	// candidate's fix is at 85s (delay 15s); other's fix is at 10s (delay 90s).
	candidate := stateFor(1, "T1", 100, 0, midnight.Add(85*time.Second))
	other := stateFor(2, "T1", 100, 0, midnight.Add(10*time.Second))

	occupants := fakeOccupants{"T1": other}
	res, err := Resolve(nil, occupants, candidate, nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Winner != candidate {
		t.Fatal("expected the smaller-delay vehicle to keep the trip")
	}
	if len(res.Displaced) != 1 || res.Displaced[0] != 2 {
		t.Errorf("expected vehicle 2 (larger delay) displaced, got %v", res.Displaced)
	}
}
