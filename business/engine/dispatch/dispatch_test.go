package dispatch

import (
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/transitwatch/transitwatch/business/data/gtfs"
	"github.com/transitwatch/transitwatch/business/engine/matching"
)

func newTestDispatcher() *Dispatcher {
	return &Dispatcher{
		log:      zerolog.New(io.Discard),
		arrival:  NullArrivalSink{},
		cache:    NullCacheSink{},
		states:   make(map[int64]*matching.VehicleState),
		byTrip:   make(map[string]int64),
		inFlight: make(map[int64]int),
	}
}

func stateFor(vehicleId int64, tripId string, recorded bool, at time.Time) *matching.VehicleState {
	instanceId := int64(0)
	if recorded {
		instanceId = 99
	}
	return &matching.VehicleState{
		VehicleId:     vehicleId,
		Trip:          &gtfs.Trip{TripId: tripId, StartSeconds: 0, EndSeconds: 100000},
		TripInstance:  &gtfs.TripInstance{Id: instanceId, TripId: tripId},
		ShapeDistance: 300,
		NextStopTime:  &gtfs.StopTime{StopSequence: 2, ShapeDistTraveled: 400},
		LastFix:       gtfs.RawFix{VehicleId: vehicleId, Timestamp: at},
		LastTimestamp: at,
	}
}

func TestSameTripContinuation(t *testing.T) {
	a := stateFor(1, "T1", true, time.Now())
	b := stateFor(1, "T1", true, time.Now())
	c := stateFor(1, "T2", true, time.Now())

	if !sameTripContinuation(a, b) {
		t.Error("expected states on the same trip to continue")
	}
	if sameTripContinuation(a, c) {
		t.Error("expected states on different trips not to continue")
	}
	if sameTripContinuation(nil, b) {
		t.Error("expected a nil prior state never to continue")
	}
}

func TestApplyWinner_InstallsIntoLiveMaps(t *testing.T) {
	d := newTestDispatcher()
	winner := stateFor(7, "T1", true, time.Now())

	d.applyWinner(nil, winner)

	if d.states[7] != winner {
		t.Fatal("expected winner installed into the live state map")
	}
	if d.byTrip["T1"] != 7 {
		t.Fatal("expected trip-to-vehicle inverse map updated")
	}
}

func TestOccupantsView_Holder(t *testing.T) {
	d := newTestDispatcher()
	winner := stateFor(7, "T1", true, time.Now())
	d.states[7] = winner
	d.byTrip["T1"] = 7

	view := occupantsView(d)
	got, ok := view.Holder("T1")
	if !ok || got != winner {
		t.Fatal("expected Holder to find the occupying vehicle")
	}
	if _, ok := view.Holder("T-missing"); ok {
		t.Error("expected Holder to report no occupant for an unbound trip")
	}
}

func TestCommit_UnmatchedFixIsNoop(t *testing.T) {
	d := newTestDispatcher()
	d.inFlight[7] = 1

	d.commit(result{fix: gtfs.RawFix{Id: 1, VehicleId: 7}, state: nil})

	if len(d.states) != 0 {
		t.Error("expected an unmatched fix to leave the live state map untouched")
	}
	if d.inFlight[7] != 0 {
		t.Error("expected in-flight count decremented")
	}
	if len(d.processed) != 1 || d.processed[0] != 1 {
		t.Error("expected the raw fix id recorded as processed regardless of match outcome")
	}
}

func TestCommit_UncontestedMatchInstallsWinner(t *testing.T) {
	d := newTestDispatcher()
	now := time.Now()

	candidate := stateFor(1, "T1", true, now)
	d.inFlight[1] = 1

	d.commit(result{fix: gtfs.RawFix{Id: 2, VehicleId: 1, Timestamp: now}, state: candidate})

	if d.states[1] != candidate {
		t.Fatal("expected the uncontested candidate installed as vehicle 1's live state")
	}
	if d.byTrip["T1"] != 1 {
		t.Error("expected the trip-to-vehicle map to record the new binding")
	}
	if d.inFlight[1] != 0 {
		t.Error("expected in-flight count decremented")
	}
}

// evictAndReguess's early return (vehicle not present in the live map) is
// the only branch exercisable without a real matching.Engine -- every other
// branch calls matching.Guess against the schedule index and database.
func TestEvictAndReguess_UnknownVehicleIsNoop(t *testing.T) {
	d := newTestDispatcher()
	d.evictAndReguess(404, "T1")
}

func TestTakeProcessed_DrainsAndClears(t *testing.T) {
	d := newTestDispatcher()
	d.processed = []int64{1, 2, 3}

	got := d.TakeProcessed()
	if len(got) != 3 {
		t.Fatalf("expected 3 processed ids, got %d", len(got))
	}
	if more := d.TakeProcessed(); len(more) != 0 {
		t.Error("expected TakeProcessed to clear the buffer")
	}
}

func TestEvictStale_RemovesOnlyExpiredStates(t *testing.T) {
	d := newTestDispatcher()
	now := time.Now()

	fresh := stateFor(1, "T1", true, now)
	stale := stateFor(2, "T2", true, now.Add(-10*time.Minute))
	d.states[1] = fresh
	d.states[2] = stale
	d.byTrip["T1"] = 1
	d.byTrip["T2"] = 2

	d.EvictStale(now)

	if _, ok := d.states[1]; !ok {
		t.Error("expected the fresh state to survive eviction")
	}
	if _, ok := d.states[2]; ok {
		t.Error("expected the stale state evicted")
	}
	if _, ok := d.byTrip["T2"]; ok {
		t.Error("expected the evicted state's trip binding removed too")
	}
}
