// Package transition implements the stop-transition detector (4.6): given
// the previous and current VehicleState for the same vehicle, it emits
// departure and arrival events, synthesising an interpolated arrival time
// when a stop was crossed strictly between two fixes.
package transition

import (
	"time"

	"github.com/transitwatch/transitwatch/business/data/gtfs"
	"github.com/transitwatch/transitwatch/business/engine/matching"
)

// Event is a single stop-transition outcome: a departure stamp applied to an
// already-inserted VehicleStopTime, an arrival producing a new one, or both
// in the same detection when a stop is crossed with no dwell at all.
type Event struct {
	Departed *DepartureEvent
	Arrived  *ArrivalEvent
}

// DepartureEvent identifies the VehicleStopTime to stamp with a departure
// time.
type DepartureEvent struct {
	VehicleStopTimeId int64
	DepartureTime     time.Time
}

// ArrivalEvent is a new VehicleStopTime to insert. TripInstanceId is left
// zero; the committer fills it in once the owning trip-instance's id is
// known.
type ArrivalEvent struct {
	VehicleStopTime gtfs.VehicleStopTime
}

// Detect runs the transition rules on the pair (old, cur) for the same
// vehicle. Callers must only invoke this when 0 < cur.LastTimestamp -
// old.LastTimestamp <= 5 minutes; outside that window the pair carries no
// causal meaning and commit should be a no-op.
func Detect(old, cur *matching.VehicleState) Event {
	var event Event

	if old.CurrentStopTime != nil && old.CurrentStopTime.ArrivalTime != nil {
		stopDist := stopShapeDistance(old, old.CurrentStopTime.StopSequence)
		if stopDist != nil && *stopDist+matching.NextStopSlack < cur.ShapeDistance {
			event.Departed = &DepartureEvent{
				VehicleStopTimeId: old.CurrentStopTime.Id,
				DepartureTime:     old.LastTimestamp,
			}
			cur.CurrentStopTime = nil
		}
	}

	if old.NextStopTime == nil || cur.NextStopTime == nil {
		return event
	}
	if cur.NextStopTime.StopSequence != old.NextStopTime.StopSequence+1 {
		return event
	}

	stop := old.NextStopTime
	direct := abs(stop.ShapeDistTraveled-cur.ShapeDistance) < matching.DirectArrivalTolerance

	var arrivalTime time.Time
	switch {
	case direct:
		arrivalTime = cur.LastTimestamp
	case stop.ShapeDistTraveled > old.ShapeDistance && stop.ShapeDistTraveled < cur.ShapeDistance:
		fraction := (stop.ShapeDistTraveled - old.ShapeDistance) / (cur.ShapeDistance - old.ShapeDistance)
		delta := cur.LastTimestamp.Sub(old.LastTimestamp)
		arrivalTime = old.LastTimestamp.Add(time.Duration(fraction * float64(delta)))
	default:
		return event
	}

	vst := gtfs.VehicleStopTime{
		StopSequence: stop.StopSequence,
		StopId:       stop.StopId,
		ArrivalTime:  &arrivalTime,
	}
	if !direct {
		// interpolated arrival: the crossing is reconstructed after the fact,
		// so departure is set equal to arrival.
		vst.DepartureTime = &arrivalTime
	}
	event.Arrived = &ArrivalEvent{VehicleStopTime: vst}
	cur.CurrentStopTime = &vst

	return event
}

func stopShapeDistance(state *matching.VehicleState, stopSequence int) *float64 {
	for _, st := range state.StopTimes {
		if st.StopSequence == stopSequence {
			d := st.ShapeDistTraveled
			return &d
		}
	}
	return nil
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
