package matching

import (
	"github.com/transitwatch/transitwatch/business/data/geo"
	"github.com/transitwatch/transitwatch/business/data/gtfs"
)

// Update performs warm inference (4.5): extends old forward along the same
// trip from the new fix, falling back to a full cold Guess when the
// re-projection fails or the trip has been exhausted and has no successor.
func Update(e *Engine, old *VehicleState, fix gtfs.RawFix) (*VehicleState, error) {
	p := geo.FromLatLon(geo.LatLon{Lat: fix.Lat, Lon: fix.Lon}, fix.Lat)
	candidates := geo.CandidateShapeDistances(old.Shape, p, MapMatchRadius)
	if len(candidates) == 0 {
		return Guess(e, fix, nil)
	}
	best := geo.ClosestCandidateNotBelow(candidates, old.ShapeDistance, ShapeDistanceMonotoneSlack)
	if best == nil {
		return Guess(e, fix, nil)
	}
	newShapeDistance := best.Distance

	nextStop := old.NextStopTime
	if nextStop == nil || newShapeDistance > nextStop.ShapeDistTraveled-NextStopSlack {
		advanced, ranOff := nextStopOrEnd(old.StopTimes, newShapeDistance, NextStopSlack)
		if ranOff {
			return rollover(e, old, fix)
		}
		nextStop = advanced
	}

	return &VehicleState{
		VehicleId:       old.VehicleId,
		Trip:            old.Trip,
		TripInstance:    old.TripInstance,
		StopTimes:       old.StopTimes,
		Shape:           old.Shape,
		ShapeDistance:   newShapeDistance,
		NextStopTime:    nextStop,
		CurrentStopTime: old.CurrentStopTime,
		LastFix:         fix,
		LastTimestamp:   fix.Timestamp,
	}, nil
}

// nextStopOrEnd calls gtfs.NextStop and additionally reports whether d has
// advanced past the trip's final stop -- NextStop degenerates to returning
// the last stop_time once there is nothing further ahead, so "ran off the
// end" is detected by the returned stop being the last one and d+slack
// exceeding its shape-distance. A d more than slack short of the final stop
// is still approaching it.
func nextStopOrEnd(stopTimes []*gtfs.StopTime, d, slack float64) (next *gtfs.StopTime, ranOff bool) {
	next = gtfs.NextStop(stopTimes, d, slack)
	if len(stopTimes) == 0 || next == nil {
		return next, false
	}
	last := stopTimes[len(stopTimes)-1]
	if next == last && d+slack > last.ShapeDistTraveled {
		return next, true
	}
	return next, false
}

// rollover implements the end-of-trip handoff: look for a successor trip
// whose id increments old.Trip's numeric suffix and whose scheduled start is
// not before old.Trip's scheduled end; if found, guess against that trip
// specifically rather than re-running route/trip election from scratch.
func rollover(e *Engine, old *VehicleState, fix gtfs.RawFix) (*VehicleState, error) {
	successor, err := gtfs.GetSuccessorTrip(e.DB, e.DataSetId, old.Trip)
	if err != nil {
		return nil, err
	}
	if successor == nil {
		return Guess(e, fix, nil)
	}

	proj, err := e.project(successor, fix)
	if err != nil {
		return nil, err
	}
	if !proj.ok {
		return Guess(e, fix, nil)
	}

	return &VehicleState{
		VehicleId: fix.VehicleId,
		Trip:      proj.trip,
		TripInstance: &gtfs.TripInstance{
			DataSetId: e.DataSetId,
			TripId:    proj.trip.TripId,
			StartedAt: fix.Timestamp,
		},
		StopTimes:     proj.stopTimes,
		Shape:         proj.shape,
		ShapeDistance: proj.shapeDistance,
		NextStopTime:  proj.nextStop,
		LastFix:       fix,
		LastTimestamp: fix.Timestamp,
	}, nil
}
