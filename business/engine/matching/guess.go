package matching

import (
	"github.com/transitwatch/transitwatch/business/data/gtfs"
	"github.com/transitwatch/transitwatch/business/data/schedule"
)

// Guess performs cold inference (4.4): route lookup, trip election, shape
// projection, and next-stop lookup, producing a brand new VehicleState bound
// to a freshly minted, not-yet-committed TripInstance. Returns (nil, nil)
// when the fix is unmatchable -- no route, no candidate trip, or no shape
// projection within MapMatchRadius -- which is not an error condition.
func Guess(e *Engine, fix gtfs.RawFix, exclude map[string]bool) (*VehicleState, error) {
	routeInfo, err := e.ScheduleIndex.RouteForFix(fix.RouteShortName, fix.Timestamp)
	if err != nil {
		return nil, err
	}
	if routeInfo == nil {
		return nil, nil
	}

	candidates, err := schedule.CandidateTrips(e.DB, e.DataSetId, &routeInfo.Route, fix.BrigadeId, fix.Timestamp, exclude)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	winner, err := e.electTrip(candidates, fix)
	if err != nil {
		return nil, err
	}
	if winner == nil {
		return nil, nil
	}

	return &VehicleState{
		VehicleId: fix.VehicleId,
		Trip:      winner.trip,
		TripInstance: &gtfs.TripInstance{
			DataSetId: e.DataSetId,
			TripId:    winner.trip.TripId,
			StartedAt: fix.Timestamp,
		},
		StopTimes:     winner.stopTimes,
		Shape:         winner.shape,
		ShapeDistance: winner.shapeDistance,
		NextStopTime:  winner.nextStop,
		LastFix:       fix,
		LastTimestamp: fix.Timestamp,
	}, nil
}

// electTrip implements guess_trip: a single candidate is returned
// unconditionally; among several, the one whose delay against fix has the
// smallest absolute value wins. Candidates whose shape projection fails
// outright are dropped from consideration.
func (e *Engine) electTrip(candidates []*gtfs.Trip, fix gtfs.RawFix) (*candidateProjection, error) {
	if len(candidates) == 1 {
		proj, err := e.project(candidates[0], fix)
		if err != nil {
			return nil, err
		}
		if !proj.ok {
			return nil, nil
		}
		return &proj, nil
	}

	var best *candidateProjection
	for _, trip := range candidates {
		proj, err := e.project(trip, fix)
		if err != nil {
			return nil, err
		}
		if !proj.ok {
			continue
		}
		if best == nil || abs(proj.delaySeconds) < abs(best.delaySeconds) {
			p := proj
			best = &p
		}
	}
	return best, nil
}
