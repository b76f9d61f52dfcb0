package matching

import (
	"time"

	"github.com/transitwatch/transitwatch/business/data/geo"
	"github.com/transitwatch/transitwatch/business/data/gtfs"
)

// candidateProjection is the outcome of projecting a fix onto one candidate
// trip's shape: its shape-distance, resulting next stop, and signed delay
// against that stop's scheduled departure. Computed once per candidate and
// reused for whichever candidate electTrip selects, so the caller never
// projects onto the winning trip's shape twice.
type candidateProjection struct {
	trip          *gtfs.Trip
	stopTimes     []*gtfs.StopTime
	shape         geo.Polyline
	shapeDistance float64
	nextStop      *gtfs.StopTime
	delaySeconds  int
	ok            bool
}

// project evaluates trip as a candidate for fix: loads its geometry,
// performs a cold (anchor-less) shape projection, finds the resulting next
// stop, and computes the signed delay of that stop's scheduled departure
// against the fix's time-of-day. ok is false if the fix does not land within
// MapMatchRadius of the trip's shape at all.
func (e *Engine) project(trip *gtfs.Trip, fix gtfs.RawFix) (candidateProjection, error) {
	stopTimes, shape, err := e.tripGeometry(trip, fix.Lat)
	if err != nil {
		return candidateProjection{}, err
	}

	p := geo.FromLatLon(geo.LatLon{Lat: fix.Lat, Lon: fix.Lon}, fix.Lat)
	candidates := geo.CandidateShapeDistances(shape, p, MapMatchRadius)
	closest := geo.ClosestCandidate(candidates)
	if closest == nil {
		return candidateProjection{trip: trip, ok: false}, nil
	}

	nextStop := gtfs.NextStop(stopTimes, closest.Distance, NextStopSlack)
	delay := delayFor(trip, nextStop, fix)

	return candidateProjection{
		trip:          trip,
		stopTimes:     stopTimes,
		shape:         shape,
		shapeDistance: closest.Distance,
		nextStop:      nextStop,
		delaySeconds:  delay,
		ok:            true,
	}, nil
}

// delayFor computes next_stop.scheduled_departure - (fix.timestamp -
// day_start), picking whichever of the fix's civil date or the previous
// civil date makes the offset-into-day fall within trip's scheduled window,
// then normalising the result to lie in [-12h, 12h] so overnight wraparound
// doesn't produce a delay near +/-24h.
func delayFor(trip *gtfs.Trip, nextStop *gtfs.StopTime, fix gtfs.RawFix) int {
	if nextStop == nil {
		return 0
	}
	y, m, d := fix.Timestamp.Date()
	todayMidnight := time.Date(y, m, d, 0, 0, 0, 0, fix.Timestamp.Location())
	offsetToday := int(fix.Timestamp.Sub(todayMidnight).Seconds())

	offset := offsetToday
	if !(offsetToday >= trip.StartSeconds && offsetToday <= trip.EndSeconds) {
		offset = offsetToday + 86400
	}

	delay := nextStop.DepartureSeconds - offset
	const halfDay = 12 * 60 * 60
	for delay > halfDay {
		delay -= 24 * 60 * 60
	}
	for delay < -halfDay {
		delay += 24 * 60 * 60
	}
	return delay
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// Delay recomputes the signed delay of state's next stop against its last
// observed fix, the quantity the conflict resolver compares between two
// vehicles contesting the same trip.
func Delay(state *VehicleState) int {
	return delayFor(state.Trip, state.NextStopTime, state.LastFix)
}
