package matching

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/transitwatch/transitwatch/business/data/geo"
	"github.com/transitwatch/transitwatch/business/data/gtfs"
	"github.com/transitwatch/transitwatch/business/data/schedule"
)

// VehicleState is the ephemeral, per-vehicle inference result the dispatcher
// keeps in its live map. It is produced by Guess or Update against a
// read-only snapshot and only becomes durable once the dispatcher commits it.
type VehicleState struct {
	VehicleId int64

	Trip         *gtfs.Trip
	TripInstance *gtfs.TripInstance
	StopTimes    []*gtfs.StopTime
	Shape        geo.Polyline

	ShapeDistance float64
	NextStopTime  *gtfs.StopTime

	// CurrentStopTime is set while the vehicle is considered to be dwelling at
	// a stop it has already been recorded arriving at but not yet departed.
	CurrentStopTime *gtfs.VehicleStopTime

	LastFix       gtfs.RawFix
	LastTimestamp time.Time
}

// Engine resolves raw fixes against the schedule on behalf of Guess and
// Update. It is read-only with respect to the durable store; all of its
// methods are safe to call concurrently from stateless workers.
type Engine struct {
	DB            *sqlx.DB
	DataSetId     int64
	ScheduleIndex *schedule.Index
}

// tripGeometry loads a trip's ordered, un-flipped stop-times and planar
// shape, the per-trip context both Guess and Update project fixes against.
func (e *Engine) tripGeometry(trip *gtfs.Trip, referenceLat float64) ([]*gtfs.StopTime, geo.Polyline, error) {
	stopTimes, err := gtfs.GetStopTimesForTrip(e.DB, e.DataSetId, trip.TripId)
	if err != nil {
		return nil, geo.Polyline{}, err
	}
	gtfs.UnflipShapeDistances(stopTimes)

	points, err := gtfs.GetShapePoints(e.DB, e.DataSetId, trip.ShapeId)
	if err != nil {
		return nil, geo.Polyline{}, fmt.Errorf("loading shape %s for trip %s: %w", trip.ShapeId, trip.TripId, err)
	}
	return stopTimes, gtfs.ToPolyline(points, referenceLat), nil
}

// Stale reports whether state has not been observed for longer than ttl as
// of at, the rule the dispatcher uses to evict vehicles and Update uses to
// fall back to Guess.
func (s *VehicleState) Stale(at time.Time, ttl time.Duration) bool {
	return at.Sub(s.LastTimestamp) > ttl
}
