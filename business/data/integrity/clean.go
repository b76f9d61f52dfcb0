// Package integrity implements the four offline cleanup passes of (7),
// invoked manually through the vehicle-tracker clean subcommand and never on
// the hot path: they repair the durable trip-instance/vehicle-stop-time
// tables after bugs, clock skew, or conflict-resolution edge cases leave
// them inconsistent.
package integrity

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"github.com/transitwatch/transitwatch/business/data/gtfs"
)

// Report counts how many rows each pass removed.
type Report struct {
	NonMonotoneTripInstances int
	SparseTripInstances      int
	OutOfTripTripInstances   int
	ShadowedVehicleStopTimes int
}

// Clean runs all four passes in the order spec'd by (7): each pass only ever
// sees the table state left by the passes before it.
func Clean(log zerolog.Logger, db *sqlx.DB) (Report, error) {
	var report Report
	var err error

	if report.NonMonotoneTripInstances, err = removeNonMonotone(db); err != nil {
		return report, fmt.Errorf("removing non-monotone trip instances: %w", err)
	}
	log.Info().Int("removed", report.NonMonotoneTripInstances).Msg("removed non-monotone trip instances")

	if report.SparseTripInstances, err = removeSparse(db); err != nil {
		return report, fmt.Errorf("removing sparse trip instances: %w", err)
	}
	log.Info().Int("removed", report.SparseTripInstances).Msg("removed trip instances with at most one stop time")

	if report.OutOfTripTripInstances, err = removeOutOfTripReferences(db); err != nil {
		return report, fmt.Errorf("removing out-of-trip stop references: %w", err)
	}
	log.Info().Int("removed", report.OutOfTripTripInstances).Msg("removed trip instances referencing stops outside their trip")

	if report.ShadowedVehicleStopTimes, err = removeShadowed(db); err != nil {
		return report, fmt.Errorf("removing shadowed vehicle stop times: %w", err)
	}
	log.Info().Int("removed", report.ShadowedVehicleStopTimes).Msg("removed shadowed vehicle stop times")

	return report, nil
}

// removeNonMonotone deletes every trip-instance whose VehicleStopTimes, read
// in stop-sequence order, have an arrival_time earlier than the one before
// it somewhere (equal arrivals pass; nulls -- stops not yet arrived at -- are
// skipped, not compared).
func removeNonMonotone(db *sqlx.DB) (int, error) {
	instances, err := gtfs.GetAllTripInstances(db)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, ti := range instances {
		vsts, err := gtfs.GetVehicleStopTimesForTripInstance(db, ti.Id)
		if err != nil {
			return removed, err
		}
		if !monotoneArrivals(vsts) {
			if err := gtfs.DeleteTripInstance(db, ti.Id); err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}

func monotoneArrivals(vsts []*gtfs.VehicleStopTime) bool {
	var last *time.Time
	for _, vst := range vsts {
		if vst.ArrivalTime == nil {
			continue
		}
		if last != nil && vst.ArrivalTime.Before(*last) {
			return false
		}
		last = vst.ArrivalTime
	}
	return true
}

// removeSparse deletes every trip-instance with at most one VehicleStopTime:
// too little evidence to have ever produced a useful travel-time sample.
func removeSparse(db *sqlx.DB) (int, error) {
	instances, err := gtfs.GetAllTripInstances(db)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, ti := range instances {
		vsts, err := gtfs.GetVehicleStopTimesForTripInstance(db, ti.Id)
		if err != nil {
			return removed, err
		}
		if len(vsts) <= 1 {
			if err := gtfs.DeleteTripInstance(db, ti.Id); err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}

// removeOutOfTripReferences deletes every trip-instance that has a
// VehicleStopTime naming a stop not present anywhere in its own trip's
// scheduled stop_times -- evidence the instance was bound to the wrong trip.
func removeOutOfTripReferences(db *sqlx.DB) (int, error) {
	instances, err := gtfs.GetAllTripInstances(db)
	if err != nil {
		return 0, err
	}
	removed := 0
	scheduledStops := make(map[string]map[string]bool)
	for _, ti := range instances {
		key := fmt.Sprintf("%d|%s", ti.DataSetId, ti.TripId)
		stops, ok := scheduledStops[key]
		if !ok {
			stopTimes, err := gtfs.GetStopTimesForTrip(db, ti.DataSetId, ti.TripId)
			if err != nil {
				return removed, err
			}
			stops = make(map[string]bool, len(stopTimes))
			for _, st := range stopTimes {
				stops[st.StopId] = true
			}
			scheduledStops[key] = stops
		}

		vsts, err := gtfs.GetVehicleStopTimesForTripInstance(db, ti.Id)
		if err != nil {
			return removed, err
		}
		outOfTrip := false
		for _, vst := range vsts {
			if !stops[vst.StopId] {
				outOfTrip = true
				break
			}
		}
		if outOfTrip {
			if err := gtfs.DeleteTripInstance(db, ti.Id); err != nil {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}

// removeShadowed deletes individual VehicleStopTime rows belonging to an
// earlier trip-instance of the same trip on the same service date once a
// later trip-instance of that same trip has recorded an arrival at the same
// stop_sequence: the earlier observation is superseded, most often the
// result of a vehicle briefly losing and regaining its GPS fix mid-trip.
func removeShadowed(db *sqlx.DB) (int, error) {
	instances, err := gtfs.GetAllTripInstances(db)
	if err != nil {
		return 0, err
	}

	type tripDate struct {
		dataSetId int64
		tripId    string
		day       civilDate
	}
	groups := make(map[tripDate][]*gtfs.TripInstance)
	for _, ti := range instances {
		key := tripDate{dataSetId: ti.DataSetId, tripId: ti.TripId, day: toCivilDate(ti.StartedAt)}
		groups[key] = append(groups[key], ti)
	}

	removed := 0
	for _, group := range groups {
		if len(group) < 2 {
			continue
		}
		// group is already ordered by started_at (GetAllTripInstances orders by
		// trip_id, started_at and every member here shares a trip_id).
		laterStops := make(map[int]bool)
		for i := len(group) - 1; i >= 0; i-- {
			vsts, err := gtfs.GetVehicleStopTimesForTripInstance(db, group[i].Id)
			if err != nil {
				return removed, err
			}
			for _, vst := range vsts {
				if laterStops[vst.StopSequence] {
					if err := gtfs.DeleteVehicleStopTime(db, vst.Id); err != nil {
						return removed, err
					}
					removed++
				}
			}
			for _, vst := range vsts {
				laterStops[vst.StopSequence] = true
			}
		}
	}
	return removed, nil
}

type civilDate struct {
	Year  int
	Month time.Month
	Day   int
}

func toCivilDate(t time.Time) civilDate {
	y, m, d := t.Date()
	return civilDate{Year: y, Month: m, Day: d}
}
