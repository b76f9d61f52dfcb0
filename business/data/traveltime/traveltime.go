// Package traveltime implements the Past aggregator (4.9): it derives
// per-hop travel-time samples from recorded vehicle-stop-time arrivals and
// bins them into hour-of-day empirical distributions the Future estimator
// convolves forward.
package traveltime

import (
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/transitwatch/transitwatch/business/data/gtfs"
)

// UnlimitedHorizon tells Rebuild to pair every vehicle-stop-time with every
// later one in the same trip-instance, not just adjacent hops.
const UnlimitedHorizon = 0

// BinWidthSeconds discretises the offset-from-minimum-duration axis of
// AverageTravelTime. Not specified numerically upstream; chosen to keep a
// typical urban hop (1-10 minutes of spread) in single digits of bins.
const BinWidthSeconds = 30

// TravelTime is a single observed hop duration between two stops of the same
// trip-instance, persisted for audit and recomputed wholesale by Rebuild.
// FromArrivalHour is not persisted (db:"-"): it is the hour-of-day of the
// from-stop arrival, kept only long enough to bin the sample into an
// AverageTravelTime.
type TravelTime struct {
	Id              int64  `db:"id"`
	FromVstId       int64  `db:"from_vehicle_stop_time_id"`
	ToVstId         int64  `db:"to_vehicle_stop_time_id"`
	FromStopId      string `db:"from_stop_id"`
	ToStopId        string `db:"to_stop_id"`
	DurationSeconds int    `db:"duration_seconds"`
	FromArrivalHour int    `db:"-"`
}

// AverageTravelTime is one hour-of-day, duration-offset bin of the empirical
// distribution for a single (from-stop, to-stop) hop.
type AverageTravelTime struct {
	Id                   int64   `db:"id"`
	FromStopId           string  `db:"from_stop_id"`
	ToStopId             string  `db:"to_stop_id"`
	HourOfDay            int     `db:"hour_of_day"`
	BinIndex             int     `db:"bin_index"`
	MeanDurationSeconds  float64 `db:"mean_duration_seconds"`
	SampleCount          int     `db:"sample_count"`
}

// RecordTravelTimes inserts samples inside tx. It only inserts; Rebuild runs
// ClearTravelTimes first, which empties the table whatever the window.
func RecordTravelTimes(tx *sqlx.Tx, samples []*TravelTime) error {
	for _, s := range samples {
		query := tx.Rebind("insert into travel_time " +
			"(from_vehicle_stop_time_id, to_vehicle_stop_time_id, from_stop_id, to_stop_id, duration_seconds) " +
			"values (?, ?, ?, ?, ?)")
		if _, err := tx.Exec(query, s.FromVstId, s.ToVstId, s.FromStopId, s.ToStopId, s.DurationSeconds); err != nil {
			return fmt.Errorf("recording travel time %d->%d: %w", s.FromVstId, s.ToVstId, err)
		}
	}
	return nil
}

// RecordAverageTravelTimes bulk-inserts the rebuilt bins inside a single
// transaction.
func RecordAverageTravelTimes(tx *sqlx.Tx, averages []*AverageTravelTime) error {
	for _, a := range averages {
		query := tx.Rebind("insert into average_travel_time " +
			"(from_stop_id, to_stop_id, hour_of_day, bin_index, mean_duration_seconds, sample_count) " +
			"values (?, ?, ?, ?, ?, ?)")
		if _, err := tx.Exec(query, a.FromStopId, a.ToStopId, a.HourOfDay, a.BinIndex, a.MeanDurationSeconds, a.SampleCount); err != nil {
			return fmt.Errorf("recording average travel time %s->%s hour %d bin %d: %w",
				a.FromStopId, a.ToStopId, a.HourOfDay, a.BinIndex, err)
		}
	}
	return nil
}

// ClearTravelTimes truncates both derived tables ahead of a Rebuild, since
// both are wholly recomputed rather than incrementally updated.
func ClearTravelTimes(tx *sqlx.Tx) error {
	if _, err := tx.Exec("delete from travel_time"); err != nil {
		return fmt.Errorf("clearing travel_time: %w", err)
	}
	if _, err := tx.Exec("delete from average_travel_time"); err != nil {
		return fmt.Errorf("clearing average_travel_time: %w", err)
	}
	return nil
}

// GetAverageTravelTimes retrieves every bin for a single hop at hour h, the
// per-hop empirical distribution D(A,B,h) the SingleStop estimation strategy
// convolves forward.
func GetAverageTravelTimes(db *sqlx.DB, fromStopId, toStopId string, hour int) ([]*AverageTravelTime, error) {
	var rows []*AverageTravelTime
	query := db.Rebind("select * from average_travel_time where from_stop_id = ? and to_stop_id = ? and hour_of_day = ?")
	if err := db.Select(&rows, query, fromStopId, toStopId, hour); err != nil {
		return nil, fmt.Errorf("retrieving average travel times %s->%s hour %d: %w", fromStopId, toStopId, hour, err)
	}
	return rows, nil
}

// pairKey identifies a single (from-stop, to-stop) hop.
type pairKey struct {
	from, to string
}

// TripInstanceStops bundles an instance id with its vehicle-stop-times,
// already ordered by stop-sequence, the unit BuildSamples consumes.
type TripInstanceStops struct {
	TripInstanceId int64
	Stops          []*gtfs.VehicleStopTime
}
