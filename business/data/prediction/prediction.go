// Package prediction persists the Future estimator's output (4.10):
// StopPrediction groups the StopTimePrediction rows produced for a single
// downstream stop by a single triggering arrival event, and is replaced
// wholesale every time a new arrival event fires for the same trip-instance.
package prediction

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// StopPrediction is one downstream stop's prediction, anchored to the
// vehicle-stop-time arrival event that triggered it.
type StopPrediction struct {
	Id             int64     `db:"id" json:"id"`
	TripInstanceId int64     `db:"trip_instance_id" json:"trip_instance_id"`
	StopSequence   int       `db:"stop_sequence" json:"stop_sequence"`
	StopId         string    `db:"stop_id" json:"stop_id"`
	MadeAtVstId    int64     `db:"made_at_vehicle_stop_time_id" json:"made_at_vehicle_stop_time_id"`
	MadeAt         time.Time `db:"made_at" json:"made_at"`
}

// StopTimePrediction is a single surviving probability mass for a
// StopPrediction: the odds the vehicle arrives within MinuteBucket.
type StopTimePrediction struct {
	Id               int64     `db:"id" json:"id"`
	StopPredictionId int64     `db:"stop_prediction_id" json:"stop_prediction_id"`
	MinuteBucket     time.Time `db:"minute_bucket" json:"minute_bucket"`
	Probability      float64   `db:"probability" json:"probability"`
}

// ReplaceForTripInstance deletes every StopPrediction (cascading to its
// StopTimePredictions) for tripInstanceId and inserts the fresh set produced
// by the latest arrival event, inside a single transaction -- predictions
// are overwritten wholesale, never merged.
func ReplaceForTripInstance(db *sqlx.DB, tripInstanceId int64, stops []*StopPrediction, times map[int][]*StopTimePrediction) error {
	tx, err := db.Beginx()
	if err != nil {
		return fmt.Errorf("beginning prediction replacement for trip instance %d: %w", tripInstanceId, err)
	}

	if _, err := tx.Exec(tx.Rebind("delete from stop_prediction where trip_instance_id = ?"), tripInstanceId); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clearing prior predictions for trip instance %d: %w", tripInstanceId, err)
	}

	for i, sp := range stops {
		query := tx.Rebind("insert into stop_prediction " +
			"(trip_instance_id, stop_sequence, stop_id, made_at_vehicle_stop_time_id, made_at) " +
			"values (?, ?, ?, ?, ?) returning id")
		if err := tx.Get(&sp.Id, query, sp.TripInstanceId, sp.StopSequence, sp.StopId, sp.MadeAtVstId, sp.MadeAt); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("recording stop prediction for stop sequence %d: %w", sp.StopSequence, err)
		}

		for _, stp := range times[i] {
			stp.StopPredictionId = sp.Id
			query := tx.Rebind("insert into stop_time_prediction " +
				"(stop_prediction_id, minute_bucket, probability) values (?, ?, ?) returning id")
			if err := tx.Get(&stp.Id, query, stp.StopPredictionId, stp.MinuteBucket, stp.Probability); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("recording stop time prediction for stop prediction %d: %w", sp.Id, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing prediction replacement for trip instance %d: %w", tripInstanceId, err)
	}
	return nil
}

// GetStopPredictions retrieves every StopPrediction for a trip-instance,
// ordered by stop sequence, for the query-api's per-vehicle trip detail view.
func GetStopPredictions(db *sqlx.DB, tripInstanceId int64) ([]*StopPrediction, error) {
	var rows []*StopPrediction
	query := db.Rebind("select * from stop_prediction where trip_instance_id = ? order by stop_sequence")
	if err := db.Select(&rows, query, tripInstanceId); err != nil {
		return nil, fmt.Errorf("retrieving stop predictions for trip instance %d: %w", tripInstanceId, err)
	}
	return rows, nil
}

// GetStopTimePredictions retrieves the surviving probability mass for a
// single StopPrediction, ordered by minute bucket.
func GetStopTimePredictions(db *sqlx.DB, stopPredictionId int64) ([]*StopTimePrediction, error) {
	var rows []*StopTimePrediction
	query := db.Rebind("select * from stop_time_prediction where stop_prediction_id = ? order by minute_bucket")
	if err := db.Select(&rows, query, stopPredictionId); err != nil {
		return nil, fmt.Errorf("retrieving stop time predictions for stop prediction %d: %w", stopPredictionId, err)
	}
	return rows, nil
}

// Mode returns the minute bucket carrying the highest probability mass, the
// single-point estimate a GTFS-realtime feed needs in place of the full
// distribution. ok is false if times is empty.
func Mode(times []*StopTimePrediction) (bucket time.Time, ok bool) {
	var best *StopTimePrediction
	for _, t := range times {
		if best == nil || t.Probability > best.Probability {
			best = t
		}
	}
	if best == nil {
		return time.Time{}, false
	}
	return best.MinuteBucket, true
}

// GetStopPredictionsForStop retrieves the most recent predictions for a
// single physical stop across every currently active trip-instance, the
// per-stop predictions query-api view.
func GetStopPredictionsForStop(db *sqlx.DB, stopId string, since time.Time) ([]*StopPrediction, error) {
	var rows []*StopPrediction
	query := db.Rebind("select * from stop_prediction where stop_id = ? and made_at >= ? order by made_at desc")
	if err := db.Select(&rows, query, stopId, since); err != nil {
		return nil, fmt.Errorf("retrieving stop predictions for stop %s: %w", stopId, err)
	}
	return rows, nil
}
