package gtfs

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

// StopTime contains a record from a gtfs stop_times.txt file, representing a
// scheduled arrival and departure at a stop.
type StopTime struct {
	DataSetId         int64   `db:"data_set_id" json:"data_set_id"`
	TripId            string  `db:"trip_id" json:"trip_id"`
	StopSequence      int     `db:"stop_sequence" json:"stop_sequence"`
	StopId            string  `db:"stop_id" json:"stop_id"`
	ArrivalSeconds    int     `db:"arrival_seconds" json:"arrival_seconds"`
	DepartureSeconds  int     `db:"departure_seconds" json:"departure_seconds"`
	ShapeDistTraveled float64 `db:"shape_dist_traveled" json:"shape_dist_traveled"`
}

// RecordStopTimes saves stopTimes to the database in a batch, owned by dsTx.
// Callers must run UnflipShapeDistances over each trip's stop_times before
// insertion so the monotone-non-decreasing invariant in the data model holds
// for every stored row.
func RecordStopTimes(stopTimes []*StopTime, dsTx *DataSetTransaction) error {
	for _, stopTime := range stopTimes {
		stopTime.DataSetId = dsTx.DS.Id
	}

	statementString := "insert into stop_time ( " +
		"data_set_id, " +
		"trip_id, " +
		"stop_sequence, " +
		"stop_id, " +
		"arrival_seconds, " +
		"departure_seconds, " +
		"shape_dist_traveled) " +
		"values (" +
		":data_set_id, " +
		":trip_id, " +
		":stop_sequence, " +
		":stop_id, " +
		":arrival_seconds, " +
		":departure_seconds," +
		":shape_dist_traveled)"
	statementString = dsTx.Tx.Rebind(statementString)
	_, err := dsTx.Tx.NamedExec(statementString, stopTimes)
	return err
}

// GetStopTimesForTrip retrieves every stop_time for tripId ordered by
// stop_sequence.
func GetStopTimesForTrip(db *sqlx.DB, dataSetId int64, tripId string) ([]*StopTime, error) {
	var stopTimes []*StopTime
	query := db.Rebind("select * from stop_time where data_set_id = ? and trip_id = ? order by stop_sequence")
	if err := db.Select(&stopTimes, query, dataSetId, tripId); err != nil {
		return nil, fmt.Errorf("unable to retrieve stop_times for trip %s: %w", tripId, err)
	}
	return stopTimes, nil
}

// UnflipShapeDistances clamps each stop_time's shape_dist_traveled up to the
// previous one when a published feed's rounding makes it dip below, so the
// sequence is monotonically non-decreasing along stop_sequence without
// discarding the trip. stopTimes must already be ordered by stop_sequence.
func UnflipShapeDistances(stopTimes []*StopTime) {
	for i := 1; i < len(stopTimes); i++ {
		if stopTimes[i].ShapeDistTraveled < stopTimes[i-1].ShapeDistTraveled {
			stopTimes[i].ShapeDistTraveled = stopTimes[i-1].ShapeDistTraveled
		}
	}
}

// NextStop returns the lowest-sequence StopTime whose shape_dist_traveled is
// at least d+slack, the next-stop lookahead rule shared by the guess and
// update stages. Returns the last stop_time if none qualify, or nil if
// stopTimes is empty.
func NextStop(stopTimes []*StopTime, d float64, slack float64) *StopTime {
	for _, st := range stopTimes {
		if st.ShapeDistTraveled >= d+slack {
			return st
		}
	}
	if len(stopTimes) == 0 {
		return nil
	}
	return stopTimes[len(stopTimes)-1]
}
