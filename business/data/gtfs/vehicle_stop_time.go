package gtfs

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// VehicleStopTime is the durable record of a vehicle's arrival at (and later
// departure from) a scheduled stop, appended at arrival detection and
// completed by a later departure stamp. At most one exists per
// (trip-instance, stop-sequence).
type VehicleStopTime struct {
	Id             int64      `db:"id"`
	TripInstanceId int64      `db:"trip_instance_id"`
	StopSequence   int        `db:"stop_sequence"`
	StopId         string     `db:"stop_id"`
	ArrivalTime    *time.Time `db:"arrival_time"`
	DepartureTime  *time.Time `db:"departure_time"`
}

// RecordVehicleStopTime inserts a new vehicle-stop-time and populates its Id.
func RecordVehicleStopTime(db *sqlx.DB, vst *VehicleStopTime) error {
	query := db.Rebind("insert into vehicle_stop_time " +
		"(trip_instance_id, stop_sequence, stop_id, arrival_time, departure_time) " +
		"values (?, ?, ?, ?, ?) returning id")
	err := db.Get(&vst.Id, query, vst.TripInstanceId, vst.StopSequence, vst.StopId, vst.ArrivalTime, vst.DepartureTime)
	if err != nil {
		return fmt.Errorf("unable to record vehicle stop time for trip instance %d stop %d: %w",
			vst.TripInstanceId, vst.StopSequence, err)
	}
	return nil
}

// SetDeparture stamps departureTime on the vehicle-stop-time identified by id.
func SetDeparture(db *sqlx.DB, id int64, departureTime time.Time) error {
	query := db.Rebind("update vehicle_stop_time set departure_time = ? where id = ?")
	_, err := db.Exec(query, departureTime, id)
	return err
}

// GetVehicleStopTimesForTripInstance retrieves every vehicle-stop-time for
// tripInstanceId ordered by stop_sequence, the order the integrity passes and
// the travel-time aggregator walk them in.
func GetVehicleStopTimesForTripInstance(db *sqlx.DB, tripInstanceId int64) ([]*VehicleStopTime, error) {
	var rows []*VehicleStopTime
	query := db.Rebind("select * from vehicle_stop_time where trip_instance_id = ? order by stop_sequence")
	if err := db.Select(&rows, query, tripInstanceId); err != nil {
		return nil, fmt.Errorf("unable to retrieve vehicle stop times for trip instance %d: %w", tripInstanceId, err)
	}
	return rows, nil
}

// GetVehicleStopTimesInWindow retrieves every vehicle-stop-time with a
// non-null arrival_time in [after, before), used by the Past aggregator to
// source TravelTime samples.
func GetVehicleStopTimesInWindow(db *sqlx.DB, after, before time.Time) ([]*VehicleStopTime, error) {
	var rows []*VehicleStopTime
	query := db.Rebind("select * from vehicle_stop_time " +
		"where arrival_time is not null and arrival_time >= ? and arrival_time < ? order by trip_instance_id, stop_sequence")
	if err := db.Select(&rows, query, after, before); err != nil {
		return nil, fmt.Errorf("unable to retrieve vehicle stop times in window: %w", err)
	}
	return rows, nil
}

// DeleteVehicleStopTime removes a single vehicle-stop-time row, used by the
// integrity pass that removes rows shadowed by a later trip-instance.
func DeleteVehicleStopTime(db *sqlx.DB, id int64) error {
	query := db.Rebind("delete from vehicle_stop_time where id = ?")
	_, err := db.Exec(query, id)
	return err
}
