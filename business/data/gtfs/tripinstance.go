package gtfs

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// TripInstance is a single vehicle's occupancy of a scheduled Trip, created
// the first time a vehicle is bound to that trip and destroyed on
// conflict-loss or invalidation. The live vehicle-state map is the
// authoritative record of which trip-instances are currently active; this
// table is the durable trail of every one that ever existed.
type TripInstance struct {
	Id         int64     `db:"id"`
	DataSetId  int64     `db:"data_set_id"`
	TripId     string    `db:"trip_id"`
	StartedAt  time.Time `db:"started_at"`
	ExternalId string    `db:"external_id" json:"external_id"`
}

// RecordTripInstance inserts a new trip-instance and populates its Id and
// ExternalId. ExternalId is a random identifier safe to expose to clients of
// app/query-api, so the numeric primary key -- otherwise guessable and
// sequential -- never leaks into a public trip-detail URL.
func RecordTripInstance(db *sqlx.DB, ti *TripInstance) error {
	ti.ExternalId = uuid.NewString()
	query := db.Rebind("insert into trip_instance (data_set_id, trip_id, started_at, external_id) " +
		"values (?, ?, ?, ?) returning id")
	if err := db.Get(&ti.Id, query, ti.DataSetId, ti.TripId, ti.StartedAt, ti.ExternalId); err != nil {
		return fmt.Errorf("unable to record trip instance for trip %s: %w", ti.TripId, err)
	}
	return nil
}

// GetTripInstance retrieves a trip-instance by id.
func GetTripInstance(db *sqlx.DB, id int64) (*TripInstance, error) {
	var ti TripInstance
	query := db.Rebind("select * from trip_instance where id = ?")
	if err := db.Get(&ti, query, id); err != nil {
		return nil, fmt.Errorf("unable to retrieve trip instance %d: %w", id, err)
	}
	return &ti, nil
}

// DeleteTripInstance removes a trip-instance and, via an `on delete cascade`
// foreign key, its vehicle_stop_time rows. Used by the integrity cleanup
// passes.
func DeleteTripInstance(db *sqlx.DB, id int64) error {
	query := db.Rebind("delete from trip_instance where id = ?")
	_, err := db.Exec(query, id)
	return err
}

// GetAllTripInstances retrieves every trip-instance in the database ordered
// by trip and start time, the enumeration the integrity cleanup passes (7)
// walk to find non-monotone, sparse, and shadowed instances.
func GetAllTripInstances(db *sqlx.DB) ([]*TripInstance, error) {
	var instances []*TripInstance
	query := "select * from trip_instance order by trip_id, started_at"
	if err := db.Select(&instances, query); err != nil {
		return nil, fmt.Errorf("unable to retrieve trip instances: %w", err)
	}
	return instances, nil
}

// GetTripInstancesForTripOnDate retrieves every trip-instance of tripId
// started on calendar date day, used to find trip-instances shadowed by a
// later one of the same trip on the same service date.
func GetTripInstancesForTripOnDate(db *sqlx.DB, dataSetId int64, tripId string, day time.Time) ([]*TripInstance, error) {
	var instances []*TripInstance
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.Add(24 * time.Hour)
	query := db.Rebind("select * from trip_instance where data_set_id = ? and trip_id = ? " +
		"and started_at >= ? and started_at < ? order by started_at")
	if err := db.Select(&instances, query, dataSetId, tripId, start, end); err != nil {
		return nil, fmt.Errorf("unable to retrieve trip instances for trip %s on %v: %w", tripId, day, err)
	}
	return instances, nil
}
