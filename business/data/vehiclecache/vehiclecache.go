// Package vehiclecache persists a one-row-per-vehicle snapshot of the
// dispatcher's live state: current route, trip, trip-instance, next stop, and
// shape-distance. The dispatcher's in-memory occupant map is the
// authoritative source of truth while the process is up, but the query-api
// runs as a separate process and has no access to it, so every commit also
// overwrites this durable snapshot -- the "current vehicles" read-model.
//
// Grounded on the original Django implementation's VehicleCache table
// (models.py), which the spec.md distillation dropped since it belongs to
// the out-of-scope presentation layer; SPEC_FULL.md reintroduces it as the
// backing store for app/query-api.
package vehiclecache

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// VehicleCache is the latest known snapshot of a single vehicle.
type VehicleCache struct {
	VehicleId      int64     `db:"vehicle_id" json:"vehicle_id"`
	DataSetId      int64     `db:"data_set_id" json:"data_set_id"`
	RouteShortName string    `db:"route_short_name" json:"route_short_name"`
	TripId         string    `db:"trip_id" json:"trip_id"`
	TripInstanceId int64     `db:"trip_instance_id" json:"trip_instance_id"`
	NextStopId     *string   `db:"next_stop_id" json:"next_stop_id,omitempty"`
	Lat            float64   `db:"lat" json:"lat"`
	Lon            float64   `db:"lon" json:"lon"`
	ShapeDistance  float64   `db:"shape_distance" json:"shape_distance"`
	Timestamp      time.Time `db:"timestamp" json:"timestamp"`
}

// Upsert overwrites the snapshot row for vc.VehicleId, the only mutation this
// package exposes: a vehicle has exactly one current cache row at a time.
func Upsert(db *sqlx.DB, vc *VehicleCache) error {
	query := db.Rebind("insert into vehicle_cache " +
		"(vehicle_id, data_set_id, route_short_name, trip_id, trip_instance_id, next_stop_id, lat, lon, shape_distance, timestamp) " +
		"values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?) " +
		"on conflict (vehicle_id) do update set " +
		"data_set_id = excluded.data_set_id, route_short_name = excluded.route_short_name, " +
		"trip_id = excluded.trip_id, trip_instance_id = excluded.trip_instance_id, " +
		"next_stop_id = excluded.next_stop_id, lat = excluded.lat, lon = excluded.lon, " +
		"shape_distance = excluded.shape_distance, timestamp = excluded.timestamp")
	_, err := db.Exec(query, vc.VehicleId, vc.DataSetId, vc.RouteShortName, vc.TripId, vc.TripInstanceId,
		vc.NextStopId, vc.Lat, vc.Lon, vc.ShapeDistance, vc.Timestamp)
	if err != nil {
		return fmt.Errorf("unable to upsert vehicle cache for vehicle %d: %w", vc.VehicleId, err)
	}
	return nil
}

// Delete removes the snapshot row for vehicleId, used when a vehicle is
// evicted as stale so it stops showing up as "current".
func Delete(db *sqlx.DB, vehicleId int64) error {
	query := db.Rebind("delete from vehicle_cache where vehicle_id = ?")
	_, err := db.Exec(query, vehicleId)
	return err
}

// GetByRouteShortNames retrieves the current snapshot of every vehicle last
// seen on one of routeShortNames, the query-api's current-vehicles view.
func GetByRouteShortNames(db *sqlx.DB, routeShortNames []string) ([]*VehicleCache, error) {
	if len(routeShortNames) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In("select * from vehicle_cache where route_short_name in (?) order by vehicle_id", routeShortNames)
	if err != nil {
		return nil, fmt.Errorf("building current-vehicles query: %w", err)
	}
	query = db.Rebind(query)
	var rows []*VehicleCache
	if err := db.Select(&rows, query, args...); err != nil {
		return nil, fmt.Errorf("unable to retrieve vehicle cache for routes %v: %w", routeShortNames, err)
	}
	return rows, nil
}

// GetByTripInstanceId retrieves the current snapshot of the vehicle occupying
// tripInstanceId, used to resolve a vehicle/route identity for a
// GTFS-realtime TripUpdate built from a trip-instance's predictions. Returns
// (nil, nil) if no vehicle currently occupies it.
func GetByTripInstanceId(db *sqlx.DB, tripInstanceId int64) (*VehicleCache, error) {
	var vc VehicleCache
	query := db.Rebind("select * from vehicle_cache where trip_instance_id = ?")
	err := db.Get(&vc, query, tripInstanceId)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve vehicle cache for trip instance %d: %w", tripInstanceId, err)
	}
	return &vc, nil
}

// GetByVehicleId retrieves the current snapshot for a single vehicle, the
// query-api's per-vehicle trip-detail view's entry point. Returns (nil, nil)
// if the vehicle has no current snapshot.
func GetByVehicleId(db *sqlx.DB, vehicleId int64) (*VehicleCache, error) {
	var vc VehicleCache
	query := db.Rebind("select * from vehicle_cache where vehicle_id = ?")
	err := db.Get(&vc, query, vehicleId)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve vehicle cache for vehicle %d: %w", vehicleId, err)
	}
	return &vc, nil
}
