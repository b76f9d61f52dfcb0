package gtfs

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// RawFix is a single raw vehicle observation as received from the live
// poller: a vehicle-id, route-short-name, brigade-id, position and
// timestamp. Persisted with a processed flag so process-raw-data can replay
// the backlog idempotently.
type RawFix struct {
	Id             int64     `db:"id" json:"id"`
	VehicleId      int64     `db:"vehicle_id" json:"vehicle_id"`
	RouteShortName string    `db:"route_short_name" json:"route_short_name"`
	BrigadeId      string    `db:"brigade_id" json:"brigade_id"`
	Lat            float64   `db:"lat" json:"lat"`
	Lon            float64   `db:"lon" json:"lon"`
	Timestamp      time.Time `db:"timestamp" json:"timestamp"`
	Processed      bool      `db:"processed" json:"processed"`
}

// Valid reports whether the fix carries coordinates and a route name a
// trip-candidate lookup can act on. An invalid fix is discarded without
// error, never surfaced as a processing failure.
func (f *RawFix) Valid() bool {
	return f.RouteShortName != "" && f.Lat >= -90 && f.Lat <= 90 && f.Lon >= -180 && f.Lon <= 180
}

// RecordRawFix inserts a new raw fix and populates its Id.
func RecordRawFix(db *sqlx.DB, fix *RawFix) error {
	query := db.Rebind("insert into raw_vehicle_data " +
		"(vehicle_id, route_short_name, brigade_id, lat, lon, timestamp, processed) " +
		"values (?, ?, ?, ?, ?, ?, ?) returning id")
	err := db.Get(&fix.Id, query, fix.VehicleId, fix.RouteShortName, fix.BrigadeId, fix.Lat, fix.Lon, fix.Timestamp, fix.Processed)
	if err != nil {
		return fmt.Errorf("unable to record raw fix for vehicle %d: %w", fix.VehicleId, err)
	}
	return nil
}

// GetUnprocessedRawFixes retrieves up to limit unprocessed fixes ordered by
// timestamp, the batch unit process-raw-data replays the backlog in.
func GetUnprocessedRawFixes(db *sqlx.DB, limit int) ([]*RawFix, error) {
	var fixes []*RawFix
	query := db.Rebind("select * from raw_vehicle_data where processed = false order by timestamp limit ?")
	if err := db.Select(&fixes, query, limit); err != nil {
		return nil, fmt.Errorf("unable to retrieve unprocessed raw fixes: %w", err)
	}
	return fixes, nil
}

// UnprocessedRawFixWindow returns the earliest and latest timestamp among
// unprocessed raw fixes, so a batch job can size a schedule.Index to the
// span it is about to replay instead of the live ±2-day interactive window.
// ok is false if there is no backlog at all.
func UnprocessedRawFixWindow(db *sqlx.DB) (start, end time.Time, ok bool, err error) {
	var bounds struct {
		Start *time.Time `db:"start"`
		End   *time.Time `db:"end"`
	}
	query := "select min(timestamp) as start, max(timestamp) as end from raw_vehicle_data where processed = false"
	if err := db.Get(&bounds, query); err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("unable to retrieve unprocessed raw fix window: %w", err)
	}
	if bounds.Start == nil || bounds.End == nil {
		return time.Time{}, time.Time{}, false, nil
	}
	return *bounds.Start, *bounds.End, true, nil
}

// GetRawFixesInWindow retrieves every fix for one of routeShortNames with a
// timestamp in [start, start+15m), ordered by timestamp, the query-api's
// recent-history view.
func GetRawFixesInWindow(db *sqlx.DB, routeShortNames []string, start time.Time) ([]*RawFix, error) {
	if len(routeShortNames) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In("select * from raw_vehicle_data where route_short_name in (?) "+
		"and timestamp >= ? and timestamp < ? order by timestamp", routeShortNames, start, start.Add(15*time.Minute))
	if err != nil {
		return nil, fmt.Errorf("building history query: %w", err)
	}
	query = db.Rebind(query)
	var fixes []*RawFix
	if err := db.Select(&fixes, query, args...); err != nil {
		return nil, fmt.Errorf("unable to retrieve raw fix history: %w", err)
	}
	return fixes, nil
}

// MarkProcessed flags every fix in ids as processed, whether or not it
// produced a VehicleState: an unmatchable fix is still consumed.
func MarkProcessed(db *sqlx.DB, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := sqlx.In("update raw_vehicle_data set processed = true where id in (?)", ids)
	if err != nil {
		return fmt.Errorf("building mark-processed query: %w", err)
	}
	query = db.Rebind(query)
	_, err = db.Exec(query, args...)
	return err
}
