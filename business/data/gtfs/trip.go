package gtfs

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Trip contains data from a gtfs trip definition in a trips.txt file, extended
// with the brigade/duty identifier (the Warsaw-style "brygada" encoded in
// trip_short_name by many European agencies) and the trip's service window,
// both needed by the matching engine and absent from a stock GTFS import.
type Trip struct {
	DataSetId    int64  `db:"data_set_id"`
	TripId       string `db:"trip_id"`
	RouteId      string `db:"route_id"`
	ServiceId    string `db:"service_id"`
	ShapeId      string `db:"shape_id"`
	TripHeadsign *string `db:"trip_headsign"`
	BlockId      *string `db:"block_id"`

	// BrigadeId identifies the duty/roster that, together with the route,
	// selects this scheduled trip from among a route's candidates at a given
	// time of day. Populated from trip_short_name on import.
	BrigadeId string `db:"brigade_id"`

	// StartSeconds and EndSeconds are the trip's first stop_time's
	// arrival_time and last stop_time's departure_time respectively,
	// denormalized onto the trip row at import so the candidate oracle
	// doesn't need to join stop_time for every lookup. May exceed 86400 for
	// service that runs past midnight.
	StartSeconds int `db:"start_seconds"`
	EndSeconds   int `db:"end_seconds"`
}

// RecordTrips saves trips into the database in a batch, owned by dsTx.
func RecordTrips(trips []*Trip, dsTx *DataSetTransaction) error {
	for _, trip := range trips {
		trip.DataSetId = dsTx.DS.Id
	}
	statementString := "insert into trip ( " +
		"data_set_id, " +
		"trip_id, " +
		"route_id, " +
		"service_id, " +
		"shape_id, " +
		"trip_headsign, " +
		"block_id, " +
		"brigade_id, " +
		"start_seconds, " +
		"end_seconds) " +
		"values (" +
		":data_set_id, " +
		":trip_id, " +
		":route_id, " +
		":service_id, " +
		":shape_id, " +
		":trip_headsign, " +
		":block_id, " +
		":brigade_id, " +
		":start_seconds, " +
		":end_seconds)"
	statementString = dsTx.Tx.Rebind(statementString)
	_, err := dsTx.Tx.NamedExec(statementString, trips)
	return err
}

// GetTripsForRouteAndBrigade retrieves every trip in dataSetId on routeId
// assigned to brigadeId, used by the trip candidate oracle to build the set
// of trips a raw fix might be operating.
func GetTripsForRouteAndBrigade(db *sqlx.DB, dataSetId int64, routeId string, brigadeId string) ([]*Trip, error) {
	var trips []*Trip
	query := db.Rebind("select * from trip where data_set_id = ? and route_id = ? and brigade_id = ?")
	if err := db.Select(&trips, query, dataSetId, routeId, brigadeId); err != nil {
		return nil, fmt.Errorf("unable to retrieve trips for route %s brigade %s: %w", routeId, brigadeId, err)
	}
	return trips, nil
}

// GetTrip retrieves a single trip by id.
func GetTrip(db *sqlx.DB, dataSetId int64, tripId string) (*Trip, error) {
	var trip Trip
	query := db.Rebind("select * from trip where data_set_id = ? and trip_id = ?")
	if err := db.Get(&trip, query, dataSetId, tripId); err != nil {
		return nil, fmt.Errorf("unable to retrieve trip %s: %w", tripId, err)
	}
	return &trip, nil
}

// tripIdBase and the logic in GetSuccessorTrip implement the update
// stage's end-of-trip rollover: when a vehicle runs off the end of trip_5, an
// agency's block is frequently continued by trip_6 scheduled back-to-back on
// the same vehicle, identified only by the numeric suffix of the trip id.
func tripIdBase(tripId string) (base string, suffix int, ok bool) {
	i := len(tripId)
	for i > 0 && tripId[i-1] >= '0' && tripId[i-1] <= '9' {
		i--
	}
	if i == len(tripId) || i == 0 || tripId[i-1] != '_' {
		return "", 0, false
	}
	n := 0
	for _, c := range tripId[i:] {
		n = n*10 + int(c-'0')
	}
	return tripId[:i-1], n, true
}

// GetSuccessorTrip looks for a trip on the same route and brigade whose
// trip_id is current's trip_id with its numeric suffix incremented by one,
// and whose scheduled start is not before current's scheduled end.
func GetSuccessorTrip(db *sqlx.DB, dataSetId int64, current *Trip) (*Trip, error) {
	base, suffix, ok := tripIdBase(current.TripId)
	if !ok {
		return nil, nil
	}
	successorId := fmt.Sprintf("%s_%d", base, suffix+1)
	var trip Trip
	query := db.Rebind("select * from trip where data_set_id = ? and trip_id = ? and start_seconds >= ?")
	err := db.Get(&trip, query, dataSetId, successorId, current.EndSeconds)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve successor trip %s: %w", successorId, err)
	}
	return &trip, nil
}
