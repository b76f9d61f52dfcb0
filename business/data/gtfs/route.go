package gtfs

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Route contains a record from a gtfs routes.txt file.
type Route struct {
	DataSetId int64  `db:"data_set_id"`
	RouteId   string `db:"route_id"`
	RouteShortName string `db:"route_short_name"`
	RouteLongName  string `db:"route_long_name"`
}

// RecordRoutes saves routes to the database in a batch, owned by dsTx.
func RecordRoutes(routes []*Route, dsTx *DataSetTransaction) error {
	for _, route := range routes {
		route.DataSetId = dsTx.DS.Id
	}

	statementString := "insert into route ( " +
		"data_set_id, " +
		"route_id, " +
		"route_short_name, " +
		"route_long_name) " +
		"values (" +
		":data_set_id, " +
		":route_id, " +
		":route_short_name, " +
		":route_long_name)"
	statementString = dsTx.Tx.Rebind(statementString)
	_, err := dsTx.Tx.NamedExec(statementString, routes)
	return err
}

// GetRoutesByShortName retrieves every route in dataSetId whose
// route_short_name matches shortName. A feed may publish more than one route
// id sharing a rider-facing short name (e.g. direction-specific routes), so
// the candidate oracle fans out over all of them.
func GetRoutesByShortName(db *sqlx.DB, dataSetId int64, shortName string) ([]*Route, error) {
	var routes []*Route
	query := db.Rebind("select * from route where data_set_id = ? and route_short_name = ?")
	if err := db.Select(&routes, query, dataSetId, shortName); err != nil {
		return nil, fmt.Errorf("unable to retrieve routes for short name %s: %w", shortName, err)
	}
	return routes, nil
}

// GetRoute retrieves a single route by id.
func GetRoute(db *sqlx.DB, dataSetId int64, routeId string) (*Route, error) {
	var route Route
	query := db.Rebind("select * from route where data_set_id = ? and route_id = ?")
	if err := db.Get(&route, query, dataSetId, routeId); err != nil {
		return nil, fmt.Errorf("unable to retrieve route %s: %w", routeId, err)
	}
	return &route, nil
}

// RouteServiceWindow is the earliest scheduled start and latest scheduled end,
// in seconds since the service day's midnight, of any trip run by a route on
// a service date -- the building block of the schedule index's per-date
// RouteByDate entries.
type RouteServiceWindow struct {
	RouteId      string `db:"route_id"`
	StartSeconds int    `db:"start_seconds"`
	EndSeconds   int    `db:"end_seconds"`
}

// GetRouteServiceWindows returns, for every route with at least one trip
// running under one of serviceIds, the earliest start_seconds and latest
// end_seconds among those trips.
func GetRouteServiceWindows(db *sqlx.DB, dataSetId int64, serviceIds []string) ([]*RouteServiceWindow, error) {
	if len(serviceIds) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(
		"select route_id, min(start_seconds) as start_seconds, max(end_seconds) as end_seconds "+
			"from trip where data_set_id = ? and service_id in (?) group by route_id",
		dataSetId, serviceIds)
	if err != nil {
		return nil, fmt.Errorf("building route service window query: %w", err)
	}
	query = db.Rebind(query)
	var windows []*RouteServiceWindow
	if err := db.Select(&windows, query, args...); err != nil {
		return nil, fmt.Errorf("unable to retrieve route service windows: %w", err)
	}
	return windows, nil
}
