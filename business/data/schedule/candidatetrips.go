package schedule

import (
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/transitwatch/transitwatch/business/data/gtfs"
)

// CandidateTrips implements the trip candidate oracle (4.3): for a route and
// raw fix, with an exclusion set of trips already eliminated by a prior
// conflict-resolution round, returns every scheduled trip matching the fix's
// brigade whose service-date is either the fix's own civil date (with
// offset-into-day within [start_seconds, end_seconds]), or the previous
// civil date (with offset-into-day + 86400 within that same interval, to
// catch trips still running from an overnight block).
func CandidateTrips(db *sqlx.DB, dataSetId int64, route *gtfs.Route, brigadeId string,
	fixTime time.Time, exclude map[string]bool) ([]*gtfs.Trip, error) {

	today := toCivilDate(fixTime)
	yesterday := today.addDays(-1)

	todayMidnight := today.midnight(fixTime.Location())
	offsetToday := int(fixTime.Sub(todayMidnight).Seconds())
	offsetFromYesterday := offsetToday + 86400

	ds, err := gtfs.GetDataSet(db, dataSetId)
	if err != nil {
		return nil, err
	}
	activeToday, err := gtfs.GetActiveServiceIds(db, ds, todayMidnight)
	if err != nil {
		return nil, err
	}
	activeYesterday, err := gtfs.GetActiveServiceIds(db, ds, yesterday.midnight(fixTime.Location()))
	if err != nil {
		return nil, err
	}
	todaySet := toSet(activeToday)
	yesterdaySet := toSet(activeYesterday)

	trips, err := gtfs.GetTripsForRouteAndBrigade(db, dataSetId, route.RouteId, brigadeId)
	if err != nil {
		return nil, err
	}

	return selectCandidateTrips(trips, todaySet, yesterdaySet, offsetToday, offsetFromYesterday, exclude), nil
}

// selectCandidateTrips is the pure selection rule behind CandidateTrips,
// split out so it can be exercised without a database.
func selectCandidateTrips(trips []*gtfs.Trip, activeToday, activeYesterday map[string]bool,
	offsetToday, offsetFromYesterday int, exclude map[string]bool) []*gtfs.Trip {

	var candidates []*gtfs.Trip
	for _, trip := range trips {
		if exclude[trip.TripId] {
			continue
		}
		inWindow := func(offset int) bool {
			return offset >= trip.StartSeconds && offset <= trip.EndSeconds
		}
		if activeToday[trip.ServiceId] && inWindow(offsetToday) {
			candidates = append(candidates, trip)
			continue
		}
		if activeYesterday[trip.ServiceId] && inWindow(offsetFromYesterday) {
			candidates = append(candidates, trip)
		}
	}
	return candidates
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
