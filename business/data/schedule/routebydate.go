// Package schedule maintains the route-by-date index (4.2) and the trip
// candidate oracle (4.3) the matching engine uses to turn a raw fix's
// route-short-name and brigade into a small set of scheduled trips.
package schedule

import (
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/transitwatch/transitwatch/business/data/gtfs"
)

// RouteInfo is a route together with the absolute time window during which
// it operated service on one particular service date.
type RouteInfo struct {
	Route       gtfs.Route
	WindowStart time.Time
	WindowEnd   time.Time
}

// contains reports whether at is within [WindowStart, WindowEnd].
func (r RouteInfo) contains(at time.Time) bool {
	return !at.Before(r.WindowStart) && !at.After(r.WindowEnd)
}

// Index maintains RouteByDate: for each loaded service date, a mapping from
// route-short-name to that route's RouteInfo for the date. Two modes:
// Interactive keeps a sliding window around "today" and refreshes lazily on
// an hourly cadence; Batch loads the full span once at construction and
// never refreshes.
type Index struct {
	db        *sqlx.DB
	dataSetId int64

	mu      sync.RWMutex
	byDate  map[civilDate]map[string]RouteInfo
	loadedFrom, loadedTo civilDate

	// interactive refresh bookkeeping; zero value disables refresh (batch mode)
	refreshInterval time.Duration
	slidingDays     int
	lastRefreshedAt time.Time
	now             func() time.Time
}

// civilDate identifies a service date independent of time-of-day.
type civilDate struct {
	Year  int
	Month time.Month
	Day   int
}

func toCivilDate(t time.Time) civilDate {
	y, m, d := t.Date()
	return civilDate{Year: y, Month: m, Day: d}
}

func (c civilDate) midnight(loc *time.Location) time.Time {
	return time.Date(c.Year, c.Month, c.Day, 0, 0, 0, 0, loc)
}

func (c civilDate) addDays(n int) civilDate {
	t := time.Date(c.Year, c.Month, c.Day, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
	return toCivilDate(t)
}

// NewInteractive builds an Index that holds a ±2-day sliding window around
// now and refreshes itself at most once per hour, on the next call to
// RouteForFix past the refresh deadline.
func NewInteractive(db *sqlx.DB, dataSetId int64, now time.Time) (*Index, error) {
	idx := &Index{
		db:              db,
		dataSetId:       dataSetId,
		byDate:          make(map[civilDate]map[string]RouteInfo),
		refreshInterval: time.Hour,
		slidingDays:     2,
		now:             time.Now,
	}
	if err := idx.reload(now); err != nil {
		return nil, err
	}
	return idx, nil
}

// NewBatch builds an Index spanning every service date between start and end
// inclusive, loaded once and never refreshed.
func NewBatch(db *sqlx.DB, dataSetId int64, start, end time.Time) (*Index, error) {
	idx := &Index{
		db:        db,
		dataSetId: dataSetId,
		byDate:    make(map[civilDate]map[string]RouteInfo),
		now:       time.Now,
	}
	from, to := toCivilDate(start), toCivilDate(end)
	for d := from; ; d = d.addDays(1) {
		if err := idx.loadDate(d); err != nil {
			return nil, err
		}
		if d == to {
			break
		}
	}
	idx.loadedFrom, idx.loadedTo = from, to
	return idx, nil
}

// reload rebuilds the sliding ±slidingDays window around now.
func (idx *Index) reload(now time.Time) error {
	center := toCivilDate(now)
	from := center.addDays(-idx.slidingDays)
	to := center.addDays(idx.slidingDays)

	fresh := make(map[civilDate]map[string]RouteInfo)
	for d := from; ; d = d.addDays(1) {
		entries, err := idx.loadDateEntries(d)
		if err != nil {
			return err
		}
		fresh[d] = entries
		if d == to {
			break
		}
	}

	idx.mu.Lock()
	idx.byDate = fresh
	idx.loadedFrom, idx.loadedTo = from, to
	idx.lastRefreshedAt = now
	idx.mu.Unlock()
	return nil
}

// loadDate loads a single service date into idx.byDate, used by Batch
// construction which does not hold idx.mu during the whole build.
func (idx *Index) loadDate(d civilDate) error {
	entries, err := idx.loadDateEntries(d)
	if err != nil {
		return err
	}
	idx.byDate[d] = entries
	return nil
}

// loadDateEntries computes the route-short-name -> RouteInfo map for a single
// service date from active calendar service ids and each route's
// min(start_seconds)/max(end_seconds) among trips running under them.
func (idx *Index) loadDateEntries(d civilDate) (map[string]RouteInfo, error) {
	ds, err := gtfs.GetDataSet(idx.db, idx.dataSetId)
	if err != nil {
		return nil, fmt.Errorf("loading data set %d for schedule index: %w", idx.dataSetId, err)
	}
	midnight := d.midnight(time.Local)
	serviceIds, err := gtfs.GetActiveServiceIds(idx.db, ds, midnight)
	if err != nil {
		return nil, fmt.Errorf("loading active service ids for %v: %w", midnight, err)
	}
	windows, err := gtfs.GetRouteServiceWindows(idx.db, idx.dataSetId, serviceIds)
	if err != nil {
		return nil, err
	}

	entries := make(map[string]RouteInfo, len(windows))
	for _, w := range windows {
		route, err := gtfs.GetRoute(idx.db, idx.dataSetId, w.RouteId)
		if err != nil {
			continue
		}
		entries[route.RouteShortName] = RouteInfo{
			Route:       *route,
			WindowStart: gtfs.MakeScheduleTime(midnight, w.StartSeconds),
			WindowEnd:   gtfs.MakeScheduleTime(midnight, w.EndSeconds),
		}
	}
	return entries, nil
}

// RouteForFix looks up routeShortName for the service date of at and the
// previous service date (to catch overnight trips whose service date is the
// day before), returning whichever entry's window contains at. In
// Interactive mode, triggers a refresh first if the hourly deadline has
// passed.
func (idx *Index) RouteForFix(routeShortName string, at time.Time) (*RouteInfo, error) {
	if idx.refreshInterval > 0 {
		idx.mu.RLock()
		stale := at.After(idx.lastRefreshedAt.Add(idx.refreshInterval))
		idx.mu.RUnlock()
		if stale {
			if err := idx.reload(idx.now()); err != nil {
				return nil, err
			}
		}
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	today := toCivilDate(at)
	yesterday := today.addDays(-1)
	for _, d := range []civilDate{today, yesterday} {
		entries, ok := idx.byDate[d]
		if !ok {
			continue
		}
		if info, ok := entries[routeShortName]; ok && info.contains(at) {
			copy := info
			return &copy, nil
		}
	}
	return nil, nil
}
