// Package dispatch implements the worker pool + dispatcher (4.8): N
// stateless workers run Guess/Update against a read-only snapshot of the
// live vehicle-state map, while a single dispatcher goroutine owns all
// mutation of that map and serialises commits in per-vehicle timestamp
// order. Modelled on the goroutine/channel/WaitGroup shape of the source's
// prediction aggregator, with the map-matching pipeline swapped in for the
// prediction pipeline.
package dispatch

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"github.com/transitwatch/transitwatch/business/data/gtfs"
	"github.com/transitwatch/transitwatch/business/data/vehiclecache"
	"github.com/transitwatch/transitwatch/business/engine/conflict"
	"github.com/transitwatch/transitwatch/business/engine/matching"
	"github.com/transitwatch/transitwatch/business/engine/transition"
)

// ArrivalSink receives every VehicleStopTime the dispatcher records an
// arrival for, the hook the Future estimator (4.10) subscribes on.
type ArrivalSink interface {
	Arrived(tripInstanceId int64, vst gtfs.VehicleStopTime)
}

// NullArrivalSink discards arrival events; used where no estimator is wired.
type NullArrivalSink struct{}

func (NullArrivalSink) Arrived(int64, gtfs.VehicleStopTime) {}

// CacheSink persists the durable current-vehicle snapshot a separate
// query-api process reads, since it has no access to the dispatcher's live
// maps. Mirrors ArrivalSink's shape so tests can swap in a no-op.
type CacheSink interface {
	Save(vc *vehiclecache.VehicleCache) error
	Delete(vehicleId int64) error
}

// NullCacheSink discards cache writes; used in tests that construct a
// Dispatcher without a real database.
type NullCacheSink struct{}

func (NullCacheSink) Save(*vehiclecache.VehicleCache) error { return nil }
func (NullCacheSink) Delete(int64) error                    { return nil }

// dbCacheSink is the production CacheSink, backed by the vehicle_cache table.
type dbCacheSink struct{ db *sqlx.DB }

func (s dbCacheSink) Save(vc *vehiclecache.VehicleCache) error { return vehiclecache.Upsert(s.db, vc) }
func (s dbCacheSink) Delete(vehicleId int64) error             { return vehiclecache.Delete(s.db, vehicleId) }

// job and result carry a requestId, a per-fix uuid assigned at Submit time so
// a failed inference or conflict resolution can be traced back to the single
// fix that caused it across the worker pool's channels.
type job struct {
	requestId string
	fix       gtfs.RawFix
	prior     *matching.VehicleState
}

type result struct {
	requestId string
	fix       gtfs.RawFix
	state     *matching.VehicleState
	err       error
}

// Dispatcher owns the live vehicle-state map and its trip-indexed inverse,
// the only long-lived mutable collections in the pipeline (9). Every method
// that touches those maps must be called from the same goroutine; Submit and
// EvictStale are the only intended callers.
type Dispatcher struct {
	engine  *matching.Engine
	db      *sqlx.DB
	arrival ArrivalSink
	cache   CacheSink
	log     zerolog.Logger

	jobs    chan job
	results chan result
	wg      sync.WaitGroup

	states   map[int64]*matching.VehicleState
	byTrip   map[string]int64
	inFlight map[int64]int

	processed []int64
}

// New builds a Dispatcher with workers stateless inference goroutines,
// already started. Close must be called to stop them.
func New(engine *matching.Engine, db *sqlx.DB, workers int, arrival ArrivalSink, logger zerolog.Logger) *Dispatcher {
	if arrival == nil {
		arrival = NullArrivalSink{}
	}
	d := &Dispatcher{
		engine:   engine,
		db:       db,
		arrival:  arrival,
		cache:    dbCacheSink{db},
		log:      logger,
		jobs:     make(chan job, workers*4),
		results:  make(chan result, workers*4),
		states:   make(map[int64]*matching.VehicleState),
		byTrip:   make(map[string]int64),
		inFlight: make(map[int64]int),
	}
	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.work()
	}
	return d
}

// Close stops accepting work, drains every in-flight result, and waits for
// workers to exit.
func (d *Dispatcher) Close() {
	close(d.jobs)
	d.wg.Wait()
	close(d.results)
	for r := range d.results {
		d.commit(r)
	}
}

// work is the stateless worker body (4.8): read a job, run Guess or Update
// against the prior snapshot handed to it at enqueue time, send the result.
// Workers perform reads only; they never touch d.states or d.byTrip.
func (d *Dispatcher) work() {
	defer d.wg.Done()
	for j := range d.jobs {
		var state *matching.VehicleState
		var err error
		if j.prior == nil || j.prior.Stale(j.fix.Timestamp, conflict.StaleOtherTTL) {
			state, err = matching.Guess(d.engine, j.fix, nil)
		} else {
			state, err = matching.Update(d.engine, j.prior, j.fix)
		}
		d.results <- result{requestId: j.requestId, fix: j.fix, state: state, err: err}
	}
}

// Submit enqueues fix for inference, applying the drain-before-enqueue rule
// (4.8): every result already available is committed first, then, if a fix
// for this same vehicle is still in flight, Submit blocks commiting results
// one at a time until it clears. This guarantees the prior snapshot handed
// to the worker for fix reflects every earlier fix for the same vehicle.
func (d *Dispatcher) Submit(fix gtfs.RawFix) {
	d.drainAvailable()
	for d.inFlight[fix.VehicleId] > 0 {
		d.commit(<-d.results)
	}
	prior := d.states[fix.VehicleId]
	d.inFlight[fix.VehicleId]++
	d.jobs <- job{requestId: uuid.NewString(), fix: fix, prior: prior}
}

// TakeProcessed returns and clears the set of raw-fix ids committed (matched
// or not) since the last call, for the caller to flag processed in batches.
func (d *Dispatcher) TakeProcessed() []int64 {
	ids := d.processed
	d.processed = nil
	return ids
}

// EvictStale drops every live state untouched for more than
// conflict.StaleOtherTTL as of now, per (5)'s eviction-on-poll-cycle rule.
func (d *Dispatcher) EvictStale(now time.Time) {
	for vehicleId, state := range d.states {
		if state.Stale(now, conflict.StaleOtherTTL) {
			delete(d.states, vehicleId)
			if state.Trip != nil && d.byTrip[state.Trip.TripId] == vehicleId {
				delete(d.byTrip, state.Trip.TripId)
			}
			if err := d.cache.Delete(vehicleId); err != nil {
				d.log.Error().Err(err).Int64("vehicle_id", vehicleId).Msg("evicting vehicle cache")
			}
		}
	}
}

// drainAvailable commits every result currently ready without blocking,
// sorted by fix timestamp so cross-vehicle commits within one drain cycle
// respect the weak ordering guarantee of (5).
func (d *Dispatcher) drainAvailable() {
	var batch []result
	for {
		select {
		case r := <-d.results:
			batch = append(batch, r)
		default:
			sort.Slice(batch, func(i, j int) bool {
				return batch[i].fix.Timestamp.Before(batch[j].fix.Timestamp)
			})
			for _, r := range batch {
				d.commit(r)
			}
			return
		}
	}
}

// commit runs the main coordinator (4.6, 4.7) for a single worker result:
// stop-transition detection, conflict resolution, persistence, and live
// state-map mutation. Always runs on the dispatcher's own goroutine.
func (d *Dispatcher) commit(r result) {
	d.inFlight[r.fix.VehicleId]--
	d.processed = append(d.processed, r.fix.Id)

	if r.err != nil {
		d.log.Error().Err(r.err).Str("request_id", r.requestId).Int64("vehicle_id", r.fix.VehicleId).Msg("inference error")
		return
	}
	if r.state == nil {
		return
	}

	res, err := conflict.Resolve(d.engine, occupantsView(d), r.state, nil)
	if err != nil {
		d.log.Error().Err(err).Str("request_id", r.requestId).Int64("vehicle_id", r.fix.VehicleId).Msg("conflict resolution error")
		return
	}
	if res.Winner == nil {
		return
	}

	d.applyWinner(d.states[res.Winner.VehicleId], res.Winner)
	for _, displaced := range res.Displaced {
		d.evictAndReguess(displaced, res.Winner.Trip.TripId)
	}
}

// evictAndReguess re-runs Guess for a vehicle that lost a conflict, excluding
// the trip it lost, and recurses through conflict.Resolve exactly as a fresh
// worker result would. Runs synchronously in the dispatcher goroutine: this
// path is rare (two vehicles contesting the same trip) and keeps the
// recursive exclusion chain of (4.7) in one place.
func (d *Dispatcher) evictAndReguess(vehicleId int64, lostTrip string) {
	old, ok := d.states[vehicleId]
	if !ok {
		return
	}
	delete(d.states, vehicleId)
	if d.byTrip[lostTrip] == vehicleId {
		delete(d.byTrip, lostTrip)
	}

	exclude := map[string]bool{lostTrip: true}
	reGuessed, err := matching.Guess(d.engine, old.LastFix, exclude)
	if err != nil {
		d.log.Error().Err(err).Int64("vehicle_id", vehicleId).Msg("re-guess error for displaced vehicle")
		return
	}
	if reGuessed == nil {
		return
	}

	res, err := conflict.Resolve(d.engine, occupantsView(d), reGuessed, exclude)
	if err != nil {
		d.log.Error().Err(err).Int64("vehicle_id", vehicleId).Msg("conflict resolution error for displaced vehicle")
		return
	}
	if res.Winner == nil {
		return
	}

	d.applyWinner(nil, res.Winner)
	for _, next := range res.Displaced {
		d.evictAndReguess(next, res.Winner.Trip.TripId)
	}
}

// applyWinner commits winner as vehicle winner.VehicleId's new live state:
// runs the stop-transition detector against old if it is the same trip's
// immediately preceding state, persists any resulting trip-instance and
// vehicle-stop-time rows, and installs winner into both live maps.
func (d *Dispatcher) applyWinner(old *matching.VehicleState, winner *matching.VehicleState) {
	var event transition.Event
	if sameTripContinuation(old, winner) {
		delta := winner.LastTimestamp.Sub(old.LastTimestamp)
		if delta > 0 && delta <= 5*time.Minute {
			event = transition.Detect(old, winner)
		}
	}

	if winner.TripInstance.Id == 0 {
		if err := gtfs.RecordTripInstance(d.db, winner.TripInstance); err != nil {
			d.log.Error().Err(err).Str("trip_id", winner.Trip.TripId).Msg("recording trip instance")
			return
		}
	}

	if event.Departed != nil {
		if err := gtfs.SetDeparture(d.db, event.Departed.VehicleStopTimeId, event.Departed.DepartureTime); err != nil {
			d.log.Error().Err(err).Int64("vehicle_stop_time_id", event.Departed.VehicleStopTimeId).Msg("stamping departure")
		}
	}
	if event.Arrived != nil {
		vst := event.Arrived.VehicleStopTime
		vst.TripInstanceId = winner.TripInstance.Id
		if err := gtfs.RecordVehicleStopTime(d.db, &vst); err != nil {
			d.log.Error().Err(err).Int64("trip_instance_id", vst.TripInstanceId).Int("stop_sequence", vst.StopSequence).
				Msg("recording vehicle-stop-time")
		} else {
			winner.CurrentStopTime = &vst
			d.arrival.Arrived(winner.TripInstance.Id, vst)
		}
	}

	d.states[winner.VehicleId] = winner
	d.byTrip[winner.Trip.TripId] = winner.VehicleId

	d.saveCache(winner)
}

// saveCache hands the winning state to the CacheSink in the shape the
// query-api reads.
func (d *Dispatcher) saveCache(winner *matching.VehicleState) {
	var nextStopId *string
	if winner.NextStopTime != nil {
		nextStopId = &winner.NextStopTime.StopId
	}
	vc := &vehiclecache.VehicleCache{
		VehicleId:      winner.VehicleId,
		DataSetId:      winner.Trip.DataSetId,
		RouteShortName: winner.LastFix.RouteShortName,
		TripId:         winner.Trip.TripId,
		TripInstanceId: winner.TripInstance.Id,
		NextStopId:     nextStopId,
		Lat:            winner.LastFix.Lat,
		Lon:            winner.LastFix.Lon,
		ShapeDistance:  winner.ShapeDistance,
		Timestamp:      winner.LastTimestamp,
	}
	if err := d.cache.Save(vc); err != nil {
		d.log.Error().Err(err).Int64("vehicle_id", winner.VehicleId).Msg("saving vehicle cache")
	}
}

// sameTripContinuation reports whether winner extends old's own trip binding
// (an Update or a successful re-projection), the only case in which
// comparing the two states for a stop-transition is meaningful.
func sameTripContinuation(old *matching.VehicleState, winner *matching.VehicleState) bool {
	return old != nil && old.Trip != nil && winner.Trip != nil && old.Trip.TripId == winner.Trip.TripId
}

// occupantsView adapts a Dispatcher to conflict.Occupants over its own live
// maps; only ever constructed and used inside the dispatcher goroutine.
type occupantsViewer struct{ d *Dispatcher }

func occupantsView(d *Dispatcher) occupantsViewer { return occupantsViewer{d} }

func (o occupantsViewer) Holder(tripId string) (*matching.VehicleState, bool) {
	vehicleId, ok := o.d.byTrip[tripId]
	if !ok {
		return nil, false
	}
	state, ok := o.d.states[vehicleId]
	return state, ok
}
