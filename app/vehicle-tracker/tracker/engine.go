package tracker

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"github.com/transitwatch/transitwatch/business/data/gtfs"
	"github.com/transitwatch/transitwatch/business/data/schedule"
	"github.com/transitwatch/transitwatch/business/engine/dispatch"
	"github.com/transitwatch/transitwatch/business/engine/estimate"
	"github.com/transitwatch/transitwatch/business/engine/matching"
	"github.com/transitwatch/transitwatch/foundation/eventbus"
)

// PredictionSink builds the convolution sink used to turn an arrival into
// fresh downstream predictions, shared by the synchronous batch dispatcher
// and the live dispatcher's eventbus-driven subscriber. bus may be nil, in
// which case fresh predictions are persisted but no TripUpdate is published.
func PredictionSink(log zerolog.Logger, db *sqlx.DB, bus *eventbus.Bus) estimate.PredictionSink {
	return estimate.PredictionSink{
		DB:       db,
		Source:   estimate.DBHopSource{DB: db},
		Strategy: estimate.SingleStop{RoundSeconds: estimate.DefaultRoundSeconds, WaitForDeparture: true},
		Log:      log,
		Bus:      bus,
	}
}

// NewLiveDispatcher builds a Dispatcher against the latest loaded GTFS data
// set using the interactive, ±2-day sliding schedule index (4.2) appropriate
// for a poller whose fixes always arrive near "now". Arrivals are published
// onto bus rather than predicted inline, so RunFetchVehicles's commit loop
// never blocks on a convolution; the caller must also run
// estimate.RunPredictionSubscriber against the same bus to actually produce
// predictions.
func NewLiveDispatcher(log zerolog.Logger, db *sqlx.DB, bus *eventbus.Bus, workers int, now time.Time) (*dispatch.Dispatcher, error) {
	ds, err := gtfs.GetLatestDataSet(db)
	if err != nil {
		return nil, fmt.Errorf("loading latest data set: %w", err)
	}
	index, err := schedule.NewInteractive(db, ds.Id, now)
	if err != nil {
		return nil, fmt.Errorf("building schedule index: %w", err)
	}
	engine := &matching.Engine{DB: db, DataSetId: ds.Id, ScheduleIndex: index}
	sink := estimate.EventBusArrivalSink{Bus: bus, Log: log}
	return dispatch.New(engine, db, workers, sink, log), nil
}

// NewBatchDispatcher builds a Dispatcher against the latest loaded GTFS data
// set using a fixed schedule index spanning [start, end] -- the window
// process-raw-data is about to replay, which may be far from "now" and so
// cannot rely on the interactive index's sliding window. Predictions run
// inline on the commit goroutine since a one-shot batch job must finish
// producing them before the process exits.
func NewBatchDispatcher(log zerolog.Logger, db *sqlx.DB, workers int, start, end time.Time) (*dispatch.Dispatcher, error) {
	ds, err := gtfs.GetLatestDataSet(db)
	if err != nil {
		return nil, fmt.Errorf("loading latest data set: %w", err)
	}
	index, err := schedule.NewBatch(db, ds.Id, start, end)
	if err != nil {
		return nil, fmt.Errorf("building schedule index: %w", err)
	}
	engine := &matching.Engine{DB: db, DataSetId: ds.Id, ScheduleIndex: index}
	return dispatch.New(engine, db, workers, PredictionSink(log, db, nil), log), nil
}
