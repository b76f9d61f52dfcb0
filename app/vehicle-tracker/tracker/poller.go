package tracker

import (
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"github.com/transitwatch/transitwatch/business/data/gtfs"
	"github.com/transitwatch/transitwatch/business/engine/dispatch"
	"github.com/transitwatch/transitwatch/foundation/httpclient"
)

// PollCadence is the fixed live-poller tick rate (5, 6).
const PollCadence = 5 * time.Second

// RunFetchVehicles runs the live poller indefinitely (6): on each tick, pull
// the raw fix feed, persist every valid fix, submit it to dispatcher for
// live inference, then sleep until the next tick deadline, subtracting
// however long the tick's own work took. Returns when shutdown fires.
func RunFetchVehicles(log zerolog.Logger, db *sqlx.DB, dispatcher *dispatch.Dispatcher, url string, shutdown <-chan os.Signal) {
	sleep := time.Duration(0)
	sleepChan := make(chan struct{})

	for {
		go func(d time.Duration) {
			time.Sleep(d)
			sleepChan <- struct{}{}
		}(sleep)

		select {
		case <-shutdown:
			log.Info().Msg("fetch-vehicles: shutting down")
			return
		case <-sleepChan:
		}

		start := time.Now()
		sleep = PollCadence

		fixes, err := httpclient.FetchJSON[[]rawFixInput](url)
		if err != nil {
			log.Error().Err(err).Msg("fetching vehicle positions")
			continue
		}

		processed := ingestTick(log, db, dispatcher, fixes)
		log.Info().Int("fixes", len(fixes)).Int("processed", processed).Msg("fetch-vehicles tick")

		dispatcher.EvictStale(start)
		flushProcessed(log, db, dispatcher)

		if took := time.Since(start); took < PollCadence {
			sleep = PollCadence - took
		} else {
			sleep = 0
		}
	}
}

// ingestTick persists and submits every valid fix from a single poll, the
// per-tick body of RunFetchVehicles.
func ingestTick(log zerolog.Logger, db *sqlx.DB, dispatcher *dispatch.Dispatcher, fixes []rawFixInput) int {
	count := 0
	for _, input := range fixes {
		fix := input.toRawFix()
		if !fix.Valid() {
			continue
		}
		record := fix
		if err := gtfs.RecordRawFix(db, &record); err != nil {
			log.Error().Err(err).Int64("vehicle_id", fix.VehicleId).Msg("recording raw fix")
			continue
		}
		dispatcher.Submit(record)
		count++
	}
	return count
}

// flushProcessed marks every fix the dispatcher has finished committing
// since the last flush, so a crash between ticks leaves only genuinely
// unprocessed fixes for process-raw-data to pick up.
func flushProcessed(log zerolog.Logger, db *sqlx.DB, dispatcher *dispatch.Dispatcher) {
	ids := dispatcher.TakeProcessed()
	if len(ids) == 0 {
		return
	}
	if err := gtfs.MarkProcessed(db, ids); err != nil {
		log.Error().Err(err).Int("count", len(ids)).Msg("marking raw fixes processed")
	}
}
