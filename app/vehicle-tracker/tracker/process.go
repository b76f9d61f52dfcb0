package tracker

import (
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"github.com/transitwatch/transitwatch/business/data/gtfs"
)

// BatchSize is the backlog chunk process-raw-data replays at a time (6).
const BatchSize = 5000

// RunProcessRawData replays every unprocessed raw fix, in timestamp order,
// building a schedule index sized to the full backlog window up front (a
// live ±2-day interactive index would miss trips if the backlog is older
// than that) and a single Dispatcher kept across every batch so per-vehicle
// commit ordering (5) holds over the whole backlog, not just within one
// batch. Returns (0, nil) with no work done if there is no backlog.
func RunProcessRawData(log zerolog.Logger, db *sqlx.DB, workers int) (int, error) {
	start, end, ok, err := gtfs.UnprocessedRawFixWindow(db)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}

	dispatcher, err := NewBatchDispatcher(log, db, workers, start, end)
	if err != nil {
		return 0, err
	}
	defer dispatcher.Close()

	total := 0
	for {
		fixes, err := gtfs.GetUnprocessedRawFixes(db, BatchSize)
		if err != nil {
			return total, err
		}
		if len(fixes) == 0 {
			break
		}

		for _, fix := range fixes {
			dispatcher.Submit(*fix)
		}

		ids := dispatcher.TakeProcessed()
		if err := gtfs.MarkProcessed(db, ids); err != nil {
			return total, err
		}
		total += len(fixes)
		log.Info().Int("batch", len(fixes)).Int("total", total).Msg("process-raw-data batch committed")

		if len(fixes) < BatchSize {
			break
		}
	}
	return total, nil
}
