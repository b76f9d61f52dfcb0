package estimate

import (
	"github.com/jmoiron/sqlx"

	"github.com/transitwatch/transitwatch/business/data/traveltime"
)

// DBHopSource adapts business/data/traveltime's AverageTravelTime rows to the
// HopSource interface, backing the production Strategy implementations.
type DBHopSource struct {
	DB *sqlx.DB
}

// Hop implements HopSource over GetAverageTravelTimes, converting each bin's
// mean duration and sample count into a HopSample.
func (s DBHopSource) Hop(fromStopId, toStopId string, hour int) ([]HopSample, error) {
	rows, err := traveltime.GetAverageTravelTimes(s.DB, fromStopId, toStopId, hour)
	if err != nil {
		return nil, err
	}
	samples := make([]HopSample, 0, len(rows))
	for _, r := range rows {
		samples = append(samples, HopSample{DurationSeconds: r.MeanDurationSeconds, Count: r.SampleCount})
	}
	return samples, nil
}
