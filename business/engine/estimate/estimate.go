// Package estimate implements the Future estimator (4.10): given a single
// stop-arrival event, it convolves binned historical travel-time
// distributions forward along the remaining stops of the trip to produce a
// per-stop probability mass function over arrival minutes.
package estimate

import (
	"math"
)

// ProbabilityThreshold is the minimum surviving probability a bucket must
// carry after minute-collapse and normalisation to be kept (4.10, 6).
const ProbabilityThreshold = 0.05

// DefaultRoundSeconds is the production rounding granularity used when a
// strategy is not given an explicit override.
const DefaultRoundSeconds = 20

// HopSample is a single contributor to a hop's empirical duration
// distribution: either an observed AverageTravelTime bin (Count from the
// historical sample count) or the synthetic schedule sample (Count == 1).
type HopSample struct {
	DurationSeconds float64
	Count           int
}

// HopSource supplies the empirical distribution for a single hop at a given
// hour-of-day, D(A,B,h) in 4.10. Implemented over business/data/traveltime.
type HopSource interface {
	Hop(fromStopId, toStopId string, hour int) ([]HopSample, error)
}

// Distribution maps a rounded arrival instant (Unix seconds) to accumulated
// weight. Not yet minute-collapsed or normalised; Finalize does that.
type Distribution map[int64]float64

// roundUnix rounds v (a Unix-seconds instant, possibly fractional) to the
// nearest multiple of unitSeconds.
func roundUnix(v float64, unitSeconds int) int64 {
	if unitSeconds <= 0 {
		unitSeconds = 1
	}
	u := float64(unitSeconds)
	return int64(math.Round(v/u) * u)
}

// Finalize collapses a raw Distribution to per-minute buckets, normalises to
// probabilities, and keeps only entries at or above ProbabilityThreshold
// (4.10). Returns nil if dist carries no weight at all.
func Finalize(dist Distribution) Distribution {
	if len(dist) == 0 {
		return nil
	}

	collapsed := make(Distribution)
	var total float64
	for at, weight := range dist {
		minute := (at / 60) * 60
		collapsed[minute] += weight
		total += weight
	}
	if total <= 0 {
		return nil
	}

	out := make(Distribution)
	for minute, weight := range collapsed {
		p := weight / total
		if p >= ProbabilityThreshold {
			out[minute] = p
		}
	}
	return out
}

// Strategy is the Future estimator's tagged-variant interface (9): given the
// triggering arrival, the stop it arrived at, and the downstream stops still
// ahead on the trip, produce a raw Distribution per downstream stop, keyed
// by that stop's stop-sequence.
type Strategy interface {
	Estimate(source HopSource, trigger Trigger, downstream []StopPoint) (map[int]Distribution, error)
}

// StopPoint is the minimal per-stop information a strategy needs: its
// identity, its position on the trip, and its scheduled arrival offset
// (seconds since the service date's midnight).
type StopPoint struct {
	StopSequence   int
	StopId         string
	ArrivalSeconds int
}

// Trigger is the single VehicleStopTime arrival event (4.10's input) that
// starts a convolution: t0 at stop S0.
type Trigger struct {
	ArrivalUnix    int64
	StopId         string
	ArrivalSeconds int
	ServiceDateMidnightUnix int64
}
