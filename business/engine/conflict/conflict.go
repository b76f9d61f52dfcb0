// Package conflict enforces the invariant that at most one vehicle is bound
// to any given trip (4.7): when two vehicles' commits contest the same
// trip-id, the one with the smaller absolute delay keeps it and the other is
// invalidated and re-guessed excluding the contested trip.
package conflict

import (
	"time"

	"github.com/transitwatch/transitwatch/business/engine/matching"
)

// StaleOtherTTL is how old another vehicle's binding to the contested trip
// must be before it is treated as abandoned rather than a live contest.
const StaleOtherTTL = 5 * time.Minute

// Occupants looks up which vehicle, if any, currently holds tripId in the
// live state map. Implemented by the dispatcher's authoritative state.
type Occupants interface {
	Holder(tripId string) (*matching.VehicleState, bool)
}

// Resolution is the outcome of resolving candidate for vehicleId: either a
// winning state for that vehicle (possibly re-guessed onto a different trip
// after losing one or more contests), or nil if every re-guess attempt was
// exhausted without finding an uncontested trip. Displaced lists vehicle ids
// whose existing trip binding was taken by this resolution and which the
// dispatcher must separately re-resolve from their own last fix.
type Resolution struct {
	Winner    *matching.VehicleState
	Displaced []int64
}

// Resolve applies the conflict rule to candidate, recursing through
// re-guesses (with a growing per-vehicle exclusion set) until candidate's
// vehicle either wins an uncontested trip or runs out of candidates.
func Resolve(e *matching.Engine, occupants Occupants, candidate *matching.VehicleState, exclude map[string]bool) (Resolution, error) {
	if candidate == nil {
		return Resolution{}, nil
	}

	other, contested := occupants.Holder(candidate.Trip.TripId)
	if !contested || other.VehicleId == candidate.VehicleId {
		return Resolution{Winner: candidate}, nil
	}

	if absDuration(candidate.LastTimestamp.Sub(other.LastTimestamp)) > StaleOtherTTL {
		return Resolution{Winner: candidate, Displaced: []int64{other.VehicleId}}, nil
	}

	if abs(matching.Delay(candidate)) < abs(matching.Delay(other)) {
		return Resolution{Winner: candidate, Displaced: []int64{other.VehicleId}}, nil
	}

	newExclude := withExcluded(exclude, candidate.Trip.TripId)
	reGuessed, err := matching.Guess(e, candidate.LastFix, newExclude)
	if err != nil {
		return Resolution{}, err
	}
	if reGuessed == nil {
		return Resolution{}, nil
	}
	return Resolve(e, occupants, reGuessed, newExclude)
}

func withExcluded(exclude map[string]bool, tripId string) map[string]bool {
	next := make(map[string]bool, len(exclude)+1)
	for k, v := range exclude {
		next[k] = v
	}
	next[tripId] = true
	return next
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
