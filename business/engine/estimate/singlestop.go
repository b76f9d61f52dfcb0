package estimate

// SingleStop convolves per-hop empirical distributions stop by stop (4.10):
// the distribution at Sk is built from the distribution at S(k-1) convolved
// with hop k's empirical duration samples, so uncertainty compounds forward
// along the trip.
type SingleStop struct {
	// RoundSeconds is the rounding granularity applied to each hop's
	// resulting arrival estimate; defaults to DefaultRoundSeconds.
	RoundSeconds int
	// WaitForDeparture models vehicles holding at layover stops: if the
	// current estimated arrival at a stop is more than a minute ahead of
	// that stop's scheduled arrival, it is clamped to one minute before the
	// scheduled time before the next hop's duration is added.
	WaitForDeparture bool
}

const waitForDepartureSlackSeconds = 60

// Estimate implements the SingleStop strategy of 4.10.
func (s SingleStop) Estimate(source HopSource, trigger Trigger, downstream []StopPoint) (map[int]Distribution, error) {
	round := s.RoundSeconds
	if round <= 0 {
		round = DefaultRoundSeconds
	}
	if len(downstream) == 0 {
		return map[int]Distribution{}, nil
	}
	hour := hourOfDay(trigger.ServiceDateMidnightUnix, trigger.ArrivalUnix)

	current := Distribution{trigger.ArrivalUnix: 1}
	prevStopId := trigger.StopId
	prevScheduledSeconds := trigger.ArrivalSeconds
	prevScheduledUnix := trigger.ServiceDateMidnightUnix + int64(trigger.ArrivalSeconds)

	result := make(map[int]Distribution, len(downstream))
	for _, stop := range downstream {
		samples, err := source.Hop(prevStopId, stop.StopId, hour)
		if err != nil {
			return nil, err
		}
		scheduledDuration := float64(stop.ArrivalSeconds - prevScheduledSeconds)
		augmented := append(append([]HopSample{}, samples...), HopSample{DurationSeconds: scheduledDuration, Count: 1})

		next := make(Distribution)
		for arrival, weight := range current {
			base := float64(arrival)
			if s.WaitForDeparture {
				if float64(prevScheduledUnix)-base > waitForDepartureSlackSeconds {
					base = float64(prevScheduledUnix) - waitForDepartureSlackSeconds
				}
			}
			for _, hop := range augmented {
				if hop.Count <= 0 {
					continue
				}
				bucket := roundUnix(base+hop.DurationSeconds, round)
				next[bucket] += weight * float64(hop.Count)
			}
		}

		result[stop.StopSequence] = next
		current = next
		prevStopId = stop.StopId
		prevScheduledSeconds = stop.ArrivalSeconds
		prevScheduledUnix = trigger.ServiceDateMidnightUnix + int64(stop.ArrivalSeconds)
	}
	return result, nil
}

func hourOfDay(midnightUnix, atUnix int64) int {
	offset := atUnix - midnightUnix
	if offset < 0 {
		offset += 86400
	}
	return int((offset / 3600) % 24)
}
