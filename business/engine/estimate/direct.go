package estimate

// Direct builds each downstream stop's distribution from a single
// S0->Sk hop, with no convolution through intermediate stops (4.10). The
// backing AverageTravelTime rows must have been computed with an unlimited
// hop horizon for this to be meaningful.
type Direct struct {
	RoundSeconds int
}

// Estimate implements the Direct strategy of 4.10.
func (d Direct) Estimate(source HopSource, trigger Trigger, downstream []StopPoint) (map[int]Distribution, error) {
	round := d.RoundSeconds
	if round <= 0 {
		round = DefaultRoundSeconds
	}
	hour := hourOfDay(trigger.ServiceDateMidnightUnix, trigger.ArrivalUnix)

	result := make(map[int]Distribution, len(downstream))
	for _, stop := range downstream {
		samples, err := source.Hop(trigger.StopId, stop.StopId, hour)
		if err != nil {
			return nil, err
		}
		scheduledDuration := float64(stop.ArrivalSeconds - trigger.ArrivalSeconds)
		augmented := append(append([]HopSample{}, samples...), HopSample{DurationSeconds: scheduledDuration, Count: 1})

		dist := make(Distribution)
		for _, hop := range augmented {
			if hop.Count <= 0 {
				continue
			}
			bucket := roundUnix(float64(trigger.ArrivalUnix)+hop.DurationSeconds, round)
			dist[bucket] += float64(hop.Count)
		}
		result[stop.StopSequence] = dist
	}
	return result, nil
}
