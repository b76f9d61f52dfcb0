package traveltime

import (
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/transitwatch/transitwatch/business/data/gtfs"
)

// Rebuild implements the Past aggregator batch job (4.9) end to end: clears
// the derived tables, re-derives TravelTime samples for every trip-instance
// touching the window, bins them into AverageTravelTime, and persists both
// inside a single transaction.
func Rebuild(db *sqlx.DB, after, before time.Time, horizon int) (samples int, bins int, err error) {
	return rebuild(db, after, before, horizon, nil)
}

// RebuildExcludingHolidays is Rebuild with every stop arrival that falls on a
// holiday observed by holidays dropped first, so no sample starts or ends on
// a holiday and a holiday's reduced/Sunday-equivalent service doesn't skew a
// typical weekday's averages. holidays must not be nil.
func RebuildExcludingHolidays(db *sqlx.DB, after, before time.Time, horizon int, holidays *HolidayCalendar) (samples int, bins int, err error) {
	return rebuild(db, after, before, horizon, holidays)
}

func rebuild(db *sqlx.DB, after, before time.Time, horizon int, holidays *HolidayCalendar) (samples int, bins int, err error) {
	tripInstanceIds, err := tripInstancesTouchingWindow(db, after, before)
	if err != nil {
		return 0, 0, err
	}

	var instances []TripInstanceStops
	for _, id := range tripInstanceIds {
		stops, err := gtfs.GetVehicleStopTimesForTripInstance(db, id)
		if err != nil {
			return 0, 0, fmt.Errorf("loading stops for trip instance %d: %w", id, err)
		}
		instances = append(instances, TripInstanceStops{TripInstanceId: id, Stops: stops})
	}

	if holidays != nil {
		instances = excludeHolidayArrivals(instances, holidays)
	}

	travelTimes := BuildSamples(instances, after, before, horizon)
	averages := BuildAverages(travelTimes, BinWidthSeconds)

	tx, err := db.Beginx()
	if err != nil {
		return 0, 0, fmt.Errorf("beginning travel time rebuild transaction: %w", err)
	}
	if err := ClearTravelTimes(tx); err != nil {
		_ = tx.Rollback()
		return 0, 0, err
	}
	if err := RecordTravelTimes(tx, travelTimes); err != nil {
		_ = tx.Rollback()
		return 0, 0, err
	}
	if err := RecordAverageTravelTimes(tx, averages); err != nil {
		_ = tx.Rollback()
		return 0, 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("committing travel time rebuild: %w", err)
	}

	return len(travelTimes), len(averages), nil
}

// tripInstancesTouchingWindow finds every distinct trip-instance with at
// least one arrival in [after, before), the set BuildSamples needs the full
// stop list for.
func tripInstancesTouchingWindow(db *sqlx.DB, after, before time.Time) ([]int64, error) {
	vsts, err := gtfs.GetVehicleStopTimesInWindow(db, after, before)
	if err != nil {
		return nil, err
	}
	seen := make(map[int64]bool)
	var ids []int64
	for _, v := range vsts {
		if !seen[v.TripInstanceId] {
			seen[v.TripInstanceId] = true
			ids = append(ids, v.TripInstanceId)
		}
	}
	return ids, nil
}

// excludeHolidayArrivals drops every stop whose ArrivalTime falls on a
// holiday observed by holidays, leaving the remaining stops' sequence numbers
// untouched so BuildSamples still measures real elapsed travel time between
// whatever stops survive.
func excludeHolidayArrivals(instances []TripInstanceStops, holidays *HolidayCalendar) []TripInstanceStops {
	filtered := make([]TripInstanceStops, 0, len(instances))
	for _, inst := range instances {
		stops := make([]*gtfs.VehicleStopTime, 0, len(inst.Stops))
		for _, s := range inst.Stops {
			if s.ArrivalTime != nil && holidays.IsHoliday(*s.ArrivalTime) {
				continue
			}
			stops = append(stops, s)
		}
		filtered = append(filtered, TripInstanceStops{TripInstanceId: inst.TripInstanceId, Stops: stops})
	}
	return filtered
}

// BuildSamples implements the TravelTime rebuild rule of 4.9: for every
// trip-instance's ordered stops, emit a sample for every pair (vst1, vst2)
// with stop_sequence1 < stop_sequence2, optionally bounded to at most
// horizon hops apart (horizon == UnlimitedHorizon means no bound), both
// arrivals present, and vst1's arrival falling in [after, before). Negative
// durations are discarded. Pure: exercised directly in tests without a
// database.
func BuildSamples(instances []TripInstanceStops, after, before time.Time, horizon int) []*TravelTime {
	var samples []*TravelTime
	for _, inst := range instances {
		stops := inst.Stops
		for i := 0; i < len(stops); i++ {
			from := stops[i]
			if from.ArrivalTime == nil {
				continue
			}
			if from.ArrivalTime.Before(after) || !from.ArrivalTime.Before(before) {
				continue
			}
			for j := i + 1; j < len(stops); j++ {
				to := stops[j]
				if horizon != UnlimitedHorizon && to.StopSequence-from.StopSequence > horizon {
					break
				}
				if to.ArrivalTime == nil {
					continue
				}
				duration := int(to.ArrivalTime.Sub(*from.ArrivalTime).Seconds())
				if duration < 0 {
					continue
				}
				samples = append(samples, &TravelTime{
					FromVstId:       from.Id,
					ToVstId:         to.Id,
					FromStopId:      from.StopId,
					ToStopId:        to.StopId,
					DurationSeconds: duration,
					FromArrivalHour: from.ArrivalTime.Hour(),
				})
			}
		}
	}
	return samples
}

// BuildAverages implements the AverageTravelTime rebuild rule of 4.9: group
// samples by (from-stop, to-stop, hour-of-day, bin) where bin is the sample's
// duration offset from the minimum non-negative duration observed for that
// (from-stop, to-stop) pair across the whole window, divided by binWidth.
// Pure: exercised directly in tests without a database.
func BuildAverages(samples []*TravelTime, binWidth int) []*AverageTravelTime {
	minForPair := make(map[pairKey]int)
	for _, s := range samples {
		key := pairKey{s.FromStopId, s.ToStopId}
		if cur, ok := minForPair[key]; !ok || s.DurationSeconds < cur {
			minForPair[key] = s.DurationSeconds
		}
	}

	type bucketKey struct {
		pairKey
		hour int
		bin  int
	}
	sums := make(map[bucketKey]int)
	counts := make(map[bucketKey]int)
	var order []bucketKey

	for _, s := range samples {
		key := pairKey{s.FromStopId, s.ToStopId}
		min := minForPair[key]
		bin := (s.DurationSeconds - min) / binWidth
		bk := bucketKey{pairKey: key, hour: s.FromArrivalHour, bin: bin}
		if counts[bk] == 0 {
			order = append(order, bk)
		}
		sums[bk] += s.DurationSeconds
		counts[bk]++
	}

	sort.Slice(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if a.from != b.from {
			return a.from < b.from
		}
		if a.to != b.to {
			return a.to < b.to
		}
		if a.hour != b.hour {
			return a.hour < b.hour
		}
		return a.bin < b.bin
	})

	averages := make([]*AverageTravelTime, 0, len(order))
	for _, bk := range order {
		count := counts[bk]
		averages = append(averages, &AverageTravelTime{
			FromStopId:          bk.from,
			ToStopId:            bk.to,
			HourOfDay:           bk.hour,
			BinIndex:            bk.bin,
			MeanDurationSeconds: float64(sums[bk]) / float64(count),
			SampleCount:         count,
		})
	}
	return averages
}
