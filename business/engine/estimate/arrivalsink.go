package estimate

import (
	"fmt"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"github.com/transitwatch/transitwatch/business/data/gtfs"
	"github.com/transitwatch/transitwatch/business/data/prediction"
	"github.com/transitwatch/transitwatch/business/data/vehiclecache"
	"github.com/transitwatch/transitwatch/foundation/eventbus"
)

// TripUpdateSubject is the eventbus subject each refreshed trip-instance's
// single-point predictions are published on, consumed by the GTFS-realtime
// feed publisher in app/vehicle-tracker/tripfeed.
const TripUpdateSubject = "transitwatch.trip_updates"

// PredictionSink implements dispatch.ArrivalSink: every time the dispatcher
// records an arrival, it walks the trip's remaining scheduled stops, runs the
// configured Strategy over the historical hop distributions, and replaces the
// trip-instance's persisted predictions wholesale (4.10). If Bus is set, it
// also publishes the mode of each fresh distribution as a GTFS-realtime
// TripUpdate for app/vehicle-tracker/tripfeed to pick up.
type PredictionSink struct {
	DB       *sqlx.DB
	Source   HopSource
	Strategy Strategy
	Log      zerolog.Logger
	Bus      *eventbus.Bus
}

// Arrived implements dispatch.ArrivalSink.
func (p PredictionSink) Arrived(tripInstanceId int64, vst gtfs.VehicleStopTime) {
	if vst.ArrivalTime == nil {
		return
	}
	if err := p.predict(tripInstanceId, vst); err != nil {
		p.Log.Error().Err(err).Int64("trip_instance_id", tripInstanceId).
			Int("stop_sequence", vst.StopSequence).Msg("failed to produce predictions for arrival")
	}
}

func (p PredictionSink) predict(tripInstanceId int64, vst gtfs.VehicleStopTime) error {
	ti, err := gtfs.GetTripInstance(p.DB, tripInstanceId)
	if err != nil {
		return fmt.Errorf("loading trip instance %d: %w", tripInstanceId, err)
	}
	scheduled, err := gtfs.GetStopTimesForTrip(p.DB, ti.DataSetId, ti.TripId)
	if err != nil {
		return fmt.Errorf("loading scheduled stops for trip %s: %w", ti.TripId, err)
	}

	var trigger *gtfs.StopTime
	var downstream []gtfs.StopTime
	for _, st := range scheduled {
		if st.StopSequence == vst.StopSequence {
			trigger = st
			continue
		}
		if st.StopSequence > vst.StopSequence {
			downstream = append(downstream, *st)
		}
	}
	if trigger == nil || len(downstream) == 0 {
		return nil
	}

	midnight := gtfs.Get12AmTime(*vst.ArrivalTime)
	tg := Trigger{
		ArrivalUnix:             vst.ArrivalTime.Unix(),
		StopId:                  vst.StopId,
		ArrivalSeconds:          trigger.ArrivalSeconds,
		ServiceDateMidnightUnix: midnight.Unix(),
	}
	points := make([]StopPoint, 0, len(downstream))
	for _, st := range downstream {
		points = append(points, StopPoint{StopSequence: st.StopSequence, StopId: st.StopId, ArrivalSeconds: st.ArrivalSeconds})
	}

	raw, err := p.Strategy.Estimate(p.Source, tg, points)
	if err != nil {
		return fmt.Errorf("estimating arrivals for trip instance %d: %w", tripInstanceId, err)
	}

	stops := make([]*prediction.StopPrediction, 0, len(downstream))
	times := make(map[int][]*prediction.StopTimePrediction, len(downstream))
	var stopTimeUpdates []gtfs.StopTimeUpdate
	for _, st := range downstream {
		final := Finalize(raw[st.StopSequence])
		if final == nil {
			continue
		}
		idx := len(stops)
		stops = append(stops, &prediction.StopPrediction{
			TripInstanceId: tripInstanceId,
			StopSequence:   st.StopSequence,
			StopId:         st.StopId,
			MadeAtVstId:    vst.Id,
			MadeAt:         *vst.ArrivalTime,
		})
		bucketed := make([]*prediction.StopTimePrediction, 0, len(final))
		for minute, prob := range final {
			bucketed = append(bucketed, &prediction.StopTimePrediction{
				MinuteBucket: time.Unix(minute, 0).UTC(),
				Probability:  prob,
			})
		}
		times[idx] = bucketed

		if mode, ok := prediction.Mode(bucketed); ok {
			scheduled := midnight.Add(time.Duration(st.ArrivalSeconds) * time.Second)
			stopTimeUpdates = append(stopTimeUpdates, gtfs.StopTimeUpdate{
				StopSequence: st.StopSequence,
				StopId:       st.StopId,
				ArrivalTime:  mode,
				ArrivalDelay: int(mode.Sub(scheduled).Seconds()),
			})
		}
	}
	if len(stops) == 0 {
		return nil
	}

	if err := prediction.ReplaceForTripInstance(p.DB, tripInstanceId, stops, times); err != nil {
		return err
	}

	p.publishTripUpdate(ti, vst, stopTimeUpdates)
	return nil
}

// publishTripUpdate resolves the vehicle and route occupying ti and
// publishes a gtfs.TripUpdate built from updates, logging (never failing the
// caller) on any lookup or publish error. No-op if Bus is unset or updates
// is empty.
func (p PredictionSink) publishTripUpdate(ti *gtfs.TripInstance, vst gtfs.VehicleStopTime, updates []gtfs.StopTimeUpdate) {
	if p.Bus == nil || len(updates) == 0 {
		return
	}
	vc, err := vehiclecache.GetByTripInstanceId(p.DB, ti.Id)
	if err != nil {
		p.Log.Error().Err(err).Int64("trip_instance_id", ti.Id).Msg("loading vehicle cache for trip update publish")
		return
	}
	if vc == nil {
		return
	}
	trip, err := gtfs.GetTrip(p.DB, ti.DataSetId, ti.TripId)
	if err != nil {
		p.Log.Error().Err(err).Str("trip_id", ti.TripId).Msg("loading trip for trip update publish")
		return
	}
	tu := gtfs.TripUpdate{
		TripId:          ti.TripId,
		RouteId:         trip.RouteId,
		VehicleId:       strconv.FormatInt(vc.VehicleId, 10),
		Timestamp:       uint64(vst.ArrivalTime.Unix()),
		StopTimeUpdates: updates,
	}
	if err := eventbus.Publish(p.Bus, TripUpdateSubject, tu); err != nil {
		p.Log.Error().Err(err).Str("trip_id", ti.TripId).Msg("publishing trip update")
	}
}
