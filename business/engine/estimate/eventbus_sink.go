package estimate

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/transitwatch/transitwatch/business/data/gtfs"
	"github.com/transitwatch/transitwatch/foundation/eventbus"
)

// ArrivalSubject is the eventbus subject VehicleStopTime arrivals are
// published on, the same role the teacher's prediction aggregator gives a
// NATS subject between gtfs-monitor and gtfs-aggregator.
const ArrivalSubject = "transitwatch.arrivals"

// arrivalEvent is the wire shape of an ArrivalSubject message.
type arrivalEvent struct {
	TripInstanceId int64               `json:"trip_instance_id"`
	Vst            gtfs.VehicleStopTime `json:"vst"`
}

// EventBusArrivalSink implements dispatch.ArrivalSink by publishing to the
// bus instead of computing predictions inline, so the dispatcher's commit
// loop never blocks on a convolution and its DB round-trips.
type EventBusArrivalSink struct {
	Bus *eventbus.Bus
	Log zerolog.Logger
}

// Arrived implements dispatch.ArrivalSink.
func (s EventBusArrivalSink) Arrived(tripInstanceId int64, vst gtfs.VehicleStopTime) {
	ev := arrivalEvent{TripInstanceId: tripInstanceId, Vst: vst}
	if err := eventbus.Publish(s.Bus, ArrivalSubject, ev); err != nil {
		s.Log.Error().Err(err).Int64("trip_instance_id", tripInstanceId).Msg("publishing arrival event")
	}
}

// RunPredictionSubscriber drives sink off of ArrivalSubject messages until ctx
// is cancelled, the consumer side of EventBusArrivalSink. Runs in its own
// goroutine, one per app/vehicle-tracker process.
func RunPredictionSubscriber(ctx context.Context, bus *eventbus.Bus, sink PredictionSink) error {
	events, unsubscribe, err := eventbus.Subscribe[arrivalEvent](bus, ArrivalSubject, "prediction-workers", 256)
	if err != nil {
		return err
	}
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			sink.Arrived(ev.TripInstanceId, ev.Vst)
		}
	}
}
