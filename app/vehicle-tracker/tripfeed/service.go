package tripfeed

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"google.golang.org/protobuf/proto"

	gtfsrt "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"

	"github.com/transitwatch/transitwatch/business/data/gtfs"
	"github.com/transitwatch/transitwatch/business/engine/estimate"
	"github.com/transitwatch/transitwatch/foundation/eventbus"
)

const expireAfter = 5 * time.Minute

// Service holds the in-memory TripUpdate collection and serves it both as a
// GTFS-realtime protobuf feed and as JSON.
type Service struct {
	updates *collection
	log     zerolog.Logger
}

// New builds a Service; call Run to start consuming the bus and
// Router to expose it over HTTP.
func New(log zerolog.Logger) *Service {
	return &Service{updates: newCollection(expireAfter), log: log}
}

// Router returns the chi router serving the feed.
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/gtfs-rt/trip-updates", s.serveProtobuf)
	r.Get("/gtfs-rt/trip-updates.json", s.serveJSON)
	return r
}

// Run subscribes to estimate.TripUpdateSubject and runs the expiry loop
// until ctx is cancelled.
func (s *Service) Run(ctx context.Context, bus *eventbus.Bus) error {
	incoming, unsubscribe, err := eventbus.Subscribe[gtfs.TripUpdate](bus, estimate.TripUpdateSubject, "tripfeed", 256)
	if err != nil {
		return err
	}
	defer unsubscribe()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case tu, ok := <-incoming:
			if !ok {
				return nil
			}
			s.updates.add(tu)
		case now := <-ticker.C:
			removed, remaining := s.updates.expire(now)
			if removed > 0 {
				s.log.Info().Int("removed", removed).Int("remaining", remaining).Msg("expired trip updates")
			}
		}
	}
}

func (s *Service) serveJSON(w http.ResponseWriter, r *http.Request) {
	updates := s.updates.current(time.Now())
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{
		"timestamp":    time.Now().Unix(),
		"trip_updates": updates,
	}); err != nil {
		s.log.Error().Err(err).Msg("writing json trip update feed")
	}
}

func (s *Service) serveProtobuf(w http.ResponseWriter, r *http.Request) {
	feed := s.buildFeedMessage(time.Now())
	data, err := proto.Marshal(feed)
	if err != nil {
		s.log.Error().Err(err).Msg("marshalling gtfs-realtime feed")
		http.Error(w, "error serving request", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/x-protobuf")
	if _, err := w.Write(data); err != nil {
		s.log.Error().Err(err).Msg("writing gtfs-realtime feed")
	}
}

func (s *Service) buildFeedMessage(now time.Time) *gtfsrt.FeedMessage {
	version := "2.0"
	incrementality := gtfsrt.FeedHeader_FULL_DATASET
	timestamp := uint64(now.Unix())

	feed := &gtfsrt.FeedMessage{
		Header: &gtfsrt.FeedHeader{
			GtfsRealtimeVersion: &version,
			Incrementality:      &incrementality,
			Timestamp:           &timestamp,
		},
	}
	for _, tu := range s.updates.current(now) {
		feed.Entity = append(feed.Entity, toFeedEntity(tu))
	}
	return feed
}

func toFeedEntity(tu *gtfs.TripUpdate) *gtfsrt.FeedEntity {
	scheduled := gtfsrt.TripDescriptor_SCHEDULED
	tripId := tu.TripId
	routeId := tu.RouteId
	vehicleId := tu.VehicleId
	timestamp := tu.Timestamp

	entity := &gtfsrt.FeedEntity{
		Id: &tripId,
		TripUpdate: &gtfsrt.TripUpdate{
			Trip: &gtfsrt.TripDescriptor{
				TripId:               &tripId,
				RouteId:              &routeId,
				ScheduleRelationship: &scheduled,
			},
			Vehicle:   &gtfsrt.VehicleDescriptor{Id: &vehicleId},
			Timestamp: &timestamp,
		},
	}
	for _, stu := range tu.StopTimeUpdates {
		stopSequence := uint32(stu.StopSequence)
		stopId := stu.StopId
		delay := int32(stu.ArrivalDelay)
		entity.TripUpdate.StopTimeUpdate = append(entity.TripUpdate.StopTimeUpdate, &gtfsrt.TripUpdate_StopTimeUpdate{
			StopSequence: &stopSequence,
			StopId:       &stopId,
			Arrival: &gtfsrt.TripUpdate_StopTimeEvent{
				Delay: &delay,
			},
		})
	}
	return entity
}
