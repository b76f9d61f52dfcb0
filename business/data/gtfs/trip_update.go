package gtfs

import "time"

// TripUpdate holds the single-point predicted arrival for each downstream
// stop of a trip-instance, the shape this repo's GTFS-realtime feed
// publishes. Unlike StopPrediction/StopTimePrediction, which carry a full
// probability distribution, a TripUpdate carries the mode of that
// distribution -- the one estimate a consuming GTFS-realtime client expects.
type TripUpdate struct {
	TripId          string           `json:"trip_id"`
	RouteId         string           `json:"route_id"`
	VehicleId       string           `json:"vehicle_id"`
	Timestamp       uint64           `json:"timestamp"`
	StopTimeUpdates []StopTimeUpdate `json:"stop_time_update"`
}

// StopTimeUpdate is the predicted arrival at a single downstream stop.
type StopTimeUpdate struct {
	StopSequence int       `json:"stop_sequence"`
	StopId       string    `json:"stop_id"`
	ArrivalTime  time.Time `json:"arrival_time"`
	ArrivalDelay int       `json:"arrival_delay_seconds"`
}
