package tracker

import (
	"strconv"
	"time"

	"github.com/transitwatch/transitwatch/business/data/gtfs"
)

// rawFixInput mirrors the poller's wire format (6): one JSON record per
// vehicle-id per tick. BrigadeId arrives as a number on the wire but is
// carried internally as a string, the same representation gtfs.Trip uses for
// matching against trip_short_name.
type rawFixInput struct {
	VehicleId      int64   `json:"vehicle_id"`
	RouteShortName string  `json:"route_short_name"`
	BrigadeId      int64   `json:"brigade_id"`
	Lat            float64 `json:"lat"`
	Lon            float64 `json:"lon"`
	Timestamp      time.Time `json:"timestamp"`
}

func (r rawFixInput) toRawFix() gtfs.RawFix {
	return gtfs.RawFix{
		VehicleId:      r.VehicleId,
		RouteShortName: r.RouteShortName,
		BrigadeId:      formatBrigadeId(r.BrigadeId),
		Lat:            r.Lat,
		Lon:            r.Lon,
		Timestamp:      r.Timestamp,
	}
}

func formatBrigadeId(id int64) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}
