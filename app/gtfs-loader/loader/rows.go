package loader

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/transitwatch/transitwatch/business/data/gtfs"
)

// The row types below mirror a single line of their GTFS txt file, tagged
// for github.com/gocarina/gocsv. Optional GTFS columns are plain strings so
// a missing or empty value never fails unmarshaling; conversion into the
// business/data/gtfs domain types happens explicitly afterward.

type calendarRow struct {
	ServiceId string `csv:"service_id"`
	Monday    int    `csv:"monday"`
	Tuesday   int    `csv:"tuesday"`
	Wednesday int    `csv:"wednesday"`
	Thursday  int    `csv:"thursday"`
	Friday    int    `csv:"friday"`
	Saturday  int    `csv:"saturday"`
	Sunday    int    `csv:"sunday"`
	StartDate string `csv:"start_date"`
	EndDate   string `csv:"end_date"`
}

func (r calendarRow) toCalendar() (*gtfs.Calendar, error) {
	start, err := parseGTFSDate(r.StartDate)
	if err != nil {
		return nil, fmt.Errorf("service %s start_date: %w", r.ServiceId, err)
	}
	end, err := parseGTFSDate(r.EndDate)
	if err != nil {
		return nil, fmt.Errorf("service %s end_date: %w", r.ServiceId, err)
	}
	return &gtfs.Calendar{
		ServiceId: r.ServiceId,
		Monday:    r.Monday,
		Tuesday:   r.Tuesday,
		Wednesday: r.Wednesday,
		Thursday:  r.Thursday,
		Friday:    r.Friday,
		Saturday:  r.Saturday,
		Sunday:    r.Sunday,
		StartDate: start,
		EndDate:   end,
	}, nil
}

type calendarDateRow struct {
	ServiceId     string `csv:"service_id"`
	Date          string `csv:"date"`
	ExceptionType int    `csv:"exception_type"`
}

func (r calendarDateRow) toCalendarDate() (*gtfs.CalendarDate, error) {
	date, err := parseGTFSDate(r.Date)
	if err != nil {
		return nil, fmt.Errorf("service %s date: %w", r.ServiceId, err)
	}
	return &gtfs.CalendarDate{
		ServiceId:     r.ServiceId,
		Date:          *date,
		ExceptionType: r.ExceptionType,
	}, nil
}

type routeRow struct {
	RouteId        string `csv:"route_id"`
	RouteShortName string `csv:"route_short_name"`
	RouteLongName  string `csv:"route_long_name"`
}

func (r routeRow) toRoute() *gtfs.Route {
	return &gtfs.Route{
		RouteId:        r.RouteId,
		RouteShortName: r.RouteShortName,
		RouteLongName:  r.RouteLongName,
	}
}

type shapeRow struct {
	ShapeId           string `csv:"shape_id"`
	ShapePtLat        float64 `csv:"shape_pt_lat"`
	ShapePtLng        float64 `csv:"shape_pt_lon"`
	ShapePtSequence   int    `csv:"shape_pt_sequence"`
	ShapeDistTraveled string `csv:"shape_dist_traveled"`
}

func (r shapeRow) toShape() (*gtfs.Shape, error) {
	shape := &gtfs.Shape{
		ShapeId:         r.ShapeId,
		ShapePtLat:      r.ShapePtLat,
		ShapePtLng:      r.ShapePtLng,
		ShapePtSequence: r.ShapePtSequence,
	}
	if trimmed := strings.TrimSpace(r.ShapeDistTraveled); trimmed != "" {
		dist, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return nil, fmt.Errorf("shape %s shape_dist_traveled: %w", r.ShapeId, err)
		}
		shape.ShapeDistTraveled = &dist
	}
	return shape, nil
}

type tripRow struct {
	TripId        string `csv:"trip_id"`
	RouteId       string `csv:"route_id"`
	ServiceId     string `csv:"service_id"`
	TripHeadsign  string `csv:"trip_headsign"`
	TripShortName string `csv:"trip_short_name"`
	BlockId       string `csv:"block_id"`
	ShapeId       string `csv:"shape_id"`
}

func (r tripRow) toTrip() *gtfs.Trip {
	trip := &gtfs.Trip{
		TripId:    r.TripId,
		RouteId:   r.RouteId,
		ServiceId: r.ServiceId,
		ShapeId:   r.ShapeId,
		BrigadeId: r.TripShortName,
	}
	if r.TripHeadsign != "" {
		headsign := r.TripHeadsign
		trip.TripHeadsign = &headsign
	}
	if r.BlockId != "" {
		blockId := r.BlockId
		trip.BlockId = &blockId
	}
	return trip
}

type stopTimeRow struct {
	TripId            string `csv:"trip_id"`
	StopSequence      int    `csv:"stop_sequence"`
	StopId            string `csv:"stop_id"`
	ArrivalTime       string `csv:"arrival_time"`
	DepartureTime     string `csv:"departure_time"`
	ShapeDistTraveled string `csv:"shape_dist_traveled"`
}

func (r stopTimeRow) toStopTime() (*gtfs.StopTime, error) {
	arrival, err := secondsFromGTFSTime(r.ArrivalTime)
	if err != nil {
		return nil, fmt.Errorf("trip %s stop %d arrival_time: %w", r.TripId, r.StopSequence, err)
	}
	departure, err := secondsFromGTFSTime(r.DepartureTime)
	if err != nil {
		return nil, fmt.Errorf("trip %s stop %d departure_time: %w", r.TripId, r.StopSequence, err)
	}
	var dist float64
	if trimmed := strings.TrimSpace(r.ShapeDistTraveled); trimmed != "" {
		dist, err = strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return nil, fmt.Errorf("trip %s stop %d shape_dist_traveled: %w", r.TripId, r.StopSequence, err)
		}
	}
	return &gtfs.StopTime{
		TripId:            r.TripId,
		StopSequence:      r.StopSequence,
		StopId:            r.StopId,
		ArrivalSeconds:    arrival,
		DepartureSeconds:  departure,
		ShapeDistTraveled: dist,
	}, nil
}

// secondsFromGTFSTime parses a GTFS HH:MM:SS time-of-day, which may exceed
// 24:00:00 for service continuing past midnight, into seconds since the
// service day's start.
func secondsFromGTFSTime(value string) (int, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("expected HH:MM:SS, got %q", value)
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, err
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, err
	}
	seconds, err := strconv.Atoi(parts[2])
	if err != nil {
		return 0, err
	}
	return hours*3600 + minutes*60 + seconds, nil
}

// parseGTFSDate parses a GTFS YYYYMMDD calendar date.
func parseGTFSDate(value string) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return &time.Time{}, nil
	}
	t, err := time.Parse("20060102", trimmed)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
