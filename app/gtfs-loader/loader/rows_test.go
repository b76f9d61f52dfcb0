package loader

import "testing"

func TestSecondsFromGTFSTime_PastMidnight(t *testing.T) {
	seconds, err := secondsFromGTFSTime("25:35:00")
	if err != nil {
		t.Fatal(err)
	}
	if want := 25*3600 + 35*60; seconds != want {
		t.Errorf("expected %d seconds, got %d", want, seconds)
	}
}

func TestSecondsFromGTFSTime_RejectsMalformed(t *testing.T) {
	if _, err := secondsFromGTFSTime("14:30"); err == nil {
		t.Error("expected an error for a time missing the seconds field")
	}
}

func TestCalendarRow_ToCalendar(t *testing.T) {
	row := calendarRow{ServiceId: "WD", Monday: 1, StartDate: "20240101", EndDate: "20241231"}
	calendar, err := row.toCalendar()
	if err != nil {
		t.Fatal(err)
	}
	if calendar.ServiceId != "WD" || calendar.Monday != 1 {
		t.Errorf("unexpected calendar: %+v", calendar)
	}
	if calendar.StartDate.Format("20060102") != "20240101" {
		t.Errorf("expected start date 20240101, got %v", calendar.StartDate)
	}
}

func TestStopTimeRow_ToStopTime(t *testing.T) {
	row := stopTimeRow{
		TripId: "T1", StopSequence: 3, StopId: "S1",
		ArrivalTime: "08:15:00", DepartureTime: "08:16:00", ShapeDistTraveled: "123.4",
	}
	st, err := row.toStopTime()
	if err != nil {
		t.Fatal(err)
	}
	if st.ArrivalSeconds != 8*3600+15*60 {
		t.Errorf("unexpected arrival seconds: %d", st.ArrivalSeconds)
	}
	if st.ShapeDistTraveled != 123.4 {
		t.Errorf("unexpected shape_dist_traveled: %v", st.ShapeDistTraveled)
	}
}

func TestStopTimeRow_BlankShapeDistDefaultsToZero(t *testing.T) {
	row := stopTimeRow{TripId: "T1", StopSequence: 1, StopId: "S1", ArrivalTime: "08:00:00", DepartureTime: "08:00:00"}
	st, err := row.toStopTime()
	if err != nil {
		t.Fatal(err)
	}
	if st.ShapeDistTraveled != 0 {
		t.Errorf("expected zero shape_dist_traveled, got %v", st.ShapeDistTraveled)
	}
}

func TestTripRow_ToTrip_OptionalColumnsBecomeNilWhenBlank(t *testing.T) {
	row := tripRow{TripId: "T1", RouteId: "R1", ServiceId: "WD", ShapeId: "SH1"}
	trip := row.toTrip()
	if trip.TripHeadsign != nil || trip.BlockId != nil {
		t.Errorf("expected nil optional fields, got %+v", trip)
	}
	if trip.BrigadeId != "" {
		t.Errorf("expected empty brigade id when trip_short_name is blank, got %q", trip.BrigadeId)
	}
}

func TestTripRow_ToTrip_BrigadeIdFromShortName(t *testing.T) {
	row := tripRow{TripId: "T1", RouteId: "R1", ServiceId: "WD", ShapeId: "SH1", TripShortName: "42"}
	trip := row.toTrip()
	if trip.BrigadeId != "42" {
		t.Errorf("expected brigade id 42, got %q", trip.BrigadeId)
	}
}
