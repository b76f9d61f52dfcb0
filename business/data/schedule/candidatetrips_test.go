package schedule

import (
	"testing"
	"time"

	"github.com/transitwatch/transitwatch/business/data/gtfs"
)

func TestSelectCandidateTrips_TodayWindow(t *testing.T) {
	trips := []*gtfs.Trip{
		{TripId: "t1", ServiceId: "weekday", StartSeconds: 21600, EndSeconds: 25200}, // 06:00-07:00
	}
	active := map[string]bool{"weekday": true}

	got := selectCandidateTrips(trips, active, nil, 22500, 22500+86400, nil)
	if len(got) != 1 || got[0].TripId != "t1" {
		t.Fatalf("expected t1 to match today's window, got %+v", got)
	}
}

func TestSelectCandidateTrips_OvernightWrap(t *testing.T) {
	// trip scheduled 25:00-26:00 (1am-2am the following civil day), service_id
	// active on the PREVIOUS civil date relative to the fix.
	trips := []*gtfs.Trip{
		{TripId: "overnight", ServiceId: "weekday", StartSeconds: 90000, EndSeconds: 93600}, // 25:00-26:00
	}
	activeYesterday := map[string]bool{"weekday": true}

	// fix at 00:30 today -> offsetToday=1800, offsetFromYesterday=1800+86400=88200
	got := selectCandidateTrips(trips, nil, activeYesterday, 1800, 88200, nil)
	if len(got) != 1 || got[0].TripId != "overnight" {
		t.Fatalf("expected overnight trip to match via previous-day wraparound, got %+v", got)
	}
}

func TestSelectCandidateTrips_Excluded(t *testing.T) {
	trips := []*gtfs.Trip{
		{TripId: "t1", ServiceId: "weekday", StartSeconds: 0, EndSeconds: 100000},
	}
	active := map[string]bool{"weekday": true}
	exclude := map[string]bool{"t1": true}

	got := selectCandidateTrips(trips, active, nil, 50, 86450, exclude)
	if len(got) != 0 {
		t.Fatalf("expected excluded trip to be dropped, got %+v", got)
	}
}

func TestCivilDate_AddDaysAndMidnight(t *testing.T) {
	loc := time.UTC
	d := toCivilDate(time.Date(2024, 3, 1, 13, 45, 0, 0, loc))
	prev := d.addDays(-1)
	if prev != (civilDate{Year: 2024, Month: time.February, Day: 29}) {
		t.Fatalf("expected Feb 29 leap day, got %+v", prev)
	}
	if got := d.midnight(loc); !got.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, loc)) {
		t.Fatalf("expected midnight of civil date, got %v", got)
	}
}

func TestRouteInfo_Contains(t *testing.T) {
	loc := time.UTC
	info := RouteInfo{
		WindowStart: time.Date(2024, 3, 1, 6, 0, 0, 0, loc),
		WindowEnd:   time.Date(2024, 3, 1, 7, 0, 0, 0, loc),
	}
	if !info.contains(time.Date(2024, 3, 1, 6, 30, 0, 0, loc)) {
		t.Error("expected time within window to be contained")
	}
	if info.contains(time.Date(2024, 3, 1, 7, 30, 0, 0, loc)) {
		t.Error("expected time after window to not be contained")
	}
}
