package traveltime

import (
	"time"

	"github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/us"
)

// HolidayCalendar reports whether a date is a transit-agency holiday, used to
// exclude holiday-service samples from the otherwise weekday/weekend travel
// time averages a typical day expects. Hardcoded to the standard US holiday
// set.
type HolidayCalendar struct {
	calendar *cal.BusinessCalendar
}

// NewHolidayCalendar builds a HolidayCalendar observing the standard set of
// US holidays a transit agency typically runs reduced or Sunday-equivalent
// service on.
func NewHolidayCalendar() *HolidayCalendar {
	calendar := cal.NewBusinessCalendar()
	calendar.AddHoliday(
		us.NewYear,
		us.MlkDay,
		us.MemorialDay,
		us.IndependenceDay,
		us.LaborDay,
		us.ThanksgivingDay,
		us.ChristmasDay,
		us.Juneteenth,
	)
	return &HolidayCalendar{calendar: calendar}
}

// IsHoliday reports whether at falls on an observed holiday.
func (h *HolidayCalendar) IsHoliday(at time.Time) bool {
	_, observed, _ := h.calendar.IsHoliday(at)
	return observed
}
