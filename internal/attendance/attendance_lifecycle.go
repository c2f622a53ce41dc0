package attendance

import (
	"math"
	"time"

	attendanceerrors "go-attendance/internal/attendance/errors"
	"go-attendance/internal/geofence"

	"github.com/google/uuid"
)

type State string

const (
	StateNoRecord   State = "no_record"
	StateClockedIn  State = "clocked_in"
	StateClockedOut State = "clocked_out"
)

// StateOf reports where a day's record sits. A nil record means no clock-in.
func StateOf(a *Attendance) State {
	switch {
	case a == nil:
		return StateNoRecord
	case a.ClockOut == nil:
		return StateClockedIn
	default:
		return StateClockedOut
	}
}

// OfficeHours is the daily cutoff for lateness, in the office time zone.
type OfficeHours struct {
	StartHour   int
	StartMinute int
	Location    *time.Location
}

func (h OfficeHours) location() *time.Location {
	if h.Location == nil {
		return time.UTC
	}
	return h.Location
}

// IsLate is true when the hour:minute of at is strictly after the cutoff.
// Seconds are ignored, so 09:00:59 is on time for a 09:00 start.
func IsLate(at time.Time, hours OfficeHours) bool {
	local := at.In(hours.location())
	if local.Hour() != hours.StartHour {
		return local.Hour() > hours.StartHour
	}
	return local.Minute() > hours.StartMinute
}

// DayOf returns t's calendar day in loc, as midnight UTC so the value
// round-trips through a DATE column regardless of the session time zone.
func DayOf(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

// HoursWorked is the elapsed time in hours, rounded half away from zero to
// two decimals and never negative.
func HoursWorked(clockIn, clockOut time.Time) float64 {
	h := clockOut.Sub(clockIn).Hours()
	if h <= 0 {
		return 0
	}
	return math.Round(h*100) / 100
}

func NewClockIn(employeeID uuid.UUID, at time.Time, hours OfficeHours, loc geofence.Point) *Attendance {
	return &Attendance{
		ID:               uuid.New(),
		EmployeeID:       employeeID,
		AttendanceDate:   DayOf(at, hours.location()),
		ClockIn:          at,
		IsLate:           IsLate(at, hours),
		Status:           StatusPresent,
		ClockInLatitude:  loc.Latitude,
		ClockInLongitude: loc.Longitude,
	}
}

// CloseAt moves a ClockedIn record to ClockedOut.
func (a *Attendance) CloseAt(at time.Time, loc geofence.Point) error {
	switch StateOf(a) {
	case StateNoRecord:
		return attendanceerrors.ErrNotClockedIn
	case StateClockedOut:
		return attendanceerrors.ErrAlreadyClockedOut
	}

	hours := HoursWorked(a.ClockIn, at)
	lat, lon := loc.Latitude, loc.Longitude
	a.ClockOut = &at
	a.TotalHoursWorked = &hours
	a.ClockOutLatitude = &lat
	a.ClockOutLongitude = &lon
	return nil
}
