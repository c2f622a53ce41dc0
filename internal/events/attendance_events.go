package events

import "time"

const AttendanceLifecycleTopic = "hr.attendance.lifecycle.v1"

const (
	AttendanceClockedIn  = "attendance_clocked_in"
	AttendanceClockedOut = "attendance_clocked_out"
)

// AttendanceEvent carries enough of the record for consumers to act
// without reading the database.
type AttendanceEvent struct {
	EventType        string     `json:"event_type"`
	RequestID        string     `json:"request_id,omitempty"`
	AttendanceID     string     `json:"attendance_id"`
	EmployeeID       string     `json:"employee_id"`
	EmployeeEmail    string     `json:"employee_email"`
	EmployeeName     string     `json:"employee_name"`
	AttendanceDate   string     `json:"attendance_date"`
	ClockIn          time.Time  `json:"clock_in"`
	ClockOut         *time.Time `json:"clock_out,omitempty"`
	IsLate           bool       `json:"is_late"`
	TotalHoursWorked *float64   `json:"total_hours_worked,omitempty"`
	OccurredAt       time.Time  `json:"occurred_at"`
}
