package attendance

// Actor is the authenticated employee performing an attendance action.
type Actor struct {
	EmployeeID string
	Email      string
	Name       string
}

// Coordinates are pointers so a missing field can be told apart from 0.
type LocationRequest struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

type VerifyClockInRequest struct {
	OTP       string   `json:"otp"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

type VerifyClockOutRequest struct {
	OTP string `json:"otp"`
}

type InitiateResponse struct {
	Message   string `json:"message"`
	ExpiresAt string `json:"expires_at"`
}

type ClockInResponse struct {
	Message    string             `json:"message"`
	IsLate     bool               `json:"is_late"`
	Attendance AttendanceResponse `json:"attendance"`
}

type ClockOutResponse struct {
	Message          string             `json:"message"`
	TotalHoursWorked float64            `json:"total_hours_worked"`
	Attendance       AttendanceResponse `json:"attendance"`
}

type TodayResponse struct {
	State      string              `json:"state"`
	Attendance *AttendanceResponse `json:"attendance,omitempty"`
}

type ListQuery struct {
	EmployeeID string `form:"employee_id"`
	Date       string `form:"date"`
	StartDate  string `form:"start_date"`
	EndDate    string `form:"end_date"`
}

type AttendanceResponse struct {
	ID                string   `json:"id"`
	EmployeeID        string   `json:"employee_id"`
	AttendanceDate    string   `json:"attendance_date"`
	ClockIn           string   `json:"clock_in"`
	ClockOut          *string  `json:"clock_out,omitempty"`
	IsLate            bool     `json:"is_late"`
	Status            string   `json:"status"`
	TotalHoursWorked  *float64 `json:"total_hours_worked,omitempty"`
	ClockInLatitude   float64  `json:"clock_in_latitude"`
	ClockInLongitude  float64  `json:"clock_in_longitude"`
	ClockOutLatitude  *float64 `json:"clock_out_latitude,omitempty"`
	ClockOutLongitude *float64 `json:"clock_out_longitude,omitempty"`
}
