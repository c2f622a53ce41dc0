package attendance

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusPresent = "present"
	StatusAbsent  = "absent"
)

// Attendance is one employee's record for one calendar day in the office
// time zone. It is created by a verified clock-in and closed by a verified
// clock-out.
type Attendance struct {
	ID                uuid.UUID  `gorm:"column:id;type:uuid;primaryKey;default:gen_random_uuid()"`
	EmployeeID        uuid.UUID  `gorm:"column:employee_id;type:uuid;not null;uniqueIndex:uq_attendance_employee_date,priority:1"`
	AttendanceDate    time.Time  `gorm:"column:attendance_date;type:date;not null;uniqueIndex:uq_attendance_employee_date,priority:2;index"`
	ClockIn           time.Time  `gorm:"column:clock_in;type:timestamptz;not null"`
	ClockOut          *time.Time `gorm:"column:clock_out;type:timestamptz"`
	IsLate            bool       `gorm:"column:is_late;not null;default:false"`
	Status            string     `gorm:"column:status;type:varchar(20);not null;default:present;check:chk_attendance_status,status IN ('present','absent')"`
	TotalHoursWorked  *float64   `gorm:"column:total_hours_worked;type:numeric(6,2);check:chk_attendance_hours,total_hours_worked >= 0"`
	ClockInLatitude   float64    `gorm:"column:clock_in_latitude;not null;check:chk_clock_in_lat,clock_in_latitude BETWEEN -90 AND 90"`
	ClockInLongitude  float64    `gorm:"column:clock_in_longitude;not null;check:chk_clock_in_lon,clock_in_longitude BETWEEN -180 AND 180"`
	ClockOutLatitude  *float64   `gorm:"column:clock_out_latitude;check:chk_clock_out_lat,clock_out_latitude BETWEEN -90 AND 90"`
	ClockOutLongitude *float64   `gorm:"column:clock_out_longitude;check:chk_clock_out_lon,clock_out_longitude BETWEEN -180 AND 180"`
	CreatedAt         time.Time  `gorm:"column:created_at"`
	UpdatedAt         time.Time  `gorm:"column:updated_at"`
}

func (Attendance) TableName() string {
	return "attendances"
}
