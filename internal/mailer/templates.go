package mailer

import (
	"fmt"
	"time"
)

const signature = "- Attendance System"

func ClockInOTP(name, code string, ttl time.Duration) (subject, body string) {
	subject = "Your Attendance Clock-In OTP"
	body = fmt.Sprintf("Hello %s,\n\nYour OTP to clock in is: %s\nIt will expire in %s.\n\n%s",
		name, code, humanMinutes(ttl), signature)
	return subject, body
}

func ClockOutOTP(name, code string, ttl time.Duration) (subject, body string) {
	subject = "Your Attendance Clock-out OTP"
	body = fmt.Sprintf("Hello %s,\n\nYour OTP to clock out is: %s\nIt will expire in %s.\n\n%s",
		name, code, humanMinutes(ttl), signature)
	return subject, body
}

func ClockOutSummary(name string, day time.Time, clockIn, clockOut time.Time, hours float64) (subject, body string) {
	subject = "Your attendance summary for " + day.Format("2006-01-02")
	body = fmt.Sprintf("Hello %s,\n\nClock-in:  %s\nClock-out: %s\nTotal hours worked: %.2f\n\n%s",
		name,
		clockIn.Format("15:04:05"),
		clockOut.Format("15:04:05"),
		hours,
		signature)
	return subject, body
}

func humanMinutes(d time.Duration) string {
	m := int(d.Round(time.Minute) / time.Minute)
	if m == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", m)
}
