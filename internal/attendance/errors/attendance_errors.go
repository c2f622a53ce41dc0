package attendanceerrors

import (
	"go-attendance/internal/shared/apperror"
	"net/http"
)

const (
	CodeLocationRequired   = "LOCATION_REQUIRED"
	CodeInvalidCoordinates = "INVALID_COORDINATES"
	CodeOutOfRange         = "OUT_OF_RANGE"
	CodeAlreadyClockedIn   = "ALREADY_CLOCKED_IN"
	CodeMailFailed         = "MAIL_FAILED"
	CodeCodeRequired       = "CODE_REQUIRED"
	CodeNoChallenge        = "NO_CHALLENGE"
	CodeExpired            = "EXPIRED"
	CodeMismatch           = "MISMATCH"
	CodeNotClockedIn       = "NOT_CLOCKED_IN"
	CodeAlreadyClockedOut  = "ALREADY_CLOCKED_OUT"
)

var (
	ErrLocationRequired = apperror.New(
		CodeLocationRequired,
		"Location is required",
		http.StatusBadRequest,
	)
	ErrInvalidCoordinates = apperror.New(
		CodeInvalidCoordinates,
		"Latitude must be within [-90, 90] and longitude within [-180, 180]",
		http.StatusBadRequest,
	)
	ErrOutOfRange = apperror.New(
		CodeOutOfRange,
		"You are not within the allowed office area",
		http.StatusForbidden,
	)
	ErrAlreadyClockedIn = apperror.New(
		CodeAlreadyClockedIn,
		"Already clocked in today",
		http.StatusConflict,
	)
	ErrMailFailed = apperror.New(
		CodeMailFailed,
		"Failed to send OTP email",
		http.StatusBadGateway,
	)
	ErrCodeRequired = apperror.New(
		CodeCodeRequired,
		"OTP is required",
		http.StatusBadRequest,
	)
	ErrNoChallenge = apperror.New(
		CodeNoChallenge,
		"No OTP found, please request a new one",
		http.StatusBadRequest,
	)
	ErrExpired = apperror.New(
		CodeExpired,
		"OTP expired",
		http.StatusGone,
	)
	ErrMismatch = apperror.New(
		CodeMismatch,
		"Invalid OTP",
		http.StatusUnauthorized,
	)
	ErrNotClockedIn = apperror.New(
		CodeNotClockedIn,
		"You have not clocked in today",
		http.StatusConflict,
	)
	ErrAlreadyClockedOut = apperror.New(
		CodeAlreadyClockedOut,
		"Already clocked out today",
		http.StatusConflict,
	)
	ErrInvalidEmployeeID = apperror.New(
		apperror.CodeInvalidInput,
		"Invalid employee ID",
		http.StatusBadRequest,
	)
	ErrInvalidDateFilter = apperror.New(
		apperror.CodeInvalidInput,
		"Dates must be formatted as YYYY-MM-DD and start_date must not be after end_date",
		http.StatusBadRequest,
	)
)
