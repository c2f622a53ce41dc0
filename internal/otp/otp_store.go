package otp

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"go-attendance/internal/geofence"
)

// Kind separates key spaces so one employee can hold a clock-in and a
// clock-out challenge at the same time. KindRegistration is reserved for the
// account activation flow, which issues through the same Store.
type Kind string

const (
	KindClockIn      Kind = "clock_in"
	KindClockOut     Kind = "clock_out"
	KindRegistration Kind = "registration"
)

// DefaultTTL is how long an issued code stays valid.
const DefaultTTL = 3 * time.Minute

var ErrChallengeNotFound = errors.New("otp challenge not found")

// Context carries challenge specific data captured at issue time.
type Context struct {
	Location *geofence.Point `json:"location,omitempty"`
}

type Challenge struct {
	Kind      Kind      `json:"kind"`
	Identity  string    `json:"identity"`
	Code      string    `json:"code"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Context   Context   `json:"context"`
}

// Expired reports whether now is strictly past ExpiresAt.
func (c Challenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// Matches compares the submitted code in constant time.
func (c Challenge) Matches(code string) bool {
	return subtle.ConstantTimeCompare([]byte(c.Code), []byte(code)) == 1
}

// Store holds at most one live challenge per (kind, identity). Issue
// replaces whatever was there. Expiry is evaluated by the caller.
//
//go:generate mockgen -source=otp_store.go -destination=mock/otp_store_mock.go -package=mock
type Store interface {
	Issue(ctx context.Context, kind Kind, identity, code string, ttl time.Duration, payload Context) (Challenge, error)
	Lookup(ctx context.Context, kind Kind, identity string) (Challenge, error)
	Consume(ctx context.Context, kind Kind, identity string) error
}
