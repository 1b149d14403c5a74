// Package system provides the wall clock used for raw scrape expiry, cache TTLs
// and rate-limit windows.
package system

import "time"

// Clock implements signal.Clock using time.Now.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time in UTC at microsecond precision, the precision
// postgres keeps for expires_at. A time read here compares the same before and
// after a round trip through the raw store.
func (Clock) Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
