package security

import "time"

// Clock abstracts the current time so expiry logic can be tested
// deterministically. The zero-value handlers use SystemClock.
type Clock interface {
	Now() time.Time
}

// SystemClock is a Clock backed by time.Now.
type SystemClock struct{}

// Now returns the current wall-clock time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// IsExpired reports whether a deadline has passed according to the clock.
// A zero deadline means "no expiration" and never expires.
func IsExpired(clock Clock, expiresAt time.Time) bool {
	if expiresAt.IsZero() {
		return false
	}
	return expiresAt.Before(clock.Now())
}
