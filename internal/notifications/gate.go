package notifications

import "time"

// ShouldNotify reports whether a user's cycle may proceed to dispatch. A zero
// last time is treated as the Unix epoch, so a first run is always eligible.
// The scheduler cadence only bounds the resolution of this check.
func ShouldNotify(now, last time.Time, s Settings) bool {
	if !s.Enabled {
		return false
	}
	if last.IsZero() {
		last = time.Unix(0, 0)
	}
	interval := time.Duration(s.Normalize().Interval) * time.Minute
	return now.Sub(last) >= interval
}
