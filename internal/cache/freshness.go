package cache

import "time"

// Days converts a day count into an expiry period.
func Days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}

// IsStale reports whether a record fetched at fetchedAt is due for a refresh.
// A zero expire disables caching, so everything is stale.
func IsStale(fetchedAt, now time.Time, expire time.Duration) bool {
	if expire <= 0 {
		return true
	}
	return now.Sub(fetchedAt) >= expire
}
