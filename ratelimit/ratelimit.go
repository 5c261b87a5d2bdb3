package ratelimit

import (
	"math/rand/v2"
	"time"
)

// BulkWait returns base plus up to half of it as random jitter, so
// consecutive downloads do not start at a fixed cadence.
func BulkWait(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}

	return base + time.Duration(rand.Int64N(int64(base)/2+1)) //nolint:gosec
}
