// Package backoff computes retry delays for transient provider failures.
//
// Delay grows exponentially with the attempt number and is perturbed by
// uniform jitter so that concurrent workers retrying at the same time do
// not all wake up on the same tick.
package backoff

import (
	"math"
	"math/rand/v2"
)

// Delay returns the number of milliseconds to wait before retrying the
// given attempt (1-indexed: the first retry is attempt 1).
//
//	delay = round(baseMS * factor^(attempt-1)) + uniform(0, jitterMS)
//
// attempt values below 1 are treated as 1. jitterMS of 0 disables jitter.
func Delay(attempt int, baseMS int64, factor float64, jitterMS int64) int64 {
	if attempt < 1 {
		attempt = 1
	}

	pow := math.Pow(factor, float64(attempt-1))
	core := int64(math.Round(float64(baseMS) * pow))

	var jitter int64
	if jitterMS > 0 {
		jitter = rand.Int64N(jitterMS + 1)
	}

	return core + jitter
}
