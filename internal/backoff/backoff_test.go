package backoff

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDelayNoJitter(t *testing.T) {
	assert.Equal(t, int64(10), Delay(1, 10, 2, 0))
	assert.Equal(t, int64(20), Delay(2, 10, 2, 0))
	assert.Equal(t, int64(40), Delay(3, 10, 2, 0))
}

func TestDelayAttemptBelowOneClampsToOne(t *testing.T) {
	assert.Equal(t, Delay(1, 10, 2, 0), Delay(0, 10, 2, 0))
	assert.Equal(t, Delay(1, 10, 2, 0), Delay(-5, 10, 2, 0))
}

func TestDelayJitterWithinBounds(t *testing.T) {
	for i := 0; i < 200; i++ {
		d := Delay(1, 100, 2, 50)
		assert.GreaterOrEqual(t, d, int64(100))
		assert.LessOrEqual(t, d, int64(150))
	}
}

func TestDelayRounding(t *testing.T) {
	// base=10, factor=1.5, attempt=3 -> 10*1.5^2 = 22.5 -> rounds to 23 (round-half-away-from-zero via math.Round)
	assert.Equal(t, int64(23), Delay(3, 10, 1.5, 0))
}
