package presence

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestBackoffDelay(t *testing.T) {
	initial := time.Second
	max := 30 * time.Second

	assert.Equal(t, 1*time.Second, backoffDelay(0, initial, max))
	assert.Equal(t, 2*time.Second, backoffDelay(1, initial, max))
	assert.Equal(t, 4*time.Second, backoffDelay(2, initial, max))
	assert.Equal(t, 8*time.Second, backoffDelay(3, initial, max))
	assert.Equal(t, 16*time.Second, backoffDelay(4, initial, max))

	// stops doubling at the cap
	assert.Equal(t, max, backoffDelay(5, initial, max))
	assert.Equal(t, max, backoffDelay(20, initial, max))
}

func TestBackoffDelayDefaults(t *testing.T) {
	assert.Equal(t, time.Second, backoffDelay(0, 0, 0))
	assert.Equal(t, 30*time.Second, backoffDelay(10, 0, 0))
}

func TestBackoffDelayInitialAboveMax(t *testing.T) {
	assert.Equal(t, time.Second, backoffDelay(0, 5*time.Second, time.Second))
}

func TestBackoffDelayProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("monotone and capped", prop.ForAll(
		func(attempt int, initialMs int, maxMs int) bool {
			initial := time.Duration(initialMs) * time.Millisecond
			max := time.Duration(maxMs) * time.Millisecond

			cur := backoffDelay(attempt, initial, max)
			next := backoffDelay(attempt+1, initial, max)
			return cur <= next && cur <= max && next <= max
		},
		gen.IntRange(0, 32),
		gen.IntRange(1, 5000),
		gen.IntRange(5000, 60000),
	))

	properties.Property("jitter stays within a quarter of the base", prop.ForAll(
		func(baseMs int) bool {
			base := time.Duration(baseMs) * time.Millisecond
			j := withJitter(base)
			return j >= base && j <= base+base/4
		},
		gen.IntRange(1, 60000),
	))

	properties.TestingRun(t)
}
