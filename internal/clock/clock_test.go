// internal/clock/clock_test.go
package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFakeAdvanceAndSet(t *testing.T) {
	start := time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC)
	f := NewFake(start)

	assert.Equal(t, start, f.Now())

	f.Advance(36 * time.Hour)
	assert.Equal(t, start.Add(36*time.Hour), f.Now())

	reset := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	f.Set(reset)
	assert.Equal(t, reset, f.Now())
}

func TestStartOfDay(t *testing.T) {
	midday := time.Date(2026, 3, 15, 13, 45, 30, 999, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), StartOfDay(midday))

	// Non-UTC instants normalize to the UTC calendar day.
	est := time.FixedZone("EST", -5*3600)
	lateEvening := time.Date(2026, 3, 15, 22, 0, 0, 0, est)
	assert.Equal(t, time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC), StartOfDay(lateEvening))
}
