// internal/reservation/domain_test.go
package reservation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"openshelf/internal/clock"
)

func TestCanFulfill(t *testing.T) {
	pickupBy := time.Date(2026, 4, 10, 17, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		status  string
		now     time.Time
		wantErr error
	}{
		{"reserved before deadline", StatusReserved, pickupBy.Add(-time.Hour), nil},
		{"reserved at deadline", StatusReserved, pickupBy, nil},
		{"reserved past deadline", StatusReserved, pickupBy.Add(time.Minute), ErrExpired},
		{"already expired", StatusExpired, pickupBy.Add(-48 * time.Hour), ErrExpired},
		{"picked up", StatusPickedUp, pickupBy.Add(-time.Hour), ErrInvalidState},
		{"cancelled", StatusCancelled, pickupBy.Add(-time.Hour), ErrInvalidState},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := &Reservation{Status: tc.status, PickupBy: pickupBy}
			err := r.CanFulfill(tc.now)
			if tc.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tc.wantErr)
			}
		})
	}
}

func TestExpiresBeforeUsesDayGranularity(t *testing.T) {
	// A hold whose deadline falls anywhere today survives today's sweep.
	dayStart := time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC)

	dueToday := &Reservation{Status: StatusReserved, PickupBy: dayStart.Add(30 * time.Minute)}
	assert.False(t, dueToday.ExpiresBefore(dayStart))

	dueYesterday := &Reservation{Status: StatusReserved, PickupBy: dayStart.Add(-time.Second)}
	assert.True(t, dueYesterday.ExpiresBefore(dayStart))

	cancelled := &Reservation{Status: StatusCancelled, PickupBy: dayStart.Add(-48 * time.Hour)}
	assert.False(t, cancelled.ExpiresBefore(dayStart))
}

func TestExpiresBeforeProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		pickup := base.Add(time.Duration(rapid.Int64Range(0, 90*24*3600).Draw(t, "pickupSecs")) * time.Second)
		sweepAt := base.Add(time.Duration(rapid.Int64Range(0, 90*24*3600).Draw(t, "sweepSecs")) * time.Second)

		r := &Reservation{Status: StatusReserved, PickupBy: pickup}
		dayStart := clock.StartOfDay(sweepAt)

		expired := r.ExpiresBefore(dayStart)
		sameDay := clock.StartOfDay(pickup).Equal(dayStart)

		// A hold never expires on its own pickup day, and once the sweep
		// day is past the pickup day it always expires.
		if sameDay {
			assert.False(t, expired)
		}
		if dayStart.After(pickup) && !sameDay {
			assert.True(t, expired)
		}
	})
}
