// internal/reservation/domain.go
package reservation

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"openshelf/internal/circulation"
)

// Reservation statuses as persisted.
const (
	StatusReserved  = "reserved"
	StatusPickedUp  = "picked-up"
	StatusExpired   = "expired"
	StatusCancelled = "cancelled"
)

// DefaultPickupWindow is how long a hold stays valid when the caller does
// not supply a pickup deadline.
const DefaultPickupWindow = 7 * 24 * time.Hour

var (
	// ErrNotFound means the referenced reservation does not exist.
	ErrNotFound = errors.New("reservation not found")

	// ErrAlreadyReserved means the user already holds an active reservation
	// on the title. Shared with the checkout manager, which raises the same
	// conflict when a hold holder tries a fresh checkout.
	ErrAlreadyReserved = circulation.ErrAlreadyReserved

	// ErrInvalidState means the reservation is not in the status the
	// operation requires.
	ErrInvalidState = errors.New("reservation not in required status")

	// ErrExpired means the pickup window has passed; the caller should
	// place a new hold.
	ErrExpired = errors.New("pickup window has passed")

	// ErrInvalidPickupDate means a caller-supplied pickup deadline lies in
	// the past.
	ErrInvalidPickupDate = errors.New("pickup date must be in the future")
)

// Reservation is one patron's claim on one copy of a title, pending pickup
// by a deadline. Placement claims the copy immediately; there is no hold
// queue.
type Reservation struct {
	ID         uuid.UUID `json:"id" db:"id"`
	BookID     uuid.UUID `json:"book_id" db:"book_id"`
	UserID     uuid.UUID `json:"user_id" db:"user_id"`
	ReservedAt time.Time `json:"reserved_at" db:"reserved_at"`
	PickupBy   time.Time `json:"pickup_date" db:"pickup_date"`
	Status     string    `json:"status" db:"status"`
}

// CanFulfill checks that the hold is still claimable at the given instant.
func (r *Reservation) CanFulfill(now time.Time) error {
	switch r.Status {
	case StatusReserved:
	case StatusExpired:
		return ErrExpired
	default:
		return ErrInvalidState
	}
	if now.After(r.PickupBy) {
		return ErrExpired
	}
	return nil
}

// ExpiresBefore reports whether the sweep at dayStart should expire this
// hold. Comparison is by pickup date, not pickup instant: a hold due any
// time today survives every sweep until tomorrow.
func (r *Reservation) ExpiresBefore(dayStart time.Time) bool {
	return r.Status == StatusReserved && r.PickupBy.Before(dayStart)
}
