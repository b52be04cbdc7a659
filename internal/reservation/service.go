// internal/reservation/service.go
package reservation

import (
	"context"
	"time"

	"github.com/google/uuid"

	"openshelf/internal/circulation"
)

// Service is the reservation manager: placing, cancelling and fulfilling
// holds.
type Service interface {
	// PlaceHold claims one copy for the user. A nil pickupBy defaults to
	// seven days from now. Fails immediately with the ledger's OutOfStock
	// when no copy is free; holds are never queued.
	PlaceHold(ctx context.Context, bookID, userID uuid.UUID, pickupBy *time.Time) (*Reservation, error)

	// Cancel releases a still-reserved hold and returns its copy.
	Cancel(ctx context.Context, reservationID uuid.UUID) (*Reservation, error)

	// Fulfill converts a hold into a loan at pickup. The copy is not
	// claimed again; it was committed when the hold was placed.
	Fulfill(ctx context.Context, reservationID uuid.UUID) (*circulation.Loan, error)

	Get(ctx context.Context, reservationID uuid.UUID) (*Reservation, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*Reservation, error)
}

// Repository is the storage surface the reservation manager drives.
type Repository interface {
	// Create claims a copy via the ledger and inserts the reservation in
	// one transaction. Returns ErrAlreadyReserved for a duplicate active
	// hold, circulation.ErrAlreadyBorrowed when the user already has the
	// book out, or the ledger's errors unchanged.
	Create(ctx context.Context, res *Reservation) error

	// MarkCancelled flips a reserved hold to cancelled and releases its
	// copy in one transaction, conditional on the hold still being
	// reserved.
	MarkCancelled(ctx context.Context, res *Reservation) error

	Get(ctx context.Context, reservationID uuid.UUID) (*Reservation, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*Reservation, error)
}

// LoanCreator is the slice of the checkout manager that pickup needs.
type LoanCreator interface {
	CreateLoanFromHold(ctx context.Context, hold circulation.HoldRef) (*circulation.Loan, error)
}

// Members validates patrons before a copy is claimed for them.
type Members interface {
	VerifyActive(ctx context.Context, userID uuid.UUID) error
}
