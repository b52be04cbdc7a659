// internal/circulation/service.go
package circulation

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Service is the checkout manager: loan creation, renewal and return.
type Service interface {
	// CreateLoanFromHold converts a fulfilled reservation into a loan. It
	// never calls the ledger; the copy was committed at hold time.
	CreateLoanFromHold(ctx context.Context, hold HoldRef) (*Loan, error)

	// DirectCheckout creates a loan at the desk without a prior hold,
	// claiming a copy from the ledger.
	DirectCheckout(ctx context.Context, bookID, userID uuid.UUID) (*Loan, error)

	// Renew extends the due date. A nil requestedDueDate takes the full
	// allowed extension for the current renewal attempt.
	Renew(ctx context.Context, loanID uuid.UUID, requestedDueDate *time.Time) (*Loan, error)

	// Return closes the loan and releases the copy back to the ledger.
	Return(ctx context.Context, loanID uuid.UUID) (*Loan, error)

	Get(ctx context.Context, loanID uuid.UUID) (*Loan, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*Loan, error)
}

// Repository is the storage surface the checkout manager drives. Each
// mutating method commits as one atomic batch; conditional updates gate on
// the current status so concurrent callers cannot double-apply.
type Repository interface {
	// CreateFromHold inserts the loan and flips the backing reservation to
	// picked-up in the same transaction. Returns ErrHoldNotActive when the
	// reservation is no longer reserved.
	CreateFromHold(ctx context.Context, loan *Loan, reservationID uuid.UUID) error

	// CreateDirect claims a copy via the ledger and inserts the loan in the
	// same transaction. Surfaces the ledger's errors unchanged.
	CreateDirect(ctx context.Context, loan *Loan) error

	// SaveRenewal persists the new due date and renewal count, conditional
	// on the stored renewal count still matching prevRenewals.
	SaveRenewal(ctx context.Context, loan *Loan, prevRenewals int) error

	// MarkReturned closes the loan and releases the copy in the same
	// transaction. Returns ErrInvalidState when the loan is not active.
	MarkReturned(ctx context.Context, loan *Loan) error

	Get(ctx context.Context, loanID uuid.UUID) (*Loan, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*Loan, error)
}

// Members validates patrons before they receive a copy.
type Members interface {
	VerifyActive(ctx context.Context, userID uuid.UUID) error
}
