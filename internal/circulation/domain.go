// internal/circulation/domain.go
package circulation

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Loan statuses as persisted. Renew writes "borrowed"; the legacy "renewed"
// value is still accepted wherever an active loan is required, so records
// written by older writers return and expire correctly.
const (
	StatusBorrowed = "borrowed"
	StatusRenewed  = "renewed"
	StatusOverdue  = "overdue"
	StatusReturned = "returned"
)

const (
	// LoanPeriod is the default time between checkout and due date.
	LoanPeriod = 14 * 24 * time.Hour

	// MaxRenewals caps how often a loan can be extended.
	MaxRenewals = 3

	// StandardExtension is the window granted by the first two renewals,
	// FinalExtension the shorter window granted by the last one.
	StandardExtension = 10 * 24 * time.Hour
	FinalExtension    = 5 * 24 * time.Hour
)

var (
	// ErrNotFound means the referenced loan does not exist.
	ErrNotFound = errors.New("loan not found")

	// ErrRenewalLimitExceeded means the loan has used all its renewals.
	ErrRenewalLimitExceeded = errors.New("renewal limit exceeded")

	// ErrInvalidDueDate means the requested renewal date falls outside the
	// allowed extension window.
	ErrInvalidDueDate = errors.New("requested due date outside allowed window")

	// ErrInvalidState means the loan is not in a status the operation
	// requires, e.g. returning an already-returned loan.
	ErrInvalidState = errors.New("loan not in required status")

	// ErrAlreadyBorrowed means the user already has an active loan on the
	// title.
	ErrAlreadyBorrowed = errors.New("user already has an active loan for this book")

	// ErrAlreadyReserved means the user holds an active reservation on the
	// title; the copy is claimed through pickup, not a fresh checkout.
	ErrAlreadyReserved = errors.New("user already has an active hold for this book")

	// ErrHoldNotActive means the reservation backing a pickup is no longer
	// in the reserved status.
	ErrHoldNotActive = errors.New("reservation is not active")
)

// Loan is one checkout of one copy by one patron.
type Loan struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	BookID     uuid.UUID  `json:"book_id" db:"book_id"`
	UserID     uuid.UUID  `json:"user_id" db:"user_id"`
	BorrowedAt time.Time  `json:"borrowed_at" db:"borrowed_at"`
	DueDate    time.Time  `json:"due_date" db:"due_date"`
	ReturnDate *time.Time `json:"return_date,omitempty" db:"return_date"`
	Status     string     `json:"status" db:"status"`
	Renewals   int        `json:"renewals" db:"renewals"`
}

// HoldRef identifies a fulfilled reservation being converted into a loan.
// The copy was already committed at hold time, so conversion never touches
// the ledger.
type HoldRef struct {
	ReservationID uuid.UUID
	BookID        uuid.UUID
	UserID        uuid.UUID
}

// Active reports whether the loan still holds a copy.
func (l *Loan) Active() bool {
	switch l.Status {
	case StatusBorrowed, StatusRenewed, StatusOverdue:
		return true
	}
	return false
}

// IsOverdue is the derived overdue view. The persisted overdue status only
// exists for query efficiency; the two never disagree for more than one
// sweep interval.
func (l *Loan) IsOverdue(now time.Time) bool {
	if l.Status == StatusOverdue {
		return true
	}
	if l.Status != StatusBorrowed && l.Status != StatusRenewed {
		return false
	}
	return now.After(l.DueDate)
}

// RenewalCeiling computes the latest permissible due date for the next
// renewal, based on the renewals already used. Attempts one and two may
// extend by ten days, the third by five.
func RenewalCeiling(currentDue time.Time, renewalsUsed int) (time.Time, error) {
	switch {
	case renewalsUsed >= MaxRenewals:
		return time.Time{}, ErrRenewalLimitExceeded
	case renewalsUsed == MaxRenewals-1:
		return currentDue.Add(FinalExtension), nil
	default:
		return currentDue.Add(StandardExtension), nil
	}
}

// DecideRenewal validates a renewal request against the loan and returns
// the new due date. A nil request takes the full allowed extension.
func DecideRenewal(l *Loan, requested *time.Time) (time.Time, error) {
	if !l.Active() {
		return time.Time{}, ErrInvalidState
	}
	ceiling, err := RenewalCeiling(l.DueDate, l.Renewals)
	if err != nil {
		return time.Time{}, err
	}
	if requested == nil {
		return ceiling, nil
	}
	if requested.Before(l.DueDate) || requested.After(ceiling) {
		return time.Time{}, ErrInvalidDueDate
	}
	return *requested, nil
}
