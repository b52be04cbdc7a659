// internal/inventory/domain.go
package inventory

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Book statuses as persisted. The status enum is a cached projection of the
// copy counter; the counter is authoritative. Lost and damaged are sticky
// staff-set conditions the projection never overwrites.
const (
	StatusAvailable = "available"
	StatusOnLoan    = "on-loan"
	StatusReserved  = "reserved"
	StatusLost      = "lost"
	StatusDamaged   = "damaged"
)

var (
	// ErrOutOfStock means no copy was available at hold or checkout time.
	ErrOutOfStock = errors.New("no available copy")

	// ErrNotFound means the referenced book does not exist.
	ErrNotFound = errors.New("book not found")

	// ErrInvariantViolation means a release would push the available count
	// past total copies. It indicates a bug elsewhere in the system and is
	// never silently corrected.
	ErrInvariantViolation = errors.New("inventory invariant violation")

	// ErrInvalidCondition means the requested condition is not a valid
	// book status.
	ErrInvalidCondition = errors.New("invalid book condition")
)

// Book is one catalog title with its copy counters.
type Book struct {
	ID          uuid.UUID `json:"id" db:"id"`
	ISBN        string    `json:"isbn" db:"isbn"`
	Title       string    `json:"title" db:"title"`
	Author      string    `json:"author" db:"author"`
	TotalCopies int       `json:"total_copies" db:"total_copies"`
	Available   int       `json:"available" db:"available"`
	Status      string    `json:"status" db:"status"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// ProjectStatus computes the informational status for a non-sticky book
// from its available count. Mirrors the CASE expressions the ledger runs
// inside its counter updates.
func ProjectStatus(current string, available int) string {
	if current == StatusLost || current == StatusDamaged {
		return current
	}
	if available > 0 {
		return StatusAvailable
	}
	return StatusOnLoan
}

// Sticky reports whether a status is a staff-set condition rather than a
// projection of the counter.
func Sticky(status string) bool {
	return status == StatusLost || status == StatusDamaged
}
