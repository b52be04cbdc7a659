// internal/membership/domain.go
package membership

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Member statuses.
const (
	StatusActive    = "active"
	StatusSuspended = "suspended"
)

var (
	// ErrNotFound means the referenced member does not exist.
	ErrNotFound = errors.New("member not found")

	// ErrInactive means the member may not borrow or hold items.
	ErrInactive = errors.New("member is not active")

	// ErrEmailTaken means another member already registered the email.
	ErrEmailTaken = errors.New("email already registered")

	// ErrInvalidCredentials means email or password did not match.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrRateLimited means the caller exceeded the registration or login
	// rate limit.
	ErrRateLimited = errors.New("rate limit exceeded")
)

// Member is a registered patron.
type Member struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Email     string    `json:"email" db:"email"`
	Name      string    `json:"name" db:"name"`
	Status    string    `json:"status" db:"status"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
