// internal/membership/service.go
package membership

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the interface for the member registry.
type Service interface {
	Register(ctx context.Context, email, name, password string) (*Member, error)
	Authenticate(ctx context.Context, email, password string) (*Member, error)
	Get(ctx context.Context, id uuid.UUID) (*Member, error)

	// VerifyActive returns nil when the member exists and may borrow.
	// The circulation and reservation managers call this before touching
	// the ledger.
	VerifyActive(ctx context.Context, id uuid.UUID) error
}
