// internal/inventory/service.go
package inventory

import (
	"context"

	"github.com/google/uuid"
)

// Service is the inventory surface exposed to handlers and to the other
// managers. No other component mutates the copy counters.
type Service interface {
	AddBook(ctx context.Context, isbn, title, author string, totalCopies int) (*Book, error)
	Get(ctx context.Context, id uuid.UUID) (*Book, error)
	TryHold(ctx context.Context, id uuid.UUID) error
	Release(ctx context.Context, id uuid.UUID, count int) error
	Status(ctx context.Context, id uuid.UUID) (available, total int, err error)
	SetCondition(ctx context.Context, id uuid.UUID, condition string) (*Book, error)
}
