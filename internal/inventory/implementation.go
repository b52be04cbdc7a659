// internal/inventory/implementation.go
package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"openshelf/internal/audit"
	"openshelf/internal/clock"
	"openshelf/internal/store"
)

// Ledger owns the available-copy counter for every book. All counter
// movement happens through single conditional UPDATE statements; there is
// no read-then-write path anywhere in this package.
type Ledger struct {
	db      *store.DB
	emitter *audit.Emitter
	clk     clock.Clock
	logger  *slog.Logger
}

var _ Service = (*Ledger)(nil)

func NewLedger(db *store.DB, emitter *audit.Emitter, clk clock.Clock, logger *slog.Logger) *Ledger {
	return &Ledger{db: db, emitter: emitter, clk: clk, logger: logger}
}

// AddBook registers a new title with all copies available.
func (l *Ledger) AddBook(ctx context.Context, isbn, title, author string, totalCopies int) (*Book, error) {
	if totalCopies < 0 {
		return nil, fmt.Errorf("total copies must not be negative")
	}

	book := &Book{
		ID:          uuid.New(),
		ISBN:        isbn,
		Title:       title,
		Author:      author,
		TotalCopies: totalCopies,
		Available:   totalCopies,
		Status:      ProjectStatus(StatusAvailable, totalCopies),
	}

	err := l.db.WithinTx(ctx, "inventory.add_book", func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO books (id, isbn, title, author, total_copies, available, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, book.ID, book.ISBN, book.Title, book.Author, book.TotalCopies, book.Available, book.Status)
		if err != nil {
			return fmt.Errorf("insert book: %w", err)
		}
		return l.emitter.Record(ctx, tx, audit.Entry{
			BookID: book.ID,
			Action: audit.ActionBookAdded,
			Details: map[string]any{
				"title":  book.Title,
				"copies": book.TotalCopies,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return l.Get(ctx, book.ID)
}

// Get returns the book record.
func (l *Ledger) Get(ctx context.Context, id uuid.UUID) (*Book, error) {
	var book Book
	err := l.db.Read(ctx, "inventory.get", func(ctx context.Context) error {
		return l.db.GetContext(ctx, &book, `
			SELECT id, isbn, title, author, total_copies, available, status, created_at, updated_at
			FROM books WHERE id = $1
		`, id)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get book: %w", err)
	}
	return &book, nil
}

// TryHold atomically claims one copy, failing with ErrOutOfStock when none
// is available.
func (l *Ledger) TryHold(ctx context.Context, id uuid.UUID) error {
	return l.db.WithinTx(ctx, "inventory.try_hold", func(tx *sqlx.Tx) error {
		return l.TryHoldTx(ctx, tx, id)
	})
}

// TryHoldTx is the transaction-scoped variant, used by the managers to
// compose the decrement into their atomic batches.
func (l *Ledger) TryHoldTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE books
		SET available = available - 1,
		    status = CASE
		        WHEN status IN ('lost', 'damaged') THEN status
		        WHEN available - 1 > 0 THEN 'available'
		        ELSE 'on-loan'
		    END,
		    updated_at = NOW()
		WHERE id = $1 AND available > 0
	`, id)
	if err != nil {
		return fmt.Errorf("hold copy: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("hold copy rows: %w", err)
	}
	if n == 1 {
		return nil
	}
	return l.missReason(ctx, tx, id, ErrOutOfStock)
}

// Release atomically returns count copies to the pool. A release that would
// exceed total copies fails with ErrInvariantViolation; it is logged for
// operator attention and never clamped.
func (l *Ledger) Release(ctx context.Context, id uuid.UUID, count int) error {
	return l.db.WithinTx(ctx, "inventory.release", func(tx *sqlx.Tx) error {
		return l.ReleaseTx(ctx, tx, id, count)
	})
}

// ReleaseTx is the transaction-scoped variant of Release.
func (l *Ledger) ReleaseTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, count int) error {
	if count < 1 {
		return fmt.Errorf("release count must be positive")
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE books
		SET available = available + $2,
		    status = CASE
		        WHEN status IN ('lost', 'damaged') THEN status
		        ELSE 'available'
		    END,
		    updated_at = NOW()
		WHERE id = $1 AND available + $2 <= total_copies
	`, id, count)
	if err != nil {
		return fmt.Errorf("release copy: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("release copy rows: %w", err)
	}
	if n == 1 {
		return nil
	}

	err = l.missReason(ctx, tx, id, ErrInvariantViolation)
	if err == ErrInvariantViolation {
		l.logger.Error("release would exceed total copies",
			"book_id", id, "count", count)
	}
	return err
}

// missReason distinguishes a conditional update that matched no row because
// the book is missing from one that failed its guard.
func (l *Ledger) missReason(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, guardErr error) error {
	var exists bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM books WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check book exists: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return guardErr
}

// Status returns the current counters for a book.
func (l *Ledger) Status(ctx context.Context, id uuid.UUID) (int, int, error) {
	book, err := l.Get(ctx, id)
	if err != nil {
		return 0, 0, err
	}
	return book.Available, book.TotalCopies, nil
}

// SetCondition marks a book lost or damaged, or clears the condition back
// to the counter projection.
func (l *Ledger) SetCondition(ctx context.Context, id uuid.UUID, condition string) (*Book, error) {
	switch condition {
	case StatusLost, StatusDamaged, StatusAvailable:
	default:
		return nil, ErrInvalidCondition
	}

	err := l.db.WithinTx(ctx, "inventory.set_condition", func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE books
			SET status = CASE
			        WHEN $2 IN ('lost', 'damaged') THEN $2
			        WHEN available > 0 THEN 'available'
			        ELSE 'on-loan'
			    END,
			    updated_at = NOW()
			WHERE id = $1
		`, id, condition)
		if err != nil {
			return fmt.Errorf("set condition: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		return l.emitter.Record(ctx, tx, audit.Entry{
			BookID:  id,
			Action:  audit.ActionBookCondition,
			Details: map[string]any{"condition": condition},
		})
	})
	if err != nil {
		return nil, err
	}
	return l.Get(ctx, id)
}
