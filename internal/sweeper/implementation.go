// internal/sweeper/implementation.go
package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"openshelf/internal/audit"
	"openshelf/internal/inventory"
	"openshelf/internal/store"
)

// postgresStore reconciles the reserves and borrows collections. Copy
// release always goes through the ledger.
type postgresStore struct {
	db      *store.DB
	ledger  *inventory.Ledger
	emitter *audit.Emitter
}

var _ Store = (*postgresStore)(nil)

func NewPostgresStore(db *store.DB, ledger *inventory.Ledger, emitter *audit.Emitter) Store {
	return &postgresStore{db: db, ledger: ledger, emitter: emitter}
}

type staleHold struct {
	ID       uuid.UUID `db:"id"`
	BookID   uuid.UUID `db:"book_id"`
	UserID   uuid.UUID `db:"user_id"`
	PickupBy time.Time `db:"pickup_date"`
}

func (p *postgresStore) ExpireReservations(ctx context.Context, dayStart time.Time) (int, error) {
	var stale []staleHold
	err := p.db.Read(ctx, "sweeper.find_stale_holds", func(ctx context.Context) error {
		return p.db.SelectContext(ctx, &stale, `
			SELECT id, book_id, user_id, pickup_date
			FROM reserves
			WHERE status = 'reserved' AND pickup_date < $1
		`, dayStart)
	})
	if err != nil {
		return 0, fmt.Errorf("find stale holds: %w", err)
	}

	// One transaction per hold: a failure mid-sweep leaves every already
	// expired hold fully committed, and the next run picks up the rest.
	expired := 0
	for _, hold := range stale {
		if err := p.expireOne(ctx, hold); err != nil {
			return expired, err
		}
		expired++
	}
	return expired, nil
}

func (p *postgresStore) expireOne(ctx context.Context, hold staleHold) error {
	return p.db.WithinTx(ctx, "sweeper.expire_hold", func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE reserves SET status = 'expired'
			WHERE id = $1 AND status = 'reserved'
		`, hold.ID)
		if err != nil {
			return fmt.Errorf("expire reservation: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			// Raced with a pickup, a cancel or another sweep.
			return nil
		}

		if err := p.ledger.ReleaseTx(ctx, tx, hold.BookID, 1); err != nil {
			return err
		}

		if err := p.emitter.Record(ctx, tx, audit.Entry{
			UserID: hold.UserID,
			BookID: hold.BookID,
			Action: audit.ActionHoldExpired,
			Details: map[string]any{
				"reservation_id": hold.ID.String(),
				"pickup_by":      hold.PickupBy,
			},
		}); err != nil {
			return err
		}
		return p.emitter.Notify(ctx, tx, hold.UserID, audit.Notification{
			Title:   "Hold expired",
			Message: "Your hold was not picked up in time and has been released.",
			Type:    audit.NoticeWarning,
		})
	})
}

type overdueLoan struct {
	ID      uuid.UUID `db:"id"`
	BookID  uuid.UUID `db:"book_id"`
	UserID  uuid.UUID `db:"user_id"`
	DueDate time.Time `db:"due_date"`
}

func (p *postgresStore) MarkOverdue(ctx context.Context, now time.Time) (int, error) {
	var flagged []overdueLoan
	err := p.db.WithinTx(ctx, "sweeper.mark_overdue", func(tx *sqlx.Tx) error {
		rows, err := tx.QueryxContext(ctx, `
			UPDATE borrows SET status = 'overdue'
			WHERE status IN ('borrowed', 'renewed') AND due_date < $1
			RETURNING id, book_id, user_id, due_date
		`, now)
		if err != nil {
			return fmt.Errorf("mark overdue: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var loan overdueLoan
			if err := rows.StructScan(&loan); err != nil {
				return fmt.Errorf("scan overdue loan: %w", err)
			}
			flagged = append(flagged, loan)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("iterate overdue loans: %w", err)
		}
		rows.Close()

		for _, loan := range flagged {
			if err := p.emitter.Record(ctx, tx, audit.Entry{
				UserID: loan.UserID,
				BookID: loan.BookID,
				Action: audit.ActionOverdue,
				Details: map[string]any{
					"loan_id":  loan.ID.String(),
					"due_date": loan.DueDate,
				},
			}); err != nil {
				return err
			}
			if err := p.emitter.Notify(ctx, tx, loan.UserID, audit.Notification{
				Title:   "Book overdue",
				Message: fmt.Sprintf("Your loan was due %s. Please return or renew it.", loan.DueDate.Format("Jan 2, 2006")),
				Type:    audit.NoticeReminder,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(flagged), nil
}
