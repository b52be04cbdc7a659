// internal/reservation/implementation.go
package reservation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"openshelf/internal/audit"
	"openshelf/internal/circulation"
	"openshelf/internal/clock"
	"openshelf/internal/inventory"
	"openshelf/internal/store"
)

// service implements the Service interface.
type service struct {
	repo    Repository
	loans   LoanCreator
	members Members
	clk     clock.Clock
	logger  *slog.Logger
}

// NewService creates a new reservation manager.
func NewService(repo Repository, loans LoanCreator, members Members, clk clock.Clock, logger *slog.Logger) Service {
	return &service{repo: repo, loans: loans, members: members, clk: clk, logger: logger}
}

func (s *service) PlaceHold(ctx context.Context, bookID, userID uuid.UUID, pickupBy *time.Time) (*Reservation, error) {
	if err := s.members.VerifyActive(ctx, userID); err != nil {
		return nil, err
	}

	now := s.clk.Now()
	deadline := now.Add(DefaultPickupWindow)
	if pickupBy != nil {
		if pickupBy.Before(now) {
			return nil, ErrInvalidPickupDate
		}
		deadline = pickupBy.UTC()
	}

	res := &Reservation{
		ID:         uuid.New(),
		BookID:     bookID,
		UserID:     userID,
		ReservedAt: now,
		PickupBy:   deadline,
		Status:     StatusReserved,
	}

	if err := s.repo.Create(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *service) Cancel(ctx context.Context, reservationID uuid.UUID) (*Reservation, error) {
	res, err := s.repo.Get(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if res.Status != StatusReserved {
		return nil, ErrInvalidState
	}

	res.Status = StatusCancelled
	if err := s.repo.MarkCancelled(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *service) Fulfill(ctx context.Context, reservationID uuid.UUID) (*circulation.Loan, error) {
	res, err := s.repo.Get(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if err := res.CanFulfill(s.clk.Now()); err != nil {
		// An expired hold is re-driven through the sweeper, never
		// fulfilled late.
		return nil, err
	}

	return s.loans.CreateLoanFromHold(ctx, circulation.HoldRef{
		ReservationID: res.ID,
		BookID:        res.BookID,
		UserID:        res.UserID,
	})
}

func (s *service) Get(ctx context.Context, reservationID uuid.UUID) (*Reservation, error) {
	return s.repo.Get(ctx, reservationID)
}

func (s *service) ListByUser(ctx context.Context, userID uuid.UUID) ([]*Reservation, error) {
	return s.repo.ListByUser(ctx, userID)
}

// postgresRepository stores reservations in the reserves collection.
type postgresRepository struct {
	db      *store.DB
	ledger  *inventory.Ledger
	emitter *audit.Emitter
}

var _ Repository = (*postgresRepository)(nil)

func NewPostgresRepository(db *store.DB, ledger *inventory.Ledger, emitter *audit.Emitter) Repository {
	return &postgresRepository{db: db, ledger: ledger, emitter: emitter}
}

func (r *postgresRepository) Create(ctx context.Context, res *Reservation) error {
	return r.db.WithinTx(ctx, "reservation.create", func(tx *sqlx.Tx) error {
		var borrowed bool
		if err := tx.QueryRowContext(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM borrows
				WHERE book_id = $1 AND user_id = $2
				  AND status IN ('borrowed', 'renewed', 'overdue')
			)
		`, res.BookID, res.UserID).Scan(&borrowed); err != nil {
			return fmt.Errorf("check active loan: %w", err)
		}
		if borrowed {
			return circulation.ErrAlreadyBorrowed
		}

		if err := r.ledger.TryHoldTx(ctx, tx, res.BookID); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO reserves (id, book_id, user_id, reserved_at, pickup_date, status)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, res.ID, res.BookID, res.UserID, res.ReservedAt, res.PickupBy, res.Status)
		if store.IsUniqueViolation(err, "reserves_one_active") {
			return ErrAlreadyReserved
		}
		if err != nil {
			return fmt.Errorf("insert reservation: %w", err)
		}

		if err := r.emitter.Record(ctx, tx, audit.Entry{
			UserID: res.UserID,
			BookID: res.BookID,
			Action: audit.ActionHoldPlaced,
			Details: map[string]any{
				"reservation_id": res.ID.String(),
				"pickup_by":      res.PickupBy,
			},
		}); err != nil {
			return err
		}
		return r.emitter.Notify(ctx, tx, res.UserID, audit.Notification{
			Title:   "Hold placed",
			Message: fmt.Sprintf("A copy is waiting for you until %s.", res.PickupBy.Format("Jan 2, 2006")),
			Type:    audit.NoticeInfo,
		})
	})
}

func (r *postgresRepository) MarkCancelled(ctx context.Context, res *Reservation) error {
	return r.db.WithinTx(ctx, "reservation.cancel", func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, `
			UPDATE reserves SET status = 'cancelled'
			WHERE id = $1 AND status = 'reserved'
		`, res.ID)
		if err != nil {
			return fmt.Errorf("cancel reservation: %w", err)
		}
		if n, err := result.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return ErrInvalidState
		}

		if err := r.ledger.ReleaseTx(ctx, tx, res.BookID, 1); err != nil {
			return err
		}

		if err := r.emitter.Record(ctx, tx, audit.Entry{
			UserID:  res.UserID,
			BookID:  res.BookID,
			Action:  audit.ActionHoldCancelled,
			Details: map[string]any{"reservation_id": res.ID.String()},
		}); err != nil {
			return err
		}
		return r.emitter.Notify(ctx, tx, res.UserID, audit.Notification{
			Title:   "Hold cancelled",
			Message: "Your hold was cancelled and the copy is available again.",
			Type:    audit.NoticeInfo,
		})
	})
}

func (r *postgresRepository) Get(ctx context.Context, reservationID uuid.UUID) (*Reservation, error) {
	var res Reservation
	err := r.db.Read(ctx, "reservation.get", func(ctx context.Context) error {
		return r.db.GetContext(ctx, &res, `
			SELECT id, book_id, user_id, reserved_at, pickup_date, status
			FROM reserves WHERE id = $1
		`, reservationID)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	return &res, nil
}

func (r *postgresRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*Reservation, error) {
	var out []*Reservation
	err := r.db.Read(ctx, "reservation.list_by_user", func(ctx context.Context) error {
		return r.db.SelectContext(ctx, &out, `
			SELECT id, book_id, user_id, reserved_at, pickup_date, status
			FROM reserves WHERE user_id = $1
			ORDER BY reserved_at DESC
		`, userID)
	})
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	return out, nil
}
