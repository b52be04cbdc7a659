// internal/circulation/implementation.go
package circulation

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
	"openshelf/internal/clock"
	"openshelf/internal/inventory"
	"openshelf/internal/store"
)

// service implements the Service interface.
type service struct {
	repo    Repository
	members Members
	clk     clock.Clock
	logger  *slog.Logger
}

// NewService creates a new checkout manager.
func NewService(repo Repository, members Members, clk clock.Clock, logger *slog.Logger) Service {
	return &service{repo: repo, members: members, clk: clk, logger: logger}
}

func (s *service) CreateLoanFromHold(ctx context.Context, hold HoldRef) (*Loan, error) {
	now := s.clk.Now()
	loan := &Loan{
		ID:         uuid.New(),
		BookID:     hold.BookID,
		UserID:     hold.UserID,
		BorrowedAt: now,
		DueDate:    now.Add(LoanPeriod),
		Status:     StatusBorrowed,
	}

	if err := s.repo.CreateFromHold(ctx, loan, hold.ReservationID); err != nil {
		return nil, err
	}
	return loan, nil
}

func (s *service) DirectCheckout(ctx context.Context, bookID, userID uuid.UUID) (*Loan, error) {
	if err := s.members.VerifyActive(ctx, userID); err != nil {
		return nil, err
	}

	now := s.clk.Now()
	loan := &Loan{
		ID:         uuid.New(),
		BookID:     bookID,
		UserID:     userID,
		BorrowedAt: now,
		DueDate:    now.Add(LoanPeriod),
		Status:     StatusBorrowed,
	}

	if err := s.repo.CreateDirect(ctx, loan); err != nil {
		return nil, err
	}
	return loan, nil
}

func (s *service) Renew(ctx context.Context, loanID uuid.UUID, requestedDueDate *time.Time) (*Loan, error) {
	loan, err := s.repo.Get(ctx, loanID)
	if err != nil {
		return nil, err
	}

	newDue, err := DecideRenewal(loan, requestedDueDate)
	if err != nil {
		return nil, err
	}

	prev := loan.Renewals
	loan.DueDate = newDue
	loan.Renewals++
	loan.Status = StatusBorrowed

	if err := s.repo.SaveRenewal(ctx, loan, prev); err != nil {
		return nil, err
	}
	return loan, nil
}

func (s *service) Return(ctx context.Context, loanID uuid.UUID) (*Loan, error) {
	loan, err := s.repo.Get(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if !loan.Active() {
		return nil, ErrInvalidState
	}

	now := s.clk.Now()
	loan.Status = StatusReturned
	loan.ReturnDate = &now

	if err := s.repo.MarkReturned(ctx, loan); err != nil {
		return nil, err
	}
	return loan, nil
}

func (s *service) Get(ctx context.Context, loanID uuid.UUID) (*Loan, error) {
	return s.repo.Get(ctx, loanID)
}

func (s *service) ListByUser(ctx context.Context, userID uuid.UUID) ([]*Loan, error) {
	return s.repo.ListByUser(ctx, userID)
}

// postgresRepository stores loans in the borrows collection. All copy
// movement goes through the ledger's transaction-scoped methods.
type postgresRepository struct {
	db      *store.DB
	ledger  *inventory.Ledger
	emitter *audit.Emitter
}

var _ Repository = (*postgresRepository)(nil)

func NewPostgresRepository(db *store.DB, ledger *inventory.Ledger, emitter *audit.Emitter) Repository {
	return &postgresRepository{db: db, ledger: ledger, emitter: emitter}
}

const insertLoanQuery = `
	INSERT INTO borrows (id, book_id, user_id, borrowed_at, due_date, status, renewals)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
`

func (r *postgresRepository) CreateFromHold(ctx context.Context, loan *Loan, reservationID uuid.UUID) error {
	return r.db.WithinTx(ctx, "circulation.create_from_hold", func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE reserves SET status = 'picked-up'
			WHERE id = $1 AND status = 'reserved'
		`, reservationID)
		if err != nil {
			return fmt.Errorf("mark reservation picked up: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return ErrHoldNotActive
		}

		if err := r.insertLoan(ctx, tx, loan); err != nil {
			return err
		}

		if err := r.emitter.Record(ctx, tx, audit.Entry{
			UserID: loan.UserID,
			BookID: loan.BookID,
			Action: audit.ActionHoldFulfilled,
			Details: map[string]any{
				"reservation_id": reservationID.String(),
				"loan_id":        loan.ID.String(),
				"due_date":       loan.DueDate,
			},
		}); err != nil {
			return err
		}
		return r.emitter.Notify(ctx, tx, loan.UserID, audit.Notification{
			Title:   "Pickup complete",
			Message: fmt.Sprintf("Your hold is now checked out, due back %s.", loan.DueDate.Format("Jan 2, 2006")),
			Type:    audit.NoticeInfo,
		})
	})
}

func (r *postgresRepository) CreateDirect(ctx context.Context, loan *Loan) error {
	return r.db.WithinTx(ctx, "circulation.create_direct", func(tx *sqlx.Tx) error {
		var held bool
		if err := tx.QueryRowContext(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM reserves
				WHERE book_id = $1 AND user_id = $2 AND status = 'reserved'
			)
		`, loan.BookID, loan.UserID).Scan(&held); err != nil {
			return fmt.Errorf("check active hold: %w", err)
		}
		if held {
			// The copy is already committed to this patron's hold.
			return ErrAlreadyReserved
		}

		if err := r.ledger.TryHoldTx(ctx, tx, loan.BookID); err != nil {
			return err
		}

		if err := r.insertLoan(ctx, tx, loan); err != nil {
			return err
		}

		if err := r.emitter.Record(ctx, tx, audit.Entry{
			UserID: loan.UserID,
			BookID: loan.BookID,
			Action: audit.ActionCheckout,
			Details: map[string]any{
				"loan_id":  loan.ID.String(),
				"due_date": loan.DueDate,
			},
		}); err != nil {
			return err
		}
		return r.emitter.Notify(ctx, tx, loan.UserID, audit.Notification{
			Title:   "Checked out",
			Message: fmt.Sprintf("Enjoy your book, due back %s.", loan.DueDate.Format("Jan 2, 2006")),
			Type:    audit.NoticeInfo,
		})
	})
}

func (r *postgresRepository) insertLoan(ctx context.Context, tx *sqlx.Tx, loan *Loan) error {
	_, err := tx.ExecContext(ctx, insertLoanQuery,
		loan.ID, loan.BookID, loan.UserID, loan.BorrowedAt, loan.DueDate, loan.Status, loan.Renewals)
	if store.IsUniqueViolation(err, "borrows_one_active") {
		return ErrAlreadyBorrowed
	}
	if err != nil {
		return fmt.Errorf("insert loan: %w", err)
	}
	return nil
}

func (r *postgresRepository) SaveRenewal(ctx context.Context, loan *Loan, prevRenewals int) error {
	return r.db.WithinTx(ctx, "circulation.save_renewal", func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE borrows
			SET due_date = $2, renewals = $3, status = 'borrowed'
			WHERE id = $1
			  AND status IN ('borrowed', 'renewed', 'overdue')
			  AND renewals = $4
		`, loan.ID, loan.DueDate, loan.Renewals, prevRenewals)
		if err != nil {
			return fmt.Errorf("save renewal: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			// Lost a race with another renewal or a return.
			return ErrInvalidState
		}

		if err := r.emitter.Record(ctx, tx, audit.Entry{
			UserID: loan.UserID,
			BookID: loan.BookID,
			Action: audit.ActionRenewal,
			Details: map[string]any{
				"loan_id":  loan.ID.String(),
				"renewals": loan.Renewals,
				"due_date": loan.DueDate,
			},
		}); err != nil {
			return err
		}
		return r.emitter.Notify(ctx, tx, loan.UserID, audit.Notification{
			Title:   "Loan renewed",
			Message: fmt.Sprintf("Your loan is now due %s.", loan.DueDate.Format("Jan 2, 2006")),
			Type:    audit.NoticeInfo,
		})
	})
}

func (r *postgresRepository) MarkReturned(ctx context.Context, loan *Loan) error {
	return r.db.WithinTx(ctx, "circulation.mark_returned", func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE borrows
			SET status = 'returned', return_date = $2
			WHERE id = $1 AND status IN ('borrowed', 'renewed', 'overdue')
		`, loan.ID, loan.ReturnDate)
		if err != nil {
			return fmt.Errorf("mark returned: %w", err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return ErrInvalidState
		}

		if err := r.ledger.ReleaseTx(ctx, tx, loan.BookID, 1); err != nil {
			return err
		}

		if err := r.emitter.Record(ctx, tx, audit.Entry{
			UserID: loan.UserID,
			BookID: loan.BookID,
			Action: audit.ActionReturn,
			Details: map[string]any{
				"loan_id":     loan.ID.String(),
				"return_date": loan.ReturnDate,
			},
		}); err != nil {
			return err
		}
		return r.emitter.Notify(ctx, tx, loan.UserID, audit.Notification{
			Title:   "Returned",
			Message: "Thanks for bringing your book back.",
			Type:    audit.NoticeInfo,
		})
	})
}

func (r *postgresRepository) Get(ctx context.Context, loanID uuid.UUID) (*Loan, error) {
	var loan Loan
	err := r.db.Read(ctx, "circulation.get", func(ctx context.Context) error {
		return r.db.GetContext(ctx, &loan, `
			SELECT id, book_id, user_id, borrowed_at, due_date, return_date, status, renewals
			FROM borrows WHERE id = $1
		`, loanID)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get loan: %w", err)
	}
	return &loan, nil
}

func (r *postgresRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*Loan, error) {
	var loans []*Loan
	err := r.db.Read(ctx, "circulation.list_by_user", func(ctx context.Context) error {
		return r.db.SelectContext(ctx, &loans, `
			SELECT id, book_id, user_id, borrowed_at, due_date, return_date, status, renewals
			FROM borrows WHERE user_id = $1
			ORDER BY borrowed_at DESC
		`, userID)
	})
	if err != nil {
		return nil, fmt.Errorf("list loans: %w", err)
	}
	return loans, nil
}
