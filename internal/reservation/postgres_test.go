// internal/reservation/postgres_test.go
package reservation_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openshelf/internal/audit"
	"openshelf/internal/circulation"
	"openshelf/internal/clock"
	"openshelf/internal/inventory"
	"openshelf/internal/reservation"
	"openshelf/internal/store"
	"openshelf/internal/store/storetest"
	"openshelf/internal/sweeper"
)

type allowAllMembers struct{}

func (allowAllMembers) VerifyActive(context.Context, uuid.UUID) error { return nil }

// stack wires the managers against a live database exactly as main does,
// minus HTTP and membership.
type stack struct {
	db     *store.DB
	clk    *clock.Fake
	ledger *inventory.Ledger
	holds  reservation.Service
	loans  circulation.Service
	sweep  *sweeper.Sweeper
}

func newStack(t *testing.T) *stack {
	t.Helper()

	db := storetest.Open(t)
	clk := clock.NewFake(time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	emitter := audit.NewEmitter(clk)
	ledger := inventory.NewLedger(db, emitter, clk, logger)

	loanRepo := circulation.NewPostgresRepository(db, ledger, emitter)
	loans := circulation.NewService(loanRepo, allowAllMembers{}, clk, logger)

	holdRepo := reservation.NewPostgresRepository(db, ledger, emitter)
	holds := reservation.NewService(holdRepo, loans, allowAllMembers{}, clk, logger)

	swp := sweeper.New(sweeper.NewPostgresStore(db, ledger, emitter), clk, logger, time.Hour, 24*time.Hour)

	return &stack{db: db, clk: clk, ledger: ledger, holds: holds, loans: loans, sweep: swp}
}

func (s *stack) addBook(t *testing.T, copies int) uuid.UUID {
	t.Helper()
	book, err := s.ledger.AddBook(context.Background(), "", "Integration Title", "", copies)
	require.NoError(t, err)
	return book.ID
}

func (s *stack) available(t *testing.T, bookID uuid.UUID) int {
	t.Helper()
	available, _, err := s.ledger.Status(context.Background(), bookID)
	require.NoError(t, err)
	return available
}

func TestHoldPickupReturnRoundTrip(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	bookID, userID := s.addBook(t, 1), uuid.New()

	res, err := s.holds.PlaceHold(ctx, bookID, userID, nil)
	require.NoError(t, err)
	assert.Zero(t, s.available(t, bookID), "placement claims the copy")

	loan, err := s.holds.Fulfill(ctx, res.ID)
	require.NoError(t, err)
	assert.Zero(t, s.available(t, bookID), "pickup must not claim the copy again")

	got, err := s.holds.Get(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, reservation.StatusPickedUp, got.Status)

	returned, err := s.loans.Return(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, circulation.StatusReturned, returned.Status)
	assert.Equal(t, 1, s.available(t, bookID))
}

func TestFulfillTwice(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	bookID := s.addBook(t, 1)

	res, err := s.holds.PlaceHold(ctx, bookID, uuid.New(), nil)
	require.NoError(t, err)

	_, err = s.holds.Fulfill(ctx, res.ID)
	require.NoError(t, err)

	_, err = s.holds.Fulfill(ctx, res.ID)
	assert.ErrorIs(t, err, reservation.ErrInvalidState)
}

func TestSweepExpiresHoldAndFreesCopy(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	bookID := s.addBook(t, 1)

	res, err := s.holds.PlaceHold(ctx, bookID, uuid.New(), nil)
	require.NoError(t, err)
	assert.Zero(t, s.available(t, bookID))

	// Jump past the pickup window so the deadline is on a prior day.
	s.clk.Advance(reservation.DefaultPickupWindow + 24*time.Hour)

	n, err := s.sweep.SweepReservations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, s.available(t, bookID))

	got, err := s.holds.Get(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, reservation.StatusExpired, got.Status)

	_, err = s.holds.Fulfill(ctx, res.ID)
	assert.ErrorIs(t, err, reservation.ErrExpired)

	// Second sweep finds nothing to do.
	n, err = s.sweep.SweepReservations(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSweepKeepsHoldDueToday(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	bookID := s.addBook(t, 1)

	pickupBy := s.clk.Now().Add(2 * time.Hour)
	res, err := s.holds.PlaceHold(ctx, bookID, uuid.New(), &pickupBy)
	require.NoError(t, err)

	// Late the same day, past the instant but not the date.
	s.clk.Advance(8 * time.Hour)

	n, err := s.sweep.SweepReservations(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := s.holds.Get(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, reservation.StatusReserved, got.Status)
}

func TestOverdueSweepFlagsLateLoan(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	bookID, userID := s.addBook(t, 1), uuid.New()

	loan, err := s.loans.DirectCheckout(ctx, bookID, userID)
	require.NoError(t, err)

	s.clk.Advance(circulation.LoanPeriod + 24*time.Hour)

	n, err := s.sweep.SweepOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := s.loans.Get(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, circulation.StatusOverdue, got.Status)

	// Returning an overdue loan still works and frees the copy.
	_, err = s.loans.Return(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, s.available(t, bookID))
}

func TestHoldAndLoanConflictsAreMutual(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	bookID := s.addBook(t, 3)
	holder, borrower := uuid.New(), uuid.New()

	_, err := s.holds.PlaceHold(ctx, bookID, holder, nil)
	require.NoError(t, err)

	_, err = s.holds.PlaceHold(ctx, bookID, holder, nil)
	assert.ErrorIs(t, err, reservation.ErrAlreadyReserved)

	// The holder's copy is already committed; a desk checkout must not
	// consume a second one.
	_, err = s.loans.DirectCheckout(ctx, bookID, holder)
	assert.ErrorIs(t, err, circulation.ErrAlreadyReserved)
	assert.Equal(t, 2, s.available(t, bookID))

	_, err = s.loans.DirectCheckout(ctx, bookID, borrower)
	require.NoError(t, err)

	_, err = s.loans.DirectCheckout(ctx, bookID, borrower)
	assert.ErrorIs(t, err, circulation.ErrAlreadyBorrowed)

	_, err = s.holds.PlaceHold(ctx, bookID, borrower, nil)
	assert.ErrorIs(t, err, circulation.ErrAlreadyBorrowed)
	assert.Equal(t, 1, s.available(t, bookID))
}

func TestRenewalsThroughStore(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	bookID := s.addBook(t, 1)

	loan, err := s.loans.DirectCheckout(ctx, bookID, uuid.New())
	require.NoError(t, err)
	firstDue := loan.DueDate

	for i := 0; i < circulation.MaxRenewals; i++ {
		loan, err = s.loans.Renew(ctx, loan.ID, nil)
		require.NoError(t, err)
	}
	assert.Equal(t, circulation.MaxRenewals, loan.Renewals)
	wantDue := firstDue.Add(2*circulation.StandardExtension + circulation.FinalExtension)
	assert.True(t, loan.DueDate.Equal(wantDue), "due %v, want %v", loan.DueDate, wantDue)

	_, err = s.loans.Renew(ctx, loan.ID, nil)
	assert.ErrorIs(t, err, circulation.ErrRenewalLimitExceeded)
}
