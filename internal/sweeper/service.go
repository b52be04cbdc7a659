// internal/sweeper/service.go
package sweeper

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"openshelf/internal/clock"
)

// Store is the reconciliation surface the sweeper drives. Both methods are
// idempotent: they gate on current status, so running them twice with no
// intervening change is a no-op.
type Store interface {
	// ExpireReservations expires every hold whose pickup date falls before
	// dayStart and releases its copy, one atomic batch per hold. Returns
	// how many holds were expired.
	ExpireReservations(ctx context.Context, dayStart time.Time) (int, error)

	// MarkOverdue persists the overdue status on every active loan past
	// its due date. Returns how many loans were flagged.
	MarkOverdue(ctx context.Context, now time.Time) (int, error)
}

// Sweeper is the periodic reconciliation job: it expires stale holds and
// flags overdue loans. It is the only mechanism driving time-based state;
// UI sessions may trigger an on-demand run but never replace it.
type Sweeper struct {
	store           Store
	clk             clock.Clock
	logger          *slog.Logger
	holdInterval    time.Duration
	overdueInterval time.Duration

	mu sync.Mutex // single-flight; overlapping runs are safe but pointless
}

func New(store Store, clk clock.Clock, logger *slog.Logger, holdInterval, overdueInterval time.Duration) *Sweeper {
	return &Sweeper{
		store:           store,
		clk:             clk,
		logger:          logger,
		holdInterval:    holdInterval,
		overdueInterval: overdueInterval,
	}
}

// SweepReservations expires holds whose pickup date is before today.
func (s *Sweeper) SweepReservations(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dayStart := clock.StartOfDay(s.clk.Now())
	n, err := s.store.ExpireReservations(ctx, dayStart)
	if err != nil {
		s.logger.Error("reservation sweep failed", "error", err)
		return n, err
	}
	if n > 0 {
		s.logger.Info("expired stale holds", "count", n)
	}
	return n, nil
}

// SweepOverdue flags active loans past their due date.
func (s *Sweeper) SweepOverdue(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.store.MarkOverdue(ctx, s.clk.Now())
	if err != nil {
		s.logger.Error("overdue sweep failed", "error", err)
		return n, err
	}
	if n > 0 {
		s.logger.Info("flagged overdue loans", "count", n)
	}
	return n, nil
}

// RunOnce performs both sweeps. Safe to call on demand at any time.
func (s *Sweeper) RunOnce(ctx context.Context) error {
	if _, err := s.SweepReservations(ctx); err != nil {
		return err
	}
	_, err := s.SweepOverdue(ctx)
	return err
}

// Run sweeps on the configured intervals until ctx is cancelled. It sweeps
// once immediately so a restart never leaves stale state waiting a full
// interval.
func (s *Sweeper) Run(ctx context.Context) {
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("initial sweep failed", "error", err)
	}

	holds := time.NewTicker(s.holdInterval)
	defer holds.Stop()
	overdue := time.NewTicker(s.overdueInterval)
	defer overdue.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-holds.C:
			if _, err := s.SweepReservations(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("scheduled reservation sweep failed", "error", err)
			}
		case <-overdue.C:
			if _, err := s.SweepOverdue(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("scheduled overdue sweep failed", "error", err)
			}
		}
	}
}
