// internal/inventory/ledger_test.go
package inventory_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"openshelf/internal/audit"
	"openshelf/internal/clock"
	"openshelf/internal/inventory"
	"openshelf/internal/store"
	"openshelf/internal/store/storetest"
)

func newLedger(t *testing.T) (*inventory.Ledger, *store.DB) {
	t.Helper()
	db := storetest.Open(t)
	clk := clock.NewFake(time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return inventory.NewLedger(db, audit.NewEmitter(clk), clk, logger), db
}

func TestTryHoldDrainsToOutOfStock(t *testing.T) {
	ledger, _ := newLedger(t)
	ctx := context.Background()

	book, err := ledger.AddBook(ctx, "978-0134190440", "The Go Programming Language", "Donovan & Kernighan", 2)
	require.NoError(t, err)
	assert.Equal(t, inventory.StatusAvailable, book.Status)

	require.NoError(t, ledger.TryHold(ctx, book.ID))
	require.NoError(t, ledger.TryHold(ctx, book.ID))

	err = ledger.TryHold(ctx, book.ID)
	assert.ErrorIs(t, err, inventory.ErrOutOfStock)

	available, total, err := ledger.Status(ctx, book.ID)
	require.NoError(t, err)
	assert.Zero(t, available)
	assert.Equal(t, 2, total)

	got, err := ledger.Get(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, inventory.StatusOnLoan, got.Status)
}

func TestReleaseRestoresAvailability(t *testing.T) {
	ledger, _ := newLedger(t)
	ctx := context.Background()

	book, err := ledger.AddBook(ctx, "978-0134190440", "The Go Programming Language", "Donovan & Kernighan", 1)
	require.NoError(t, err)

	require.NoError(t, ledger.TryHold(ctx, book.ID))
	require.NoError(t, ledger.Release(ctx, book.ID, 1))

	available, _, err := ledger.Status(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, available)

	got, err := ledger.Get(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, inventory.StatusAvailable, got.Status)
}

func TestReleaseBeyondTotalFailsLoudly(t *testing.T) {
	ledger, _ := newLedger(t)
	ctx := context.Background()

	book, err := ledger.AddBook(ctx, "", "Extra Copy", "", 1)
	require.NoError(t, err)

	err = ledger.Release(ctx, book.ID, 1)
	assert.ErrorIs(t, err, inventory.ErrInvariantViolation)

	// The count must be untouched, never clamped.
	available, total, err := ledger.Status(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, available)
	assert.Equal(t, 1, total)
}

func TestTryHoldMissingBook(t *testing.T) {
	ledger, _ := newLedger(t)

	err := ledger.TryHold(context.Background(), uuid.New())
	assert.ErrorIs(t, err, inventory.ErrNotFound)
}

func TestConcurrentHoldsNeverOverbook(t *testing.T) {
	ledger, _ := newLedger(t)
	ctx := context.Background()

	const copies = 5
	const contenders = 20

	book, err := ledger.AddBook(ctx, "", "Scarce Title", "", copies)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make(chan error, contenders)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- ledger.TryHold(ctx, book.ID)
		}()
	}
	wg.Wait()
	close(results)

	won := 0
	for err := range results {
		if err == nil {
			won++
		} else {
			assert.ErrorIs(t, err, inventory.ErrOutOfStock)
		}
	}
	assert.Equal(t, copies, won)

	available, _, err := ledger.Status(ctx, book.ID)
	require.NoError(t, err)
	assert.Zero(t, available)
}

func TestSetCondition(t *testing.T) {
	ledger, _ := newLedger(t)
	ctx := context.Background()

	book, err := ledger.AddBook(ctx, "", "Fragile Title", "", 1)
	require.NoError(t, err)

	marked, err := ledger.SetCondition(ctx, book.ID, inventory.StatusLost)
	require.NoError(t, err)
	assert.Equal(t, inventory.StatusLost, marked.Status)

	// Lost is sticky: counter movement does not overwrite it.
	require.NoError(t, ledger.TryHold(ctx, book.ID))
	got, err := ledger.Get(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, inventory.StatusLost, got.Status)

	restored, err := ledger.SetCondition(ctx, book.ID, inventory.StatusAvailable)
	require.NoError(t, err)
	assert.Equal(t, inventory.StatusOnLoan, restored.Status, "clearing a condition re-projects from the counter")

	_, err = ledger.SetCondition(ctx, book.ID, "soggy")
	assert.ErrorIs(t, err, inventory.ErrInvalidCondition)
}
