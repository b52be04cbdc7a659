// internal/store/store.go
package store

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const readMaxAttempts = 3

// ErrUnavailable is returned when the database cannot be reached, including
// when the circuit breaker is open.
var ErrUnavailable = errors.New("store unavailable")

// DB wraps the postgres connection pool with tracing, a circuit breaker and
// a bounded retry policy for idempotent reads. Multi-statement transactions
// are never retried; they either fully commit or fail.
type DB struct {
	*sqlx.DB
	tracer  trace.Tracer
	breaker *gobreaker.CircuitBreaker
}

// Open connects to postgres and configures the pool.
func Open(databaseURL string) (*DB, error) {
	db, err := sqlx.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "postgres",
		Timeout: 10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// Only transport failures count against the breaker. Domain
		// outcomes (no rows, guard misses, constraint conflicts) flow
		// back as errors but the store itself is healthy.
		IsSuccessful: func(err error) bool {
			return !isTransient(err)
		},
	})

	return &DB{
		DB:      db,
		tracer:  otel.Tracer("openshelf/store"),
		breaker: breaker,
	}, nil
}

// Read executes fn under the breaker, retrying transient transport failures
// with exponential backoff. Only known-idempotent operations (pure reads,
// single atomic conditional writes) may go through here.
func (d *DB) Read(ctx context.Context, op string, fn func(context.Context) error) error {
	ctx, span := d.tracer.Start(ctx, op,
		trace.WithAttributes(attribute.String("db.operation", op)),
	)
	defer span.End()

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := d.execute(ctx, fn)
		if err != nil && !isTransient(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(readMaxAttempts),
	)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// Write executes fn under the breaker exactly once.
func (d *DB) Write(ctx context.Context, op string, fn func(context.Context) error) error {
	ctx, span := d.tracer.Start(ctx, op,
		trace.WithAttributes(attribute.String("db.operation", op)),
	)
	defer span.End()

	err := d.execute(ctx, fn)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// WithinTx runs fn inside a single transaction under the breaker. Every
// multi-document state change goes through here so that partial application
// is impossible.
func (d *DB) WithinTx(ctx context.Context, op string, fn func(tx *sqlx.Tx) error) error {
	ctx, span := d.tracer.Start(ctx, op,
		trace.WithAttributes(
			attribute.String("db.operation", op),
			attribute.Bool("db.transaction", true),
		),
	)
	defer span.End()

	err := d.execute(ctx, func(ctx context.Context) error {
		tx, err := d.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		defer tx.Rollback()

		if err := fn(tx); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func (d *DB) execute(ctx context.Context, fn func(context.Context) error) error {
	_, err := d.breaker.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}

func isTransient(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, io.EOF) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// IsUniqueViolation reports whether err is a postgres unique constraint
// violation, optionally on a specific constraint name.
func IsUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != "23505" {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}
