// internal/store/schema.go
package store

import (
	"context"
	"fmt"
)

// The partial unique indexes back the one-active-hold and one-active-loan
// per (book, user) invariants at the store level; managers surface the
// resulting unique violations as domain conflicts.
const schema = `
CREATE TABLE IF NOT EXISTS books (
	id UUID PRIMARY KEY,
	isbn TEXT NOT NULL DEFAULT '',
	title TEXT NOT NULL,
	author TEXT NOT NULL DEFAULT '',
	total_copies INT NOT NULL CHECK (total_copies >= 0),
	available INT NOT NULL CHECK (available >= 0),
	status TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CHECK (available <= total_copies)
);

CREATE TABLE IF NOT EXISTS reserves (
	id UUID PRIMARY KEY,
	book_id UUID NOT NULL REFERENCES books(id),
	user_id UUID NOT NULL,
	reserved_at TIMESTAMPTZ NOT NULL,
	pickup_date TIMESTAMPTZ NOT NULL,
	status TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS reserves_one_active
	ON reserves (book_id, user_id) WHERE status = 'reserved';
CREATE INDEX IF NOT EXISTS reserves_pickup
	ON reserves (pickup_date) WHERE status = 'reserved';

CREATE TABLE IF NOT EXISTS borrows (
	id UUID PRIMARY KEY,
	book_id UUID NOT NULL REFERENCES books(id),
	user_id UUID NOT NULL,
	borrowed_at TIMESTAMPTZ NOT NULL,
	due_date TIMESTAMPTZ NOT NULL,
	return_date TIMESTAMPTZ,
	status TEXT NOT NULL,
	renewals INT NOT NULL DEFAULT 0
);

CREATE UNIQUE INDEX IF NOT EXISTS borrows_one_active
	ON borrows (book_id, user_id) WHERE status IN ('borrowed', 'renewed', 'overdue');
CREATE INDEX IF NOT EXISTS borrows_due
	ON borrows (due_date) WHERE status IN ('borrowed', 'renewed');

CREATE TABLE IF NOT EXISTS activity_logs (
	id BIGSERIAL PRIMARY KEY,
	user_id UUID,
	book_id UUID,
	action_type TEXT NOT NULL,
	details JSONB,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS notifications (
	id BIGSERIAL PRIMARY KEY,
	user_id UUID NOT NULL,
	title TEXT NOT NULL,
	message TEXT NOT NULL,
	type TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	read BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS members (
	id UUID PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	status TEXT NOT NULL,
	password_hash TEXT NOT NULL,
	salt TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// Migrate creates the schema if it does not exist yet.
func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}
