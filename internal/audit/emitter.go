// internal/audit/emitter.go
package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"openshelf/internal/clock"
)

// Action types recorded for every circulation state transition.
const (
	ActionBookAdded        = "book_added"
	ActionBookCondition    = "book_condition_changed"
	ActionHoldPlaced       = "hold_placed"
	ActionHoldCancelled    = "hold_cancelled"
	ActionHoldExpired      = "hold_expired"
	ActionHoldFulfilled    = "hold_fulfilled"
	ActionCheckout         = "checkout"
	ActionRenewal          = "renewal"
	ActionReturn           = "return"
	ActionOverdue          = "overdue"
	ActionMemberRegistered = "member_registered"
)

// Notification types consumed by the UI layer.
const (
	NoticeInfo     = "info"
	NoticeWarning  = "warning"
	NoticeReminder = "reminder"
)

// Entry is one append-only activity log record.
type Entry struct {
	UserID  uuid.UUID
	BookID  uuid.UUID
	Action  string
	Details map[string]any
}

// Notification is a user-facing message; this core only writes them.
type Notification struct {
	Title   string
	Message string
	Type    string
}

// Emitter writes activity log entries and notifications. Both methods are
// transaction-scoped so every emission commits atomically with the state
// transition it describes.
type Emitter struct {
	clk clock.Clock
}

func NewEmitter(clk clock.Clock) *Emitter {
	return &Emitter{clk: clk}
}

func (e *Emitter) Record(ctx context.Context, tx *sqlx.Tx, entry Entry) error {
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("marshal audit details: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO activity_logs (user_id, book_id, action_type, details, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, nullable(entry.UserID), nullable(entry.BookID), entry.Action, details, e.clk.Now())
	if err != nil {
		return fmt.Errorf("insert activity log: %w", err)
	}
	return nil
}

func (e *Emitter) Notify(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, n Notification) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO notifications (user_id, title, message, type, created_at, read)
		VALUES ($1, $2, $3, $4, $5, FALSE)
	`, userID, n.Title, n.Message, n.Type, e.clk.Now())
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func nullable(id uuid.UUID) any {
	if id == uuid.Nil {
		return nil
	}
	return id
}
