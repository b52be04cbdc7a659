// internal/membership/implementation.go
package membership

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"golang.org/x/time/rate"

	"openshelf/internal/audit"
	"openshelf/internal/clock"
	"openshelf/internal/store"
)

// service implements the Service interface.
type service struct {
	db          *store.DB
	emitter     *audit.Emitter
	clk         clock.Clock
	logger      *slog.Logger
	rateLimiter *rate.Limiter
}

// NewService creates a new member registry.
func NewService(db *store.DB, emitter *audit.Emitter, clk clock.Clock, logger *slog.Logger) Service {
	return &service{
		db:          db,
		emitter:     emitter,
		clk:         clk,
		logger:      logger,
		rateLimiter: rate.NewLimiter(rate.Limit(5), 10), // 5/s sustained, bursts of 10
	}
}

func (s *service) Register(ctx context.Context, email, name, password string) (*Member, error) {
	if !s.rateLimiter.Allow() {
		return nil, ErrRateLimited
	}
	if email == "" || name == "" {
		return nil, fmt.Errorf("email and name are required")
	}

	hash, salt, err := hashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	member := &Member{
		ID:        uuid.New(),
		Email:     email,
		Name:      name,
		Status:    StatusActive,
		CreatedAt: s.clk.Now(),
	}

	err = s.db.WithinTx(ctx, "membership.register", func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO members (id, email, name, status, password_hash, salt, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, member.ID, member.Email, member.Name, member.Status, hash, salt, member.CreatedAt)
		if store.IsUniqueViolation(err, "") {
			return ErrEmailTaken
		}
		if err != nil {
			return fmt.Errorf("insert member: %w", err)
		}
		return s.emitter.Record(ctx, tx, audit.Entry{
			UserID:  member.ID,
			Action:  audit.ActionMemberRegistered,
			Details: map[string]any{"email": member.Email},
		})
	})
	if err != nil {
		return nil, err
	}
	return member, nil
}

func (s *service) Authenticate(ctx context.Context, email, password string) (*Member, error) {
	if !s.rateLimiter.Allow() {
		return nil, ErrRateLimited
	}

	var row struct {
		Member
		PasswordHash string `db:"password_hash"`
		Salt         string `db:"salt"`
	}
	err := s.db.Read(ctx, "membership.authenticate", func(ctx context.Context) error {
		return s.db.GetContext(ctx, &row, `
			SELECT id, email, name, status, created_at, password_hash, salt
			FROM members WHERE email = $1
		`, email)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("load member: %w", err)
	}

	ok, err := verifyPassword(password, row.Salt, row.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}
	return &row.Member, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*Member, error) {
	var member Member
	err := s.db.Read(ctx, "membership.get", func(ctx context.Context) error {
		return s.db.GetContext(ctx, &member, `
			SELECT id, email, name, status, created_at
			FROM members WHERE id = $1
		`, id)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get member: %w", err)
	}
	return &member, nil
}

func (s *service) VerifyActive(ctx context.Context, id uuid.UUID) error {
	member, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if member.Status != StatusActive {
		return ErrInactive
	}
	return nil
}
