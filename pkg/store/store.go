// Package store implements the PostgreSQL repositories. Every read on a
// tenant-owned table goes through a policy.ScopedFilter, so an unscoped
// query cannot be built.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/eap-project/eap/pkg/policy"
)

// Store bundles all repositories over one connection pool.
type Store struct {
	db *sqlx.DB

	Tenants       *TenantRepo
	Users         *UserRepo
	Plans         *PlanRepo
	Goals         *GoalRepo
	Memories      *MemoryRepo
	Webhooks      *WebhookRepo
	Audit         *AuditRepo
	Conversations *ConversationRepo
}

// New creates a store over an open handle.
func New(db *sqlx.DB) *Store {
	return &Store{
		db:            db,
		Tenants:       &TenantRepo{db: db},
		Users:         &UserRepo{db: db},
		Plans:         &PlanRepo{db: db},
		Goals:         &GoalRepo{db: db},
		Memories:      &MemoryRepo{db: db},
		Webhooks:      &WebhookRepo{db: db},
		Audit:         &AuditRepo{db: db},
		Conversations: &ConversationRepo{db: db},
	}
}

// WithTx runs fn inside a transaction: commit on nil, rollback otherwise.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}
	return tx.Commit()
}

// notFound maps the driver's empty-result error to the uniform
// policy.ErrNotFound every caller must observe.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return policy.ErrNotFound
	}
	return err
}
