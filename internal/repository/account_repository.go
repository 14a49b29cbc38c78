package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/stemsi/exstem-client/internal/model"
)

// AccountRepository owns the accounts table. At most one account is marked
// active; the active account is the tenant every sync run operates on.
type AccountRepository struct {
	db *sql.DB
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Upsert stores the account and marks it as the active one, deactivating
// any previously active account in the same transaction.
func (r *AccountRepository) Upsert(ctx context.Context, acc model.Account) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin account upsert: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE accounts SET active = 0 WHERE active = 1`); err != nil {
		return fmt.Errorf("deactivate accounts: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO accounts (user_email, name, auth_token, password_hash, active, updated_at)
		 VALUES (?, ?, ?, ?, 1, ?)
		 ON CONFLICT (user_email) DO UPDATE SET
		   name = excluded.name,
		   auth_token = excluded.auth_token,
		   password_hash = excluded.password_hash,
		   active = 1,
		   updated_at = excluded.updated_at`,
		acc.UserEmail, acc.Name, acc.AuthToken, acc.PasswordHash, encodeTime(time.Now())); err != nil {
		return fmt.Errorf("upsert account: %w", err)
	}
	return tx.Commit()
}

// Get returns one account by email, or ErrNotFound.
func (r *AccountRepository) Get(ctx context.Context, userEmail string) (*model.Account, error) {
	return r.get(ctx,
		`SELECT user_email, name, auth_token, password_hash, active, updated_at
		 FROM accounts WHERE user_email = ?`, userEmail)
}

// GetActive returns the currently active account, or ErrNotFound if the
// device has no signed-in user.
func (r *AccountRepository) GetActive(ctx context.Context) (*model.Account, error) {
	return r.get(ctx,
		`SELECT user_email, name, auth_token, password_hash, active, updated_at
		 FROM accounts WHERE active = 1 LIMIT 1`)
}

// Deactivate clears the active flag for the given account (plain logout,
// offline data retained).
func (r *AccountRepository) Deactivate(ctx context.Context, userEmail string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET active = 0 WHERE user_email = ?`, userEmail)
	if err != nil {
		return fmt.Errorf("deactivate account: %w", err)
	}
	return nil
}

// DeleteAll removes every local account.
func (r *AccountRepository) DeleteAll(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM accounts`)
	if err != nil {
		return fmt.Errorf("wipe accounts: %w", err)
	}
	return nil
}

func (r *AccountRepository) get(ctx context.Context, query string, args ...any) (*model.Account, error) {
	var (
		acc       model.Account
		active    int
		updatedAt string
	)
	err := r.db.QueryRowContext(ctx, query, args...).
		Scan(&acc.UserEmail, &acc.Name, &acc.AuthToken, &acc.PasswordHash, &active, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	acc.Active = active != 0
	if acc.UpdatedAt, err = decodeTime(updatedAt); err != nil {
		return nil, fmt.Errorf("decode updated_at: %w", err)
	}
	return &acc, nil
}
