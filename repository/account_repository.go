package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"banker/database"
	"banker/models"
)

const accountColumns = `
	id, bank_id, owner_id, co_owners, balance::text,
	multiplier_stage, remaining_delay, remaining_offline_payouts, remaining_offline_before_reset,
	created_at, updated_at`

// AccountRepository implements the AccountRepository interface
type AccountRepository struct {
	q queryable
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *database.DB) *AccountRepository {
	return &AccountRepository{q: db.Pool}
}

func newAccountRepositoryWithTx(tx queryable) *AccountRepository {
	return &AccountRepository{q: tx}
}

func scanAccount(row pgx.Row) (*models.Account, error) {
	var account models.Account
	var balance string
	err := row.Scan(
		&account.ID,
		&account.BankID,
		&account.OwnerID,
		&account.CoOwners,
		&balance,
		&account.Multiplier.Stage,
		&account.Multiplier.RemainingDelay,
		&account.Multiplier.RemainingOfflinePayouts,
		&account.Multiplier.RemainingOfflineBeforeReset,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if account.Balance, err = parseAmount(balance); err != nil {
		return nil, err
	}
	return &account, nil
}

// GetByID retrieves an account, returning nil when it does not exist
func (r *AccountRepository) GetByID(ctx context.Context, id int64) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	account, err := scanAccount(r.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account %d: %w", id, err)
	}
	return account, nil
}

// GetByBank returns the accounts of a bank ordered by id
func (r *AccountRepository) GetByBank(ctx context.Context, bankID int64) ([]*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE bank_id = $1 ORDER BY id`

	rows, err := r.q.Query(ctx, query, bankID)
	if err != nil {
		return nil, fmt.Errorf("failed to get accounts for bank %d: %w", bankID, err)
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, account)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate accounts: %w", err)
	}

	return accounts, nil
}

// Create inserts a new account
func (r *AccountRepository) Create(ctx context.Context, account *models.Account) error {
	query := `
		INSERT INTO accounts
		(bank_id, owner_id, co_owners, balance,
		 multiplier_stage, remaining_delay, remaining_offline_payouts, remaining_offline_before_reset)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at
	`

	err := r.q.QueryRow(ctx, query,
		account.BankID,
		account.OwnerID,
		coOwnersOrEmpty(account.CoOwners),
		models.RoundAmount(account.Balance).String(),
		account.Multiplier.Stage,
		account.Multiplier.RemainingDelay,
		account.Multiplier.RemainingOfflinePayouts,
		account.Multiplier.RemainingOfflineBeforeReset,
	).Scan(&account.ID, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create account at bank %d for owner %d: %w", account.BankID, account.OwnerID, err)
	}

	return nil
}

// Update persists balance, co-owners and multiplier state
func (r *AccountRepository) Update(ctx context.Context, account *models.Account) error {
	query := `
		UPDATE accounts
		SET balance = $1::numeric,
		    co_owners = $2,
		    multiplier_stage = $3,
		    remaining_delay = $4,
		    remaining_offline_payouts = $5,
		    remaining_offline_before_reset = $6,
		    updated_at = NOW()
		WHERE id = $7
		RETURNING updated_at
	`

	err := r.q.QueryRow(ctx, query,
		models.RoundAmount(account.Balance).String(),
		coOwnersOrEmpty(account.CoOwners),
		account.Multiplier.Stage,
		account.Multiplier.RemainingDelay,
		account.Multiplier.RemainingOfflinePayouts,
		account.Multiplier.RemainingOfflineBeforeReset,
		account.ID,
	).Scan(&account.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("account %d not found", account.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to update account %d: %w", account.ID, err)
	}

	return nil
}

// Delete removes an account
func (r *AccountRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.q.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete account %d: %w", id, err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("account %d not found", id)
	}
	return nil
}
