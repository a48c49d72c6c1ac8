package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"banker/database"
	"banker/models"
)

const bankColumns = `id, name, owner_id, co_owners, policy_overrides, created_at, updated_at`

// BankRepository implements the BankRepository interface
type BankRepository struct {
	q        queryable
	accounts *AccountRepository
}

// NewBankRepository creates a new bank repository
func NewBankRepository(db *database.DB) *BankRepository {
	return newBankRepositoryWithTx(db.Pool)
}

func newBankRepositoryWithTx(tx queryable) *BankRepository {
	return &BankRepository{q: tx, accounts: newAccountRepositoryWithTx(tx)}
}

func scanBank(row pgx.Row) (*models.Bank, error) {
	var bank models.Bank
	var overridesJSON []byte
	err := row.Scan(
		&bank.ID,
		&bank.Name,
		&bank.OwnerID,
		&bank.CoOwners,
		&overridesJSON,
		&bank.CreatedAt,
		&bank.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	bank.Overrides = make(map[string]string)
	if len(overridesJSON) > 0 {
		if err := json.Unmarshal(overridesJSON, &bank.Overrides); err != nil {
			return nil, fmt.Errorf("failed to unmarshal policy overrides of bank %d: %w", bank.ID, err)
		}
	}
	return &bank, nil
}

func (r *BankRepository) loadAccounts(ctx context.Context, bank *models.Bank) error {
	accounts, err := r.accounts.GetByBank(ctx, bank.ID)
	if err != nil {
		return err
	}
	bank.Accounts = accounts
	return nil
}

// GetByID retrieves a bank with its accounts, returning nil when it does not exist
func (r *BankRepository) GetByID(ctx context.Context, id int64) (*models.Bank, error) {
	query := `SELECT ` + bankColumns + ` FROM banks WHERE id = $1`

	bank, err := scanBank(r.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bank %d: %w", id, err)
	}

	if err := r.loadAccounts(ctx, bank); err != nil {
		return nil, err
	}
	return bank, nil
}

// GetByName retrieves a bank by name, returning nil when it does not exist
func (r *BankRepository) GetByName(ctx context.Context, name string) (*models.Bank, error) {
	query := `SELECT ` + bankColumns + ` FROM banks WHERE LOWER(name) = LOWER($1)`

	bank, err := scanBank(r.q.QueryRow(ctx, query, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bank %q: %w", name, err)
	}

	if err := r.loadAccounts(ctx, bank); err != nil {
		return nil, err
	}
	return bank, nil
}

// GetAll returns every bank with its accounts, ordered by id
func (r *BankRepository) GetAll(ctx context.Context) ([]*models.Bank, error) {
	query := `SELECT ` + bankColumns + ` FROM banks ORDER BY id`

	rows, err := r.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get banks: %w", err)
	}

	var banks []*models.Bank
	for rows.Next() {
		bank, err := scanBank(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan bank: %w", err)
		}
		banks = append(banks, bank)
	}
	rows.Close()

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate banks: %w", err)
	}

	for _, bank := range banks {
		if err := r.loadAccounts(ctx, bank); err != nil {
			return nil, err
		}
	}

	return banks, nil
}

// Create inserts a new bank
func (r *BankRepository) Create(ctx context.Context, bank *models.Bank) error {
	overridesJSON, err := overridesToJSON(bank)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO banks (name, owner_id, co_owners, policy_overrides)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`

	err = r.q.QueryRow(ctx, query,
		bank.Name,
		bank.OwnerID,
		coOwnersOrEmpty(bank.CoOwners),
		overridesJSON,
	).Scan(&bank.ID, &bank.CreatedAt, &bank.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create bank %q: %w", bank.Name, err)
	}

	bank.MarkPersisted()
	return nil
}

// Update persists the bank's name, ownership and policy overrides
func (r *BankRepository) Update(ctx context.Context, bank *models.Bank) error {
	overridesJSON, err := overridesToJSON(bank)
	if err != nil {
		return err
	}

	query := `
		UPDATE banks
		SET name = $1, owner_id = $2, co_owners = $3, policy_overrides = $4, updated_at = NOW()
		WHERE id = $5
		RETURNING updated_at
	`

	err = r.q.QueryRow(ctx, query,
		bank.Name,
		bank.OwnerID,
		coOwnersOrEmpty(bank.CoOwners),
		overridesJSON,
		bank.ID,
	).Scan(&bank.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("bank %d not found", bank.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to update bank %d: %w", bank.ID, err)
	}

	bank.MarkPersisted()
	return nil
}

func overridesToJSON(bank *models.Bank) ([]byte, error) {
	overrides := bank.Overrides
	if overrides == nil {
		overrides = map[string]string{}
	}
	data, err := json.Marshal(overrides)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal policy overrides of bank %d: %w", bank.ID, err)
	}
	return data, nil
}

func coOwnersOrEmpty(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}
