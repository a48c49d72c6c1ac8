package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"banker/database"
	"banker/models"
	"banker/service"
)

// WalletRepository implements the WalletRepository interface
type WalletRepository struct {
	q queryable
}

// NewWalletRepository creates a new wallet repository
func NewWalletRepository(db *database.DB) *WalletRepository {
	return &WalletRepository{q: db.Pool}
}

func newWalletRepositoryWithTx(tx queryable) *WalletRepository {
	return &WalletRepository{q: tx}
}

// Get returns a wallet, or nil when the owner has none yet
func (r *WalletRepository) Get(ctx context.Context, ownerID int64) (*models.Wallet, error) {
	query := `SELECT owner_id, balance::text, updated_at FROM wallets WHERE owner_id = $1`

	var wallet models.Wallet
	var balance string
	err := r.q.QueryRow(ctx, query, ownerID).Scan(&wallet.OwnerID, &balance, &wallet.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet for owner %d: %w", ownerID, err)
	}

	if wallet.Balance, err = parseAmount(balance); err != nil {
		return nil, err
	}
	return &wallet, nil
}

// Credit adds to a wallet, creating it on first use, and records the change
func (r *WalletRepository) Credit(ctx context.Context, ownerID int64, amount decimal.Decimal, txType models.TransactionType, metadata map[string]any) (*models.WalletHistory, error) {
	amount = models.RoundAmount(amount)
	if !amount.IsPositive() {
		return nil, service.ErrInvalidAmount
	}

	query := `
		INSERT INTO wallets (owner_id, balance)
		VALUES ($1, $2::numeric)
		ON CONFLICT (owner_id) DO UPDATE
		SET balance = wallets.balance + EXCLUDED.balance, updated_at = NOW()
		RETURNING balance::text
	`

	var after string
	if err := r.q.QueryRow(ctx, query, ownerID, amount.String()).Scan(&after); err != nil {
		return nil, fmt.Errorf("failed to credit wallet of owner %d: %w", ownerID, err)
	}

	balanceAfter, err := parseAmount(after)
	if err != nil {
		return nil, err
	}

	return r.record(ctx, &models.WalletHistory{
		OwnerID:             ownerID,
		BalanceBefore:       balanceAfter.Sub(amount),
		BalanceAfter:        balanceAfter,
		ChangeAmount:        amount,
		TransactionType:     txType,
		TransactionMetadata: metadata,
	})
}

// Debit deducts from a wallet only if the balance covers the amount
func (r *WalletRepository) Debit(ctx context.Context, ownerID int64, amount decimal.Decimal, txType models.TransactionType, metadata map[string]any) (*models.WalletHistory, error) {
	amount = models.RoundAmount(amount)
	if !amount.IsPositive() {
		return nil, service.ErrInvalidAmount
	}

	query := `
		UPDATE wallets
		SET balance = balance - $1::numeric, updated_at = NOW()
		WHERE owner_id = $2 AND balance >= $1::numeric
		RETURNING balance::text
	`

	var after string
	err := r.q.QueryRow(ctx, query, amount.String(), ownerID).Scan(&after)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: owner %d needs %s", service.ErrInsufficientFunds, ownerID, amount)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to debit wallet of owner %d: %w", ownerID, err)
	}

	balanceAfter, err := parseAmount(after)
	if err != nil {
		return nil, err
	}

	return r.record(ctx, &models.WalletHistory{
		OwnerID:             ownerID,
		BalanceBefore:       balanceAfter.Add(amount),
		BalanceAfter:        balanceAfter,
		ChangeAmount:        amount.Neg(),
		TransactionType:     txType,
		TransactionMetadata: metadata,
	})
}

func (r *WalletRepository) record(ctx context.Context, history *models.WalletHistory) (*models.WalletHistory, error) {
	metadataJSON, err := marshalJSON(history.TransactionMetadata)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO wallet_history
		(owner_id, balance_before, balance_after, change_amount, transaction_type, transaction_metadata)
		VALUES ($1, $2::numeric, $3::numeric, $4::numeric, $5, $6)
		RETURNING id, created_at
	`

	err = r.q.QueryRow(ctx, query,
		history.OwnerID,
		history.BalanceBefore.String(),
		history.BalanceAfter.String(),
		history.ChangeAmount.String(),
		string(history.TransactionType),
		metadataJSON,
	).Scan(&history.ID, &history.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to record wallet history for owner %d: %w", history.OwnerID, err)
	}

	return history, nil
}

// GetHistory returns the most recent wallet changes for an owner
func (r *WalletRepository) GetHistory(ctx context.Context, ownerID int64, limit int) ([]*models.WalletHistory, error) {
	query := `
		SELECT id, owner_id, balance_before::text, balance_after::text, change_amount::text,
		       transaction_type, transaction_metadata, created_at
		FROM wallet_history
		WHERE owner_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.q.Query(ctx, query, ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet history for owner %d: %w", ownerID, err)
	}
	defer rows.Close()

	var histories []*models.WalletHistory
	for rows.Next() {
		var history models.WalletHistory
		var before, after, change, txType string
		var metadataJSON []byte

		err := rows.Scan(
			&history.ID,
			&history.OwnerID,
			&before,
			&after,
			&change,
			&txType,
			&metadataJSON,
			&history.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan wallet history: %w", err)
		}

		history.TransactionType = models.TransactionType(txType)
		if history.BalanceBefore, err = parseAmount(before); err != nil {
			return nil, err
		}
		if history.BalanceAfter, err = parseAmount(after); err != nil {
			return nil, err
		}
		if history.ChangeAmount, err = parseAmount(change); err != nil {
			return nil, err
		}

		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &history.TransactionMetadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal transaction metadata: %w", err)
			}
		}

		histories = append(histories, &history)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate wallet history: %w", err)
	}

	return histories, nil
}
