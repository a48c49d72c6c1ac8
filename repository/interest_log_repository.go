package repository

import (
	"context"
	"fmt"

	"banker/database"
	"banker/models"
)

// InterestLogRepository records interest payouts and low balance fees
type InterestLogRepository struct {
	q queryable
}

// NewInterestLogRepository creates a new interest log repository
func NewInterestLogRepository(db *database.DB) *InterestLogRepository {
	return &InterestLogRepository{q: db.Pool}
}

func newInterestLogRepositoryWithTx(tx queryable) *InterestLogRepository {
	return &InterestLogRepository{q: tx}
}

// LogInterest records an interest computation for an account
func (r *InterestLogRepository) LogInterest(ctx context.Context, entry *models.InterestLog) error {
	query := `
		INSERT INTO interest_logs (account_id, bank_id, owner_id, base, multiplier, interest, paid_at)
		VALUES ($1, $2, $3, $4::numeric, $5, $6::numeric, $7)
		RETURNING id
	`

	err := r.q.QueryRow(ctx, query,
		entry.AccountID,
		entry.BankID,
		entry.OwnerID,
		entry.Base.String(),
		entry.Multiplier,
		entry.Interest.String(),
		entry.PaidAt,
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("failed to log interest for account %d: %w", entry.AccountID, err)
	}

	return nil
}

// LogLowBalanceFee records a fee charged instead of interest
func (r *InterestLogRepository) LogLowBalanceFee(ctx context.Context, entry *models.LowBalanceFeeLog) error {
	query := `
		INSERT INTO low_balance_fee_logs (account_id, bank_id, owner_id, fee, collected, charged_at)
		VALUES ($1, $2, $3, $4::numeric, $5, $6)
		RETURNING id
	`

	err := r.q.QueryRow(ctx, query,
		entry.AccountID,
		entry.BankID,
		entry.OwnerID,
		entry.Fee.String(),
		entry.Collected,
		entry.ChargedAt,
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("failed to log low balance fee for account %d: %w", entry.AccountID, err)
	}

	return nil
}

// GetInterestByAccount returns the most recent interest records of an account
func (r *InterestLogRepository) GetInterestByAccount(ctx context.Context, accountID int64, limit int) ([]*models.InterestLog, error) {
	query := `
		SELECT id, account_id, bank_id, owner_id, base::text, multiplier, interest::text, paid_at
		FROM interest_logs
		WHERE account_id = $1
		ORDER BY paid_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.q.Query(ctx, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get interest logs for account %d: %w", accountID, err)
	}
	defer rows.Close()

	var entries []*models.InterestLog
	for rows.Next() {
		var entry models.InterestLog
		var base, interest string
		if err := rows.Scan(
			&entry.ID,
			&entry.AccountID,
			&entry.BankID,
			&entry.OwnerID,
			&base,
			&entry.Multiplier,
			&interest,
			&entry.PaidAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan interest log: %w", err)
		}
		if entry.Base, err = parseAmount(base); err != nil {
			return nil, err
		}
		if entry.Interest, err = parseAmount(interest); err != nil {
			return nil, err
		}
		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate interest logs: %w", err)
	}

	return entries, nil
}
