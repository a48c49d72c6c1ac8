package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"banker/database"
	"banker/models"
)

const interestRunColumns = `
	id, bank_id, run_at, total_interest_distributed::text, accounts_paid, owners_affected,
	execution_summary, created_at`

// InterestRunRepository implements the InterestRunRepository interface
type InterestRunRepository struct {
	q queryable
}

// NewInterestRunRepository creates a new interest run repository
func NewInterestRunRepository(db *database.DB) *InterestRunRepository {
	return &InterestRunRepository{q: db.Pool}
}

func newInterestRunRepositoryWithTx(tx queryable) *InterestRunRepository {
	return &InterestRunRepository{q: tx}
}

func scanInterestRun(row pgx.Row) (*models.InterestRun, error) {
	var run models.InterestRun
	var total string
	var summaryJSON []byte

	err := row.Scan(
		&run.ID,
		&run.BankID,
		&run.RunAt,
		&total,
		&run.AccountsPaid,
		&run.OwnersAffected,
		&summaryJSON,
		&run.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if run.TotalInterestDistributed, err = parseAmount(total); err != nil {
		return nil, err
	}

	if len(summaryJSON) > 0 {
		if err := json.Unmarshal(summaryJSON, &run.ExecutionSummary); err != nil {
			return nil, fmt.Errorf("failed to unmarshal execution summary: %w", err)
		}
	}

	return &run, nil
}

// Create records a completed payout cycle
func (r *InterestRunRepository) Create(ctx context.Context, run *models.InterestRun) error {
	summaryJSON, err := marshalJSON(run.ExecutionSummary)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO interest_runs
		(bank_id, run_at, total_interest_distributed, accounts_paid, owners_affected, execution_summary)
		VALUES ($1, $2, $3::numeric, $4, $5, $6)
		RETURNING id, created_at
	`

	err = r.q.QueryRow(ctx, query,
		run.BankID,
		run.RunAt,
		run.TotalInterestDistributed.String(),
		run.AccountsPaid,
		run.OwnersAffected,
		summaryJSON,
	).Scan(&run.ID, &run.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create interest run for bank %d at %s: %w",
			run.BankID, run.RunAt.Format(time.RFC3339), err)
	}

	return nil
}

// GetLatestByBank returns the most recent run for a bank, or nil
func (r *InterestRunRepository) GetLatestByBank(ctx context.Context, bankID int64) (*models.InterestRun, error) {
	query := `SELECT ` + interestRunColumns + `
		FROM interest_runs
		WHERE bank_id = $1
		ORDER BY run_at DESC, id DESC
		LIMIT 1
	`

	run, err := scanInterestRun(r.q.QueryRow(ctx, query, bankID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest interest run for bank %d: %w", bankID, err)
	}

	return run, nil
}

// GetByBankSince returns runs for a bank at or after a time, newest first
func (r *InterestRunRepository) GetByBankSince(ctx context.Context, bankID int64, since time.Time) ([]*models.InterestRun, error) {
	query := `SELECT ` + interestRunColumns + `
		FROM interest_runs
		WHERE bank_id = $1 AND run_at >= $2
		ORDER BY run_at DESC, id DESC
	`

	rows, err := r.q.Query(ctx, query, bankID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to get interest runs for bank %d: %w", bankID, err)
	}
	defer rows.Close()

	var runs []*models.InterestRun
	for rows.Next() {
		run, err := scanInterestRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan interest run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate interest runs: %w", err)
	}

	return runs, nil
}
