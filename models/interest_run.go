package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// InterestRun represents one completed payout cycle for a bank
type InterestRun struct {
	ID                       int64                  `db:"id"`
	BankID                   int64                  `db:"bank_id"`
	RunAt                    time.Time              `db:"run_at"`
	TotalInterestDistributed decimal.Decimal        `db:"total_interest_distributed"`
	AccountsPaid             int                    `db:"accounts_paid"`
	OwnersAffected           int                    `db:"owners_affected"`
	ExecutionSummary         map[string]interface{} `db:"execution_summary"`
	CreatedAt                time.Time              `db:"created_at"`
}
