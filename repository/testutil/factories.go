package testutil

import (
	"time"

	"github.com/shopspring/decimal"

	"banker/models"
)

// CreateTestBank creates an admin bank with no overrides
func CreateTestBank(name string) *models.Bank {
	now := time.Now()
	return &models.Bank{
		Name:      name,
		CoOwners:  []int64{},
		Overrides: map[string]string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// CreateTestPlayerBank creates a bank owned by a player
func CreateTestPlayerBank(name string, ownerID int64) *models.Bank {
	bank := CreateTestBank(name)
	bank.OwnerID = &ownerID
	return bank
}

// CreateTestAccount creates an account with the given balance
func CreateTestAccount(bankID, ownerID int64, balance string) *models.Account {
	now := time.Now()
	return &models.Account{
		BankID:    bankID,
		OwnerID:   ownerID,
		CoOwners:  []int64{},
		Balance:   decimal.RequireFromString(balance),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// CreateTestInterestRun creates an interest run record for a bank
func CreateTestInterestRun(bankID int64, runAt time.Time) *models.InterestRun {
	return &models.InterestRun{
		BankID:                   bankID,
		RunAt:                    runAt,
		TotalInterestDistributed: decimal.RequireFromString("50.00"),
		AccountsPaid:             10,
		OwnersAffected:           4,
		ExecutionSummary: map[string]interface{}{
			"fees_charged":     "0.00",
			"failed_payments":  0,
			"gini":             "0.25",
			"revenue_estimate": "12.50",
		},
		CreatedAt: time.Now(),
	}
}

// CreateTestInterestRunWithDetails creates an interest run with specific totals
func CreateTestInterestRunWithDetails(bankID int64, runAt time.Time, total string, accounts int) *models.InterestRun {
	run := CreateTestInterestRun(bankID, runAt)
	run.TotalInterestDistributed = decimal.RequireFromString(total)
	run.AccountsPaid = accounts
	return run
}
