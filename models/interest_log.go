package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// InterestLog records a single interest computation for an account
type InterestLog struct {
	ID         int64           `db:"id"`
	AccountID  int64           `db:"account_id"`
	BankID     int64           `db:"bank_id"`
	OwnerID    int64           `db:"owner_id"`
	Base       decimal.Decimal `db:"base"`
	Multiplier int             `db:"multiplier"`
	Interest   decimal.Decimal `db:"interest"`
	PaidAt     time.Time       `db:"paid_at"`
}

// LowBalanceFeeLog records a low balance fee charged instead of interest
type LowBalanceFeeLog struct {
	ID        int64           `db:"id"`
	AccountID int64           `db:"account_id"`
	BankID    int64           `db:"bank_id"`
	OwnerID   int64           `db:"owner_id"`
	Fee       decimal.Decimal `db:"fee"`
	Collected bool            `db:"collected"`
	ChargedAt time.Time       `db:"charged_at"`
}
