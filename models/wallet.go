package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType represents the type of wallet balance change
type TransactionType string

const (
	TransactionTypeInterest      TransactionType = "interest"
	TransactionTypeInterestFund  TransactionType = "interest_funding"
	TransactionTypeLowBalanceFee TransactionType = "low_balance_fee"
	TransactionTypeFeeIncome     TransactionType = "fee_income"
	TransactionTypeDeposit       TransactionType = "account_deposit"
	TransactionTypeWithdrawal    TransactionType = "account_withdrawal"
	TransactionTypeAccountClose  TransactionType = "account_close"
)

// IsCredit reports whether the transaction adds to a wallet
func (t TransactionType) IsCredit() bool {
	switch t {
	case TransactionTypeInterest, TransactionTypeFeeIncome, TransactionTypeWithdrawal, TransactionTypeAccountClose:
		return true
	default:
		return false
	}
}

// Wallet is a player's spendable balance outside of any bank account
type Wallet struct {
	OwnerID   int64           `db:"owner_id"`
	Balance   decimal.Decimal `db:"balance"`
	UpdatedAt time.Time       `db:"updated_at"`
}

// WalletHistory represents a historical wallet balance change
type WalletHistory struct {
	ID                  int64           `db:"id"`
	OwnerID             int64           `db:"owner_id"`
	BalanceBefore       decimal.Decimal `db:"balance_before"`
	BalanceAfter        decimal.Decimal `db:"balance_after"`
	ChangeAmount        decimal.Decimal `db:"change_amount"`
	TransactionType     TransactionType `db:"transaction_type"`
	TransactionMetadata map[string]any  `db:"transaction_metadata"`
	CreatedAt           time.Time       `db:"created_at"`
}
