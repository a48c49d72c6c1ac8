package models

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// BalanceScale is the fixed number of decimal places for money amounts
const BalanceScale = 2

// Account represents a balance-bearing account held at a bank
type Account struct {
	ID         int64           `db:"id"`
	BankID     int64           `db:"bank_id"`
	OwnerID    int64           `db:"owner_id"`
	CoOwners   []int64         `db:"co_owners"`
	Balance    decimal.Decimal `db:"balance"`
	Multiplier MultiplierState `db:"-"`
	CreatedAt  time.Time       `db:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at"`
}

// RoundAmount rounds an amount to the balance scale using half-even rounding
func RoundAmount(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(BalanceScale)
}

// IsOwner checks if the player owns the account
func (a *Account) IsOwner(playerID int64) bool {
	return a.OwnerID == playerID
}

// IsCoOwner checks if the player is a co-owner of the account
func (a *Account) IsCoOwner(playerID int64) bool {
	return slices.Contains(a.CoOwners, playerID)
}

// IsTrusted checks if the player is the owner or a co-owner
func (a *Account) IsTrusted(playerID int64) bool {
	return a.IsOwner(playerID) || a.IsCoOwner(playerID)
}

// CanAfford checks if the balance covers the amount
func (a *Account) CanAfford(amount decimal.Decimal) bool {
	return a.Balance.GreaterThanOrEqual(amount)
}

// IsBelow checks if the balance is strictly below a threshold
func (a *Account) IsBelow(threshold decimal.Decimal) bool {
	return a.Balance.LessThan(threshold)
}
