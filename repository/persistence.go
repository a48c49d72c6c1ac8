package repository

import (
	"context"

	"banker/database"
	"banker/models"
)

// Persistence writes payout cycle results straight to the pool. Every call
// is its own statement so a cycle is persisted account by account.
type Persistence struct {
	banks    *BankRepository
	accounts *AccountRepository
	logs     *InterestLogRepository
}

// NewPersistence creates the payout cycle persistence
func NewPersistence(db *database.DB) *Persistence {
	return newPersistence(db.Pool)
}

func newPersistence(q queryable) *Persistence {
	return &Persistence{
		banks:    newBankRepositoryWithTx(q),
		accounts: newAccountRepositoryWithTx(q),
		logs:     newInterestLogRepositoryWithTx(q),
	}
}

func (p *Persistence) UpdateAccount(ctx context.Context, account *models.Account) error {
	return p.accounts.Update(ctx, account)
}

func (p *Persistence) UpdateBank(ctx context.Context, bank *models.Bank) error {
	return p.banks.Update(ctx, bank)
}

func (p *Persistence) LogInterest(ctx context.Context, entry *models.InterestLog) error {
	return p.logs.LogInterest(ctx, entry)
}

func (p *Persistence) LogLowBalanceFee(ctx context.Context, entry *models.LowBalanceFeeLog) error {
	return p.logs.LogLowBalanceFee(ctx, entry)
}
