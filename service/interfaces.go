package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"banker/events"
	"banker/models"
)

// BankRepository defines the interface for bank data access
type BankRepository interface {
	// GetByID retrieves a bank with its accounts loaded
	GetByID(ctx context.Context, id int64) (*models.Bank, error)

	// GetByName retrieves a bank by its unique name
	GetByName(ctx context.Context, name string) (*models.Bank, error)

	// GetAll returns every bank with its accounts loaded, ordered by id
	GetAll(ctx context.Context) ([]*models.Bank, error)

	// Create inserts a new bank
	Create(ctx context.Context, bank *models.Bank) error

	// Update persists ownership and policy overrides
	Update(ctx context.Context, bank *models.Bank) error
}

// AccountRepository defines the interface for account data access
type AccountRepository interface {
	// GetByID retrieves an account
	GetByID(ctx context.Context, id int64) (*models.Account, error)

	// GetByBank returns the accounts of a bank ordered by id
	GetByBank(ctx context.Context, bankID int64) ([]*models.Account, error)

	// Create inserts a new account
	Create(ctx context.Context, account *models.Account) error

	// Update persists balance, co-owners and multiplier state
	Update(ctx context.Context, account *models.Account) error

	// Delete removes an account
	Delete(ctx context.Context, id int64) error
}

// WalletRepository defines the interface for player wallets and their history
type WalletRepository interface {
	// Get returns a wallet, or nil when the owner has none yet
	Get(ctx context.Context, ownerID int64) (*models.Wallet, error)

	// Credit adds to a wallet, creating it if needed, and records history
	Credit(ctx context.Context, ownerID int64, amount decimal.Decimal, txType models.TransactionType, metadata map[string]any) (*models.WalletHistory, error)

	// Debit deducts from a wallet and records history, failing with
	// ErrInsufficientFunds when the balance does not cover the amount
	Debit(ctx context.Context, ownerID int64, amount decimal.Decimal, txType models.TransactionType, metadata map[string]any) (*models.WalletHistory, error)

	// GetHistory returns the most recent wallet changes for an owner
	GetHistory(ctx context.Context, ownerID int64, limit int) ([]*models.WalletHistory, error)
}

// InterestRunRepository defines the interface for payout cycle records
type InterestRunRepository interface {
	// Create records a completed payout cycle
	Create(ctx context.Context, run *models.InterestRun) error

	// GetLatestByBank returns the most recent run for a bank, or nil
	GetLatestByBank(ctx context.Context, bankID int64) (*models.InterestRun, error)

	// GetByBankSince returns runs for a bank at or after a time, newest first
	GetByBankSince(ctx context.Context, bankID int64, since time.Time) ([]*models.InterestRun, error)
}

// Persistence is what a payout cycle writes through. Each call is applied
// on its own so a cycle persists incrementally.
type Persistence interface {
	UpdateAccount(ctx context.Context, account *models.Account) error
	UpdateBank(ctx context.Context, bank *models.Bank) error
	LogInterest(ctx context.Context, entry *models.InterestLog) error
	LogLowBalanceFee(ctx context.Context, entry *models.LowBalanceFeeLog) error
}

// PaymentService moves money between players' wallets and the outside world
type PaymentService interface {
	// Deposit credits an owner
	Deposit(ctx context.Context, ownerID int64, amount decimal.Decimal, txType models.TransactionType, metadata map[string]any) error

	// Withdraw debits an owner, failing with ErrInsufficientFunds when they
	// cannot cover the amount
	Withdraw(ctx context.Context, ownerID int64, amount decimal.Decimal, txType models.TransactionType, metadata map[string]any) error
}

// PresenceTracker reports whether a player is currently online
type PresenceTracker interface {
	IsOnline(ctx context.Context, ownerID int64) (bool, error)
}

// Notifier delivers a short message to a player
type Notifier interface {
	Notify(ctx context.Context, ownerID int64, message string) error
}

// EventPublisher defines the interface for publishing events
type EventPublisher interface {
	Publish(event events.Event)
}

// CycleObserver receives the report of every completed payout cycle
type CycleObserver interface {
	ObserveCycle(report *CycleReport)
}

// UnitOfWork defines the interface for transactional repository operations
type UnitOfWork interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) error

	// Commit commits the transaction and flushes pending events
	Commit() error

	// Rollback rolls back the transaction and discards pending events
	Rollback() error

	// Repository getters
	BankRepository() BankRepository
	AccountRepository() AccountRepository
	WalletRepository() WalletRepository
	EventBus() EventPublisher
}

// UnitOfWorkFactory defines the interface for creating UnitOfWork instances
type UnitOfWorkFactory interface {
	Create() UnitOfWork
}
