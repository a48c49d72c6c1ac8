package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"banker/events"
	"banker/models"
	"banker/multiplier"
	"banker/policy"
)

// MultiplierConfig holds the state fields an admin may overwrite. Nil fields
// are left unchanged.
type MultiplierConfig struct {
	Stage                       *int
	RemainingDelay              *int
	RemainingOfflinePayouts     *int
	RemainingOfflineBeforeReset *int
}

// AccountService handles the account lifecycle and balance changes
type AccountService struct {
	uowFactory UnitOfWorkFactory
	store      *policy.Store
}

// NewAccountService creates a new account service
func NewAccountService(uowFactory UnitOfWorkFactory, store *policy.Store) *AccountService {
	return &AccountService{
		uowFactory: uowFactory,
		store:      store,
	}
}

func validAmount(amount decimal.Decimal) (decimal.Decimal, error) {
	amount = models.RoundAmount(amount)
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return amount, nil
}

// OpenAccount opens an account at a bank, funded from the owner's wallet. The
// multiplier state is seeded from the bank's resolved policies.
func (s *AccountService) OpenAccount(ctx context.Context, bankID, ownerID int64, initialDeposit decimal.Decimal) (*models.Account, error) {
	initialDeposit = models.RoundAmount(initialDeposit)
	if initialDeposit.IsNegative() {
		return nil, ErrInvalidAmount
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	bank, err := uow.BankRepository().GetByID(ctx, bankID)
	if err != nil {
		return nil, fmt.Errorf("failed to get bank: %w", err)
	}
	if bank == nil {
		return nil, ErrBankNotFound
	}

	account := &models.Account{
		BankID:     bankID,
		OwnerID:    ownerID,
		Balance:    initialDeposit,
		Multiplier: multiplier.InitialState(s.store.MultiplierParams(bank)),
	}

	if initialDeposit.IsPositive() {
		history, err := uow.WalletRepository().Debit(ctx, ownerID, initialDeposit, models.TransactionTypeDeposit, map[string]any{
			"bank_id": bankID,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to fund account: %w", err)
		}
		publishWalletChange(uow.EventBus(), history)
	}

	if err := uow.AccountRepository().Create(ctx, account); err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	if bank.OverridesChanged() {
		if err := uow.BankRepository().Update(ctx, bank); err != nil {
			return nil, fmt.Errorf("failed to persist bank: %w", err)
		}
	}

	uow.EventBus().Publish(events.AccountOpenedEvent{
		BankID:         bankID,
		AccountID:      account.ID,
		OwnerID:        ownerID,
		InitialDeposit: initialDeposit,
	})

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"bank_id":    bankID,
		"account_id": account.ID,
		"owner_id":   ownerID,
		"deposit":    initialDeposit.StringFixed(models.BalanceScale),
	}).Info("Account opened")

	return account, nil
}

// loadAccount fetches an account and its bank inside a unit of work and
// checks that the actor may operate on it
func loadAccount(ctx context.Context, uow UnitOfWork, accountID, actorID int64) (*models.Account, *models.Bank, error) {
	account, err := uow.AccountRepository().GetByID(ctx, accountID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get account: %w", err)
	}
	if account == nil {
		return nil, nil, ErrAccountNotFound
	}
	if !account.IsTrusted(actorID) {
		return nil, nil, ErrNotPermitted
	}

	bank, err := uow.BankRepository().GetByID(ctx, account.BankID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get bank: %w", err)
	}
	if bank == nil {
		return nil, nil, ErrBankNotFound
	}
	return account, bank, nil
}

// Deposit moves money from the actor's wallet into an account
func (s *AccountService) Deposit(ctx context.Context, accountID, actorID int64, amount decimal.Decimal) (*models.Account, error) {
	amount, err := validAmount(amount)
	if err != nil {
		return nil, err
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	account, _, err := loadAccount(ctx, uow, accountID, actorID)
	if err != nil {
		return nil, err
	}

	history, err := uow.WalletRepository().Debit(ctx, actorID, amount, models.TransactionTypeDeposit, map[string]any{
		"bank_id":    account.BankID,
		"account_id": account.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to deposit: %w", err)
	}
	publishWalletChange(uow.EventBus(), history)

	account.Balance = account.Balance.Add(amount)
	if err := uow.AccountRepository().Update(ctx, account); err != nil {
		return nil, fmt.Errorf("failed to update account: %w", err)
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return account, nil
}

// Withdraw moves money from an account into the actor's wallet. Any
// withdrawal applies the bank's withdrawal multiplier penalty.
func (s *AccountService) Withdraw(ctx context.Context, accountID, actorID int64, amount decimal.Decimal) (*models.Account, error) {
	amount, err := validAmount(amount)
	if err != nil {
		return nil, err
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	account, bank, err := loadAccount(ctx, uow, accountID, actorID)
	if err != nil {
		return nil, err
	}

	if !account.CanAfford(amount) {
		return nil, fmt.Errorf("%w: account has %s, need %s", ErrInsufficientFunds,
			account.Balance.StringFixed(models.BalanceScale), amount.StringFixed(models.BalanceScale))
	}

	stageBefore := account.Multiplier.Stage
	account.Balance = account.Balance.Sub(amount)
	stageAfter := multiplier.New(&account.Multiplier, s.store.MultiplierParams(bank)).ProcessWithdrawal()

	if err := uow.AccountRepository().Update(ctx, account); err != nil {
		return nil, fmt.Errorf("failed to update account: %w", err)
	}

	history, err := uow.WalletRepository().Credit(ctx, actorID, amount, models.TransactionTypeWithdrawal, map[string]any{
		"bank_id":    account.BankID,
		"account_id": account.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to withdraw: %w", err)
	}
	publishWalletChange(uow.EventBus(), history)

	if bank.OverridesChanged() {
		if err := uow.BankRepository().Update(ctx, bank); err != nil {
			return nil, fmt.Errorf("failed to persist bank: %w", err)
		}
	}

	uow.EventBus().Publish(events.WithdrawalEvent{
		BankID:      account.BankID,
		AccountID:   account.ID,
		OwnerID:     account.OwnerID,
		Amount:      amount,
		StageBefore: stageBefore,
		StageAfter:  stageAfter,
	})

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return account, nil
}

// CloseAccount deletes an account and pays its balance out to the owner
func (s *AccountService) CloseAccount(ctx context.Context, accountID, actorID int64) (decimal.Decimal, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return decimal.Zero, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	account, err := uow.AccountRepository().GetByID(ctx, accountID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get account: %w", err)
	}
	if account == nil {
		return decimal.Zero, ErrAccountNotFound
	}
	if !account.IsOwner(actorID) {
		return decimal.Zero, ErrNotPermitted
	}

	if err := uow.AccountRepository().Delete(ctx, accountID); err != nil {
		return decimal.Zero, fmt.Errorf("failed to delete account: %w", err)
	}

	refund := models.RoundAmount(account.Balance)
	if refund.IsPositive() {
		history, err := uow.WalletRepository().Credit(ctx, account.OwnerID, refund, models.TransactionTypeAccountClose, map[string]any{
			"bank_id":    account.BankID,
			"account_id": account.ID,
		})
		if err != nil {
			return decimal.Zero, fmt.Errorf("failed to pay out balance: %w", err)
		}
		publishWalletChange(uow.EventBus(), history)
	}

	uow.EventBus().Publish(events.AccountClosedEvent{
		BankID:    account.BankID,
		AccountID: account.ID,
		OwnerID:   account.OwnerID,
		Refunded:  refund,
	})

	if err := uow.Commit(); err != nil {
		return decimal.Zero, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"bank_id":    account.BankID,
		"account_id": account.ID,
		"owner_id":   account.OwnerID,
		"refunded":   refund.StringFixed(models.BalanceScale),
	}).Info("Account closed")

	return refund, nil
}

// ConfigureMultiplier overwrites an account's multiplier state. The stage is
// clamped to the bank's multiplier list.
func (s *AccountService) ConfigureMultiplier(ctx context.Context, accountID int64, cfg MultiplierConfig) (*models.Account, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	account, err := uow.AccountRepository().GetByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if account == nil {
		return nil, ErrAccountNotFound
	}

	bank, err := uow.BankRepository().GetByID(ctx, account.BankID)
	if err != nil {
		return nil, fmt.Errorf("failed to get bank: %w", err)
	}
	if bank == nil {
		return nil, ErrBankNotFound
	}

	machine := multiplier.New(&account.Multiplier, s.store.MultiplierParams(bank))
	machine.Configure(cfg.Stage, cfg.RemainingDelay, cfg.RemainingOfflinePayouts, cfg.RemainingOfflineBeforeReset)

	if err := uow.AccountRepository().Update(ctx, account); err != nil {
		return nil, fmt.Errorf("failed to update account: %w", err)
	}

	if bank.OverridesChanged() {
		if err := uow.BankRepository().Update(ctx, bank); err != nil {
			return nil, fmt.Errorf("failed to persist bank: %w", err)
		}
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return account, nil
}
