package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"banker/events"
	"banker/models"
	"banker/policy"
)

type uowFixture struct {
	factory   *MockUnitOfWorkFactory
	uow       *MockUnitOfWork
	banks     *MockBankRepository
	accounts  *MockAccountRepository
	wallets   *MockWalletRepository
	publisher *MockEventPublisher
}

func newUoWFixture(ctx context.Context) *uowFixture {
	f := &uowFixture{
		factory:   new(MockUnitOfWorkFactory),
		uow:       new(MockUnitOfWork),
		banks:     new(MockBankRepository),
		accounts:  new(MockAccountRepository),
		wallets:   new(MockWalletRepository),
		publisher: new(MockEventPublisher),
	}
	f.uow.SetRepositories(f.banks, f.accounts, f.wallets, f.publisher)

	f.factory.On("Create").Return(f.uow)
	f.uow.On("Begin", ctx).Return(nil)
	f.uow.On("Rollback").Return(nil)
	return f
}

func (f *uowFixture) expectCommit() {
	f.uow.On("Commit").Return(nil)
}

func (f *uowFixture) assertExpectations(t *testing.T) {
	f.factory.AssertExpectations(t)
	f.uow.AssertExpectations(t)
	f.banks.AssertExpectations(t)
	f.accounts.AssertExpectations(t)
	f.wallets.AssertExpectations(t)
	f.publisher.AssertExpectations(t)
}

// expectBankSave stubs a bank update the way the repository behaves: the
// overrides are written and the pending flag cleared. It returns a pointer to
// the number of overrides present when the save happened.
func (f *uowFixture) expectBankSave(ctx context.Context, bank *models.Bank) *int {
	saved := new(int)
	f.banks.On("Update", ctx, bank).Run(func(args mock.Arguments) {
		b := args.Get(1).(*models.Bank)
		*saved = len(b.Overrides)
		b.MarkPersisted()
	}).Return(nil).Once()
	return saved
}

func walletChange(ownerID int64, before, after string, txType models.TransactionType) *models.WalletHistory {
	b := decimal.RequireFromString(before)
	a := decimal.RequireFromString(after)
	return &models.WalletHistory{
		OwnerID:         ownerID,
		BalanceBefore:   b,
		BalanceAfter:    a,
		ChangeAmount:    a.Sub(b),
		TransactionType: txType,
	}
}

func TestAccountService_OpenAccount(t *testing.T) {
	ctx := context.Background()
	f := newUoWFixture(ctx)
	f.expectCommit()

	store := policy.NewStore()
	require.NoError(t, store.SetDefault(policy.InitialInterestDelay, "2"))
	require.NoError(t, store.SetDefault(policy.AllowedOfflinePayouts, "3"))
	require.NoError(t, store.SetDefault(policy.AllowedOfflinePayoutsBeforeReset, "-1"))
	svc := NewAccountService(f.factory, store)

	bank := &models.Bank{ID: 1, Name: "Central"}
	f.banks.On("GetByID", ctx, int64(1)).Return(bank, nil)
	f.wallets.On("Debit", ctx, int64(42), amountOf("100"), models.TransactionTypeDeposit, mock.Anything).
		Return(walletChange(42, "500", "400", models.TransactionTypeDeposit), nil)
	f.accounts.On("Create", ctx, mock.MatchedBy(func(a *models.Account) bool {
		return a.BankID == 1 &&
			a.OwnerID == 42 &&
			a.Balance.Equal(decimal.NewFromInt(100)) &&
			a.Multiplier == models.MultiplierState{
				Stage:                       0,
				RemainingDelay:              2,
				RemainingOfflinePayouts:     3,
				RemainingOfflineBeforeReset: -1,
			}
	})).Return(nil).Run(func(args mock.Arguments) {
		args.Get(1).(*models.Account).ID = 7
	})
	f.publisher.On("Publish", mock.AnythingOfType("events.WalletBalanceChangeEvent")).Return()
	f.publisher.On("Publish", mock.MatchedBy(func(e events.AccountOpenedEvent) bool {
		return e.BankID == 1 && e.AccountID == 7 && e.OwnerID == 42 &&
			e.InitialDeposit.Equal(decimal.NewFromInt(100))
	})).Return()

	account, err := svc.OpenAccount(ctx, 1, 42, decimal.RequireFromString("100"))
	require.NoError(t, err)
	assert.Equal(t, int64(7), account.ID)

	f.assertExpectations(t)
}

func TestAccountService_OpenAccount_StickyDefaultsPersistBank(t *testing.T) {
	ctx := context.Background()
	f := newUoWFixture(ctx)
	f.expectCommit()

	store := policy.NewStore()
	store.SetStickyDefaults(true)
	svc := NewAccountService(f.factory, store)

	bank := &models.Bank{ID: 1, Name: "Central"}
	f.banks.On("GetByID", ctx, int64(1)).Return(bank, nil)
	f.banks.On("Update", ctx, bank).Return(nil)
	f.accounts.On("Create", ctx, mock.Anything).Return(nil)
	f.publisher.On("Publish", mock.AnythingOfType("events.AccountOpenedEvent")).Return()

	_, err := svc.OpenAccount(ctx, 1, 42, decimal.Zero)
	require.NoError(t, err)

	_, frozen := bank.Override(string(policy.InitialInterestDelay))
	assert.True(t, frozen)
	f.wallets.AssertNotCalled(t, "Debit", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.assertExpectations(t)
}

func TestAccountService_OpenAccount_BankNotFound(t *testing.T) {
	ctx := context.Background()
	f := newUoWFixture(ctx)
	svc := NewAccountService(f.factory, policy.NewStore())

	f.banks.On("GetByID", ctx, int64(9)).Return(nil, nil)

	_, err := svc.OpenAccount(ctx, 9, 42, decimal.NewFromInt(10))
	assert.ErrorIs(t, err, ErrBankNotFound)
	f.uow.AssertNotCalled(t, "Commit")
}

func TestAccountService_OpenAccount_WalletCannotFund(t *testing.T) {
	ctx := context.Background()
	f := newUoWFixture(ctx)
	svc := NewAccountService(f.factory, policy.NewStore())

	f.banks.On("GetByID", ctx, int64(1)).Return(&models.Bank{ID: 1}, nil)
	f.wallets.On("Debit", ctx, int64(42), mock.Anything, models.TransactionTypeDeposit, mock.Anything).Return(nil, ErrInsufficientFunds)

	_, err := svc.OpenAccount(ctx, 1, 42, decimal.NewFromInt(10))
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	f.accounts.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestAccountService_OpenAccount_NegativeDeposit(t *testing.T) {
	svc := NewAccountService(new(MockUnitOfWorkFactory), policy.NewStore())

	_, err := svc.OpenAccount(context.Background(), 1, 42, decimal.NewFromInt(-5))
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestAccountService_Deposit(t *testing.T) {
	ctx := context.Background()
	f := newUoWFixture(ctx)
	f.expectCommit()
	svc := NewAccountService(f.factory, policy.NewStore())

	account := testAccount(7, 42, "100.00")
	account.CoOwners = []int64{43}
	f.accounts.On("GetByID", ctx, int64(7)).Return(account, nil)
	f.banks.On("GetByID", ctx, int64(1)).Return(&models.Bank{ID: 1}, nil)
	f.wallets.On("Debit", ctx, int64(43), amountOf("25.50"), models.TransactionTypeDeposit, mock.Anything).
		Return(walletChange(43, "30", "4.50", models.TransactionTypeDeposit), nil)
	f.accounts.On("Update", ctx, account).Return(nil)
	f.publisher.On("Publish", mock.AnythingOfType("events.WalletBalanceChangeEvent")).Return()

	updated, err := svc.Deposit(ctx, 7, 43, decimal.RequireFromString("25.50"))
	require.NoError(t, err)
	assert.True(t, updated.Balance.Equal(decimal.RequireFromString("125.50")))

	f.assertExpectations(t)
}

func TestAccountService_Deposit_NotPermitted(t *testing.T) {
	ctx := context.Background()
	f := newUoWFixture(ctx)
	svc := NewAccountService(f.factory, policy.NewStore())

	f.accounts.On("GetByID", ctx, int64(7)).Return(testAccount(7, 42, "100.00"), nil)

	_, err := svc.Deposit(ctx, 7, 99, decimal.NewFromInt(1))
	assert.ErrorIs(t, err, ErrNotPermitted)
}

func TestAccountService_Deposit_InvalidAmount(t *testing.T) {
	svc := NewAccountService(new(MockUnitOfWorkFactory), policy.NewStore())

	_, err := svc.Deposit(context.Background(), 7, 42, decimal.RequireFromString("0.001"))
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestAccountService_Withdraw_ResetsStage(t *testing.T) {
	ctx := context.Background()
	f := newUoWFixture(ctx)
	f.expectCommit()

	store := policy.NewStore()
	require.NoError(t, store.SetDefault(policy.InterestMultipliers, "1, 2, 3"))
	svc := NewAccountService(f.factory, store)

	account := testAccount(7, 42, "100.00")
	account.Multiplier.Stage = 2
	f.accounts.On("GetByID", ctx, int64(7)).Return(account, nil)
	f.banks.On("GetByID", ctx, int64(1)).Return(&models.Bank{ID: 1}, nil)
	f.accounts.On("Update", ctx, account).Return(nil)
	f.wallets.On("Credit", ctx, int64(42), amountOf("40"), models.TransactionTypeWithdrawal, mock.Anything).
		Return(walletChange(42, "0", "40", models.TransactionTypeWithdrawal), nil)
	f.publisher.On("Publish", mock.AnythingOfType("events.WalletBalanceChangeEvent")).Return()
	f.publisher.On("Publish", mock.MatchedBy(func(e events.WithdrawalEvent) bool {
		return e.StageBefore == 2 && e.StageAfter == 0 && e.Amount.Equal(decimal.NewFromInt(40))
	})).Return()

	updated, err := svc.Withdraw(ctx, 7, 42, decimal.NewFromInt(40))
	require.NoError(t, err)
	assert.True(t, updated.Balance.Equal(decimal.RequireFromString("60.00")))
	assert.Equal(t, 0, updated.Multiplier.Stage)

	f.assertExpectations(t)
}

func TestAccountService_Withdraw_NegativeDecrement(t *testing.T) {
	ctx := context.Background()
	f := newUoWFixture(ctx)
	f.expectCommit()

	store := policy.NewStore()
	require.NoError(t, store.SetDefault(policy.InterestMultipliers, "1, 2, 3, 4"))
	require.NoError(t, store.SetDefault(policy.WithdrawalMultiplierDecrement, "-1"))
	svc := NewAccountService(f.factory, store)

	account := testAccount(7, 42, "100.00")
	account.Multiplier.Stage = 3
	f.accounts.On("GetByID", ctx, int64(7)).Return(account, nil)
	f.banks.On("GetByID", ctx, int64(1)).Return(&models.Bank{ID: 1}, nil)
	f.accounts.On("Update", ctx, account).Return(nil)
	f.wallets.On("Credit", ctx, int64(42), mock.Anything, models.TransactionTypeWithdrawal, mock.Anything).
		Return(walletChange(42, "0", "10", models.TransactionTypeWithdrawal), nil)
	f.publisher.On("Publish", mock.Anything).Return()

	updated, err := svc.Withdraw(ctx, 7, 42, decimal.NewFromInt(10))
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Multiplier.Stage)
}

func TestAccountService_Withdraw_InsufficientFunds(t *testing.T) {
	ctx := context.Background()
	f := newUoWFixture(ctx)
	svc := NewAccountService(f.factory, policy.NewStore())

	account := testAccount(7, 42, "10.00")
	account.Multiplier.Stage = 1
	f.accounts.On("GetByID", ctx, int64(7)).Return(account, nil)
	f.banks.On("GetByID", ctx, int64(1)).Return(&models.Bank{ID: 1}, nil)

	_, err := svc.Withdraw(ctx, 7, 42, decimal.NewFromInt(11))
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.True(t, account.Balance.Equal(decimal.RequireFromString("10.00")))
	assert.Equal(t, 1, account.Multiplier.Stage)
	f.accounts.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestAccountService_CloseAccount(t *testing.T) {
	ctx := context.Background()
	f := newUoWFixture(ctx)
	f.expectCommit()
	svc := NewAccountService(f.factory, policy.NewStore())

	account := testAccount(7, 42, "80.25")
	f.accounts.On("GetByID", ctx, int64(7)).Return(account, nil)
	f.accounts.On("Delete", ctx, int64(7)).Return(nil)
	f.wallets.On("Credit", ctx, int64(42), amountOf("80.25"), models.TransactionTypeAccountClose, mock.Anything).
		Return(walletChange(42, "0", "80.25", models.TransactionTypeAccountClose), nil)
	f.publisher.On("Publish", mock.AnythingOfType("events.WalletBalanceChangeEvent")).Return()
	f.publisher.On("Publish", mock.AnythingOfType("events.AccountClosedEvent")).Return()

	refund, err := svc.CloseAccount(ctx, 7, 42)
	require.NoError(t, err)
	assert.True(t, refund.Equal(decimal.RequireFromString("80.25")))

	f.assertExpectations(t)
}

func TestAccountService_CloseAccount_CoOwnerCannotClose(t *testing.T) {
	ctx := context.Background()
	f := newUoWFixture(ctx)
	svc := NewAccountService(f.factory, policy.NewStore())

	account := testAccount(7, 42, "80.25")
	account.CoOwners = []int64{43}
	f.accounts.On("GetByID", ctx, int64(7)).Return(account, nil)

	_, err := svc.CloseAccount(ctx, 7, 43)
	assert.ErrorIs(t, err, ErrNotPermitted)
	f.accounts.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestAccountService_ConfigureMultiplier_ClampsStage(t *testing.T) {
	ctx := context.Background()
	f := newUoWFixture(ctx)
	f.expectCommit()

	store := policy.NewStore()
	require.NoError(t, store.SetDefault(policy.InterestMultipliers, "1, 2, 3"))
	svc := NewAccountService(f.factory, store)

	account := testAccount(7, 42, "100.00")
	f.accounts.On("GetByID", ctx, int64(7)).Return(account, nil)
	f.banks.On("GetByID", ctx, int64(1)).Return(&models.Bank{ID: 1}, nil)
	f.accounts.On("Update", ctx, account).Return(nil)

	stage, delay, offline := 10, -4, -9
	updated, err := svc.ConfigureMultiplier(ctx, 7, MultiplierConfig{
		Stage:                   &stage,
		RemainingDelay:          &delay,
		RemainingOfflinePayouts: &offline,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, updated.Multiplier.Stage)
	assert.Equal(t, 0, updated.Multiplier.RemainingDelay)
	assert.Equal(t, -1, updated.Multiplier.RemainingOfflinePayouts)
	assert.Equal(t, 1, updated.Multiplier.RemainingOfflineBeforeReset)
	f.assertExpectations(t)
}

func TestAccountService_ConfigureMultiplier_StickyDefaultsPersistBank(t *testing.T) {
	ctx := context.Background()
	f := newUoWFixture(ctx)
	f.expectCommit()

	store := policy.NewStore()
	store.SetStickyDefaults(true)
	svc := NewAccountService(f.factory, store)

	account := testAccount(7, 42, "100.00")
	bank := &models.Bank{ID: 1, Name: "Central"}
	f.accounts.On("GetByID", ctx, int64(7)).Return(account, nil)
	f.banks.On("GetByID", ctx, int64(1)).Return(bank, nil)
	f.accounts.On("Update", ctx, account).Return(nil)
	saved := f.expectBankSave(ctx, bank)

	stage := 0
	_, err := svc.ConfigureMultiplier(ctx, 7, MultiplierConfig{Stage: &stage})
	require.NoError(t, err)

	// every multiplier policy was frozen and all of them reached the save
	assert.Equal(t, 7, *saved)
	assert.Len(t, bank.Overrides, 7)
	assert.False(t, bank.OverridesChanged())
	f.assertExpectations(t)
}
