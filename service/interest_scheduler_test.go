package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"banker/events"
	"banker/models"
	"banker/policy"
)

func amountOf(s string) interface{} {
	want := decimal.RequireFromString(s)
	return mock.MatchedBy(func(d decimal.Decimal) bool {
		return d.Equal(want)
	})
}

type schedulerFixture struct {
	store       *policy.Store
	payments    *MockPaymentService
	persistence *MockPersistence
	presence    *MockPresenceTracker
	publisher   *MockEventPublisher
	scheduler   *InterestScheduler
}

func newSchedulerFixture(t *testing.T) *schedulerFixture {
	t.Helper()

	store := policy.NewStore()
	require.NoError(t, store.SetDefault(policy.InterestRate, "0.01"))
	require.NoError(t, store.SetDefault(policy.InterestMultipliers, "1, 2"))

	f := &schedulerFixture{
		store:       store,
		payments:    new(MockPaymentService),
		persistence: new(MockPersistence),
		presence:    new(MockPresenceTracker),
		publisher:   new(MockEventPublisher),
	}
	f.scheduler = NewInterestScheduler(store, f.payments, f.persistence, f.presence, f.publisher)

	f.publisher.On("Publish", mock.Anything).Return().Maybe()
	f.persistence.On("UpdateAccount", mock.Anything, mock.Anything).Return(nil).Maybe()
	f.persistence.On("LogInterest", mock.Anything, mock.Anything).Return(nil).Maybe()
	f.persistence.On("LogLowBalanceFee", mock.Anything, mock.Anything).Return(nil).Maybe()
	return f
}

func (f *schedulerFixture) published() []events.Event {
	var out []events.Event
	for _, call := range f.publisher.Calls {
		if call.Method == "Publish" {
			out = append(out, call.Arguments.Get(0).(events.Event))
		}
	}
	return out
}

func (f *schedulerFixture) interestLogs() []*models.InterestLog {
	var out []*models.InterestLog
	for _, call := range f.persistence.Calls {
		if call.Method == "LogInterest" {
			out = append(out, call.Arguments.Get(1).(*models.InterestLog))
		}
	}
	return out
}

func testAccount(id, ownerID int64, balance string) *models.Account {
	return &models.Account{
		ID:      id,
		BankID:  1,
		OwnerID: ownerID,
		Balance: decimal.RequireFromString(balance),
		Multiplier: models.MultiplierState{
			RemainingOfflinePayouts:     1,
			RemainingOfflineBeforeReset: 1,
		},
	}
}

func testBank(accounts ...*models.Account) *models.Bank {
	return &models.Bank{ID: 1, Name: "Central", Accounts: accounts}
}

func TestInterestScheduler_RunPayoutCycle_TwoAccountsOneOwner(t *testing.T) {
	ctx := context.Background()
	f := newSchedulerFixture(t)

	first := testAccount(10, 42, "1000.00")
	second := testAccount(11, 42, "2000.00")
	bank := testBank(first, second)
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	f.presence.On("IsOnline", ctx, int64(42)).Return(true, nil)
	f.payments.On("Deposit", ctx, int64(42), amountOf("30.00"), models.TransactionTypeInterest, mock.Anything).Return(nil)

	report, err := f.scheduler.RunPayoutCycle(ctx, bank, now)
	require.NoError(t, err)

	assert.True(t, report.InterestPaid.Equal(decimal.RequireFromString("30.00")))
	assert.Equal(t, 2, report.AccountsProcessed)
	assert.Equal(t, 2, report.AccountsPaid)
	assert.Equal(t, 1, report.OwnersAffected())
	assert.Empty(t, report.Failures)
	assert.Equal(t, 1, first.Multiplier.Stage)
	assert.Equal(t, 1, second.Multiplier.Stage)

	logs := f.interestLogs()
	require.Len(t, logs, 2)
	assert.True(t, logs[0].Base.Equal(decimal.RequireFromString("10.00")))
	assert.True(t, logs[1].Base.Equal(decimal.RequireFromString("20.00")))
	assert.Equal(t, 1, logs[0].Multiplier)
	assert.Equal(t, now, logs[0].PaidAt)

	f.persistence.AssertNumberOfCalls(t, "UpdateAccount", 2)
	f.persistence.AssertNotCalled(t, "UpdateBank", mock.Anything, mock.Anything)
	f.payments.AssertExpectations(t)

	var paid *events.InterestPaidEvent
	var completed *events.PayoutCycleCompletedEvent
	for _, e := range f.published() {
		switch ev := e.(type) {
		case events.InterestPaidEvent:
			paid = &ev
		case events.PayoutCycleCompletedEvent:
			completed = &ev
		}
	}
	require.NotNil(t, paid)
	assert.Equal(t, []int64{10, 11}, paid.AccountIDs)
	require.NotNil(t, completed)
	assert.Equal(t, 2, completed.AccountsPaid)
}

func TestInterestScheduler_RunPayoutCycle_SecondCycleUsesNextStage(t *testing.T) {
	ctx := context.Background()
	f := newSchedulerFixture(t)

	first := testAccount(10, 42, "1000.00")
	second := testAccount(11, 42, "2000.00")
	bank := testBank(first, second)

	f.presence.On("IsOnline", ctx, int64(42)).Return(true, nil)
	f.payments.On("Deposit", ctx, int64(42), amountOf("30.00"), models.TransactionTypeInterest, mock.Anything).Return(nil).Once()
	f.payments.On("Deposit", ctx, int64(42), amountOf("60.00"), models.TransactionTypeInterest, mock.Anything).Return(nil).Once()

	_, err := f.scheduler.RunPayoutCycle(ctx, bank, time.Now())
	require.NoError(t, err)
	report, err := f.scheduler.RunPayoutCycle(ctx, bank, time.Now())
	require.NoError(t, err)

	assert.True(t, report.InterestPaid.Equal(decimal.RequireFromString("60.00")))
	assert.Equal(t, 1, first.Multiplier.Stage)
	f.payments.AssertExpectations(t)
}

func TestInterestScheduler_RunPayoutCycle_MultipliersDisabled(t *testing.T) {
	ctx := context.Background()
	f := newSchedulerFixture(t)
	f.store.SetMultipliersEnabled(false)

	account := testAccount(10, 42, "1000.00")
	account.Multiplier.Stage = 1
	bank := testBank(account)

	f.presence.On("IsOnline", ctx, int64(42)).Return(true, nil)
	f.payments.On("Deposit", ctx, int64(42), amountOf("10.00"), models.TransactionTypeInterest, mock.Anything).Return(nil)

	report, err := f.scheduler.RunPayoutCycle(ctx, bank, time.Now())
	require.NoError(t, err)

	assert.True(t, report.InterestPaid.Equal(decimal.RequireFromString("10.00")))
	logs := f.interestLogs()
	require.Len(t, logs, 1)
	assert.Equal(t, 1, logs[0].Multiplier)
}

func TestInterestScheduler_RunPayoutCycle_RoundsBaseHalfEven(t *testing.T) {
	ctx := context.Background()
	f := newSchedulerFixture(t)
	require.NoError(t, f.store.SetDefault(policy.InterestRate, "0.0125"))

	// 0.0125 * 50.00 = 0.625 -> 0.62
	account := testAccount(10, 42, "50.00")
	bank := testBank(account)

	f.presence.On("IsOnline", ctx, int64(42)).Return(true, nil)
	f.payments.On("Deposit", ctx, int64(42), amountOf("0.62"), models.TransactionTypeInterest, mock.Anything).Return(nil)

	_, err := f.scheduler.RunPayoutCycle(ctx, bank, time.Now())
	require.NoError(t, err)
	f.payments.AssertExpectations(t)
}

func TestInterestScheduler_RunPayoutCycle_InitialDelay(t *testing.T) {
	ctx := context.Background()
	f := newSchedulerFixture(t)

	account := testAccount(10, 42, "1000.00")
	account.Multiplier.RemainingDelay = 1
	bank := testBank(account)

	f.presence.On("IsOnline", ctx, int64(42)).Return(true, nil)

	report, err := f.scheduler.RunPayoutCycle(ctx, bank, time.Now())
	require.NoError(t, err)

	assert.Equal(t, 1, report.AccountsSkipped)
	assert.Equal(t, 0, account.Multiplier.RemainingDelay)
	assert.Equal(t, 0, account.Multiplier.Stage)
	assert.True(t, report.InterestEarned.IsZero())
	f.payments.AssertNotCalled(t, "Deposit", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.persistence.AssertNumberOfCalls(t, "UpdateAccount", 1)
}

func TestInterestScheduler_RunPayoutCycle_OfflineAllowance(t *testing.T) {
	ctx := context.Background()
	f := newSchedulerFixture(t)

	account := testAccount(10, 42, "1000.00")
	bank := testBank(account)

	f.presence.On("IsOnline", ctx, int64(42)).Return(false, nil)
	f.payments.On("Deposit", ctx, int64(42), amountOf("10.00"), models.TransactionTypeInterest, mock.Anything).Return(nil).Once()

	report, err := f.scheduler.RunPayoutCycle(ctx, bank, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, report.AccountsPaid)
	assert.Equal(t, 0, account.Multiplier.RemainingOfflinePayouts)

	report, err = f.scheduler.RunPayoutCycle(ctx, bank, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, report.AccountsPaid)
	assert.Equal(t, 1, report.AccountsSkipped)
	f.payments.AssertExpectations(t)
}

func TestInterestScheduler_RunPayoutCycle_PresenceErrorTreatedAsOffline(t *testing.T) {
	ctx := context.Background()
	f := newSchedulerFixture(t)

	account := testAccount(10, 42, "1000.00")
	account.Multiplier.RemainingOfflinePayouts = 0
	bank := testBank(account)

	f.presence.On("IsOnline", ctx, int64(42)).Return(false, errors.New("redis down"))

	report, err := f.scheduler.RunPayoutCycle(ctx, bank, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, report.AccountsSkipped)
}

func TestInterestScheduler_RunPayoutCycle_LowBalanceFee(t *testing.T) {
	ctx := context.Background()
	f := newSchedulerFixture(t)
	require.NoError(t, f.store.SetDefault(policy.MinimumAccountBalance, "500"))
	require.NoError(t, f.store.SetDefault(policy.LowBalanceFee, "5"))

	bankOwner := int64(7)
	account := testAccount(10, 42, "100.00")
	bank := testBank(account)
	bank.OwnerID = &bankOwner

	f.presence.On("IsOnline", ctx, int64(42)).Return(true, nil)
	f.payments.On("Withdraw", ctx, int64(42), amountOf("5"), models.TransactionTypeLowBalanceFee, mock.Anything).Return(nil)
	f.payments.On("Deposit", ctx, bankOwner, amountOf("5"), models.TransactionTypeFeeIncome, mock.Anything).Return(nil)

	report, err := f.scheduler.RunPayoutCycle(ctx, bank, time.Now())
	require.NoError(t, err)

	assert.Equal(t, 1, report.AccountsCharged)
	assert.Equal(t, 0, report.AccountsPaid)
	assert.True(t, report.FeesCharged.Equal(decimal.RequireFromString("5")))
	assert.Equal(t, 1, account.Multiplier.Stage)
	assert.True(t, account.Balance.Equal(decimal.RequireFromString("100.00")))
	assert.Empty(t, f.interestLogs())

	f.persistence.AssertCalled(t, "LogLowBalanceFee", ctx, mock.MatchedBy(func(e *models.LowBalanceFeeLog) bool {
		return e.AccountID == 10 && e.Collected && e.Fee.Equal(decimal.RequireFromString("5"))
	}))
	f.payments.AssertExpectations(t)
}

func TestInterestScheduler_RunPayoutCycle_LowBalanceFeeFailureIsReported(t *testing.T) {
	ctx := context.Background()
	f := newSchedulerFixture(t)
	require.NoError(t, f.store.SetDefault(policy.MinimumAccountBalance, "500"))
	require.NoError(t, f.store.SetDefault(policy.LowBalanceFee, "5"))

	account := testAccount(10, 42, "100.00")
	bank := testBank(account)

	f.presence.On("IsOnline", ctx, int64(42)).Return(true, nil)
	f.payments.On("Withdraw", ctx, int64(42), amountOf("5"), models.TransactionTypeLowBalanceFee, mock.Anything).Return(ErrInsufficientFunds)

	report, err := f.scheduler.RunPayoutCycle(ctx, bank, time.Now())
	require.NoError(t, err)

	require.Len(t, report.Failures, 1)
	assert.ErrorIs(t, report.Failures[0].Err, ErrInsufficientFunds)
	assert.True(t, report.FeesCharged.IsZero())
	assert.Equal(t, 1, account.Multiplier.Stage)
	f.persistence.AssertCalled(t, "LogLowBalanceFee", ctx, mock.MatchedBy(func(e *models.LowBalanceFeeLog) bool {
		return !e.Collected
	}))
}

func TestInterestScheduler_RunPayoutCycle_WriteFailuresAreNotPaymentFailures(t *testing.T) {
	ctx := context.Background()
	f := newSchedulerFixture(t)

	// replace the fixture's permissive persistence
	f.persistence = new(MockPersistence)
	f.scheduler = NewInterestScheduler(f.store, f.payments, f.persistence, f.presence, f.publisher)
	f.persistence.On("UpdateAccount", ctx, mock.Anything).Return(errors.New("connection reset"))
	f.persistence.On("LogInterest", ctx, mock.Anything).Return(errors.New("connection reset"))

	account := testAccount(10, 42, "1000.00")
	bank := testBank(account)

	f.presence.On("IsOnline", ctx, int64(42)).Return(true, nil)
	f.payments.On("Deposit", ctx, int64(42), amountOf("10.00"), models.TransactionTypeInterest, mock.Anything).Return(nil)

	report, err := f.scheduler.RunPayoutCycle(ctx, bank, time.Now())
	require.NoError(t, err)

	assert.Empty(t, report.Failures)
	require.Len(t, report.PersistenceFailures, 2)
	assert.Equal(t, "log interest", report.PersistenceFailures[0].Step)
	assert.Equal(t, "update account", report.PersistenceFailures[1].Step)
	assert.Equal(t, int64(10), report.PersistenceFailures[1].AccountID)
	assert.True(t, report.InterestPaid.Equal(decimal.RequireFromString("10.00")))

	var completed *events.PayoutCycleCompletedEvent
	for _, e := range f.published() {
		if c, ok := e.(events.PayoutCycleCompletedEvent); ok {
			completed = &c
		}
		assert.NotEqual(t, events.EventTypePaymentFailed, e.Type())
	}
	require.NotNil(t, completed)
	assert.Equal(t, 0, completed.FailedPayments)
	assert.Equal(t, 2, completed.FailedWrites)
}

func TestInterestScheduler_RunPayoutCycle_PayInterestOnLowBalance(t *testing.T) {
	ctx := context.Background()
	f := newSchedulerFixture(t)
	require.NoError(t, f.store.SetDefault(policy.MinimumAccountBalance, "500"))
	require.NoError(t, f.store.SetDefault(policy.LowBalanceFee, "5"))
	require.NoError(t, f.store.SetDefault(policy.PayInterestOnLowBalance, "true"))

	account := testAccount(10, 42, "100.00")
	bank := testBank(account)

	f.presence.On("IsOnline", ctx, int64(42)).Return(true, nil)
	f.payments.On("Deposit", ctx, int64(42), amountOf("1.00"), models.TransactionTypeInterest, mock.Anything).Return(nil)

	report, err := f.scheduler.RunPayoutCycle(ctx, bank, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, report.AccountsCharged)
	f.payments.AssertNotCalled(t, "Withdraw", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestInterestScheduler_RunPayoutCycle_FailedDepositKeepsState(t *testing.T) {
	ctx := context.Background()
	f := newSchedulerFixture(t)

	notifier := new(MockNotifier)
	notifier.On("Notify", ctx, int64(42), mock.AnythingOfType("string")).Return(nil)
	f.scheduler.SetNotifier(notifier)

	account := testAccount(10, 42, "1000.00")
	bank := testBank(account)

	f.presence.On("IsOnline", ctx, int64(42)).Return(true, nil)
	f.payments.On("Deposit", ctx, int64(42), amountOf("10.00"), models.TransactionTypeInterest, mock.Anything).Return(errors.New("economy offline"))

	report, err := f.scheduler.RunPayoutCycle(ctx, bank, time.Now())
	require.NoError(t, err)

	require.Len(t, report.Failures, 1)
	assert.Equal(t, "interest could not be deposited", report.Failures[0].Reason)
	assert.True(t, report.InterestPaid.IsZero())
	assert.True(t, report.InterestEarned.Equal(decimal.RequireFromString("10.00")))
	assert.Equal(t, 1, account.Multiplier.Stage)
	assert.Len(t, f.interestLogs(), 1)
	notifier.AssertCalled(t, "Notify", ctx, int64(42), mock.AnythingOfType("string"))

	var failed bool
	for _, e := range f.published() {
		if _, ok := e.(events.PaymentFailedEvent); ok {
			failed = true
		}
	}
	assert.True(t, failed)
}

func TestInterestScheduler_RunPayoutCycle_PlayerBankFundsInterest(t *testing.T) {
	ctx := context.Background()
	f := newSchedulerFixture(t)

	bankOwner := int64(7)
	account := testAccount(10, 42, "1000.00")
	bank := testBank(account)
	bank.OwnerID = &bankOwner

	f.presence.On("IsOnline", ctx, int64(42)).Return(true, nil)
	f.payments.On("Withdraw", ctx, bankOwner, amountOf("10.00"), models.TransactionTypeInterestFund, mock.Anything).Return(nil)
	f.payments.On("Deposit", ctx, int64(42), amountOf("10.00"), models.TransactionTypeInterest, mock.Anything).Return(nil)

	report, err := f.scheduler.RunPayoutCycle(ctx, bank, time.Now())
	require.NoError(t, err)

	assert.Empty(t, report.Failures)
	assert.True(t, report.Payouts[0].Paid)
	f.payments.AssertExpectations(t)
}

func TestInterestScheduler_RunPayoutCycle_PlayerBankCannotFund(t *testing.T) {
	ctx := context.Background()
	f := newSchedulerFixture(t)

	bankOwner := int64(7)
	account := testAccount(10, 42, "1000.00")
	bank := testBank(account)
	bank.OwnerID = &bankOwner

	f.presence.On("IsOnline", ctx, int64(42)).Return(true, nil)
	f.payments.On("Withdraw", ctx, bankOwner, amountOf("10.00"), models.TransactionTypeInterestFund, mock.Anything).Return(ErrInsufficientFunds)

	report, err := f.scheduler.RunPayoutCycle(ctx, bank, time.Now())
	require.NoError(t, err)

	require.Len(t, report.Failures, 1)
	assert.Equal(t, "bank could not fund interest", report.Failures[0].Reason)
	assert.False(t, report.Payouts[0].Paid)
	f.payments.AssertNotCalled(t, "Deposit", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestInterestScheduler_RunPayoutCycle_RefundsFundingWhenDepositFails(t *testing.T) {
	ctx := context.Background()
	f := newSchedulerFixture(t)

	bankOwner := int64(7)
	account := testAccount(10, 42, "1000.00")
	bank := testBank(account)
	bank.OwnerID = &bankOwner

	f.presence.On("IsOnline", ctx, int64(42)).Return(true, nil)
	f.payments.On("Withdraw", ctx, bankOwner, amountOf("10.00"), models.TransactionTypeInterestFund, mock.Anything).Return(nil)
	f.payments.On("Deposit", ctx, int64(42), amountOf("10.00"), models.TransactionTypeInterest, mock.Anything).Return(errors.New("wallet locked"))
	f.payments.On("Deposit", ctx, bankOwner, amountOf("10.00"), models.TransactionTypeInterestFund, mock.Anything).Return(nil)

	report, err := f.scheduler.RunPayoutCycle(ctx, bank, time.Now())
	require.NoError(t, err)

	require.Len(t, report.Failures, 1)
	f.payments.AssertExpectations(t)
}

func TestInterestScheduler_RunPayoutCycle_OwnersInAscendingOrder(t *testing.T) {
	ctx := context.Background()
	f := newSchedulerFixture(t)

	bank := testBank(
		testAccount(10, 99, "100.00"),
		testAccount(11, 5, "100.00"),
		testAccount(12, 42, "100.00"),
	)

	f.presence.On("IsOnline", ctx, mock.Anything).Return(true, nil)
	f.payments.On("Deposit", ctx, mock.Anything, amountOf("1.00"), models.TransactionTypeInterest, mock.Anything).Return(nil)

	report, err := f.scheduler.RunPayoutCycle(ctx, bank, time.Now())
	require.NoError(t, err)

	require.Len(t, report.Payouts, 3)
	assert.Equal(t, int64(5), report.Payouts[0].OwnerID)
	assert.Equal(t, int64(42), report.Payouts[1].OwnerID)
	assert.Equal(t, int64(99), report.Payouts[2].OwnerID)
}

func TestInterestScheduler_RunPayoutCycle_SnapshotIgnoresConcurrentChanges(t *testing.T) {
	ctx := context.Background()
	f := newSchedulerFixture(t)

	first := testAccount(10, 5, "1000.00")
	second := testAccount(11, 42, "2000.00")
	bank := testBank(first, second)
	late := testAccount(12, 42, "5000.00")

	f.presence.On("IsOnline", ctx, int64(5)).Return(true, nil).Run(func(mock.Arguments) {
		bank.RemoveAccount(second.ID)
		bank.Accounts = append(bank.Accounts, late)
	})
	f.presence.On("IsOnline", ctx, int64(42)).Return(true, nil)
	f.payments.On("Deposit", ctx, int64(5), amountOf("10.00"), models.TransactionTypeInterest, mock.Anything).Return(nil)
	f.payments.On("Deposit", ctx, int64(42), amountOf("20.00"), models.TransactionTypeInterest, mock.Anything).Return(nil)

	report, err := f.scheduler.RunPayoutCycle(ctx, bank, time.Now())
	require.NoError(t, err)

	assert.Equal(t, 2, report.AccountsProcessed)
	assert.Equal(t, 1, second.Multiplier.Stage)
	assert.Equal(t, 0, late.Multiplier.Stage)
	f.payments.AssertExpectations(t)
}

func TestInterestScheduler_RunPayoutCycle_StickyDefaultsPersistBank(t *testing.T) {
	ctx := context.Background()
	f := newSchedulerFixture(t)
	f.store.SetStickyDefaults(true)

	account := testAccount(10, 42, "1000.00")
	bank := testBank(account)

	f.presence.On("IsOnline", ctx, int64(42)).Return(true, nil)
	f.payments.On("Deposit", ctx, int64(42), mock.Anything, models.TransactionTypeInterest, mock.Anything).Return(nil)
	f.persistence.On("UpdateBank", ctx, bank).Return(nil).Once()

	_, err := f.scheduler.RunPayoutCycle(ctx, bank, time.Now())
	require.NoError(t, err)

	stored, ok := bank.Override(string(policy.InterestRate))
	assert.True(t, ok)
	assert.Equal(t, "0.0100", stored)
	assert.False(t, bank.OverridesChanged())
	f.persistence.AssertCalled(t, "UpdateBank", ctx, bank)
	f.persistence.AssertNumberOfCalls(t, "UpdateBank", 1)
	f.persistence.AssertExpectations(t)
}

func TestInterestScheduler_RunPayoutCycle_RecordsRunAndNotifiesObserver(t *testing.T) {
	ctx := context.Background()
	f := newSchedulerFixture(t)

	runs := new(MockInterestRunRepository)
	observer := new(MockCycleObserver)
	f.scheduler.SetRunRepository(runs)
	f.scheduler.SetObserver(observer)

	bank := testBank(testAccount(10, 42, "1000.00"), testAccount(11, 43, "3000.00"))
	now := time.Date(2024, 6, 1, 21, 30, 0, 0, time.UTC)

	f.presence.On("IsOnline", ctx, mock.Anything).Return(true, nil)
	f.payments.On("Deposit", ctx, mock.Anything, mock.Anything, models.TransactionTypeInterest, mock.Anything).Return(nil)
	runs.On("Create", ctx, mock.MatchedBy(func(run *models.InterestRun) bool {
		return run.BankID == 1 &&
			run.RunAt.Equal(now) &&
			run.AccountsPaid == 2 &&
			run.OwnersAffected == 2 &&
			run.TotalInterestDistributed.Equal(decimal.RequireFromString("40.00")) &&
			run.ExecutionSummary["gini"] == "0.25"
	})).Return(nil)
	observer.On("ObserveCycle", mock.AnythingOfType("*service.CycleReport")).Return()

	report, err := f.scheduler.RunPayoutCycle(ctx, bank, now)
	require.NoError(t, err)

	assert.True(t, report.Stats.Gini.Equal(decimal.RequireFromString("0.25")))
	runs.AssertExpectations(t)
	observer.AssertExpectations(t)
}

func TestInterestScheduler_RunPayoutCycle_NilBank(t *testing.T) {
	f := newSchedulerFixture(t)

	report, err := f.scheduler.RunPayoutCycle(context.Background(), nil, time.Now())
	assert.Error(t, err)
	assert.Nil(t, report)
}
