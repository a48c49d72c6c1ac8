package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"banker/events"
	"banker/models"
)

// MockBankRepository is a mock implementation of BankRepository
type MockBankRepository struct {
	mock.Mock
}

func (m *MockBankRepository) GetByID(ctx context.Context, id int64) (*models.Bank, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Bank), args.Error(1)
}

func (m *MockBankRepository) GetByName(ctx context.Context, name string) (*models.Bank, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Bank), args.Error(1)
}

func (m *MockBankRepository) GetAll(ctx context.Context) ([]*models.Bank, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Bank), args.Error(1)
}

func (m *MockBankRepository) Create(ctx context.Context, bank *models.Bank) error {
	args := m.Called(ctx, bank)
	return args.Error(0)
}

func (m *MockBankRepository) Update(ctx context.Context, bank *models.Bank) error {
	args := m.Called(ctx, bank)
	return args.Error(0)
}

// MockAccountRepository is a mock implementation of AccountRepository
type MockAccountRepository struct {
	mock.Mock
}

func (m *MockAccountRepository) GetByID(ctx context.Context, id int64) (*models.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

func (m *MockAccountRepository) GetByBank(ctx context.Context, bankID int64) ([]*models.Account, error) {
	args := m.Called(ctx, bankID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Account), args.Error(1)
}

func (m *MockAccountRepository) Create(ctx context.Context, account *models.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *MockAccountRepository) Update(ctx context.Context, account *models.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *MockAccountRepository) Delete(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockWalletRepository is a mock implementation of WalletRepository
type MockWalletRepository struct {
	mock.Mock
}

func (m *MockWalletRepository) Get(ctx context.Context, ownerID int64) (*models.Wallet, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Wallet), args.Error(1)
}

func (m *MockWalletRepository) Credit(ctx context.Context, ownerID int64, amount decimal.Decimal, txType models.TransactionType, metadata map[string]any) (*models.WalletHistory, error) {
	args := m.Called(ctx, ownerID, amount, txType, metadata)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.WalletHistory), args.Error(1)
}

func (m *MockWalletRepository) Debit(ctx context.Context, ownerID int64, amount decimal.Decimal, txType models.TransactionType, metadata map[string]any) (*models.WalletHistory, error) {
	args := m.Called(ctx, ownerID, amount, txType, metadata)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.WalletHistory), args.Error(1)
}

func (m *MockWalletRepository) GetHistory(ctx context.Context, ownerID int64, limit int) ([]*models.WalletHistory, error) {
	args := m.Called(ctx, ownerID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.WalletHistory), args.Error(1)
}

// MockInterestRunRepository is a mock implementation of InterestRunRepository
type MockInterestRunRepository struct {
	mock.Mock
}

func (m *MockInterestRunRepository) Create(ctx context.Context, run *models.InterestRun) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockInterestRunRepository) GetLatestByBank(ctx context.Context, bankID int64) (*models.InterestRun, error) {
	args := m.Called(ctx, bankID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.InterestRun), args.Error(1)
}

func (m *MockInterestRunRepository) GetByBankSince(ctx context.Context, bankID int64, since time.Time) ([]*models.InterestRun, error) {
	args := m.Called(ctx, bankID, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.InterestRun), args.Error(1)
}

// MockPersistence is a mock implementation of Persistence
type MockPersistence struct {
	mock.Mock
}

func (m *MockPersistence) UpdateAccount(ctx context.Context, account *models.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *MockPersistence) UpdateBank(ctx context.Context, bank *models.Bank) error {
	args := m.Called(ctx, bank)
	return args.Error(0)
}

func (m *MockPersistence) LogInterest(ctx context.Context, entry *models.InterestLog) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockPersistence) LogLowBalanceFee(ctx context.Context, entry *models.LowBalanceFeeLog) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

// MockPaymentService is a mock implementation of PaymentService
type MockPaymentService struct {
	mock.Mock
}

func (m *MockPaymentService) Deposit(ctx context.Context, ownerID int64, amount decimal.Decimal, txType models.TransactionType, metadata map[string]any) error {
	args := m.Called(ctx, ownerID, amount, txType, metadata)
	return args.Error(0)
}

func (m *MockPaymentService) Withdraw(ctx context.Context, ownerID int64, amount decimal.Decimal, txType models.TransactionType, metadata map[string]any) error {
	args := m.Called(ctx, ownerID, amount, txType, metadata)
	return args.Error(0)
}

// MockPresenceTracker is a mock implementation of PresenceTracker
type MockPresenceTracker struct {
	mock.Mock
}

func (m *MockPresenceTracker) IsOnline(ctx context.Context, ownerID int64) (bool, error) {
	args := m.Called(ctx, ownerID)
	return args.Bool(0), args.Error(1)
}

// MockNotifier is a mock implementation of Notifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, ownerID int64, message string) error {
	args := m.Called(ctx, ownerID, message)
	return args.Error(0)
}

// MockEventPublisher is a mock implementation of EventPublisher for testing
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(event events.Event) {
	m.Called(event)
}

// MockCycleObserver is a mock implementation of CycleObserver
type MockCycleObserver struct {
	mock.Mock
}

func (m *MockCycleObserver) ObserveCycle(report *CycleReport) {
	m.Called(report)
}

// MockCycleRunner is a mock implementation of CycleRunner
type MockCycleRunner struct {
	mock.Mock
}

func (m *MockCycleRunner) RunPayoutCycle(ctx context.Context, bank *models.Bank, now time.Time) (*CycleReport, error) {
	args := m.Called(ctx, bank, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*CycleReport), args.Error(1)
}

// MockUnitOfWork is a mock implementation of UnitOfWork. Repository getters
// return whatever SetRepositories installed.
type MockUnitOfWork struct {
	mock.Mock

	bankRepo    BankRepository
	accountRepo AccountRepository
	walletRepo  WalletRepository
	eventBus    EventPublisher
}

// SetRepositories installs the repositories returned by the getters
func (m *MockUnitOfWork) SetRepositories(bankRepo BankRepository, accountRepo AccountRepository, walletRepo WalletRepository, eventBus EventPublisher) {
	m.bankRepo = bankRepo
	m.accountRepo = accountRepo
	m.walletRepo = walletRepo
	m.eventBus = eventBus
}

func (m *MockUnitOfWork) Begin(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockUnitOfWork) Commit() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) Rollback() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) BankRepository() BankRepository {
	return m.bankRepo
}

func (m *MockUnitOfWork) AccountRepository() AccountRepository {
	return m.accountRepo
}

func (m *MockUnitOfWork) WalletRepository() WalletRepository {
	return m.walletRepo
}

func (m *MockUnitOfWork) EventBus() EventPublisher {
	return m.eventBus
}

// MockUnitOfWorkFactory is a mock implementation of UnitOfWorkFactory
type MockUnitOfWorkFactory struct {
	mock.Mock
}

func (m *MockUnitOfWorkFactory) Create() UnitOfWork {
	args := m.Called()
	return args.Get(0).(UnitOfWork)
}
