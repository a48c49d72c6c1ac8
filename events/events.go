package events

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"banker/models"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventTypeWalletBalanceChange  EventType = "wallet_balance_change"
	EventTypeInterestPaid         EventType = "interest_paid"
	EventTypeLowBalanceFee        EventType = "low_balance_fee"
	EventTypePaymentFailed        EventType = "payment_failed"
	EventTypePayoutCycleCompleted EventType = "payout_cycle_completed"
	EventTypeAccountOpened        EventType = "account_opened"
	EventTypeAccountClosed        EventType = "account_closed"
	EventTypeWithdrawal           EventType = "withdrawal"
	EventTypePolicyChanged        EventType = "policy_changed"
)

// AllTypes lists every event type emitted by the application
var AllTypes = []EventType{
	EventTypeWalletBalanceChange,
	EventTypeInterestPaid,
	EventTypeLowBalanceFee,
	EventTypePaymentFailed,
	EventTypePayoutCycleCompleted,
	EventTypeAccountOpened,
	EventTypeAccountClosed,
	EventTypeWithdrawal,
	EventTypePolicyChanged,
}

// Event is the base interface for all events
type Event interface {
	Type() EventType
}

// WalletBalanceChangeEvent represents a change to a player's wallet
type WalletBalanceChangeEvent struct {
	OwnerID         int64                  `json:"owner_id"`
	OldBalance      decimal.Decimal        `json:"old_balance"`
	NewBalance      decimal.Decimal        `json:"new_balance"`
	ChangeAmount    decimal.Decimal        `json:"change_amount"`
	TransactionType models.TransactionType `json:"transaction_type"`
}

func (e WalletBalanceChangeEvent) Type() EventType {
	return EventTypeWalletBalanceChange
}

// InterestPaidEvent is emitted once per owner per payout cycle
type InterestPaidEvent struct {
	BankID     int64           `json:"bank_id"`
	OwnerID    int64           `json:"owner_id"`
	Amount     decimal.Decimal `json:"amount"`
	AccountIDs []int64         `json:"account_ids"`
}

func (e InterestPaidEvent) Type() EventType {
	return EventTypeInterestPaid
}

// LowBalanceFeeEvent is emitted once per owner that was charged fees
type LowBalanceFeeEvent struct {
	BankID     int64           `json:"bank_id"`
	OwnerID    int64           `json:"owner_id"`
	Amount     decimal.Decimal `json:"amount"`
	AccountIDs []int64         `json:"account_ids"`
}

func (e LowBalanceFeeEvent) Type() EventType {
	return EventTypeLowBalanceFee
}

// PaymentFailedEvent reports an interest deposit or fee withdrawal that could
// not be applied to a wallet
type PaymentFailedEvent struct {
	BankID  int64           `json:"bank_id"`
	OwnerID int64           `json:"owner_id"`
	Amount  decimal.Decimal `json:"amount"`
	Reason  string          `json:"reason"`
}

func (e PaymentFailedEvent) Type() EventType {
	return EventTypePaymentFailed
}

// PayoutCycleCompletedEvent summarizes one payout cycle of a bank
type PayoutCycleCompletedEvent struct {
	BankID          int64           `json:"bank_id"`
	RunAt           time.Time       `json:"run_at"`
	InterestPaid    decimal.Decimal `json:"interest_paid"`
	FeesCharged     decimal.Decimal `json:"fees_charged"`
	AccountsPaid    int             `json:"accounts_paid"`
	OwnersAffected  int             `json:"owners_affected"`
	FailedPayments  int             `json:"failed_payments"`
	FailedWrites    int             `json:"failed_writes"`
	Gini            decimal.Decimal `json:"gini"`
	RevenueEstimate decimal.Decimal `json:"revenue_estimate"`
}

func (e PayoutCycleCompletedEvent) Type() EventType {
	return EventTypePayoutCycleCompleted
}

// AccountOpenedEvent represents a new bank account
type AccountOpenedEvent struct {
	BankID         int64           `json:"bank_id"`
	AccountID      int64           `json:"account_id"`
	OwnerID        int64           `json:"owner_id"`
	InitialDeposit decimal.Decimal `json:"initial_deposit"`
}

func (e AccountOpenedEvent) Type() EventType {
	return EventTypeAccountOpened
}

// AccountClosedEvent represents a closed bank account and its paid out balance
type AccountClosedEvent struct {
	BankID    int64           `json:"bank_id"`
	AccountID int64           `json:"account_id"`
	OwnerID   int64           `json:"owner_id"`
	Refunded  decimal.Decimal `json:"refunded"`
}

func (e AccountClosedEvent) Type() EventType {
	return EventTypeAccountClosed
}

// WithdrawalEvent represents money taken out of an account
type WithdrawalEvent struct {
	BankID      int64           `json:"bank_id"`
	AccountID   int64           `json:"account_id"`
	OwnerID     int64           `json:"owner_id"`
	Amount      decimal.Decimal `json:"amount"`
	StageBefore int             `json:"stage_before"`
	StageAfter  int             `json:"stage_after"`
}

func (e WithdrawalEvent) Type() EventType {
	return EventTypeWithdrawal
}

// PolicyChangedEvent represents a bank override being set or cleared
type PolicyChangedEvent struct {
	BankID    int64  `json:"bank_id"`
	Policy    string `json:"policy"`
	Stored    string `json:"stored"`
	Cleared   bool   `json:"cleared"`
	Effective string `json:"effective"`
}

func (e PolicyChangedEvent) Type() EventType {
	return EventTypePolicyChanged
}

// Handler is a function that handles events
type Handler func(ctx context.Context, event Event)

// Bus manages event subscriptions and dispatching
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe adds a handler for a specific event type
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)

	log.WithFields(log.Fields{
		"eventType":    eventType,
		"handlerCount": len(b.handlers[eventType]),
	}).Debug("Subscribed handler to event type on main event bus")
}

// SubscribeAll adds a handler for every known event type
func (b *Bus) SubscribeAll(handler Handler) {
	for _, t := range AllTypes {
		b.Subscribe(t, handler)
	}
}

// Emit publishes an event to all registered handlers
func (b *Bus) Emit(ctx context.Context, event Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[event.Type()]))
	copy(handlers, b.handlers[event.Type()])
	b.mu.RUnlock()

	log.WithFields(log.Fields{
		"eventType":    event.Type(),
		"handlerCount": len(handlers),
	}).Debug("Emitting event to handlers on main event bus")

	// Call handlers asynchronously to avoid blocking
	for i, handler := range handlers {
		go func(h Handler, handlerIndex int) {
			defer func() {
				if r := recover(); r != nil {
					log.WithFields(log.Fields{
						"eventType":    event.Type(),
						"handlerIndex": handlerIndex,
						"panic":        r,
					}).Error("Event handler panicked")
				}
			}()
			h(ctx, event)
		}(handler, i)
	}
}

// Publish emits an event immediately. It lets the bus stand in wherever a
// publisher is expected outside of a unit of work.
func (b *Bus) Publish(e Event) {
	b.Emit(context.Background(), e)
}

// A transactional event bus for holding pending events coupled to the Unit of Work.
// Flushes to the underlying event bus.
type TransactionalBus struct {
	real    *Bus
	pending []Event // stashed until Flush
}

func NewTransactionalBus(real *Bus) *TransactionalBus {
	return &TransactionalBus{real: real}
}

func (b *TransactionalBus) Publish(e Event) {
	log.WithFields(log.Fields{
		"eventType":    e.Type(),
		"pendingCount": len(b.pending),
	}).Debug("Adding event to transactional bus pending queue")
	b.pending = append(b.pending, e)
}

// Pending returns the number of stashed events
func (b *TransactionalBus) Pending() int {
	return len(b.pending)
}

// called after successful DB commit
func (b *TransactionalBus) Flush(ctx context.Context) error {
	log.WithFields(log.Fields{
		"pendingEventCount": len(b.pending),
	}).Debug("Flushing pending events from transactional bus to main event bus")

	// Events outlive the transaction context
	eventCtx := context.Background()

	for _, ev := range b.pending {
		b.real.Emit(eventCtx, ev)
	}
	b.pending = nil
	return nil
}

// called after db rollback or to clear state.
func (b *TransactionalBus) Discard() {
	b.pending = nil
}
