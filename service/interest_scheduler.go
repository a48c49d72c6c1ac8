package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"banker/events"
	"banker/models"
	"banker/multiplier"
	"banker/policy"
	"banker/revenue"
)

// OwnerPayout is the interest aggregated for one owner in a cycle
type OwnerPayout struct {
	OwnerID    int64
	Amount     decimal.Decimal
	AccountIDs []int64
	Paid       bool
}

// PaymentFailure records a payment that did not succeed. Failures never stop
// a cycle.
type PaymentFailure struct {
	OwnerID   int64
	AccountID int64
	Amount    decimal.Decimal
	Reason    string
	Err       error
}

// PersistenceFailure records a write to the persistence collaborator that
// did not succeed. AccountID is zero for bank level writes.
type PersistenceFailure struct {
	AccountID int64
	Step      string
	Err       error
}

// CycleReport summarizes one payout cycle of a bank
type CycleReport struct {
	BankID int64
	RunAt  time.Time

	AccountsProcessed int
	AccountsPaid      int
	AccountsSkipped   int
	AccountsCharged   int

	// InterestEarned is everything computed this cycle, InterestPaid the
	// part that actually reached the owners' wallets
	InterestEarned decimal.Decimal
	InterestPaid   decimal.Decimal
	FeesCharged    decimal.Decimal

	Payouts             []OwnerPayout
	Failures            []PaymentFailure
	PersistenceFailures []PersistenceFailure

	Stats    revenue.BankStats
	Revenue  decimal.Decimal
	Duration time.Duration
}

// OwnersAffected counts the owners that earned interest this cycle
func (r *CycleReport) OwnersAffected() int {
	return len(r.Payouts)
}

func (r *CycleReport) fail(f PaymentFailure) {
	r.Failures = append(r.Failures, f)
}

func (r *CycleReport) persistFailed(accountID int64, step string, err error) {
	r.PersistenceFailures = append(r.PersistenceFailures, PersistenceFailure{
		AccountID: accountID,
		Step:      step,
		Err:       err,
	})
}

// cyclePolicies are the bank policies a payout cycle reads, resolved once
// before the first account is processed
type cyclePolicies struct {
	params             multiplier.Params
	rate               decimal.Decimal
	minimumBalance     decimal.Decimal
	lowBalanceFee      decimal.Decimal
	payOnLowBalance    bool
	multipliersEnabled bool
	revenue            *revenue.Expression
}

// InterestScheduler runs payout cycles. Cycles are serialized: two cycles
// never run at the same time, whichever bank they belong to.
type InterestScheduler struct {
	mu sync.Mutex

	store       *policy.Store
	payments    PaymentService
	persistence Persistence
	presence    PresenceTracker
	publisher   EventPublisher

	notifier Notifier
	runs     InterestRunRepository
	observer CycleObserver
}

// NewInterestScheduler creates a new interest scheduler
func NewInterestScheduler(
	store *policy.Store,
	payments PaymentService,
	persistence Persistence,
	presence PresenceTracker,
	publisher EventPublisher,
) *InterestScheduler {
	return &InterestScheduler{
		store:       store,
		payments:    payments,
		persistence: persistence,
		presence:    presence,
		publisher:   publisher,
	}
}

// SetNotifier sets where players are told about payouts and failures
func (s *InterestScheduler) SetNotifier(n Notifier) {
	s.notifier = n
}

// SetRunRepository enables recording an InterestRun per cycle
func (s *InterestScheduler) SetRunRepository(r InterestRunRepository) {
	s.runs = r
}

// SetObserver registers a cycle observer, typically metrics
func (s *InterestScheduler) SetObserver(o CycleObserver) {
	s.observer = o
}

// RunPayoutCycle evaluates every account of the bank once.
//
// Accounts are snapshotted up front, so accounts added to or removed from the
// bank while the cycle runs do not affect it. Owners are processed in
// ascending id order and each owner's accounts in snapshot order. Every
// account's multiplier state is persisted as soon as it is processed. Each
// owner's interest is deposited in one payment after their accounts are done;
// a failed payment is reported and does not undo the state already advanced.
func (s *InterestScheduler) RunPayoutCycle(ctx context.Context, bank *models.Bank, now time.Time) (*CycleReport, error) {
	if bank == nil {
		return nil, errors.New("payout cycle requires a bank")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	report := &CycleReport{
		BankID:         bank.ID,
		RunAt:          now,
		InterestEarned: decimal.Zero,
		InterestPaid:   decimal.Zero,
		FeesCharged:    decimal.Zero,
	}

	snapshot := bank.AccountsSnapshot()
	pol := s.resolvePolicies(bank)

	byOwner := make(map[int64][]*models.Account)
	for _, account := range snapshot {
		byOwner[account.OwnerID] = append(byOwner[account.OwnerID], account)
	}
	owners := make([]int64, 0, len(byOwner))
	for ownerID := range byOwner {
		owners = append(owners, ownerID)
	}
	slices.Sort(owners)

	for _, ownerID := range owners {
		online := s.isOnline(ctx, ownerID)

		payout := OwnerPayout{OwnerID: ownerID, Amount: decimal.Zero}
		for _, account := range byOwner[ownerID] {
			interest, paid := s.processAccount(ctx, bank, account, online, pol, now, report)
			if paid {
				payout.Amount = payout.Amount.Add(interest)
				payout.AccountIDs = append(payout.AccountIDs, account.ID)
			}
		}

		if len(payout.AccountIDs) == 0 {
			continue
		}

		report.InterestEarned = report.InterestEarned.Add(payout.Amount)
		if payout.Amount.IsPositive() {
			payout.Paid = s.payInterest(ctx, bank, payout, report)
			if payout.Paid {
				report.InterestPaid = report.InterestPaid.Add(payout.Amount)
			}
		}
		report.Payouts = append(report.Payouts, payout)
	}

	if bank.OverridesChanged() {
		if err := s.persistence.UpdateBank(ctx, bank); err != nil {
			log.WithFields(log.Fields{
				"bank_id": bank.ID,
				"error":   err,
			}).Error("Failed to persist bank policy overrides after payout cycle")
			report.persistFailed(0, "update bank", err)
		} else {
			bank.MarkPersisted()
		}
	}

	report.Stats = revenue.ComputeStats(snapshot)
	report.Revenue = pol.revenue.EvaluateStats(report.Stats)
	report.Duration = time.Since(start)

	s.recordRun(ctx, report)
	s.publish(events.PayoutCycleCompletedEvent{
		BankID:          bank.ID,
		RunAt:           now,
		InterestPaid:    report.InterestPaid,
		FeesCharged:     report.FeesCharged,
		AccountsPaid:    report.AccountsPaid,
		OwnersAffected:  report.OwnersAffected(),
		FailedPayments:  len(report.Failures),
		FailedWrites:    len(report.PersistenceFailures),
		Gini:            report.Stats.Gini,
		RevenueEstimate: report.Revenue,
	})
	if s.observer != nil {
		s.observer.ObserveCycle(report)
	}

	log.WithFields(log.Fields{
		"bank_id":        bank.ID,
		"accounts":       report.AccountsProcessed,
		"paid":           report.AccountsPaid,
		"skipped":        report.AccountsSkipped,
		"charged":        report.AccountsCharged,
		"owners":         report.OwnersAffected(),
		"total_interest": report.InterestEarned.StringFixed(models.BalanceScale),
		"fees":           report.FeesCharged.StringFixed(models.BalanceScale),
		"failures":       len(report.Failures),
		"failed_writes":  len(report.PersistenceFailures),
		"gini":           report.Stats.Gini.StringFixed(2),
		"revenue":        report.Revenue.StringFixed(2),
		"duration":       report.Duration,
	}).Info("Payout cycle completed")

	return report, nil
}

func (s *InterestScheduler) resolvePolicies(bank *models.Bank) cyclePolicies {
	return cyclePolicies{
		params:             s.store.MultiplierParams(bank),
		rate:               policy.Resolve(s.store, bank, s.store.InterestRate),
		minimumBalance:     policy.Resolve(s.store, bank, s.store.MinimumAccountBalance),
		lowBalanceFee:      policy.Resolve(s.store, bank, s.store.LowBalanceFee),
		payOnLowBalance:    policy.Resolve(s.store, bank, s.store.PayInterestOnLowBalance),
		multipliersEnabled: s.store.MultipliersEnabled(),
		revenue:            policy.Resolve(s.store, bank, s.store.BankRevenueExpression),
	}
}

func (s *InterestScheduler) isOnline(ctx context.Context, ownerID int64) bool {
	online, err := s.presence.IsOnline(ctx, ownerID)
	if err != nil {
		log.WithFields(log.Fields{
			"owner_id": ownerID,
			"error":    err,
		}).Warn("Presence lookup failed, treating owner as offline")
		return false
	}
	return online
}

// processAccount runs one account through the cycle. It returns the interest
// earned and whether the account took the interest branch.
func (s *InterestScheduler) processAccount(
	ctx context.Context,
	bank *models.Bank,
	account *models.Account,
	online bool,
	pol cyclePolicies,
	now time.Time,
	report *CycleReport,
) (decimal.Decimal, bool) {
	report.AccountsProcessed++
	machine := multiplier.New(&account.Multiplier, pol.params)

	if !machine.AllowNextPayout(online) {
		report.AccountsSkipped++
		s.persistAccount(ctx, account, report)
		return decimal.Zero, false
	}

	if account.IsBelow(pol.minimumBalance) && !pol.payOnLowBalance {
		report.AccountsCharged++
		s.chargeLowBalanceFee(ctx, bank, account, pol.lowBalanceFee, now, report)
		machine.IncrementMultiplier(online)
		s.persistAccount(ctx, account, report)
		return decimal.Zero, false
	}

	base := models.RoundAmount(account.Balance.Mul(pol.rate))
	factor := machine.CurrentMultiplier()
	interest := base
	if pol.multipliersEnabled {
		interest = base.Mul(decimal.NewFromInt(int64(factor)))
	} else {
		factor = 1
	}
	machine.IncrementMultiplier(online)
	report.AccountsPaid++

	entry := &models.InterestLog{
		AccountID:  account.ID,
		BankID:     bank.ID,
		OwnerID:    account.OwnerID,
		Base:       base,
		Multiplier: factor,
		Interest:   interest,
		PaidAt:     now,
	}
	if err := s.persistence.LogInterest(ctx, entry); err != nil {
		log.WithFields(log.Fields{
			"account_id": account.ID,
			"error":      err,
		}).Error("Failed to log interest")
		report.persistFailed(account.ID, "log interest", err)
	}

	s.persistAccount(ctx, account, report)
	return interest, true
}

func (s *InterestScheduler) persistAccount(ctx context.Context, account *models.Account, report *CycleReport) {
	if err := s.persistence.UpdateAccount(ctx, account); err != nil {
		log.WithFields(log.Fields{
			"account_id": account.ID,
			"error":      err,
		}).Error("Failed to persist account multiplier state")
		report.persistFailed(account.ID, "update account", err)
	}
}

func (s *InterestScheduler) chargeLowBalanceFee(
	ctx context.Context,
	bank *models.Bank,
	account *models.Account,
	fee decimal.Decimal,
	now time.Time,
	report *CycleReport,
) {
	if !fee.IsPositive() {
		return
	}

	metadata := map[string]any{
		"bank_id":    bank.ID,
		"account_id": account.ID,
	}

	collected := true
	if err := s.payments.Withdraw(ctx, account.OwnerID, fee, models.TransactionTypeLowBalanceFee, metadata); err != nil {
		collected = false
		s.reportFailure(ctx, bank, PaymentFailure{
			OwnerID:   account.OwnerID,
			AccountID: account.ID,
			Amount:    fee,
			Reason:    "low balance fee could not be collected",
			Err:       err,
		}, report)
	}

	if collected {
		report.FeesCharged = report.FeesCharged.Add(fee)
		if !bank.IsAdminBank() {
			if err := s.payments.Deposit(ctx, *bank.OwnerID, fee, models.TransactionTypeFeeIncome, metadata); err != nil {
				s.reportFailure(ctx, bank, PaymentFailure{
					OwnerID:   *bank.OwnerID,
					AccountID: account.ID,
					Amount:    fee,
					Reason:    "low balance fee could not be paid to the bank owner",
					Err:       err,
				}, report)
			}
		}
		s.publish(events.LowBalanceFeeEvent{
			BankID:     bank.ID,
			OwnerID:    account.OwnerID,
			Amount:     fee,
			AccountIDs: []int64{account.ID},
		})
		s.notify(ctx, account.OwnerID, fmt.Sprintf(
			"Your account at %s is below the minimum balance. A fee of %s was charged instead of interest.",
			bank.Name, fee.StringFixed(models.BalanceScale)))
	}

	entry := &models.LowBalanceFeeLog{
		AccountID: account.ID,
		BankID:    bank.ID,
		OwnerID:   account.OwnerID,
		Fee:       fee,
		Collected: collected,
		ChargedAt: now,
	}
	if err := s.persistence.LogLowBalanceFee(ctx, entry); err != nil {
		log.WithFields(log.Fields{
			"account_id": account.ID,
			"error":      err,
		}).Error("Failed to log low balance fee")
		report.persistFailed(account.ID, "log low balance fee", err)
	}
}

// payInterest moves an owner's aggregated interest into their wallet. A
// player bank funds the interest from its owner first; admin banks mint it.
func (s *InterestScheduler) payInterest(ctx context.Context, bank *models.Bank, payout OwnerPayout, report *CycleReport) bool {
	metadata := map[string]any{
		"bank_id":     bank.ID,
		"account_ids": payout.AccountIDs,
	}

	funded := false
	if !bank.IsAdminBank() {
		if err := s.payments.Withdraw(ctx, *bank.OwnerID, payout.Amount, models.TransactionTypeInterestFund, metadata); err != nil {
			s.reportFailure(ctx, bank, PaymentFailure{
				OwnerID: payout.OwnerID,
				Amount:  payout.Amount,
				Reason:  "bank could not fund interest",
				Err:     err,
			}, report)
			return false
		}
		funded = true
	}

	if err := s.payments.Deposit(ctx, payout.OwnerID, payout.Amount, models.TransactionTypeInterest, metadata); err != nil {
		if funded {
			if refundErr := s.payments.Deposit(ctx, *bank.OwnerID, payout.Amount, models.TransactionTypeInterestFund, metadata); refundErr != nil {
				log.WithFields(log.Fields{
					"bank_id":  bank.ID,
					"owner_id": *bank.OwnerID,
					"amount":   payout.Amount.StringFixed(models.BalanceScale),
					"error":    refundErr,
				}).Error("Failed to refund interest funding to bank owner")
			}
		}
		s.reportFailure(ctx, bank, PaymentFailure{
			OwnerID: payout.OwnerID,
			Amount:  payout.Amount,
			Reason:  "interest could not be deposited",
			Err:     err,
		}, report)
		return false
	}

	s.publish(events.InterestPaidEvent{
		BankID:     bank.ID,
		OwnerID:    payout.OwnerID,
		Amount:     payout.Amount,
		AccountIDs: payout.AccountIDs,
	})
	s.notify(ctx, payout.OwnerID, fmt.Sprintf("You earned %s interest at %s.",
		payout.Amount.StringFixed(models.BalanceScale), bank.Name))
	return true
}

func (s *InterestScheduler) reportFailure(ctx context.Context, bank *models.Bank, f PaymentFailure, report *CycleReport) {
	report.fail(f)

	log.WithFields(log.Fields{
		"bank_id":    bank.ID,
		"owner_id":   f.OwnerID,
		"account_id": f.AccountID,
		"amount":     f.Amount.StringFixed(models.BalanceScale),
		"reason":     f.Reason,
		"error":      f.Err,
	}).Error("Payment failed during payout cycle")

	s.publish(events.PaymentFailedEvent{
		BankID:  bank.ID,
		OwnerID: f.OwnerID,
		Amount:  f.Amount,
		Reason:  f.Reason,
	})
	s.notify(ctx, f.OwnerID, fmt.Sprintf("A payment of %s at %s failed: %s.",
		f.Amount.StringFixed(models.BalanceScale), bank.Name, f.Reason))
}

func (s *InterestScheduler) recordRun(ctx context.Context, report *CycleReport) {
	if s.runs == nil {
		return
	}

	run := &models.InterestRun{
		BankID:                   report.BankID,
		RunAt:                    report.RunAt,
		TotalInterestDistributed: report.InterestPaid,
		AccountsPaid:             report.AccountsPaid,
		OwnersAffected:           report.OwnersAffected(),
		ExecutionSummary: map[string]interface{}{
			"accounts_processed": report.AccountsProcessed,
			"accounts_skipped":   report.AccountsSkipped,
			"accounts_charged":   report.AccountsCharged,
			"interest_earned":    report.InterestEarned.StringFixed(models.BalanceScale),
			"fees_charged":       report.FeesCharged.StringFixed(models.BalanceScale),
			"failed_payments":    len(report.Failures),
			"failed_writes":      len(report.PersistenceFailures),
			"total_value":        report.Stats.Total.StringFixed(models.BalanceScale),
			"gini":               report.Stats.Gini.StringFixed(2),
			"revenue_estimate":   report.Revenue.StringFixed(2),
			"execution_time_ms":  report.Duration.Milliseconds(),
		},
	}

	if err := s.runs.Create(ctx, run); err != nil {
		log.WithFields(log.Fields{
			"bank_id": report.BankID,
			"error":   err,
		}).Error("Failed to record interest run")
	}
}

func (s *InterestScheduler) publish(e events.Event) {
	if s.publisher != nil {
		s.publisher.Publish(e)
	}
}

func (s *InterestScheduler) notify(ctx context.Context, ownerID int64, message string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, ownerID, message); err != nil {
		log.WithFields(log.Fields{
			"owner_id": ownerID,
			"error":    err,
		}).Warn("Failed to notify player")
	}
}
