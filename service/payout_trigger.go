package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"banker/models"
	"banker/policy"
)

// CycleRunner runs one payout cycle for a bank
type CycleRunner interface {
	RunPayoutCycle(ctx context.Context, bank *models.Bank, now time.Time) (*CycleReport, error)
}

// PayoutTrigger fires payout cycles at each bank's configured times of day
type PayoutTrigger struct {
	uowFactory UnitOfWorkFactory
	store      *policy.Store
	runner     CycleRunner
	location   *time.Location
	now        func() time.Time

	mu      sync.Mutex
	cron    *cron.Cron
	entries map[int64][]cron.EntryID
	ctx     context.Context
}

// NewPayoutTrigger creates a trigger that evaluates payout times in location
func NewPayoutTrigger(uowFactory UnitOfWorkFactory, store *policy.Store, runner CycleRunner, location *time.Location) *PayoutTrigger {
	if location == nil {
		location = time.UTC
	}
	return &PayoutTrigger{
		uowFactory: uowFactory,
		store:      store,
		runner:     runner,
		location:   location,
		now:        time.Now,
		cron:       cron.New(cron.WithSeconds(), cron.WithLocation(location)),
		entries:    make(map[int64][]cron.EntryID),
		ctx:        context.Background(),
	}
}

// cronSpec turns a time of day into a six-field cron expression
func cronSpec(t civil.Time) string {
	return fmt.Sprintf("%d %d %d * * *", t.Second, t.Minute, t.Hour)
}

// Start schedules every bank and starts the cron loop. The returned function
// stops the loop and waits for a running cycle to finish.
func (t *PayoutTrigger) Start(ctx context.Context) (func(), error) {
	t.mu.Lock()
	t.ctx = ctx
	t.mu.Unlock()

	if err := t.Reload(ctx); err != nil {
		return nil, err
	}

	t.cron.Start()
	log.WithField("location", t.location.String()).Info("Payout trigger started")

	return func() {
		<-t.cron.Stop().Done()
		log.Info("Payout trigger stopped")
	}, nil
}

// Reload re-reads the payout times of every bank and replaces the schedule
func (t *PayoutTrigger) Reload(ctx context.Context) error {
	banks, err := t.loadBanks(ctx)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for bankID, ids := range t.entries {
		for _, id := range ids {
			t.cron.Remove(id)
		}
		delete(t.entries, bankID)
	}

	scheduled := 0
	for _, bank := range banks {
		n, err := t.scheduleLocked(bank)
		if err != nil {
			return err
		}
		scheduled += n
	}

	log.WithFields(log.Fields{
		"banks":   len(banks),
		"entries": scheduled,
	}).Info("Payout schedule reloaded")
	return nil
}

// ReloadBank replaces the schedule of a single bank
func (t *PayoutTrigger) ReloadBank(ctx context.Context, bankID int64) error {
	bank, err := t.loadBank(ctx, bankID)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, id := range t.entries[bankID] {
		t.cron.Remove(id)
	}
	delete(t.entries, bankID)

	if bank == nil {
		return nil
	}
	_, err = t.scheduleLocked(bank)
	return err
}

// Scheduled returns how many cron entries a bank has
func (t *PayoutTrigger) Scheduled(bankID int64) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries[bankID])
}

func (t *PayoutTrigger) scheduleLocked(bank *models.Bank) (int, error) {
	times := policy.Resolve(t.store, bank, t.store.InterestPayoutTimes)
	bankID := bank.ID

	for _, at := range times {
		id, err := t.cron.AddFunc(cronSpec(at), func() {
			t.Fire(bankID)
		})
		if err != nil {
			return 0, fmt.Errorf("failed to schedule bank %d at %s: %w", bankID, at, err)
		}
		t.entries[bankID] = append(t.entries[bankID], id)
	}
	return len(times), nil
}

// Fire runs a payout cycle on a freshly loaded copy of the bank. Errors are
// logged; the schedule keeps running.
func (t *PayoutTrigger) Fire(bankID int64) {
	t.mu.Lock()
	ctx := t.ctx
	t.mu.Unlock()

	if ctx.Err() != nil {
		return
	}

	bank, err := t.loadBank(ctx, bankID)
	if err != nil {
		log.WithFields(log.Fields{
			"bank_id": bankID,
			"error":   err,
		}).Error("Failed to load bank for payout cycle")
		return
	}
	if bank == nil {
		log.WithField("bank_id", bankID).Warn("Scheduled bank no longer exists")
		return
	}

	if _, err := t.runner.RunPayoutCycle(ctx, bank, t.now().In(t.location)); err != nil {
		log.WithFields(log.Fields{
			"bank_id": bankID,
			"error":   err,
		}).Error("Payout cycle failed")
	}
}

// NextRun returns the next time a bank is due for a payout
func (t *PayoutTrigger) NextRun(bank *models.Bank) (time.Time, bool) {
	return NextPayoutTime(policy.Resolve(t.store, bank, t.store.InterestPayoutTimes), t.now().In(t.location))
}

func (t *PayoutTrigger) loadBanks(ctx context.Context) ([]*models.Bank, error) {
	uow := t.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	banks, err := uow.BankRepository().GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load banks: %w", err)
	}
	if err := t.persistSticky(ctx, uow, banks...); err != nil {
		return nil, err
	}
	return banks, uow.Commit()
}

func (t *PayoutTrigger) loadBank(ctx context.Context, bankID int64) (*models.Bank, error) {
	uow := t.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	bank, err := uow.BankRepository().GetByID(ctx, bankID)
	if err != nil {
		return nil, fmt.Errorf("failed to get bank: %w", err)
	}
	if bank == nil {
		return nil, nil
	}
	return bank, uow.Commit()
}

// persistSticky saves overrides that resolving payout times froze onto a bank
func (t *PayoutTrigger) persistSticky(ctx context.Context, uow UnitOfWork, banks ...*models.Bank) error {
	for _, bank := range banks {
		policy.Resolve(t.store, bank, t.store.InterestPayoutTimes)
		if !bank.OverridesChanged() {
			continue
		}
		if err := uow.BankRepository().Update(ctx, bank); err != nil {
			return fmt.Errorf("failed to persist bank %d: %w", bank.ID, err)
		}
	}
	return nil
}
