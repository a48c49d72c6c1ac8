package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"banker/events"
	"banker/models"
	"banker/multiplier"
	"banker/policy"
)

// ErrBankExists is returned when a bank name is already taken
var ErrBankExists = errors.New("bank already exists")

// BankService manages banks and their policy overrides
type BankService struct {
	uowFactory UnitOfWorkFactory
	store      *policy.Store
}

// NewBankService creates a new bank service
func NewBankService(uowFactory UnitOfWorkFactory, store *policy.Store) *BankService {
	return &BankService{
		uowFactory: uowFactory,
		store:      store,
	}
}

// CreateBank creates a bank. A nil owner creates an admin bank.
func (s *BankService) CreateBank(ctx context.Context, name string, ownerID *int64) (*models.Bank, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("bank name is required")
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	existing, err := uow.BankRepository().GetByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to look up bank: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: %s", ErrBankExists, name)
	}

	bank := &models.Bank{
		Name:    name,
		OwnerID: ownerID,
	}
	if err := uow.BankRepository().Create(ctx, bank); err != nil {
		return nil, fmt.Errorf("failed to create bank: %w", err)
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"bank_id":    bank.ID,
		"name":       bank.Name,
		"admin_bank": bank.IsAdminBank(),
	}).Info("Bank created")

	return bank, nil
}

// GetBank returns a bank with its accounts
func (s *BankService) GetBank(ctx context.Context, bankID int64) (*models.Bank, error) {
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
	return bank, nil
}

// SetPolicy stores a bank's override for a policy. Empty input clears it.
// When the multiplier list changes, every account's stage is clamped to the
// new list.
func (s *BankService) SetPolicy(ctx context.Context, bankID int64, id policy.ID, raw string) (policy.SetResult, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return policy.SetResult{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	bank, err := uow.BankRepository().GetByID(ctx, bankID)
	if err != nil {
		return policy.SetResult{}, fmt.Errorf("failed to get bank: %w", err)
	}
	if bank == nil {
		return policy.SetResult{}, ErrBankNotFound
	}

	result, err := s.store.Set(bank, id, raw)
	if err != nil {
		return policy.SetResult{}, err
	}

	// Resolving may freeze sticky defaults onto the bank, so it happens
	// before the bank is saved
	if id == policy.InterestMultipliers {
		params := s.store.MultiplierParams(bank)
		for _, account := range bank.Accounts {
			before := account.Multiplier.Stage
			multiplier.New(&account.Multiplier, params).SetMultipliers(params.Multipliers)
			if account.Multiplier.Stage == before {
				continue
			}
			if err := uow.AccountRepository().Update(ctx, account); err != nil {
				return policy.SetResult{}, fmt.Errorf("failed to clamp account stage: %w", err)
			}
		}
	}

	if bank.OverridesChanged() {
		if err := uow.BankRepository().Update(ctx, bank); err != nil {
			return policy.SetResult{}, fmt.Errorf("failed to persist bank: %w", err)
		}
	}

	uow.EventBus().Publish(events.PolicyChangedEvent{
		BankID:    bank.ID,
		Policy:    string(result.Policy),
		Stored:    result.Stored,
		Cleared:   result.Cleared,
		Effective: result.Effective,
	})

	if err := uow.Commit(); err != nil {
		return policy.SetResult{}, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"bank_id":   bank.ID,
		"policy":    result.Policy,
		"stored":    result.Stored,
		"cleared":   result.Cleared,
		"effective": result.Effective,
		"repaired":  result.Repaired,
	}).Info("Bank policy changed")

	return result, nil
}

// EffectivePolicies lists every policy as the bank currently sees it
func (s *BankService) EffectivePolicies(ctx context.Context, bankID int64) ([]policy.Description, error) {
	bank, err := s.GetBank(ctx, bankID)
	if err != nil {
		return nil, err
	}
	return s.store.Describe(bank), nil
}

// AddCoOwner lets the bank owner share ownership with another player
func (s *BankService) AddCoOwner(ctx context.Context, bankID, actorID, playerID int64) error {
	return s.updateCoOwners(ctx, bankID, actorID, func(bank *models.Bank) bool {
		return bank.AddCoOwner(playerID)
	})
}

// RemoveCoOwner revokes a co-owner
func (s *BankService) RemoveCoOwner(ctx context.Context, bankID, actorID, playerID int64) error {
	return s.updateCoOwners(ctx, bankID, actorID, func(bank *models.Bank) bool {
		return bank.RemoveCoOwner(playerID)
	})
}

func (s *BankService) updateCoOwners(ctx context.Context, bankID, actorID int64, change func(*models.Bank) bool) error {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	bank, err := uow.BankRepository().GetByID(ctx, bankID)
	if err != nil {
		return fmt.Errorf("failed to get bank: %w", err)
	}
	if bank == nil {
		return ErrBankNotFound
	}
	if !bank.IsOwner(actorID) {
		return ErrNotPermitted
	}

	if !change(bank) {
		return nil
	}
	if err := uow.BankRepository().Update(ctx, bank); err != nil {
		return fmt.Errorf("failed to update bank: %w", err)
	}
	return uow.Commit()
}
