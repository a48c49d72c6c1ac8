// Package policy resolves the effective value of bank-overridable
// configuration parameters. Each parameter is a typed Policy with a global
// default, an allow-override flag and explicit parse, format and repair
// functions.
package policy

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// ID identifies a policy
type ID string

const (
	InterestRate                     ID = "interest-rate"
	InterestMultipliers              ID = "interest-multipliers"
	InitialInterestDelay             ID = "initial-interest-delay"
	CountInterestDelayOffline        ID = "count-interest-delay-offline"
	AllowedOfflinePayouts            ID = "allowed-offline-payouts"
	AllowedOfflinePayoutsBeforeReset ID = "allowed-offline-payouts-before-multiplier-reset"
	OfflineMultiplierDecrement       ID = "offline-multiplier-decrement"
	WithdrawalMultiplierDecrement    ID = "withdrawal-multiplier-decrement"
	MinimumAccountBalance            ID = "minimum-account-balance"
	LowBalanceFee                    ID = "low-balance-fee"
	PayInterestOnLowBalance          ID = "pay-interest-on-low-balance"
	InterestPayoutTimes              ID = "interest-payout-times"
	BankRevenueExpression            ID = "bank-revenue-expression"
)

// Policy is a typed configuration parameter with a global default and an
// optional per-bank override
type Policy[T any] struct {
	id    ID
	codec codec[T]

	mu              sync.RWMutex
	defaultValue    T
	overrideAllowed bool
}

func newPolicy[T any](id ID, c codec[T], defaultValue T) *Policy[T] {
	return &Policy[T]{id: id, codec: c, defaultValue: defaultValue}
}

// ID returns the policy id
func (p *Policy[T]) ID() ID {
	return p.id
}

// Kind returns the expected value kind
func (p *Policy[T]) Kind() Kind {
	return p.codec.kind
}

// Default returns the current global default
func (p *Policy[T]) Default() T {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.defaultValue
}

// SetDefault replaces the global default
func (p *Policy[T]) SetDefault(v T) {
	v, _ = p.codec.repair(v)
	p.mu.Lock()
	p.defaultValue = v
	p.mu.Unlock()
}

// OverrideAllowed reports whether bank overrides take effect
func (p *Policy[T]) OverrideAllowed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.overrideAllowed
}

// SetOverrideAllowed toggles whether bank overrides take effect
func (p *Policy[T]) SetOverrideAllowed(allowed bool) {
	p.mu.Lock()
	p.overrideAllowed = allowed
	p.mu.Unlock()
}

// Format renders a value in its stored form
func (p *Policy[T]) Format(v T) string {
	return p.codec.format(v)
}

// Parse parses and repairs raw input. The bool reports whether the parsed
// value was out of bounds and had to be repaired.
func (p *Policy[T]) Parse(raw string) (T, bool, error) {
	v, err := p.codec.parse(raw)
	if err != nil {
		var zero T
		return zero, false, &ParseError{Policy: p.id, Input: raw, Expected: p.codec.kind, Err: err}
	}
	v, repaired := p.codec.repair(v)
	return v, repaired, nil
}

// entry is the type-erased view of a Policy used for id-based dispatch
type entry interface {
	ID() ID
	Kind() Kind
	OverrideAllowed() bool
	SetOverrideAllowed(bool)
	normalize(raw string) (string, bool, error)
	defaultString() string
	setDefaultString(raw string) error
	effectiveString(bankID int64, stored string, hasOverride bool) string
}

func (p *Policy[T]) normalize(raw string) (string, bool, error) {
	v, repaired, err := p.Parse(raw)
	if err != nil {
		return "", false, err
	}
	return p.codec.format(v), repaired, nil
}

func (p *Policy[T]) defaultString() string {
	return p.codec.format(p.Default())
}

func (p *Policy[T]) setDefaultString(raw string) error {
	v, _, err := p.Parse(raw)
	if err != nil {
		return err
	}
	p.SetDefault(v)
	return nil
}

func (p *Policy[T]) effectiveString(bankID int64, stored string, hasOverride bool) string {
	if !hasOverride || !p.OverrideAllowed() {
		return p.defaultString()
	}
	v, ok := p.decodeStored(bankID, stored)
	if !ok {
		return p.defaultString()
	}
	return p.codec.format(v)
}

// decodeStored parses a persisted override. Unreadable values fall back to the
// global default and out-of-bounds values are repaired; both are logged.
func (p *Policy[T]) decodeStored(bankID int64, stored string) (T, bool) {
	v, repaired, err := p.Parse(stored)
	if err != nil {
		log.WithFields(log.Fields{
			"bank_id": bankID,
			"policy":  p.id,
			"stored":  stored,
			"error":   err,
		}).Warn("Stored policy override is unreadable, using global default")
		var zero T
		return zero, false
	}
	if repaired {
		log.WithFields(log.Fields{
			"bank_id":  bankID,
			"policy":   p.id,
			"stored":   stored,
			"repaired": p.codec.format(v),
		}).Warn("Repaired out-of-bounds policy override")
	}
	return v, true
}
