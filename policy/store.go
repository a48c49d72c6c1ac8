package policy

import (
	"fmt"
	"strings"
	"sync"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"banker/models"
	"banker/multiplier"
	"banker/revenue"
)

// Store owns every policy and the process-wide resolution flags
type Store struct {
	mu                 sync.RWMutex
	stickyDefaults     bool
	multipliersEnabled bool

	InterestRate                     *Policy[decimal.Decimal]
	InterestMultipliers              *Policy[[]int]
	InitialInterestDelay             *Policy[int]
	CountInterestDelayOffline        *Policy[bool]
	AllowedOfflinePayouts            *Policy[int]
	AllowedOfflinePayoutsBeforeReset *Policy[int]
	OfflineMultiplierDecrement       *Policy[int]
	WithdrawalMultiplierDecrement    *Policy[int]
	MinimumAccountBalance            *Policy[decimal.Decimal]
	LowBalanceFee                    *Policy[decimal.Decimal]
	PayInterestOnLowBalance          *Policy[bool]
	InterestPayoutTimes              *Policy[[]civil.Time]
	BankRevenueExpression            *Policy[*revenue.Expression]

	ordered []entry
	byID    map[ID]entry
}

// NewStore creates a store with stock defaults. Overrides are disallowed
// until enabled per policy.
func NewStore() *Store {
	s := &Store{
		multipliersEnabled: true,
		byID:               make(map[ID]entry),
	}

	s.InterestRate = register(s, newPolicy(InterestRate, decimalCodec(4, true), decimal.RequireFromString("0.0200")))
	s.InterestMultipliers = register(s, newPolicy(InterestMultipliers, intListCodec(), []int{1}))
	s.InitialInterestDelay = register(s, newPolicy(InitialInterestDelay, intCodec(boundAbsolute), 0))
	s.CountInterestDelayOffline = register(s, newPolicy(CountInterestDelayOffline, boolCodec(), false))
	s.AllowedOfflinePayouts = register(s, newPolicy(AllowedOfflinePayouts, intCodec(boundMinusOne), 1))
	s.AllowedOfflinePayoutsBeforeReset = register(s, newPolicy(AllowedOfflinePayoutsBeforeReset, intCodec(boundMinusOne), 1))
	s.OfflineMultiplierDecrement = register(s, newPolicy(OfflineMultiplierDecrement, intCodec(boundNone), 0))
	s.WithdrawalMultiplierDecrement = register(s, newPolicy(WithdrawalMultiplierDecrement, intCodec(boundNone), 1))
	s.MinimumAccountBalance = register(s, newPolicy(MinimumAccountBalance, decimalCodec(models.BalanceScale, true), decimal.Zero))
	s.LowBalanceFee = register(s, newPolicy(LowBalanceFee, decimalCodec(models.BalanceScale, true), decimal.Zero))
	s.PayInterestOnLowBalance = register(s, newPolicy(PayInterestOnLowBalance, boolCodec(), false))
	s.InterestPayoutTimes = register(s, newPolicy(InterestPayoutTimes, timeListCodec(), []civil.Time{}))
	s.BankRevenueExpression = register(s, newPolicy(BankRevenueExpression, formulaCodec(), revenue.MustCompile(revenue.DefaultExpression)))

	return s
}

func register[T any](s *Store, p *Policy[T]) *Policy[T] {
	s.ordered = append(s.ordered, p)
	s.byID[p.id] = p
	return p
}

// StickyDefaults reports whether unresolved bank values are frozen on first use
func (s *Store) StickyDefaults() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stickyDefaults
}

// SetStickyDefaults toggles sticky default resolution
func (s *Store) SetStickyDefaults(enabled bool) {
	s.mu.Lock()
	s.stickyDefaults = enabled
	s.mu.Unlock()
}

// MultipliersEnabled reports whether interest is multiplied by the stage multiplier
func (s *Store) MultipliersEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.multipliersEnabled
}

// SetMultipliersEnabled toggles interest multipliers globally
func (s *Store) SetMultipliersEnabled(enabled bool) {
	s.mu.Lock()
	s.multipliersEnabled = enabled
	s.mu.Unlock()
}

// ParseID validates a policy id string
func (s *Store) ParseID(raw string) (ID, error) {
	id := ID(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := s.byID[id]; !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownPolicy, raw)
	}
	return id, nil
}

// IDs returns every registered policy id in registration order
func (s *Store) IDs() []ID {
	ids := make([]ID, len(s.ordered))
	for i, e := range s.ordered {
		ids[i] = e.ID()
	}
	return ids
}

// Resolve returns the effective value of a policy for a bank.
//
// A stored override wins when overrides are allowed for the policy; when they
// are not, the override is shadowed by the global default but kept on the
// bank. Without a stored override the global default applies, and with sticky
// defaults enabled that default is written onto the bank so later changes to
// the global default no longer affect it.
func Resolve[T any](s *Store, bank *models.Bank, p *Policy[T]) T {
	if bank == nil {
		return p.Default()
	}

	if stored, ok := bank.Override(string(p.id)); ok {
		if !p.OverrideAllowed() {
			return p.Default()
		}
		if v, ok := p.decodeStored(bank.ID, stored); ok {
			return v
		}
		return p.Default()
	}

	def := p.Default()
	if s.StickyDefaults() {
		bank.SetOverride(string(p.id), p.codec.format(def))
	}
	return def
}

// SetResult describes the outcome of a successful Set
type SetResult struct {
	Policy ID
	// Stored is the override now stored on the bank, empty when cleared
	Stored  string
	Cleared bool
	// Effective is the value the bank resolves to after the change
	Effective string
	// Repaired reports that the input was out of bounds and was corrected
	Repaired bool
	// OverrideAllowed is false when the stored value has no effect until
	// overrides are enabled for the policy
	OverrideAllowed bool
}

// Set parses raw input and stores it as the bank's override. Empty input
// clears the override, or with sticky defaults resets it to the current
// global default. On a parse failure the bank is left unchanged.
func (s *Store) Set(bank *models.Bank, id ID, raw string) (SetResult, error) {
	e, ok := s.byID[id]
	if !ok {
		return SetResult{}, fmt.Errorf("%w: %s", ErrUnknownPolicy, id)
	}

	result := SetResult{Policy: id, OverrideAllowed: e.OverrideAllowed()}

	if strings.TrimSpace(raw) == "" {
		if s.StickyDefaults() {
			result.Stored = e.defaultString()
			bank.SetOverride(string(id), result.Stored)
		} else {
			bank.ClearOverride(string(id))
			result.Cleared = true
		}
		result.Effective = e.effectiveString(bank.ID, result.Stored, !result.Cleared)
		return result, nil
	}

	normalized, repaired, err := e.normalize(raw)
	if err != nil {
		return SetResult{}, err
	}

	bank.SetOverride(string(id), normalized)
	result.Stored = normalized
	result.Repaired = repaired
	result.Effective = e.effectiveString(bank.ID, normalized, true)
	return result, nil
}

// SetDefault parses raw input and replaces the global default of a policy
func (s *Store) SetDefault(id ID, raw string) error {
	e, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPolicy, id)
	}
	return e.setDefaultString(raw)
}

// SetOverrideAllowed toggles whether bank overrides take effect for a policy
func (s *Store) SetOverrideAllowed(id ID, allowed bool) error {
	e, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPolicy, id)
	}
	e.SetOverrideAllowed(allowed)
	return nil
}

// Description is a read-only view of a policy as seen by one bank
type Description struct {
	Policy          ID
	Kind            Kind
	Default         string
	Override        *string
	Effective       string
	OverrideAllowed bool
}

// Describe lists every policy for a bank without applying sticky defaults
func (s *Store) Describe(bank *models.Bank) []Description {
	out := make([]Description, 0, len(s.ordered))
	for _, e := range s.ordered {
		d := Description{
			Policy:          e.ID(),
			Kind:            e.Kind(),
			Default:         e.defaultString(),
			OverrideAllowed: e.OverrideAllowed(),
		}
		stored, has := bank.Override(string(e.ID()))
		if has {
			d.Override = &stored
		}
		d.Effective = e.effectiveString(bank.ID, stored, has)
		out = append(out, d)
	}
	return out
}

// MultiplierParams resolves the state machine parameters for a bank
func (s *Store) MultiplierParams(bank *models.Bank) multiplier.Params {
	return multiplier.Params{
		Multipliers:            Resolve(s, bank, s.InterestMultipliers),
		InitialDelay:           Resolve(s, bank, s.InitialInterestDelay),
		OfflinePayoutAllowance: Resolve(s, bank, s.AllowedOfflinePayouts),
		OfflineResetAllowance:  Resolve(s, bank, s.AllowedOfflinePayoutsBeforeReset),
		OfflineDecrement:       Resolve(s, bank, s.OfflineMultiplierDecrement),
		WithdrawalDecrement:    Resolve(s, bank, s.WithdrawalMultiplierDecrement),
		CountDelayOffline:      Resolve(s, bank, s.CountInterestDelayOffline),
	}
}
