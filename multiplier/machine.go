// Package multiplier implements the per-account interest multiplier state
// machine. Transitions are pure and synchronous: they only touch the
// models.MultiplierState they were given.
package multiplier

import (
	"banker/models"
)

// Unlimited marks an offline allowance that never runs out
const Unlimited = -1

// Params are the bank policy values that drive transitions for one account
type Params struct {
	Multipliers            []int
	InitialDelay           int
	OfflinePayoutAllowance int
	OfflineResetAllowance  int
	OfflineDecrement       int
	WithdrawalDecrement    int
	CountDelayOffline      bool
}

// Machine applies transitions to a single account's multiplier state
type Machine struct {
	state  *models.MultiplierState
	params Params
}

// New wraps a state with the given params. An empty multiplier list is
// replaced by [1] and the stage is clamped into range.
func New(state *models.MultiplierState, params Params) *Machine {
	params.Multipliers = NormalizeList(params.Multipliers)
	m := &Machine{state: state, params: params}
	m.clampStage()
	return m
}

// InitialState returns the state for a freshly opened account
func InitialState(params Params) models.MultiplierState {
	return models.MultiplierState{
		Stage:                       0,
		RemainingDelay:              max(params.InitialDelay, 0),
		RemainingOfflinePayouts:     params.OfflinePayoutAllowance,
		RemainingOfflineBeforeReset: params.OfflineResetAllowance,
	}
}

// NormalizeList returns [1] for an empty list
func NormalizeList(multipliers []int) []int {
	if len(multipliers) == 0 {
		return []int{1}
	}
	return multipliers
}

// State returns the underlying state
func (m *Machine) State() *models.MultiplierState {
	return m.state
}

// Stage returns the current multiplier stage
func (m *Machine) Stage() int {
	return m.state.Stage
}

// AllowNextPayout is called once per payout cycle and reports whether the
// account earns interest this cycle.
func (m *Machine) AllowNextPayout(online bool) bool {
	if m.state.RemainingDelay > 0 {
		if online || m.params.CountDelayOffline {
			m.state.RemainingDelay--
		}
		return false
	}

	if online {
		m.state.RemainingOfflineBeforeReset = m.params.OfflineResetAllowance
		return true
	}

	switch {
	case m.state.RemainingOfflinePayouts < 0:
		return true
	case m.state.RemainingOfflinePayouts > 0:
		m.state.RemainingOfflinePayouts--
		return true
	default:
		return false
	}
}

// IncrementMultiplier advances the stage after a successful payout and
// returns the resulting stage.
func (m *Machine) IncrementMultiplier(online bool) int {
	if online {
		m.state.Stage = min(m.state.Stage+1, m.maxStage())
		m.clampStage()
		return m.state.Stage
	}

	switch {
	case m.state.RemainingOfflineBeforeReset < 0:
		m.state.Stage += m.params.OfflineDecrement
	case m.state.RemainingOfflineBeforeReset > 0:
		m.state.RemainingOfflineBeforeReset--
		m.state.Stage += m.params.OfflineDecrement
	default:
		m.state.Stage = 0
	}
	m.clampStage()
	return m.state.Stage
}

// ProcessWithdrawal applies the withdrawal penalty and returns the resulting
// stage. A positive decrement resets the stage to 0, zero leaves it alone and
// a negative decrement is added to the stage.
func (m *Machine) ProcessWithdrawal() int {
	switch d := m.params.WithdrawalDecrement; {
	case d > 0:
		m.state.Stage = 0
	case d < 0:
		m.state.Stage = max(m.state.Stage+d, 0)
	}
	m.clampStage()
	return m.state.Stage
}

// CurrentMultiplier returns the multiplier for the current stage
func (m *Machine) CurrentMultiplier() int {
	if len(m.params.Multipliers) == 0 {
		return 1
	}
	return m.params.Multipliers[clamp(m.state.Stage, 0, m.maxStage())]
}

// Configure overwrites state fields; nil leaves a field unchanged. The stage
// is clamped afterwards.
func (m *Machine) Configure(stage, remainingDelay, offlinePayouts, offlineBeforeReset *int) {
	if stage != nil {
		m.state.Stage = *stage
	}
	if remainingDelay != nil {
		m.state.RemainingDelay = max(*remainingDelay, 0)
	}
	if offlinePayouts != nil {
		m.state.RemainingOfflinePayouts = max(*offlinePayouts, Unlimited)
	}
	if offlineBeforeReset != nil {
		m.state.RemainingOfflineBeforeReset = max(*offlineBeforeReset, Unlimited)
	}
	m.clampStage()
}

// SetMultipliers replaces the multiplier list and re-clamps the stage
func (m *Machine) SetMultipliers(multipliers []int) {
	m.params.Multipliers = NormalizeList(multipliers)
	m.clampStage()
}

func (m *Machine) maxStage() int {
	return len(m.params.Multipliers) - 1
}

func (m *Machine) clampStage() {
	m.state.Stage = clamp(m.state.Stage, 0, m.maxStage())
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
