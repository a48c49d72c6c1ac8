package models

import (
	"slices"
	"time"
)

// Bank represents a bank with its owners, accounts and per-bank policy overrides
type Bank struct {
	ID        int64             `db:"id"`
	Name      string            `db:"name"`
	OwnerID   *int64            `db:"owner_id"` // Nullable - NULL means admin bank
	CoOwners  []int64           `db:"co_owners"`
	Overrides map[string]string `db:"policy_overrides"` // policy id -> formatted override value
	Accounts  []*Account        `db:"-"`
	CreatedAt time.Time         `db:"created_at"`
	UpdatedAt time.Time         `db:"updated_at"`

	overridesChanged bool
}

// IsAdminBank reports whether the bank has no player owner.
// Admin banks cannot go bankrupt.
func (b *Bank) IsAdminBank() bool {
	return b.OwnerID == nil
}

// IsOwner checks if the player owns the bank
func (b *Bank) IsOwner(playerID int64) bool {
	return b.OwnerID != nil && *b.OwnerID == playerID
}

// IsCoOwner checks if the player is a co-owner of the bank
func (b *Bank) IsCoOwner(playerID int64) bool {
	return slices.Contains(b.CoOwners, playerID)
}

// IsTrusted checks if the player is the owner or a co-owner
func (b *Bank) IsTrusted(playerID int64) bool {
	return b.IsOwner(playerID) || b.IsCoOwner(playerID)
}

// AddCoOwner adds a co-owner, returning false if already present
func (b *Bank) AddCoOwner(playerID int64) bool {
	if b.IsCoOwner(playerID) {
		return false
	}
	b.CoOwners = append(b.CoOwners, playerID)
	return true
}

// RemoveCoOwner removes a co-owner, returning false if not present
func (b *Bank) RemoveCoOwner(playerID int64) bool {
	idx := slices.Index(b.CoOwners, playerID)
	if idx < 0 {
		return false
	}
	b.CoOwners = slices.Delete(b.CoOwners, idx, idx+1)
	return true
}

// Override returns the stored override for a policy id
func (b *Bank) Override(policyID string) (string, bool) {
	if b.Overrides == nil {
		return "", false
	}
	v, ok := b.Overrides[policyID]
	return v, ok
}

// SetOverride stores an override and marks the bank as needing persistence
func (b *Bank) SetOverride(policyID, value string) {
	if b.Overrides == nil {
		b.Overrides = make(map[string]string)
	}
	if cur, ok := b.Overrides[policyID]; ok && cur == value {
		return
	}
	b.Overrides[policyID] = value
	b.overridesChanged = true
}

// ClearOverride removes an override
func (b *Bank) ClearOverride(policyID string) {
	if _, ok := b.Overrides[policyID]; !ok {
		return
	}
	delete(b.Overrides, policyID)
	b.overridesChanged = true
}

// OverridesChanged reports whether overrides were mutated since the last persist
func (b *Bank) OverridesChanged() bool {
	return b.overridesChanged
}

// MarkPersisted clears the pending-change flag after the bank was saved
func (b *Bank) MarkPersisted() {
	b.overridesChanged = false
}

// AccountsSnapshot returns a copy of the account list. Adding or removing
// accounts on the bank afterwards does not affect the returned slice.
func (b *Bank) AccountsSnapshot() []*Account {
	return slices.Clone(b.Accounts)
}

// AccountByID finds an account of this bank
func (b *Bank) AccountByID(accountID int64) *Account {
	for _, a := range b.Accounts {
		if a.ID == accountID {
			return a
		}
	}
	return nil
}

// RemoveAccount drops an account from the bank's collection
func (b *Bank) RemoveAccount(accountID int64) {
	b.Accounts = slices.DeleteFunc(b.Accounts, func(a *Account) bool {
		return a.ID == accountID
	})
}
