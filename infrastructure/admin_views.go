package infrastructure

import (
	"time"

	"banker/models"
)

// Wire views of the models returned by admin requests. Amounts are fixed
// point strings.

type bankView struct {
	ID        int64             `json:"id"`
	Name      string            `json:"name"`
	OwnerID   *int64            `json:"owner_id,omitempty"`
	CoOwners  []int64           `json:"co_owners"`
	Overrides map[string]string `json:"overrides"`
	Accounts  int               `json:"accounts"`
	CreatedAt time.Time         `json:"created_at"`
}

type bankDetailView struct {
	bankView
	NextPayout *time.Time `json:"next_payout,omitempty"`
	LastRun    *runView   `json:"last_run,omitempty"`
}

type accountView struct {
	ID          int64   `json:"id"`
	BankID      int64   `json:"bank_id"`
	OwnerID     int64   `json:"owner_id"`
	CoOwners    []int64 `json:"co_owners"`
	Balance     string  `json:"balance"`
	Stage       int     `json:"multiplier_stage"`
	Delay       int     `json:"remaining_delay"`
	Offline     int     `json:"remaining_offline_payouts"`
	BeforeReset int     `json:"remaining_offline_before_reset"`
}

type runView struct {
	ID             int64          `json:"id"`
	RunAt          time.Time      `json:"run_at"`
	InterestPaid   string         `json:"interest_paid"`
	AccountsPaid   int            `json:"accounts_paid"`
	OwnersAffected int            `json:"owners_affected"`
	Summary        map[string]any `json:"summary,omitempty"`
}

type policyView struct {
	Policy          string  `json:"policy"`
	Kind            string  `json:"kind"`
	Default         string  `json:"default"`
	Override        *string `json:"override,omitempty"`
	Effective       string  `json:"effective"`
	OverrideAllowed bool    `json:"override_allowed"`
}

type setPolicyView struct {
	Policy          string `json:"policy"`
	Stored          string `json:"stored"`
	Cleared         bool   `json:"cleared"`
	Effective       string `json:"effective"`
	Repaired        bool   `json:"repaired"`
	OverrideAllowed bool   `json:"override_allowed"`
}

type walletChangeView struct {
	Type          string         `json:"type"`
	BalanceBefore string         `json:"balance_before"`
	BalanceAfter  string         `json:"balance_after"`
	Change        string         `json:"change"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

type presenceView struct {
	OwnerID  int64      `json:"owner_id"`
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

func toBankView(bank *models.Bank) bankView {
	coOwners := bank.CoOwners
	if coOwners == nil {
		coOwners = []int64{}
	}
	overrides := bank.Overrides
	if overrides == nil {
		overrides = map[string]string{}
	}
	return bankView{
		ID:        bank.ID,
		Name:      bank.Name,
		OwnerID:   bank.OwnerID,
		CoOwners:  coOwners,
		Overrides: overrides,
		Accounts:  len(bank.Accounts),
		CreatedAt: bank.CreatedAt,
	}
}

func toAccountView(account *models.Account) accountView {
	coOwners := account.CoOwners
	if coOwners == nil {
		coOwners = []int64{}
	}
	return accountView{
		ID:          account.ID,
		BankID:      account.BankID,
		OwnerID:     account.OwnerID,
		CoOwners:    coOwners,
		Balance:     account.Balance.StringFixed(models.BalanceScale),
		Stage:       account.Multiplier.Stage,
		Delay:       account.Multiplier.RemainingDelay,
		Offline:     account.Multiplier.RemainingOfflinePayouts,
		BeforeReset: account.Multiplier.RemainingOfflineBeforeReset,
	}
}

func toRunView(run *models.InterestRun) runView {
	return runView{
		ID:             run.ID,
		RunAt:          run.RunAt,
		InterestPaid:   run.TotalInterestDistributed.StringFixed(models.BalanceScale),
		AccountsPaid:   run.AccountsPaid,
		OwnersAffected: run.OwnersAffected,
		Summary:        run.ExecutionSummary,
	}
}
