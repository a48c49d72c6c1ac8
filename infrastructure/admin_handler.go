package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"banker/models"
	"banker/policy"
	"banker/service"
)

// AdminSubjectPrefix is prepended to every admin request subject
const AdminSubjectPrefix = "banker.admin."

// Admin request subjects, relative to AdminSubjectPrefix
const (
	SubjectBankCreate         = "bank.create"
	SubjectBankGet            = "bank.get"
	SubjectBankPolicies       = "bank.policies"
	SubjectBankSetPolicy      = "bank.policy.set"
	SubjectBankAddCoOwner     = "bank.coowner.add"
	SubjectBankRemoveCoOwner  = "bank.coowner.remove"
	SubjectBankRuns           = "bank.runs"
	SubjectAccountOpen        = "account.open"
	SubjectAccountDeposit     = "account.deposit"
	SubjectAccountWithdraw    = "account.withdraw"
	SubjectAccountClose       = "account.close"
	SubjectAccountMultiplier  = "account.multiplier"
	SubjectWalletHistory      = "wallet.history"
	SubjectPlayerPresence     = "player.presence"
	defaultWalletHistoryLimit = 20
)

// BankAdmin is the bank management surface
type BankAdmin interface {
	CreateBank(ctx context.Context, name string, ownerID *int64) (*models.Bank, error)
	GetBank(ctx context.Context, bankID int64) (*models.Bank, error)
	SetPolicy(ctx context.Context, bankID int64, id policy.ID, raw string) (policy.SetResult, error)
	EffectivePolicies(ctx context.Context, bankID int64) ([]policy.Description, error)
	AddCoOwner(ctx context.Context, bankID, actorID, playerID int64) error
	RemoveCoOwner(ctx context.Context, bankID, actorID, playerID int64) error
}

// AccountAdmin is the account management surface
type AccountAdmin interface {
	OpenAccount(ctx context.Context, bankID, ownerID int64, initialDeposit decimal.Decimal) (*models.Account, error)
	Deposit(ctx context.Context, accountID, actorID int64, amount decimal.Decimal) (*models.Account, error)
	Withdraw(ctx context.Context, accountID, actorID int64, amount decimal.Decimal) (*models.Account, error)
	CloseAccount(ctx context.Context, accountID, actorID int64) (decimal.Decimal, error)
	ConfigureMultiplier(ctx context.Context, accountID int64, cfg service.MultiplierConfig) (*models.Account, error)
}

// PayoutSchedule reports when a bank is next paid
type PayoutSchedule interface {
	NextRun(bank *models.Bank) (time.Time, bool)
}

// RunHistory reads recorded payout cycles
type RunHistory interface {
	GetLatestByBank(ctx context.Context, bankID int64) (*models.InterestRun, error)
	GetByBankSince(ctx context.Context, bankID int64, since time.Time) ([]*models.InterestRun, error)
}

// WalletHistoryReader reads wallet changes
type WalletHistoryReader interface {
	GetHistory(ctx context.Context, ownerID int64, limit int) ([]*models.WalletHistory, error)
}

// PresenceReader reads player presence
type PresenceReader interface {
	IsOnline(ctx context.Context, ownerID int64) (bool, error)
	LastSeen(ctx context.Context, ownerID int64) (time.Time, bool, error)
}

// AdminServices bundles what the admin handler dispatches to
type AdminServices struct {
	Banks    BankAdmin
	Accounts AccountAdmin
	Schedule PayoutSchedule
	Runs     RunHistory
	Wallets  WalletHistoryReader
	Presence PresenceReader
}

// RequestHandler handles one decoded admin request and returns the reply data
type RequestHandler func(ctx context.Context, data []byte) (any, error)

// AdminReply is the body of every admin response
type AdminReply struct {
	OK    bool   `json:"ok"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
	Code  string `json:"code,omitempty"`
}

// Error codes carried in AdminReply.Code
const (
	CodeInvalidInput      = "invalid_input"
	CodeNotFound          = "not_found"
	CodeForbidden         = "forbidden"
	CodeInsufficientFunds = "insufficient_funds"
	CodeConflict          = "conflict"
	CodeInternal          = "internal"
)

// AdminHandler answers admin requests over NATS request-reply
type AdminHandler struct {
	services AdminServices
	handlers map[string]RequestHandler
	mu       sync.RWMutex
}

// NewAdminHandler creates a handler with every admin subject registered
func NewAdminHandler(services AdminServices) *AdminHandler {
	h := &AdminHandler{
		services: services,
		handlers: make(map[string]RequestHandler),
	}

	h.RegisterHandler(SubjectBankCreate, h.createBank)
	h.RegisterHandler(SubjectBankGet, h.getBank)
	h.RegisterHandler(SubjectBankPolicies, h.bankPolicies)
	h.RegisterHandler(SubjectBankSetPolicy, h.setPolicy)
	h.RegisterHandler(SubjectBankAddCoOwner, h.addCoOwner)
	h.RegisterHandler(SubjectBankRemoveCoOwner, h.removeCoOwner)
	h.RegisterHandler(SubjectBankRuns, h.bankRuns)
	h.RegisterHandler(SubjectAccountOpen, h.openAccount)
	h.RegisterHandler(SubjectAccountDeposit, h.deposit)
	h.RegisterHandler(SubjectAccountWithdraw, h.withdraw)
	h.RegisterHandler(SubjectAccountClose, h.closeAccount)
	h.RegisterHandler(SubjectAccountMultiplier, h.configureMultiplier)
	h.RegisterHandler(SubjectWalletHistory, h.walletHistory)
	h.RegisterHandler(SubjectPlayerPresence, h.playerPresence)
	return h
}

// RegisterHandler registers a handler for a subject relative to the prefix
func (h *AdminHandler) RegisterHandler(subject string, handler RequestHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handlers[subject] = handler
}

// Subjects lists the registered subjects, sorted
func (h *AdminHandler) Subjects() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	subjects := make([]string, 0, len(h.handlers))
	for subject := range h.handlers {
		subjects = append(subjects, subject)
	}
	sort.Strings(subjects)
	return subjects
}

// Subscribe subscribes every registered subject on the connection. The
// returned subscriptions should be drained on shutdown.
func (h *AdminHandler) Subscribe(ctx context.Context, nc *nats.Conn) ([]*nats.Subscription, error) {
	var subs []*nats.Subscription
	for _, subject := range h.Subjects() {
		sub, err := nc.Subscribe(AdminSubjectPrefix+subject, func(msg *nats.Msg) {
			if err := msg.Respond(h.Handle(ctx, subject, msg.Data)); err != nil {
				log.WithFields(log.Fields{
					"subject": msg.Subject,
					"error":   err,
				}).Error("Failed to respond to admin request")
			}
		})
		if err != nil {
			for _, s := range subs {
				_ = s.Unsubscribe()
			}
			return nil, fmt.Errorf("failed to subscribe to %s: %w", AdminSubjectPrefix+subject, err)
		}
		subs = append(subs, sub)
	}

	log.WithField("subjects", len(subs)).Info("Admin request handlers subscribed")
	return subs, nil
}

// Handle runs the handler for a subject and encodes the reply
func (h *AdminHandler) Handle(ctx context.Context, subject string, data []byte) []byte {
	h.mu.RLock()
	handler, exists := h.handlers[subject]
	h.mu.RUnlock()

	var reply AdminReply
	if !exists {
		reply = AdminReply{Error: "unknown request: " + subject, Code: CodeNotFound}
	} else if result, err := handler(ctx, data); err != nil {
		reply = AdminReply{Error: err.Error(), Code: errorCode(err)}
		entry := log.WithFields(log.Fields{
			"subject": subject,
			"code":    reply.Code,
			"error":   err,
		})
		if reply.Code == CodeInternal {
			entry.Error("Admin request failed")
		} else {
			entry.Debug("Admin request rejected")
		}
	} else {
		reply = AdminReply{OK: true, Data: result}
	}

	out, err := json.Marshal(reply)
	if err != nil {
		log.WithFields(log.Fields{
			"subject": subject,
			"error":   err,
		}).Error("Failed to encode admin reply")
		out, _ = json.Marshal(AdminReply{Error: "failed to encode reply", Code: CodeInternal})
	}
	return out
}

// errDecode marks a malformed request body
var errDecode = errors.New("malformed request")

func errorCode(err error) string {
	var parseErr *policy.ParseError
	switch {
	case errors.Is(err, errDecode),
		errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, policy.ErrUnknownPolicy),
		errors.As(err, &parseErr):
		return CodeInvalidInput
	case errors.Is(err, service.ErrBankNotFound),
		errors.Is(err, service.ErrAccountNotFound):
		return CodeNotFound
	case errors.Is(err, service.ErrNotPermitted):
		return CodeForbidden
	case errors.Is(err, service.ErrInsufficientFunds):
		return CodeInsufficientFunds
	case errors.Is(err, service.ErrBankExists):
		return CodeConflict
	default:
		return CodeInternal
	}
}

func decode[T any](data []byte) (T, error) {
	var req T
	if err := json.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("%w: %v", errDecode, err)
	}
	return req, nil
}

// Request bodies

type bankRequest struct {
	BankID int64 `json:"bank_id"`
}

type createBankRequest struct {
	Name    string `json:"name"`
	OwnerID *int64 `json:"owner_id"`
}

type setPolicyRequest struct {
	BankID int64  `json:"bank_id"`
	Policy string `json:"policy"`
	Value  string `json:"value"`
}

type coOwnerRequest struct {
	BankID   int64 `json:"bank_id"`
	ActorID  int64 `json:"actor_id"`
	PlayerID int64 `json:"player_id"`
}

type bankRunsRequest struct {
	BankID int64     `json:"bank_id"`
	Since  time.Time `json:"since"`
}

type openAccountRequest struct {
	BankID         int64           `json:"bank_id"`
	OwnerID        int64           `json:"owner_id"`
	InitialDeposit decimal.Decimal `json:"initial_deposit"`
}

type amountRequest struct {
	AccountID int64           `json:"account_id"`
	ActorID   int64           `json:"actor_id"`
	Amount    decimal.Decimal `json:"amount"`
}

type closeAccountRequest struct {
	AccountID int64 `json:"account_id"`
	ActorID   int64 `json:"actor_id"`
}

type multiplierRequest struct {
	AccountID                   int64 `json:"account_id"`
	Stage                       *int  `json:"stage"`
	RemainingDelay              *int  `json:"remaining_delay"`
	RemainingOfflinePayouts     *int  `json:"remaining_offline_payouts"`
	RemainingOfflineBeforeReset *int  `json:"remaining_offline_before_reset"`
}

type ownerRequest struct {
	OwnerID int64 `json:"owner_id"`
	Limit   int   `json:"limit"`
}

// Handlers

func (h *AdminHandler) createBank(ctx context.Context, data []byte) (any, error) {
	req, err := decode[createBankRequest](data)
	if err != nil {
		return nil, err
	}
	bank, err := h.services.Banks.CreateBank(ctx, req.Name, req.OwnerID)
	if err != nil {
		return nil, err
	}
	return toBankView(bank), nil
}

func (h *AdminHandler) getBank(ctx context.Context, data []byte) (any, error) {
	req, err := decode[bankRequest](data)
	if err != nil {
		return nil, err
	}
	bank, err := h.services.Banks.GetBank(ctx, req.BankID)
	if err != nil {
		return nil, err
	}

	view := bankDetailView{bankView: toBankView(bank)}
	if next, ok := h.services.Schedule.NextRun(bank); ok {
		view.NextPayout = &next
	}
	last, err := h.services.Runs.GetLatestByBank(ctx, bank.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}
	if last != nil {
		run := toRunView(last)
		view.LastRun = &run
	}
	return view, nil
}

func (h *AdminHandler) bankPolicies(ctx context.Context, data []byte) (any, error) {
	req, err := decode[bankRequest](data)
	if err != nil {
		return nil, err
	}
	descriptions, err := h.services.Banks.EffectivePolicies(ctx, req.BankID)
	if err != nil {
		return nil, err
	}
	views := make([]policyView, 0, len(descriptions))
	for _, d := range descriptions {
		views = append(views, policyView{
			Policy:          string(d.Policy),
			Kind:            string(d.Kind),
			Default:         d.Default,
			Override:        d.Override,
			Effective:       d.Effective,
			OverrideAllowed: d.OverrideAllowed,
		})
	}
	return views, nil
}

func (h *AdminHandler) setPolicy(ctx context.Context, data []byte) (any, error) {
	req, err := decode[setPolicyRequest](data)
	if err != nil {
		return nil, err
	}
	result, err := h.services.Banks.SetPolicy(ctx, req.BankID, policy.ID(req.Policy), req.Value)
	if err != nil {
		return nil, err
	}
	return setPolicyView{
		Policy:          string(result.Policy),
		Stored:          result.Stored,
		Cleared:         result.Cleared,
		Effective:       result.Effective,
		Repaired:        result.Repaired,
		OverrideAllowed: result.OverrideAllowed,
	}, nil
}

func (h *AdminHandler) addCoOwner(ctx context.Context, data []byte) (any, error) {
	req, err := decode[coOwnerRequest](data)
	if err != nil {
		return nil, err
	}
	return nil, h.services.Banks.AddCoOwner(ctx, req.BankID, req.ActorID, req.PlayerID)
}

func (h *AdminHandler) removeCoOwner(ctx context.Context, data []byte) (any, error) {
	req, err := decode[coOwnerRequest](data)
	if err != nil {
		return nil, err
	}
	return nil, h.services.Banks.RemoveCoOwner(ctx, req.BankID, req.ActorID, req.PlayerID)
}

func (h *AdminHandler) bankRuns(ctx context.Context, data []byte) (any, error) {
	req, err := decode[bankRunsRequest](data)
	if err != nil {
		return nil, err
	}
	runs, err := h.services.Runs.GetByBankSince(ctx, req.BankID, req.Since)
	if err != nil {
		return nil, fmt.Errorf("failed to get runs: %w", err)
	}
	views := make([]runView, 0, len(runs))
	for _, run := range runs {
		views = append(views, toRunView(run))
	}
	return views, nil
}

func (h *AdminHandler) openAccount(ctx context.Context, data []byte) (any, error) {
	req, err := decode[openAccountRequest](data)
	if err != nil {
		return nil, err
	}
	account, err := h.services.Accounts.OpenAccount(ctx, req.BankID, req.OwnerID, req.InitialDeposit)
	if err != nil {
		return nil, err
	}
	return toAccountView(account), nil
}

func (h *AdminHandler) deposit(ctx context.Context, data []byte) (any, error) {
	req, err := decode[amountRequest](data)
	if err != nil {
		return nil, err
	}
	account, err := h.services.Accounts.Deposit(ctx, req.AccountID, req.ActorID, req.Amount)
	if err != nil {
		return nil, err
	}
	return toAccountView(account), nil
}

func (h *AdminHandler) withdraw(ctx context.Context, data []byte) (any, error) {
	req, err := decode[amountRequest](data)
	if err != nil {
		return nil, err
	}
	account, err := h.services.Accounts.Withdraw(ctx, req.AccountID, req.ActorID, req.Amount)
	if err != nil {
		return nil, err
	}
	return toAccountView(account), nil
}

func (h *AdminHandler) closeAccount(ctx context.Context, data []byte) (any, error) {
	req, err := decode[closeAccountRequest](data)
	if err != nil {
		return nil, err
	}
	refund, err := h.services.Accounts.CloseAccount(ctx, req.AccountID, req.ActorID)
	if err != nil {
		return nil, err
	}
	return map[string]string{"refunded": refund.StringFixed(models.BalanceScale)}, nil
}

func (h *AdminHandler) configureMultiplier(ctx context.Context, data []byte) (any, error) {
	req, err := decode[multiplierRequest](data)
	if err != nil {
		return nil, err
	}
	account, err := h.services.Accounts.ConfigureMultiplier(ctx, req.AccountID, service.MultiplierConfig{
		Stage:                       req.Stage,
		RemainingDelay:              req.RemainingDelay,
		RemainingOfflinePayouts:     req.RemainingOfflinePayouts,
		RemainingOfflineBeforeReset: req.RemainingOfflineBeforeReset,
	})
	if err != nil {
		return nil, err
	}
	return toAccountView(account), nil
}

func (h *AdminHandler) walletHistory(ctx context.Context, data []byte) (any, error) {
	req, err := decode[ownerRequest](data)
	if err != nil {
		return nil, err
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultWalletHistoryLimit
	}
	history, err := h.services.Wallets.GetHistory(ctx, req.OwnerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet history: %w", err)
	}
	views := make([]walletChangeView, 0, len(history))
	for _, entry := range history {
		views = append(views, walletChangeView{
			Type:          string(entry.TransactionType),
			BalanceBefore: entry.BalanceBefore.StringFixed(models.BalanceScale),
			BalanceAfter:  entry.BalanceAfter.StringFixed(models.BalanceScale),
			Change:        entry.ChangeAmount.StringFixed(models.BalanceScale),
			Metadata:      entry.TransactionMetadata,
			CreatedAt:     entry.CreatedAt,
		})
	}
	return views, nil
}

func (h *AdminHandler) playerPresence(ctx context.Context, data []byte) (any, error) {
	req, err := decode[ownerRequest](data)
	if err != nil {
		return nil, err
	}
	online, err := h.services.Presence.IsOnline(ctx, req.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to check presence: %w", err)
	}
	view := presenceView{OwnerID: req.OwnerID, Online: online}
	seen, ok, err := h.services.Presence.LastSeen(ctx, req.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to read last seen: %w", err)
	}
	if ok {
		view.LastSeen = &seen
	}
	return view, nil
}
