package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"banker/models"
)

// walletPaymentService pays players through their wallets. Each call is its
// own transaction.
type walletPaymentService struct {
	uowFactory UnitOfWorkFactory
}

// NewWalletPaymentService creates a PaymentService backed by player wallets
func NewWalletPaymentService(uowFactory UnitOfWorkFactory) PaymentService {
	return &walletPaymentService{uowFactory: uowFactory}
}

func (s *walletPaymentService) Deposit(ctx context.Context, ownerID int64, amount decimal.Decimal, txType models.TransactionType, metadata map[string]any) error {
	return s.apply(ctx, ownerID, func(uow UnitOfWork) (*models.WalletHistory, error) {
		return uow.WalletRepository().Credit(ctx, ownerID, amount, txType, metadata)
	})
}

func (s *walletPaymentService) Withdraw(ctx context.Context, ownerID int64, amount decimal.Decimal, txType models.TransactionType, metadata map[string]any) error {
	return s.apply(ctx, ownerID, func(uow UnitOfWork) (*models.WalletHistory, error) {
		return uow.WalletRepository().Debit(ctx, ownerID, amount, txType, metadata)
	})
}

func (s *walletPaymentService) apply(ctx context.Context, ownerID int64, change func(UnitOfWork) (*models.WalletHistory, error)) error {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	history, err := change(uow)
	if err != nil {
		return fmt.Errorf("wallet change for owner %d failed: %w", ownerID, err)
	}
	publishWalletChange(uow.EventBus(), history)

	if err := uow.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
