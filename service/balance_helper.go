package service

import (
	"banker/events"
	"banker/models"
)

// publishWalletChange emits the event for a recorded wallet change. Inside a
// unit of work the event is held until the transaction commits.
func publishWalletChange(publisher EventPublisher, history *models.WalletHistory) {
	if history == nil || publisher == nil {
		return
	}
	publisher.Publish(events.WalletBalanceChangeEvent{
		OwnerID:         history.OwnerID,
		OldBalance:      history.BalanceBefore,
		NewBalance:      history.BalanceAfter,
		ChangeAmount:    history.ChangeAmount,
		TransactionType: history.TransactionType,
	})
}
