package infrastructure

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"banker/events"
)

type mockMessagePublisher struct {
	mock.Mock
}

func (m *mockMessagePublisher) Publish(subject string, data []byte) error {
	args := m.Called(subject, data)
	return args.Error(0)
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "banker.interest_paid", Subject(events.EventTypeInterestPaid))
	assert.Equal(t, "banker.payout_cycle_completed", Subject(events.EventTypePayoutCycleCompleted))
}

func TestNATSBridge_Forward(t *testing.T) {
	publisher := new(mockMessagePublisher)
	bridge := NewNATSBridge(publisher)
	fixed := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	bridge.now = func() time.Time { return fixed }

	var sent []byte
	publisher.On("Publish", "banker.interest_paid", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		sent = args.Get(1).([]byte)
	})

	err := bridge.Forward(events.InterestPaidEvent{
		BankID:     1,
		OwnerID:    42,
		Amount:     decimal.RequireFromString("30.00"),
		AccountIDs: []int64{10, 11},
	})
	require.NoError(t, err)
	publisher.AssertExpectations(t)

	var envelope Envelope
	require.NoError(t, json.Unmarshal(sent, &envelope))
	assert.Equal(t, "interest_paid", envelope.EventType)
	assert.Equal(t, "banker", envelope.SourceService)
	assert.True(t, envelope.Timestamp.Equal(fixed))
	_, err = uuid.Parse(envelope.EventID)
	assert.NoError(t, err)

	var payload events.InterestPaidEvent
	require.NoError(t, json.Unmarshal(envelope.Payload, &payload))
	assert.Equal(t, int64(42), payload.OwnerID)
	assert.True(t, payload.Amount.Equal(decimal.RequireFromString("30")))
	assert.Equal(t, []int64{10, 11}, payload.AccountIDs)
}

func TestNATSBridge_Forward_UniqueIDs(t *testing.T) {
	publisher := new(mockMessagePublisher)
	bridge := NewNATSBridge(publisher)

	var ids []string
	publisher.On("Publish", "banker.policy_changed", mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		var envelope Envelope
		require.NoError(t, json.Unmarshal(args.Get(1).([]byte), &envelope))
		ids = append(ids, envelope.EventID)
	})

	event := events.PolicyChangedEvent{BankID: 1, Policy: "interest-rate", Stored: "0.0500"}
	require.NoError(t, bridge.Forward(event))
	require.NoError(t, bridge.Forward(event))

	require.Len(t, ids, 2)
	assert.NotEqual(t, ids[0], ids[1])
}

func TestNATSBridge_Forward_PublishError(t *testing.T) {
	publisher := new(mockMessagePublisher)
	bridge := NewNATSBridge(publisher)

	publisher.On("Publish", "banker.withdrawal", mock.Anything).Return(errors.New("nats: connection closed"))

	err := bridge.Forward(events.WithdrawalEvent{BankID: 1, AccountID: 2})
	assert.ErrorContains(t, err, "banker.withdrawal")
}

func TestNATSBridge_Attach(t *testing.T) {
	publisher := new(mockMessagePublisher)
	bridge := NewNATSBridge(publisher)
	bus := events.NewBus()
	bridge.Attach(bus)

	done := make(chan string, 1)
	publisher.On("Publish", mock.Anything, mock.Anything).Return(nil).Run(func(args mock.Arguments) {
		done <- args.String(0)
	})

	bus.Publish(events.AccountClosedEvent{BankID: 1, AccountID: 7, OwnerID: 42})

	select {
	case subject := <-done:
		assert.Equal(t, "banker.account_closed", subject)
	case <-time.After(time.Second):
		t.Fatal("event was not forwarded")
	}
}
