package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

// PresenceSubject carries player join, heartbeat and quit messages from the
// game servers
const PresenceSubject = "presence.player"

// PresenceMessage is the payload of a presence update
type PresenceMessage struct {
	OwnerID int64 `json:"owner_id"`
	Online  bool  `json:"online"`
}

// PresenceWriter records presence updates
type PresenceWriter interface {
	MarkOnline(ctx context.Context, ownerID int64) error
	MarkOffline(ctx context.Context, ownerID int64) error
}

// PresenceListener feeds presence messages from NATS into the presence store
type PresenceListener struct {
	writer PresenceWriter
}

// NewPresenceListener creates a listener writing to the given store
func NewPresenceListener(writer PresenceWriter) *PresenceListener {
	return &PresenceListener{writer: writer}
}

// Subscribe starts consuming presence messages. The returned subscription
// should be drained on shutdown.
func (l *PresenceListener) Subscribe(ctx context.Context, nc *nats.Conn) (*nats.Subscription, error) {
	sub, err := nc.Subscribe(PresenceSubject, func(msg *nats.Msg) {
		if err := l.Handle(ctx, msg.Data); err != nil {
			log.WithFields(log.Fields{
				"subject": msg.Subject,
				"error":   err,
			}).Warn("Dropping presence message")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", PresenceSubject, err)
	}

	log.WithField("subject", PresenceSubject).Info("Listening for player presence")
	return sub, nil
}

// Handle applies one raw presence message
func (l *PresenceListener) Handle(ctx context.Context, data []byte) error {
	var msg PresenceMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("invalid presence message: %w", err)
	}
	if msg.OwnerID == 0 {
		return fmt.Errorf("presence message without owner_id")
	}

	if msg.Online {
		return l.writer.MarkOnline(ctx, msg.OwnerID)
	}
	return l.writer.MarkOffline(ctx, msg.OwnerID)
}
