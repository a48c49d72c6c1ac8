package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"

	"banker/events"
)

// SubjectPrefix is prepended to every event type to form a NATS subject
const SubjectPrefix = "banker."

// MessagePublisher sends raw messages to a subject. *nats.Conn satisfies it.
type MessagePublisher interface {
	Publish(subject string, data []byte) error
}

// ConnectNATS connects to the NATS servers with reconnect logging
func ConnectNATS(servers string) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("banker"),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.WithError(err).Error("NATS disconnected with error")
			} else {
				log.Warn("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected")
		}),
	}

	nc, err := nats.Connect(servers, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	log.WithField("servers", servers).Info("Connected to NATS")
	return nc, nil
}

// Envelope wraps an event payload on the wire
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	Timestamp     time.Time       `json:"timestamp"`
	SourceService string          `json:"source_service"`
	Payload       json.RawMessage `json:"payload"`
}

// Subject maps an event type to its NATS subject
func Subject(eventType events.EventType) string {
	return SubjectPrefix + string(eventType)
}

// NATSBridge forwards events from the in-process bus to NATS
type NATSBridge struct {
	publisher MessagePublisher
	now       func() time.Time
}

// NewNATSBridge creates a bridge publishing through the given connection
func NewNATSBridge(publisher MessagePublisher) *NATSBridge {
	return &NATSBridge{
		publisher: publisher,
		now:       time.Now,
	}
}

// Attach subscribes the bridge to every event type on the bus
func (b *NATSBridge) Attach(bus *events.Bus) {
	bus.SubscribeAll(b.handle)
}

func (b *NATSBridge) handle(ctx context.Context, event events.Event) {
	if err := b.Forward(event); err != nil {
		log.WithFields(log.Fields{
			"eventType": event.Type(),
			"error":     err,
		}).Error("Failed to forward event to NATS")
	}
}

// Forward publishes one event inside an envelope
func (b *NATSBridge) Forward(event events.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	envelope := Envelope{
		EventID:       uuid.New().String(),
		EventType:     string(event.Type()),
		Timestamp:     b.now().UTC(),
		SourceService: "banker",
		Payload:       payload,
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal event envelope: %w", err)
	}

	subject := Subject(event.Type())
	if err := b.publisher.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish event to %s: %w", subject, err)
	}

	log.WithFields(log.Fields{
		"eventType": event.Type(),
		"eventId":   envelope.EventID,
		"subject":   subject,
	}).Debug("Published event to NATS")
	return nil
}
