// Package eventbus is the dispatch core's pub/sub layer. It ships two
// implementations behind the same Bus interface: NATS JetStream for a
// horizontally scaled dispatch tier (so a driver connected to one
// process instance still receives offers dispatched from another),
// and an in-process fan-out used when NATS is disabled in configuration
// or unreachable at startup. The
// choice is made once at startup, never per call, matching the Driver
// State Store's backend-selection pattern.
package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/richxcame/ride-hailing/internal/platform/logger"
)

// Subjects used across the dispatch core.
const (
	SubjectRideCreated         = "rides.created"
	SubjectRideDriverAssigned  = "rides.driver_assigned"
	SubjectRideStatusChanged   = "rides.status_changed"
	SubjectRideStarted         = "rides.started"
	SubjectRideCompleted       = "rides.completed"
	SubjectRideCancelled       = "rides.cancelled"
	SubjectDispatchOffer       = "dispatch.offer"
	SubjectDriverLocationMoved = "drivers.location.updated"
	SubjectDriverStatusChanged = "drivers.status_changed"
)

// Event is the envelope published on every subject.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// HandlerFunc processes a received event. Returning an error nacks the
// message so JetStream redelivers it.
type HandlerFunc func(ctx context.Context, event *Event) error

// Bus is the pub/sub surface every component depends on.
type Bus interface {
	Publish(ctx context.Context, subject string, payload interface{}) error
	Subscribe(ctx context.Context, subject, consumerName string, handler HandlerFunc) error
	Close()
}

// Config holds NATS connection settings.
type Config struct {
	URL        string
	Name       string
	StreamName string
}

// NATSBus wraps a JetStream connection.
type NATSBus struct {
	conn *nats.Conn
	js   jetstream.JetStream
	cfg  Config
	subs []jetstream.ConsumeContext
}

// New connects to NATS and ensures the dispatch stream exists.
func New(cfg Config) (*NATSBus, error) {
	if cfg.StreamName == "" {
		cfg.StreamName = "DISPATCH"
	}
	if cfg.Name == "" {
		cfg.Name = "dispatch-core"
	}

	nc, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Get().Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Get().Info("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      cfg.StreamName,
		Subjects:  []string{"rides.>", "dispatch.>", "drivers.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.InterestPolicy,
		MaxAge:    24 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create stream: %w", err)
	}

	logger.Get().Info("NATS event bus connected", zap.String("url", cfg.URL), zap.String("stream", cfg.StreamName))
	return &NATSBus{conn: nc, js: js, cfg: cfg}, nil
}

// Publish marshals payload and publishes it to subject with JetStream
// at-least-once delivery.
func (b *NATSBus) Publish(ctx context.Context, subject string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}
	event := &Event{ID: uuid.New().String(), Type: subject, Timestamp: time.Now().UTC(), Data: raw}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	_, err = b.js.Publish(ctx, subject, data, jetstream.WithMsgID(event.ID))
	if err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	return nil
}

// Subscribe creates a durable consumer scoped to consumerName and
// processes matching messages with handler.
func (b *NATSBus) Subscribe(ctx context.Context, subject, consumerName string, handler HandlerFunc) error {
	consumer, err := b.js.CreateOrUpdateConsumer(ctx, b.cfg.StreamName, jetstream.ConsumerConfig{
		Name:          consumerName,
		Durable:       consumerName,
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		var event Event
		if err := json.Unmarshal(msg.Data(), &event); err != nil {
			logger.Get().Warn("failed to unmarshal event", zap.Error(err))
			msg.Term()
			return
		}
		if err := handler(ctx, &event); err != nil {
			logger.Get().Warn("event handler error, will retry", zap.String("event_id", event.ID), zap.Error(err))
			msg.Nak()
			return
		}
		msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("consume %s: %w", consumerName, err)
	}

	b.subs = append(b.subs, cc)
	return nil
}

// Close drains subscriptions and closes the NATS connection.
func (b *NATSBus) Close() {
	for _, sub := range b.subs {
		sub.Stop()
	}
	if b.conn != nil {
		b.conn.Drain()
	}
}
