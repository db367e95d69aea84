package eventbus

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// LocalBus is an in-process, single-instance fan-out: one channel per
// subscriber, no persistence, no redelivery. It is the right choice
// for a single dispatch-core instance and the fallback used when NATS
// is disabled in configuration or unreachable at startup.
type LocalBus struct {
	mu   sync.RWMutex
	subs map[string][]chan *Event
}

// NewLocal builds an empty LocalBus.
func NewLocal() *LocalBus {
	return &LocalBus{subs: make(map[string][]chan *Event)}
}

// Publish marshals payload and fans it out to every subscriber of
// subject. Delivery is best-effort: a subscriber whose channel is
// full drops the message rather than blocking the publisher.
func (b *LocalBus) Publish(_ context.Context, subject string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	event := &Event{ID: uuid.New().String(), Type: subject, Timestamp: time.Now().UTC(), Data: raw}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[subject] {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

// Subscribe registers handler for subject and runs it on one goroutine
// per subscription, which handles delivered events one at a time until
// ctx is done. consumerName is accepted for
// interface parity with NATSBus but unused — LocalBus has no
// durable-consumer concept.
func (b *LocalBus) Subscribe(ctx context.Context, subject, _ string, handler HandlerFunc) error {
	ch := make(chan *Event, 64)
	b.mu.Lock()
	b.subs[subject] = append(b.subs[subject], ch)
	b.mu.Unlock()

	go func() {
		for {
			select {
			case event := <-ch:
				_ = handler(ctx, event)
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

// Close is a no-op: LocalBus holds no external resources.
func (b *LocalBus) Close() {}
