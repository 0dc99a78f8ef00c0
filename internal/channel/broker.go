// ABOUTME: In-memory fan-out broker implementing the attendant channel for one process.
// ABOUTME: Used in tests and single-process deployments where both roles share a gateway.

package channel

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Broker is an in-process pub/sub hub keyed by channel id. Sessions do
// not use it directly; each obtains its own view via Client.
type Broker struct {
	mu     sync.RWMutex
	subs   map[string]map[string]Handler // channelID -> subID -> handler
	logger *slog.Logger
}

// NewBroker creates a broker. Pass nil logger for default.
func NewBroker(logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		subs:   make(map[string]map[string]Handler),
		logger: logger.With("component", "channel-broker"),
	}
}

func (b *Broker) subscribe(channelID string, fn Handler) string {
	subID := uuid.New().String()

	b.mu.Lock()
	if _, ok := b.subs[channelID]; !ok {
		b.subs[channelID] = make(map[string]Handler)
	}
	b.subs[channelID][subID] = fn
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "channel_id", channelID, "sub_id", subID)
	return subID
}

func (b *Broker) unsubscribe(channelID, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if subs, ok := b.subs[channelID]; ok {
		delete(subs, subID)
		if len(subs) == 0 {
			delete(b.subs, channelID)
		}
	}
}

func (b *Broker) publish(channelID string, env Envelope) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[channelID]))
	for _, fn := range b.subs[channelID] {
		handlers = append(handlers, fn)
	}
	b.mu.RUnlock()

	for _, fn := range handlers {
		fn(env)
	}
}

// Client returns a per-session view of the broker implementing Channel.
func (b *Broker) Client() Channel {
	return &brokerClient{broker: b, subIDs: make(map[string]string)}
}

type brokerClient struct {
	broker *Broker
	mu     sync.Mutex
	subIDs map[string]string // channelID -> subID
}

func (c *brokerClient) Subscribe(_ context.Context, channelID string, fn Handler) error {
	subID := c.broker.subscribe(channelID, fn)

	c.mu.Lock()
	if prev, ok := c.subIDs[channelID]; ok {
		// Replace rather than stack subscriptions for the same id.
		c.broker.unsubscribe(channelID, prev)
	}
	c.subIDs[channelID] = subID
	c.mu.Unlock()
	return nil
}

func (c *brokerClient) Unsubscribe(channelID string) error {
	c.mu.Lock()
	subID, ok := c.subIDs[channelID]
	delete(c.subIDs, channelID)
	c.mu.Unlock()

	if !ok {
		return ErrNotSubscribed
	}
	c.broker.unsubscribe(channelID, subID)
	return nil
}

func (c *brokerClient) Publish(_ context.Context, channelID string, env Envelope) error {
	c.broker.publish(channelID, env)
	return nil
}

func (c *brokerClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for channelID, subID := range c.subIDs {
		c.broker.unsubscribe(channelID, subID)
		delete(c.subIDs, channelID)
	}
	return nil
}
