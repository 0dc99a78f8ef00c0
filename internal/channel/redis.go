// ABOUTME: Redis-backed attendant channel using PUBLISH/SUBSCRIBE per channel id.
// ABOUTME: One forwarding goroutine per subscription; malformed payloads are logged and skipped.

package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Redis implements Channel on a shared redis client. Each session gets
// its own Redis value; the underlying *redis.Client may be shared.
type Redis struct {
	rdb    *redis.Client
	logger *slog.Logger

	mu   sync.Mutex
	subs map[string]*redisSub // channelID -> active subscription
}

type redisSub struct {
	pubsub *redis.PubSub
	cancel context.CancelFunc
}

// NewRedis wraps rdb as an attendant channel client. Pass nil logger for
// default.
func NewRedis(rdb *redis.Client, logger *slog.Logger) *Redis {
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{
		rdb:    rdb,
		logger: logger.With("component", "channel-redis"),
		subs:   make(map[string]*redisSub),
	}
}

// Subscribe opens a redis subscription on channelID and forwards decoded
// envelopes to fn. The error from the initial subscription handshake is
// returned so a failed handoff can be rolled back.
func (r *Redis) Subscribe(ctx context.Context, channelID string, fn Handler) error {
	r.mu.Lock()
	if _, ok := r.subs[channelID]; ok {
		r.mu.Unlock()
		return nil // already subscribed
	}
	r.mu.Unlock()

	pubsub := r.rdb.Subscribe(ctx, channelID)

	// Force the subscription round-trip so failures surface here.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("subscribing to channel %q: %w", channelID, err)
	}

	subCtx, cancel := context.WithCancel(context.Background())

	r.mu.Lock()
	r.subs[channelID] = &redisSub{pubsub: pubsub, cancel: cancel}
	r.mu.Unlock()

	go r.forward(subCtx, channelID, pubsub, fn)

	r.logger.Debug("subscribed", "channel_id", channelID)
	return nil
}

func (r *Redis) forward(ctx context.Context, channelID string, pubsub *redis.PubSub, fn Handler) {
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				r.logger.Warn("dropping undecodable channel payload",
					"channel_id", channelID,
					"error", err)
				continue
			}
			fn(env)
		}
	}
}

// Unsubscribe tears down the subscription for channelID.
func (r *Redis) Unsubscribe(channelID string) error {
	r.mu.Lock()
	sub, ok := r.subs[channelID]
	delete(r.subs, channelID)
	r.mu.Unlock()

	if !ok {
		return ErrNotSubscribed
	}
	sub.cancel()
	if err := sub.pubsub.Close(); err != nil {
		return fmt.Errorf("closing subscription for %q: %w", channelID, err)
	}
	return nil
}

// Publish marshals env and publishes it on channelID.
func (r *Redis) Publish(ctx context.Context, channelID string, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshaling envelope: %w", err)
	}
	if err := r.rdb.Publish(ctx, channelID, string(data)).Err(); err != nil {
		return fmt.Errorf("publishing to channel %q: %w", channelID, err)
	}
	return nil
}

// Close drops every subscription held by this client.
func (r *Redis) Close() error {
	r.mu.Lock()
	subs := r.subs
	r.subs = make(map[string]*redisSub)
	r.mu.Unlock()

	var firstErr error
	for channelID, sub := range subs {
		sub.cancel()
		if err := sub.pubsub.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing subscription for %q: %w", channelID, err)
		}
	}
	return firstErr
}
