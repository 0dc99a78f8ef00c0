// ABOUTME: Attendant channel abstraction: named pub/sub used for user-attendant exchange.
// ABOUTME: Delivery is at-most-once with per-sender FIFO ordering.

package channel

import (
	"context"
	"errors"
)

// ErrNotSubscribed indicates an unsubscribe for a channel id with no
// active subscription on this client.
var ErrNotSubscribed = errors.New("not subscribed to channel")

// Envelope is the JSON payload exchanged on an attendant channel.
type Envelope struct {
	Message        string `json:"message"`
	Sender         string `json:"sender"`
	Output         string `json:"output"`
	ClientExternal bool   `json:"isClientExternal"`
}

// Handler receives envelopes delivered on a subscribed channel.
type Handler func(Envelope)

// Channel is a named pub/sub conduit. Implementations hold at most one
// active subscription per channel id per client; a session owns its
// client and tears it down with Close.
type Channel interface {
	// Subscribe registers fn for envelopes published on channelID.
	// Returns an error if the subscription could not be established;
	// callers treat that as a failed handoff and roll back.
	Subscribe(ctx context.Context, channelID string, fn Handler) error

	// Unsubscribe removes the subscription for channelID.
	Unsubscribe(channelID string) error

	// Publish sends an envelope to all subscribers of channelID.
	// Fire-and-forget from the session's perspective.
	Publish(ctx context.Context, channelID string, env Envelope) error

	// Close drops all subscriptions held by this client.
	Close() error
}
