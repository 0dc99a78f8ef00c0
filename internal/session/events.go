// ABOUTME: In-memory fan-out of session events to consumer-facing subscribers.
// ABOUTME: Non-blocking delivery; slow subscribers drop events rather than stall the session.

package session

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/parley-chat/parley/internal/message"
)

// subscriberBufferSize is the channel buffer for each subscriber.
const subscriberBufferSize = 64

// EventType identifies a session event.
type EventType string

const (
	// EventTranscript carries a fresh snapshot of the visible transcript.
	EventTranscript EventType = "transcript"
	// EventAwaitingReply signals the "typing…" indicator state changed.
	EventAwaitingReply EventType = "awaiting_reply"
	// EventSessionError surfaces a responder failure (webhook unreachable,
	// malformed reply, channel subscription failure).
	EventSessionError EventType = "error"
)

// Event is a discrete notification emitted by a session. The rendering
// layer consumes these instead of polling state.
type Event struct {
	Type          EventType             `json:"type"`
	Transcript    []message.ChatMessage `json:"transcript,omitempty"`
	AwaitingReply bool                  `json:"awaiting_reply"`
	Error         string                `json:"error,omitempty"`
}

// hub fans session events out to registered subscribers.
type hub struct {
	mu     sync.RWMutex
	subs   map[string]chan Event
	closed bool
	logger *slog.Logger
}

func newHub(logger *slog.Logger) *hub {
	return &hub{
		subs:   make(map[string]chan Event),
		logger: logger,
	}
}

// subscribe registers a subscriber and returns its channel and id.
func (h *hub) subscribe() (<-chan Event, string) {
	subID := uuid.New().String()
	ch := make(chan Event, subscriberBufferSize)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch, subID
	}
	h.subs[subID] = ch
	return ch, subID
}

func (h *hub) unsubscribe(subID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.subs[subID]; ok {
		delete(h.subs, subID)
		close(ch)
	}
}

// publish delivers an event to every subscriber without blocking.
func (h *hub) publish(event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return
	}
	for subID, ch := range h.subs {
		select {
		case ch <- event:
		default:
			h.logger.Warn("dropping event for slow subscriber",
				"sub_id", subID,
				"event_type", event.Type)
		}
	}
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for subID, ch := range h.subs {
		delete(h.subs, subID)
		close(ch)
	}
}
