// ABOUTME: FIFO buffer for responder messages awaiting paced release.
// ABOUTME: Drip-fed one message per tick so batched bot replies read conversationally.

package session

import "github.com/parley-chat/parley/internal/message"

// Queue holds normalized responder messages in arrival order. It is not
// safe for concurrent use; the owning session serializes access.
//
// The queue is unbounded. A bot that floods replies will grow it without
// limit; that is accepted rather than silently capped, so observable
// ordering never changes under load.
type Queue struct {
	items []message.ChatMessage
}

// Enqueue appends messages preserving their order.
func (q *Queue) Enqueue(msgs ...message.ChatMessage) {
	q.items = append(q.items, msgs...)
}

// Pop removes and returns the oldest message.
func (q *Queue) Pop() (message.ChatMessage, bool) {
	if len(q.items) == 0 {
		return message.ChatMessage{}, false
	}
	msg := q.items[0]
	q.items = q.items[1:]
	return msg, true
}

// Drain removes and returns all pending messages in order. Used when the
// user re-engages: everything buffered becomes visible at once.
func (q *Queue) Drain() []message.ChatMessage {
	items := q.items
	q.items = nil
	return items
}

// Len reports the number of pending messages.
func (q *Queue) Len() int {
	return len(q.items)
}
