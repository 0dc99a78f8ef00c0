// ABOUTME: Canonical chat message model shared by every part of the pipeline.
// ABOUTME: Messages are immutable once created; constructors assign ID and timestamp.

package message

import (
	"time"

	"github.com/google/uuid"
)

// Kind identifies which payload variant a message carries.
type Kind int

const (
	KindText Kind = iota
	KindButtons
	KindImage
	KindAttachment
	KindCustom
)

// String returns the wire/display name of the kind.
func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindButtons:
		return "buttons"
	case KindImage:
		return "image"
	case KindAttachment:
		return "attachment"
	case KindCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// Button is a single quick-reply option offered to the user.
type Button struct {
	Label    string `json:"title"`
	Payload  string `json:"payload"`
	Selected bool   `json:"selected,omitempty"`
}

// Custom carries structured data attached to a bot reply. HandoffHost is
// either an HTTP(S) URL (webhook redirect) or an attendant channel id.
type Custom struct {
	HandoffHost string `json:"handoff_host"`
	Title       string `json:"title,omitempty"`
}

// Payload is a tagged union: exactly one variant is populated, indicated
// by Kind. Attachments are rendered as text, so they reuse the Text field
// for the URL.
type Payload struct {
	Kind    Kind     `json:"kind"`
	Text    string   `json:"text,omitempty"`
	Buttons []Button `json:"buttons,omitempty"`
	Image   string   `json:"image,omitempty"`
	Custom  *Custom  `json:"custom,omitempty"`
}

// ChatMessage is one entry in a session's transcript or pending queue.
// Never mutated after creation.
type ChatMessage struct {
	ID        string  `json:"id"`
	Timestamp int64   `json:"timestamp"` // Unix milliseconds
	Origin    string  `json:"origin"`    // display name / sender id
	Payload   Payload `json:"payload"`
}

// New builds a ChatMessage with a fresh UUID and the current time.
func New(origin string, payload Payload) ChatMessage {
	return ChatMessage{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UnixMilli(),
		Origin:    origin,
		Payload:   payload,
	}
}

// NewText builds a plain text message.
func NewText(origin, text string) ChatMessage {
	return New(origin, Payload{Kind: KindText, Text: text})
}

// DisplayText returns the text content used for render-time filtering.
// Only text-like variants participate in blacklist/handoff filtering.
func (m ChatMessage) DisplayText() (string, bool) {
	switch m.Payload.Kind {
	case KindText, KindAttachment:
		return m.Payload.Text, true
	default:
		return "", false
	}
}
