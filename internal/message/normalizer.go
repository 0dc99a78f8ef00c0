// ABOUTME: Normalizes raw bot webhook replies into canonical ChatMessages.
// ABOUTME: One raw reply may expand into several messages (text + buttons + image).

package message

import "errors"

// ErrMalformedMessage indicates a raw reply carried none of the recognized
// payload keys. This is a contract violation by the bot service and must
// surface to the caller rather than being dropped.
var ErrMalformedMessage = errors.New("malformed message: no recognized payload")

// RawReply is the structurally-untyped reply object returned by the bot
// webhook. Any combination of the optional keys may be present.
type RawReply struct {
	RecipientID string   `json:"recipient_id,omitempty"`
	Text        string   `json:"text,omitempty"`
	Buttons     []Button `json:"buttons,omitempty"`
	Image       string   `json:"image,omitempty"`
	Attachment  string   `json:"attachment,omitempty"`
	Custom      *Custom  `json:"custom,omitempty"`
}

// Normalize expands a raw reply into canonical messages attributed to
// origin. Keys are checked in a fixed order: text, buttons, image,
// attachment, custom.handoff_host. Each present key yields one message.
// A reply with no recognized key fails with ErrMalformedMessage.
func Normalize(raw RawReply, origin string) ([]ChatMessage, error) {
	var out []ChatMessage

	if raw.Text != "" {
		out = append(out, New(origin, Payload{Kind: KindText, Text: raw.Text}))
	}

	if len(raw.Buttons) > 0 {
		buttons := make([]Button, len(raw.Buttons))
		copy(buttons, raw.Buttons)
		out = append(out, New(origin, Payload{Kind: KindButtons, Buttons: buttons}))
	}

	if raw.Image != "" {
		out = append(out, New(origin, Payload{Kind: KindImage, Image: raw.Image}))
	}

	// Attachments have no dedicated rendering; they surface as text.
	if raw.Attachment != "" {
		out = append(out, New(origin, Payload{Kind: KindAttachment, Text: raw.Attachment}))
	}

	if raw.Custom != nil && raw.Custom.HandoffHost != "" {
		custom := *raw.Custom
		out = append(out, New(origin, Payload{Kind: KindCustom, Custom: &custom}))
	}

	if len(out) == 0 {
		return nil, ErrMalformedMessage
	}
	return out, nil
}
