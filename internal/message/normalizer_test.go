// ABOUTME: Tests for raw reply normalization and expansion ordering.
// ABOUTME: Covers single-key, multi-key, and malformed replies.

package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_TextOnly(t *testing.T) {
	msgs, err := Normalize(RawReply{Text: "hi"}, "bot")
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	assert.Equal(t, KindText, msgs[0].Payload.Kind)
	assert.Equal(t, "hi", msgs[0].Payload.Text)
	assert.Equal(t, "bot", msgs[0].Origin)
	assert.NotEmpty(t, msgs[0].ID)
	assert.NotZero(t, msgs[0].Timestamp)
}

func TestNormalize_TextAndButtonsExpandInOrder(t *testing.T) {
	raw := RawReply{
		Text:    "a",
		Buttons: []Button{{Label: "b", Payload: "p"}},
	}

	msgs, err := Normalize(raw, "bot")
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	assert.Equal(t, KindText, msgs[0].Payload.Kind)
	assert.Equal(t, KindButtons, msgs[1].Payload.Kind)
	require.Len(t, msgs[1].Payload.Buttons, 1)
	assert.Equal(t, "b", msgs[1].Payload.Buttons[0].Label)
	assert.Equal(t, "p", msgs[1].Payload.Buttons[0].Payload)
}

func TestNormalize_AttachmentRendersAsText(t *testing.T) {
	msgs, err := Normalize(RawReply{Attachment: "https://example.com/doc.pdf"}, "bot")
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	assert.Equal(t, KindAttachment, msgs[0].Payload.Kind)
	text, ok := msgs[0].DisplayText()
	assert.True(t, ok)
	assert.Equal(t, "https://example.com/doc.pdf", text)
}

func TestNormalize_CustomHandoff(t *testing.T) {
	msgs, err := Normalize(RawReply{Custom: &Custom{HandoffHost: "agent-42", Title: "Maria"}}, "bot")
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	assert.Equal(t, KindCustom, msgs[0].Payload.Kind)
	require.NotNil(t, msgs[0].Payload.Custom)
	assert.Equal(t, "agent-42", msgs[0].Payload.Custom.HandoffHost)
	assert.Equal(t, "Maria", msgs[0].Payload.Custom.Title)
}

func TestNormalize_AllKeysExpandToFiveMessages(t *testing.T) {
	raw := RawReply{
		Text:       "t",
		Buttons:    []Button{{Label: "l", Payload: "p"}},
		Image:      "https://example.com/i.png",
		Attachment: "https://example.com/a.pdf",
		Custom:     &Custom{HandoffHost: "agent-1"},
	}

	msgs, err := Normalize(raw, "bot")
	require.NoError(t, err)
	require.Len(t, msgs, 5)

	kinds := make([]Kind, len(msgs))
	for i, m := range msgs {
		kinds[i] = m.Payload.Kind
	}
	assert.Equal(t, []Kind{KindText, KindButtons, KindImage, KindAttachment, KindCustom}, kinds)
}

func TestNormalize_EmptyReplyIsMalformed(t *testing.T) {
	msgs, err := Normalize(RawReply{}, "bot")
	assert.ErrorIs(t, err, ErrMalformedMessage)
	assert.Nil(t, msgs)
}

func TestNormalize_CustomWithoutHandoffHostIsMalformed(t *testing.T) {
	_, err := Normalize(RawReply{Custom: &Custom{Title: "no host"}}, "bot")
	assert.ErrorIs(t, err, ErrMalformedMessage)
}

func TestDisplayText_NonTextKindsAreNotFilterable(t *testing.T) {
	img := New("bot", Payload{Kind: KindImage, Image: "https://example.com/i.png"})
	_, ok := img.DisplayText()
	assert.False(t, ok)

	btn := New("bot", Payload{Kind: KindButtons, Buttons: []Button{{Label: "a", Payload: "b"}}})
	_, ok = btn.DisplayText()
	assert.False(t, ok)
}
