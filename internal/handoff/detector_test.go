// ABOUTME: Tests for handoff intent matching and blacklist filtering.
// ABOUTME: Covers defaults, suffixed triggers, and ack round-tripping.

package handoff

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetector_Matches(t *testing.T) {
	d := New("handoff", nil)

	tests := []struct {
		text string
		want bool
	}{
		{"/handoff", true},
		{`/handoff{"from_host":"http://bot:5005"}`, true},
		{"/handoff extra words", true},
		{"/handoffish", false},
		{"handoff", false},
		{"please hand me off", false},
		{"", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, d.Matches(tt.text), "text %q", tt.text)
	}
}

func TestDetector_CustomIntent(t *testing.T) {
	d := New("takeover", nil)

	assert.True(t, d.Matches("/takeover"))
	assert.True(t, d.Matches("/takeover now"))
	assert.False(t, d.Matches("/handoff"))
}

func TestDetector_DefaultBlacklist(t *testing.T) {
	d := New("", nil)

	for _, entry := range []string{"_restart", "_start", "/restart", "/start"} {
		assert.True(t, d.Blacklisted(entry), "entry %q", entry)
		assert.True(t, d.Filtered(entry), "entry %q", entry)
	}

	assert.False(t, d.Blacklisted("/restart please"))
	assert.False(t, d.Blacklisted("hello"))
}

func TestDetector_CustomBlacklist(t *testing.T) {
	d := New("handoff", []string{"/secret"})

	assert.True(t, d.Blacklisted("/secret"))
	assert.False(t, d.Blacklisted("/restart"))
}

func TestDetector_AckMatchesOwnPattern(t *testing.T) {
	d := New("handoff", nil)

	ack := d.Ack("http://bot:5005")
	assert.Equal(t, `/handoff{"from_host":"http://bot:5005"}`, ack)
	assert.True(t, d.Matches(ack))
	assert.True(t, d.Filtered(ack))
}
