// ABOUTME: Detects handoff-intent triggers and blacklisted control commands in message text.
// ABOUTME: Matching text drives responder transitions but is excluded from the visible transcript.

package handoff

import (
	"fmt"
	"regexp"
)

// DefaultIntent is the intent name used when none is configured.
const DefaultIntent = "handoff"

// DefaultBlacklist lists control commands that never appear in the visible
// transcript: restart/start in both slash and underscore form.
var DefaultBlacklist = []string{"_restart", "_start", "/restart", "/start"}

// Detector decides whether a piece of outgoing or inbound text should
// trigger a responder switch or be suppressed from display. Compile once
// per session via New.
type Detector struct {
	intent    string
	pattern   *regexp.Regexp
	blacklist map[string]struct{}
}

// New builds a detector for the given intent name. The pattern matches a
// slash-command style trigger optionally followed by an arbitrary suffix,
// e.g. both "/handoff" and `/handoff{"from_host":"..."}`. An empty intent
// falls back to DefaultIntent; a nil blacklist falls back to
// DefaultBlacklist.
func New(intent string, blacklist []string) *Detector {
	if intent == "" {
		intent = DefaultIntent
	}
	if blacklist == nil {
		blacklist = DefaultBlacklist
	}

	set := make(map[string]struct{}, len(blacklist))
	for _, entry := range blacklist {
		set[entry] = struct{}{}
	}

	return &Detector{
		intent:    intent,
		pattern:   regexp.MustCompile(`\/(` + regexp.QuoteMeta(intent) + `)\b.*`),
		blacklist: set,
	}
}

// Matches reports whether text triggers the handoff intent.
func (d *Detector) Matches(text string) bool {
	return d.pattern.MatchString(text)
}

// Blacklisted reports whether text is an exact blacklist entry.
func (d *Detector) Blacklisted(text string) bool {
	_, ok := d.blacklist[text]
	return ok
}

// Filtered reports whether text must be excluded from the visible
// transcript, for either reason.
func (d *Detector) Filtered(text string) bool {
	return d.Blacklisted(text) || d.Matches(text)
}

// Ack builds the synthetic handoff-acknowledgement payload sent after a
// transition, embedding the originating host. The result matches the
// detector's own pattern, so it is never displayed.
func (d *Detector) Ack(fromHost string) string {
	return fmt.Sprintf(`/%s{"from_host":%q}`, d.intent, fromHost)
}
