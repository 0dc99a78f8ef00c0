// Package session implements the conversational session state machine.
//
// # Overview
//
// A Session owns the lifecycle of a single chat conversation. It accepts
// outgoing text from the local party, routes it to the active responder
// (the bot webhook or a human attendant on a pub/sub channel), normalizes
// and paces inbound replies, and switches responders when a handoff is
// triggered.
//
// # Roles
//
// A session runs in one of two roles:
//
//   - External: the user-facing side. Sends as the user, displays its own
//     messages immediately, and paces bot/attendant replies.
//   - Internal: the attendant-facing side. Sends as the attendant, paces
//     its own dispatches like responder traffic, and relays everything to
//     the external side over the channel.
//
// Both roles share the same queue and transition logic; only the speaker
// framing differs.
//
// # Responder Modes
//
// Exactly one responder is active at a time:
//
//   - ModeBot: outgoing text is POSTed to the webhook synchronously and
//     the reply batch is normalized and enqueued.
//   - ModeAttendant: outgoing text is published on the attendant channel,
//     fire and forget.
//
// Transitions:
//
//   - Bot -> Attendant: a bot reply carries a custom handoff payload
//     naming a channel id. The session subscribes to the channel before
//     committing any state, so a failed subscription leaves the session
//     untouched.
//   - Bot -> Bot: a handoff payload naming an http(s) URL retargets the
//     webhook without changing modes.
//   - Attendant -> Bot: a message matching the handoff pattern arrives,
//     from either the attendant or the user. The trigger is replayed
//     through the bot path.
//
// Every transition is confirmed with a synthetic acknowledgement that
// embeds the originally configured webhook host, sent through the newly
// active responder.
//
// # Paced Delivery
//
// Responder messages are never displayed at once. They enter a FIFO queue
// and a ticker releases one per interval into the visible transcript.
// When the external user sends a new message, everything still queued is
// revealed first, preserving order. While the queue is non-empty or a bot
// round-trip is in flight, AwaitingReply reports true; a one-shot timeout
// clears it if nothing arrives.
//
// # Filtering
//
// Messages matching the handoff pattern or the blacklist still drive
// transitions but are excluded from the visible transcript. Filtering is
// applied at render time, so the full history is retained internally.
//
// # Events
//
// Consumers observe a session through Subscribe, which yields transcript
// snapshots, awaiting-reply changes, and surfaced errors. Delivery is
// non-blocking; slow subscribers lose events rather than stalling the
// session.
package session
