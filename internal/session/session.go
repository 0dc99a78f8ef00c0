// ABOUTME: The session state machine: active-responder mode, handoff transitions, and dispatch.
// ABOUTME: Serializes all state mutation behind one mutex; owns the pacing ticker and reply timeout.

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/parley-chat/parley/internal/channel"
	"github.com/parley-chat/parley/internal/handoff"
	"github.com/parley-chat/parley/internal/message"
)

// Mode is the active responder: exactly one holds at any time.
type Mode int

const (
	ModeBot Mode = iota
	ModeAttendant
)

// String returns the display name of the mode.
func (m Mode) String() string {
	if m == ModeAttendant {
		return "attendant"
	}
	return "bot"
}

// ErrSessionClosed is returned by operations on a torn-down session.
var ErrSessionClosed = errors.New("session closed")

const (
	defaultWaitingTimeout = 5 * time.Second
	defaultMessageDelay   = 800 * time.Millisecond
)

// BotPoster sends one user message to the bot webhook and returns its
// reply list. Implemented by bot.Client; faked in tests.
type BotPoster interface {
	Post(ctx context.Context, host, text, sender string) ([]message.RawReply, error)
}

// Options configures a session.
type Options struct {
	// UserID is the external role's sender id. Defaults to a fresh UUID.
	UserID string
	// Title is the default human-facing label for the counterpart.
	Title string
	// BotHost is the initial webhook host. Required for the external role.
	BotHost string
	// WelcomeMessage, when non-empty, is injected as the first visible
	// message for the external role, and is the internal role's greeting
	// when a user is handed to it.
	WelcomeMessage string
	// ExternalRole selects the user-facing framing. The internal role is
	// the attendant-facing mirror image.
	ExternalRole bool
	// AttendantID names the attendant channel. Required for the internal
	// role; optional for the external role (resumes an active handoff).
	AttendantID string
	// HandoffIntent is the intent name compiled into the detector.
	HandoffIntent string
	// Blacklist overrides the default message blacklist when non-nil.
	Blacklist []string
	// WaitingTimeout bounds how long awaitingReply stays true without a
	// reply. Default 5s.
	WaitingTimeout time.Duration
	// MessageDelay is the paced-release tick period. Default 800ms.
	MessageDelay time.Duration
	// Logger for session diagnostics. Defaults to slog.Default.
	Logger *slog.Logger
}

// Session coordinates one conversation between a consumer and the active
// responder. All state mutation is serialized behind mu; the pacing
// ticker and the awaiting-reply timeout are owned by the session and
// stopped by Close.
type Session struct {
	opts     Options
	detector *handoff.Detector
	bot      BotPoster
	channel  channel.Channel
	logger   *slog.Logger
	events   *hub

	mu            sync.Mutex
	mode          Mode
	attendantID   string // non-empty iff mode == ModeAttendant
	botHost       string
	title         string
	userID        string
	queue         Queue
	transcript    []message.ChatMessage
	awaitingReply bool
	closed        bool
	waitGen       int
	waitTimer     *time.Timer

	ticker *time.Ticker
	done   chan struct{}
}

// New creates a session and starts its pacing ticker. The internal role
// subscribes to its own attendant channel immediately; a subscription
// failure fails construction.
func New(opts Options, botClient BotPoster, ch channel.Channel) (*Session, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.WaitingTimeout <= 0 {
		opts.WaitingTimeout = defaultWaitingTimeout
	}
	if opts.MessageDelay <= 0 {
		opts.MessageDelay = defaultMessageDelay
	}
	if opts.ExternalRole {
		if opts.BotHost == "" {
			return nil, fmt.Errorf("bot host is required for the external role")
		}
		if opts.UserID == "" {
			opts.UserID = uuid.New().String()
		}
	} else if opts.AttendantID == "" {
		return nil, fmt.Errorf("attendant id is required for the internal role")
	}

	logger := opts.Logger.With("component", "session", "role", roleName(opts.ExternalRole))

	s := &Session{
		opts:     opts,
		detector: handoff.New(opts.HandoffIntent, opts.Blacklist),
		bot:      botClient,
		channel:  ch,
		logger:   logger,
		events:   newHub(logger),
		mode:     ModeBot,
		botHost:  opts.BotHost,
		title:    opts.Title,
		userID:   opts.UserID,
		done:     make(chan struct{}),
	}

	if opts.ExternalRole && opts.WelcomeMessage != "" {
		s.transcript = append(s.transcript, message.NewText("bot", opts.WelcomeMessage))
	}

	if opts.AttendantID != "" {
		if err := ch.Subscribe(context.Background(), opts.AttendantID, s.channelHandler()); err != nil {
			return nil, fmt.Errorf("subscribing attendant channel: %w", err)
		}
		s.mode = ModeAttendant
		s.attendantID = opts.AttendantID
	}

	s.ticker = time.NewTicker(opts.MessageDelay)
	go s.run()

	logger.Info("session started",
		"user_id", s.userID,
		"bot_host", s.botHost,
		"attendant_id", s.attendantID)
	return s, nil
}

func roleName(external bool) string {
	if external {
		return "external"
	}
	return "internal"
}

// run drives paced delivery until the session is closed.
func (s *Session) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.ticker.C:
			s.tick()
		}
	}
}

// tick releases exactly one pending message into the visible transcript.
func (s *Session) tick() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	msg, ok := s.queue.Pop()
	if !ok {
		s.mu.Unlock()
		return
	}
	s.transcript = append(s.transcript, msg)
	awaitChanged := s.setAwaitingLocked(s.queue.Len() > 0)
	awaiting := s.awaitingReply
	snapshot := s.visibleLocked()
	s.mu.Unlock()

	s.events.publish(Event{Type: EventTranscript, Transcript: snapshot})
	if awaitChanged {
		s.events.publish(Event{Type: EventAwaitingReply, AwaitingReply: awaiting})
	}
}

// Send dispatches outgoing text from the local party. Empty text is a
// no-op. For the external role the text becomes visible immediately
// (flushing the pending queue first) unless filtered; for the internal
// role it is queued and paced like any responder message.
func (s *Session) Send(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	if s.opts.ExternalRole {
		return s.sendExternal(ctx, text)
	}
	return s.sendInternal(ctx, text)
}

func (s *Session) sendExternal(ctx context.Context, text string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}

	var snapshot []message.ChatMessage
	if !s.detector.Filtered(text) {
		// The user re-engaging reveals everything buffered so far.
		s.transcript = append(s.transcript, s.queue.Drain()...)
		s.transcript = append(s.transcript, message.NewText(s.userID, text))
		snapshot = s.visibleLocked()
	}

	awaitChanged := s.setAwaitingLocked(true)
	s.resetWaitTimerLocked()

	mode := s.mode
	attendantID := s.attendantID
	sender := s.userID
	switchBack := mode == ModeAttendant && s.detector.Matches(text)
	s.mu.Unlock()

	if snapshot != nil {
		s.events.publish(Event{Type: EventTranscript, Transcript: snapshot})
	}
	if awaitChanged {
		s.events.publish(Event{Type: EventAwaitingReply, AwaitingReply: true})
	}

	if switchBack {
		// User-initiated handoff back to the bot: leave the attendant and
		// replay the trigger through the bot path.
		s.leaveAttendant()
		return s.dispatchBot(ctx, text)
	}

	if mode == ModeAttendant {
		env := channel.Envelope{
			Message:        text,
			Sender:         sender,
			Output:         attendantID,
			ClientExternal: true,
		}
		if err := s.channel.Publish(ctx, attendantID, env); err != nil {
			// Fire-and-forget: surfaced but not fatal to the session.
			s.logger.Warn("attendant publish failed", "channel_id", attendantID, "error", err)
			s.surfaceError(err)
		}
		return nil
	}

	return s.dispatchBot(ctx, text)
}

func (s *Session) sendInternal(ctx context.Context, text string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}

	awaitChanged := false
	if !s.detector.Filtered(text) {
		s.queue.Enqueue(message.NewText(s.opts.AttendantID, text))
		awaitChanged = s.setAwaitingLocked(s.queue.Len() > 0)
	}
	awaiting := s.awaitingReply
	out := s.opts.AttendantID
	s.mu.Unlock()

	if awaitChanged {
		s.events.publish(Event{Type: EventAwaitingReply, AwaitingReply: awaiting})
	}

	env := channel.Envelope{
		Message:        text,
		Sender:         out,
		Output:         out,
		ClientExternal: false,
	}
	if err := s.channel.Publish(ctx, out, env); err != nil {
		s.logger.Warn("attendant publish failed", "channel_id", out, "error", err)
		s.surfaceError(err)
	}
	return nil
}

// HandleButtonSelection forwards a button payload as if the user typed it.
func (s *Session) HandleButtonSelection(ctx context.Context, label, payload string) error {
	s.logger.Debug("button selected", "label", label)
	return s.Send(ctx, payload)
}

// dispatchBot performs the synchronous webhook round-trip and feeds the
// reply list through normalization, transition checks, and the queue.
// Called without holding the session mutex.
func (s *Session) dispatchBot(ctx context.Context, text string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	host := s.botHost
	sender := s.userID
	s.mu.Unlock()

	replies, err := s.bot.Post(ctx, host, text, sender)
	if err != nil {
		s.logger.Error("bot webhook failed", "host", host, "error", err)
		s.surfaceError(err)
		return err
	}
	return s.handleBotReplies(ctx, replies)
}

// handleBotReplies normalizes a reply batch. A malformed reply aborts the
// whole batch before anything is enqueued. Custom handoff payloads are
// consumed as transition triggers; the rest is enqueued for paced release.
func (s *Session) handleBotReplies(ctx context.Context, replies []message.RawReply) error {
	var expanded []message.ChatMessage
	var handoffs []message.Custom

	for _, raw := range replies {
		msgs, err := message.Normalize(raw, "bot")
		if err != nil {
			s.logger.Error("dropping bot reply batch", "error", err)
			s.surfaceError(err)
			return err
		}
		for _, m := range msgs {
			if m.Payload.Kind == message.KindCustom {
				handoffs = append(handoffs, *m.Payload.Custom)
			} else {
				expanded = append(expanded, m)
			}
		}
	}

	for _, c := range handoffs {
		if err := s.applyHandoff(ctx, c); err != nil {
			s.logger.Error("handoff failed", "handoff_host", c.HandoffHost, "error", err)
			s.surfaceError(err)
		}
	}

	s.enqueue(expanded)
	return nil
}

// enqueue buffers responder messages and refreshes the more-coming flag.
func (s *Session) enqueue(msgs []message.ChatMessage) {
	if len(msgs) == 0 {
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue.Enqueue(msgs...)
	awaitChanged := s.setAwaitingLocked(s.queue.Len() > 0)
	awaiting := s.awaitingReply
	s.mu.Unlock()

	if awaitChanged {
		s.events.publish(Event{Type: EventAwaitingReply, AwaitingReply: awaiting})
	}
}

// applyHandoff executes one custom handoff payload. An HTTP(S) host
// retargets the webhook without changing the mode; anything else names an
// attendant channel. Both variants emit the synthetic acknowledgement
// through the regular send path, so it is filtered from display.
func (s *Session) applyHandoff(ctx context.Context, c message.Custom) error {
	host := c.HandoffHost

	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return ErrSessionClosed
		}
		s.botHost = host
		if c.Title != "" {
			s.title = c.Title
		}
		s.mu.Unlock()

		s.logger.Info("webhook retargeted", "bot_host", host)
		return s.sendAck(ctx, s.detector.Ack(s.opts.BotHost))
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	same := s.attendantID == host
	prev := s.attendantID
	s.mu.Unlock()

	if same {
		// Re-entry to the active attendant: refresh the title only.
		s.mu.Lock()
		if c.Title != "" {
			s.title = c.Title
		}
		s.mu.Unlock()
	} else {
		// Subscribe before touching state so a failure leaves the
		// transition fully rolled back.
		if err := s.channel.Subscribe(ctx, host, s.channelHandler()); err != nil {
			return fmt.Errorf("handoff to %q aborted: %w", host, err)
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			s.channel.Unsubscribe(host)
			return ErrSessionClosed
		}
		s.mode = ModeAttendant
		s.attendantID = host
		if c.Title != "" {
			s.title = c.Title
		} else {
			s.title = host
		}
		s.mu.Unlock()

		if prev != "" {
			if err := s.channel.Unsubscribe(prev); err != nil {
				s.logger.Warn("unsubscribe failed", "channel_id", prev, "error", err)
			}
		}
		s.logger.Info("handed off to attendant", "attendant_id", host)
	}

	return s.sendAck(ctx, s.detector.Ack(s.opts.BotHost))
}

// sendAck emits the synthetic handoff acknowledgement through the
// currently active responder. It deliberately skips the transition
// check: the acknowledgement matches the handoff pattern itself and
// must not undo the switch it confirms.
func (s *Session) sendAck(ctx context.Context, text string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	awaitChanged := s.setAwaitingLocked(true)
	s.resetWaitTimerLocked()
	mode := s.mode
	attendantID := s.attendantID
	sender := s.userID
	s.mu.Unlock()

	if awaitChanged {
		s.events.publish(Event{Type: EventAwaitingReply, AwaitingReply: true})
	}

	if mode == ModeAttendant {
		env := channel.Envelope{
			Message:        text,
			Sender:         sender,
			Output:         attendantID,
			ClientExternal: s.opts.ExternalRole,
		}
		if err := s.channel.Publish(ctx, attendantID, env); err != nil {
			s.logger.Warn("attendant publish failed", "channel_id", attendantID, "error", err)
			s.surfaceError(err)
		}
		return nil
	}
	return s.dispatchBot(ctx, text)
}

// leaveAttendant returns the session to bot mode, unsubscribing the
// active channel and restoring the default title.
func (s *Session) leaveAttendant() {
	s.mu.Lock()
	prev := s.attendantID
	s.mode = ModeBot
	s.attendantID = ""
	s.title = s.opts.Title
	s.mu.Unlock()

	if prev != "" {
		if err := s.channel.Unsubscribe(prev); err != nil {
			s.logger.Warn("unsubscribe failed", "channel_id", prev, "error", err)
		}
	}
	s.logger.Info("returned to bot", "bot_host", s.BotHost())
}

// channelHandler wraps the inbound path with the own-role echo filter.
func (s *Session) channelHandler() channel.Handler {
	return func(env channel.Envelope) {
		if env.ClientExternal == s.opts.ExternalRole {
			return // our own publication reflected back
		}
		s.handleChannelMessage(env)
	}
}

// handleChannelMessage processes one counterpart message from the
// attendant channel: filter, queue, and transition check.
func (s *Session) handleChannelMessage(env channel.Envelope) {
	if env.Message == "" {
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	awaitChanged := false
	if !s.detector.Filtered(env.Message) {
		// Counterpart traffic speaks as the responder.
		s.queue.Enqueue(message.NewText("bot", env.Message))
		awaitChanged = s.setAwaitingLocked(s.queue.Len() > 0)
	}
	awaiting := s.awaitingReply
	matches := s.detector.Matches(env.Message)
	s.mu.Unlock()

	if awaitChanged {
		s.events.publish(Event{Type: EventAwaitingReply, AwaitingReply: awaiting})
	}

	if !matches {
		return
	}

	if s.opts.ExternalRole {
		// The attendant ended the takeover: back to the bot, replaying
		// the trigger through the bot path.
		s.leaveAttendant()
		if err := s.Send(context.Background(), env.Message); err != nil {
			s.logger.Error("handoff replay failed", "error", err)
		}
		return
	}

	// Internal role: a user was handed to us. Adopt the sender as the
	// counterpart and greet them.
	s.mu.Lock()
	s.userID = env.Sender
	s.title = env.Sender
	welcome := s.opts.WelcomeMessage
	s.mu.Unlock()

	s.logger.Info("user adopted", "user_id", env.Sender)
	if welcome != "" {
		if err := s.Send(context.Background(), welcome); err != nil {
			s.logger.Error("greeting failed", "error", err)
		}
	}
}

// setAwaitingLocked updates awaitingReply and reports whether it changed.
// Callers must hold s.mu.
func (s *Session) setAwaitingLocked(v bool) bool {
	if s.awaitingReply == v {
		return false
	}
	s.awaitingReply = v
	return true
}

// resetWaitTimerLocked arms the one-shot awaiting-reply timeout. Only the
// most recent timer is honored; earlier ones are canceled or invalidated
// by the generation counter. Callers must hold s.mu.
func (s *Session) resetWaitTimerLocked() {
	s.waitGen++
	gen := s.waitGen
	if s.waitTimer != nil {
		s.waitTimer.Stop()
	}
	s.waitTimer = time.AfterFunc(s.opts.WaitingTimeout, func() {
		s.mu.Lock()
		if s.closed || gen != s.waitGen {
			s.mu.Unlock()
			return
		}
		changed := s.setAwaitingLocked(false)
		s.mu.Unlock()

		if changed {
			s.events.publish(Event{Type: EventAwaitingReply, AwaitingReply: false})
		}
	})
}

// surfaceError emits a session error event.
func (s *Session) surfaceError(err error) {
	s.events.publish(Event{Type: EventSessionError, Error: err.Error()})
}

// visibleLocked materializes the visible transcript, applying blacklist
// and handoff filtering at render time based on content. Callers must
// hold s.mu.
func (s *Session) visibleLocked() []message.ChatMessage {
	out := make([]message.ChatMessage, 0, len(s.transcript))
	for _, m := range s.transcript {
		if text, ok := m.DisplayText(); ok && s.detector.Filtered(text) {
			continue
		}
		out = append(out, m)
	}
	return out
}

// Transcript returns the visible transcript snapshot.
func (s *Session) Transcript() []message.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visibleLocked()
}

// Subscribe registers a consumer for session events. The returned id is
// passed to Unsubscribe.
func (s *Session) Subscribe() (<-chan Event, string) {
	return s.events.subscribe()
}

// Unsubscribe removes an event subscriber.
func (s *Session) Unsubscribe(subID string) {
	s.events.unsubscribe(subID)
}

// Mode reports the active responder.
func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// AttendantChannel returns the active attendant channel id, or "".
func (s *Session) AttendantChannel() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attendantID
}

// BotHost returns the current webhook host.
func (s *Session) BotHost() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.botHost
}

// Title returns the current counterpart label.
func (s *Session) Title() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.title
}

// UserID returns the current counterpart sender id.
func (s *Session) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// AwaitingReply reports the "typing…" indicator state.
func (s *Session) AwaitingReply() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.awaitingReply
}

// Pending reports the number of messages awaiting paced release.
func (s *Session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

// Close tears the session down: stops both timers, unsubscribes any
// active attendant channel, and closes event subscribers. In-flight bot
// requests are not canceled; their results are discarded on arrival.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.waitGen++
	if s.waitTimer != nil {
		s.waitTimer.Stop()
	}
	attendantID := s.attendantID
	s.mu.Unlock()

	s.ticker.Stop()
	close(s.done)

	if attendantID != "" {
		if err := s.channel.Unsubscribe(attendantID); err != nil && !errors.Is(err, channel.ErrNotSubscribed) {
			s.logger.Warn("unsubscribe on close failed", "channel_id", attendantID, "error", err)
		}
	}
	if err := s.channel.Close(); err != nil {
		s.logger.Warn("channel close failed", "error", err)
	}

	s.events.close()
	s.logger.Info("session closed")
	return nil
}
