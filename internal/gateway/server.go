// ABOUTME: HTTP API for creating sessions and exchanging messages with them.
// ABOUTME: Owns the session registry; one channel client per session via the factory.

package gateway

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/parley-chat/parley/internal/channel"
	"github.com/parley-chat/parley/internal/config"
	"github.com/parley-chat/parley/internal/message"
	"github.com/parley-chat/parley/internal/session"
)

// ChannelFactory yields a fresh attendant channel client for each session.
type ChannelFactory func() channel.Channel

// CreateSessionRequest is the JSON request body for POST /api/sessions.
// Every field is optional; omitted fields fall back to the server
// configuration.
type CreateSessionRequest struct {
	UserID      string `json:"user_id,omitempty"`
	BotHost     string `json:"bot_host,omitempty"`
	AttendantID string `json:"attendant_id,omitempty"`
}

// SendMessageRequest is the JSON request body for POST /api/sessions/{id}/messages.
type SendMessageRequest struct {
	Text string `json:"text"`
}

// ButtonSelectionRequest is the JSON request body for POST /api/sessions/{id}/buttons.
type ButtonSelectionRequest struct {
	Label   string `json:"label"`
	Payload string `json:"payload"`
}

// SessionResponse is the JSON representation of a session's state.
type SessionResponse struct {
	SessionID        string `json:"session_id"`
	UserID           string `json:"user_id"`
	Mode             string `json:"mode"`
	Title            string `json:"title"`
	BotHost          string `json:"bot_host,omitempty"`
	AttendantChannel string `json:"attendant_channel,omitempty"`
	AwaitingReply    bool   `json:"awaiting_reply"`
	Pending          int    `json:"pending"`
}

// TranscriptResponse is the JSON response for transcript reads and sends.
type TranscriptResponse struct {
	Messages      []message.ChatMessage `json:"messages"`
	AwaitingReply bool                  `json:"awaiting_reply"`
}

// Server exposes sessions over HTTP and WebSocket.
type Server struct {
	cfg      *config.Config
	bot      session.BotPoster
	channels ChannelFactory
	logger   *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session.Session
}

// NewServer creates a gateway server. Each created session receives its
// own channel client from the factory.
func NewServer(cfg *config.Config, botClient session.BotPoster, channels ChannelFactory, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:      cfg,
		bot:      botClient,
		channels: channels,
		logger:   logger.With("component", "gateway"),
		sessions: make(map[string]*session.Session),
	}
}

// Router wires the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api/sessions", func(api chi.Router) {
		api.Post("/", s.handleCreateSession)
		api.Route("/{sessionID}", func(sr chi.Router) {
			sr.Get("/", s.handleGetSession)
			sr.Delete("/", s.handleDeleteSession)
			sr.Post("/messages", s.handleSendMessage)
			sr.Post("/buttons", s.handleButtonSelection)
			sr.Get("/transcript", s.handleTranscript)
			sr.Get("/events", s.handleEvents)
		})
	})

	return r
}

// Close tears down every registered session.
func (s *Server) Close() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*session.Session)
	s.mu.Unlock()

	for id, sess := range sessions {
		if err := sess.Close(); err != nil {
			s.logger.Warn("session close failed", "session_id", id, "error", err)
		}
	}
}

func (s *Server) lookup(id string) (*session.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	opts := session.Options{
		UserID:         req.UserID,
		Title:          s.cfg.Session.Title,
		BotHost:        s.cfg.Bot.Host,
		WelcomeMessage: s.cfg.Session.WelcomeMessage,
		ExternalRole:   s.cfg.Session.ExternalRole,
		AttendantID:    req.AttendantID,
		HandoffIntent:  s.cfg.Session.HandoffIntent,
		Blacklist:      s.cfg.Session.MessageBlacklist,
		WaitingTimeout: s.cfg.Session.WaitingTimeout,
		MessageDelay:   s.cfg.Session.MessageDelay,
		Logger:         s.logger,
	}
	if req.BotHost != "" {
		opts.BotHost = req.BotHost
	}

	sess, err := session.New(opts, s.bot, s.channels())
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	id := uuid.New().String()
	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()

	s.logger.Info("session created", "session_id", id, "user_id", sess.UserID())
	respondJSON(w, http.StatusCreated, s.sessionResponse(id, sess))
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	sess, ok := s.lookup(id)
	if !ok {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}
	respondJSON(w, http.StatusOK, s.sessionResponse(id, sess))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if !ok {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}
	if err := sess.Close(); err != nil {
		s.logger.Warn("session close failed", "session_id", id, "error", err)
	}
	s.logger.Info("session deleted", "session_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	sess, ok := s.lookup(id)
	if !ok {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Text == "" {
		respondError(w, http.StatusBadRequest, "text is required")
		return
	}

	if err := sess.Send(r.Context(), req.Text); err != nil {
		s.respondSendError(w, id, err)
		return
	}
	respondJSON(w, http.StatusOK, transcriptResponse(sess))
}

func (s *Server) handleButtonSelection(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	sess, ok := s.lookup(id)
	if !ok {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}

	var req ButtonSelectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Payload == "" {
		respondError(w, http.StatusBadRequest, "payload is required")
		return
	}

	if err := sess.HandleButtonSelection(r.Context(), req.Label, req.Payload); err != nil {
		s.respondSendError(w, id, err)
		return
	}
	respondJSON(w, http.StatusOK, transcriptResponse(sess))
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	sess, ok := s.lookup(id)
	if !ok {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}
	respondJSON(w, http.StatusOK, transcriptResponse(sess))
}

// respondSendError maps a dispatch failure to an HTTP status: a closed
// session is gone, everything else is a responder-side failure.
func (s *Server) respondSendError(w http.ResponseWriter, id string, err error) {
	s.logger.Error("send failed", "session_id", id, "error", err)
	if errors.Is(err, session.ErrSessionClosed) {
		respondError(w, http.StatusGone, "session closed")
		return
	}
	respondError(w, http.StatusBadGateway, err.Error())
}

func (s *Server) sessionResponse(id string, sess *session.Session) SessionResponse {
	return SessionResponse{
		SessionID:        id,
		UserID:           sess.UserID(),
		Mode:             sess.Mode().String(),
		Title:            sess.Title(),
		BotHost:          sess.BotHost(),
		AttendantChannel: sess.AttendantChannel(),
		AwaitingReply:    sess.AwaitingReply(),
		Pending:          sess.Pending(),
	}
}

func transcriptResponse(sess *session.Session) TranscriptResponse {
	msgs := sess.Transcript()
	if msgs == nil {
		msgs = []message.ChatMessage{}
	}
	return TranscriptResponse{
		Messages:      msgs,
		AwaitingReply: sess.AwaitingReply(),
	}
}
