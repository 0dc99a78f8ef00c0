// ABOUTME: HTTP client for the bot's request/response webhook.
// ABOUTME: One outstanding call per user message; failures surface to the session, no retry.

package bot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/parley-chat/parley/internal/message"
)

// WebhookPath is appended to the current bot host for every request.
const WebhookPath = "/webhooks/rest/webhook"

// defaultTimeout bounds a single webhook round-trip.
const defaultTimeout = 60 * time.Second

// ErrBadResponse indicates the webhook answered with a non-success status.
var ErrBadResponse = errors.New("bot webhook returned non-success status")

// request is the JSON body posted to the webhook.
type request struct {
	Message string `json:"message"`
	Sender  string `json:"sender"`
}

// Client posts user messages to a bot webhook and parses the reply list.
// The target host is passed per call because handoffs can retarget it
// mid-session.
type Client struct {
	http    *http.Client
	headers map[string]string
	logger  *slog.Logger
}

// New creates a webhook client. Extra headers are sent verbatim on every
// request. Pass nil logger for default.
func New(headers map[string]string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		http:    &http.Client{Timeout: defaultTimeout},
		headers: headers,
		logger:  logger.With("component", "bot-client"),
	}
}

// Post sends text to {host}/webhooks/rest/webhook and returns the parsed
// raw replies. A transport failure or non-2xx status is returned as an
// error; the caller decides how to surface it.
func (c *Client) Post(ctx context.Context, host, text, sender string) ([]message.RawReply, error) {
	body, err := json.Marshal(request{Message: text, Sender: sender})
	if err != nil {
		return nil, fmt.Errorf("marshaling webhook request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, host+WebhookPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webhook request to %s: %w", host, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading webhook response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %d from %s", ErrBadResponse, resp.StatusCode, host)
	}

	var replies []message.RawReply
	if err := json.Unmarshal(respBody, &replies); err != nil {
		return nil, fmt.Errorf("%w: undecodable body from %s: %v", ErrBadResponse, host, err)
	}

	c.logger.Debug("webhook reply received",
		"host", host,
		"sender", sender,
		"replies", len(replies))
	return replies, nil
}
