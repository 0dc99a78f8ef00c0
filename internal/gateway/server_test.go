// ABOUTME: Tests for the gateway HTTP API and the WebSocket event stream.
// ABOUTME: Runs against httptest servers with a stub bot and the in-memory broker.

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parley-chat/parley/internal/channel"
	"github.com/parley-chat/parley/internal/config"
	"github.com/parley-chat/parley/internal/message"
)

type stubBot struct {
	mu      sync.Mutex
	replies map[string][]message.RawReply
	err     error
}

func (b *stubBot) Post(_ context.Context, _, text, _ string) ([]message.RawReply, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return nil, b.err
	}
	return b.replies[text], nil
}

func newTestServer(t *testing.T) (*Server, *stubBot, *httptest.Server) {
	t.Helper()

	cfg := config.Default()
	cfg.Bot.Host = "http://bot:5005"
	cfg.Session.WelcomeMessage = "Hello!"
	cfg.Session.MessageDelay = 20 * time.Millisecond

	bot := &stubBot{replies: make(map[string][]message.RawReply)}
	broker := channel.NewBroker(nil)

	srv := NewServer(cfg, bot, func() channel.Channel { return broker.Client() }, nil)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})
	return srv, bot, ts
}

func createSession(t *testing.T, ts *httptest.Server, body string) SessionResponse {
	t.Helper()

	var rd *bytes.Buffer
	if body == "" {
		rd = bytes.NewBuffer(nil)
	} else {
		rd = bytes.NewBufferString(body)
	}
	resp, err := http.Post(ts.URL+"/api/sessions", "application/json", rd)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created SessionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.NotEmpty(t, created.SessionID)
	return created
}

func postJSON(t *testing.T, url, body string) (*http.Response, func()) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	return resp, func() { resp.Body.Close() }
}

func TestGateway_Health(t *testing.T) {
	_, _, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGateway_CreateSession(t *testing.T) {
	_, _, ts := newTestServer(t)

	created := createSession(t, ts, "")
	assert.Equal(t, "bot", created.Mode)
	assert.Equal(t, "http://bot:5005", created.BotHost)
	assert.NotEmpty(t, created.UserID)
	assert.Empty(t, created.AttendantChannel)
}

func TestGateway_CreateSessionWithOverrides(t *testing.T) {
	_, _, ts := newTestServer(t)

	created := createSession(t, ts, `{"user_id":"alice","attendant_id":"agent-1"}`)
	assert.Equal(t, "alice", created.UserID)
	assert.Equal(t, "attendant", created.Mode)
	assert.Equal(t, "agent-1", created.AttendantChannel)
}

func TestGateway_GetSession(t *testing.T) {
	_, _, ts := newTestServer(t)
	created := createSession(t, ts, "")

	resp, err := http.Get(ts.URL + "/api/sessions/" + created.SessionID)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got SessionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, created.SessionID, got.SessionID)
}

func TestGateway_GetUnknownSession(t *testing.T) {
	_, _, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/sessions/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGateway_SendMessage(t *testing.T) {
	_, bot, ts := newTestServer(t)
	bot.replies["hi"] = []message.RawReply{{Text: "hello there"}}
	created := createSession(t, ts, "")

	resp, cleanup := postJSON(t, ts.URL+"/api/sessions/"+created.SessionID+"/messages", `{"text":"hi"}`)
	defer cleanup()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var tr TranscriptResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tr))

	// Welcome plus the user message are visible immediately; the reply is
	// still pacing.
	require.Len(t, tr.Messages, 2)
	assert.Equal(t, "hi", tr.Messages[1].Payload.Text)
	assert.True(t, tr.AwaitingReply)

	require.Eventually(t, func() bool {
		resp, err := http.Get(ts.URL + "/api/sessions/" + created.SessionID + "/transcript")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var tr TranscriptResponse
		if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
			return false
		}
		return len(tr.Messages) == 3 && tr.Messages[2].Payload.Text == "hello there"
	}, time.Second, 10*time.Millisecond)
}

func TestGateway_SendMessageValidation(t *testing.T) {
	_, _, ts := newTestServer(t)
	created := createSession(t, ts, "")

	resp, cleanup := postJSON(t, ts.URL+"/api/sessions/"+created.SessionID+"/messages", `{"text":""}`)
	defer cleanup()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp2, cleanup2 := postJSON(t, ts.URL+"/api/sessions/nope/messages", `{"text":"hi"}`)
	defer cleanup2()
	assert.Equal(t, http.StatusNotFound, resp2.StatusCode)
}

func TestGateway_MalformedBotReply(t *testing.T) {
	_, bot, ts := newTestServer(t)
	bot.replies["hi"] = []message.RawReply{{}}
	created := createSession(t, ts, "")

	resp, cleanup := postJSON(t, ts.URL+"/api/sessions/"+created.SessionID+"/messages", `{"text":"hi"}`)
	defer cleanup()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestGateway_ButtonSelection(t *testing.T) {
	_, bot, ts := newTestServer(t)
	bot.replies["/order"] = []message.RawReply{{Text: "on the way"}}
	created := createSession(t, ts, "")

	resp, cleanup := postJSON(t, ts.URL+"/api/sessions/"+created.SessionID+"/buttons",
		`{"label":"Order","payload":"/order"}`)
	defer cleanup()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp2, cleanup2 := postJSON(t, ts.URL+"/api/sessions/"+created.SessionID+"/buttons", `{"label":"Order"}`)
	defer cleanup2()
	assert.Equal(t, http.StatusBadRequest, resp2.StatusCode)
}

func TestGateway_DeleteSession(t *testing.T) {
	_, _, ts := newTestServer(t)
	created := createSession(t, ts, "")

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/sessions/"+created.SessionID, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	getResp, err := http.Get(ts.URL + "/api/sessions/" + created.SessionID)
	require.NoError(t, err)
	getResp.Body.Close()
	assert.Equal(t, http.StatusNotFound, getResp.StatusCode)
}

func TestGateway_EventStream(t *testing.T) {
	_, bot, ts := newTestServer(t)
	bot.replies["hi"] = []message.RawReply{{Text: "hello there"}}
	created := createSession(t, ts, "")

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/sessions/" + created.SessionID + "/events"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	defer conn.Close()

	var frame struct {
		Type          string            `json:"type"`
		Transcript    []json.RawMessage `json:"transcript"`
		AwaitingReply bool              `json:"awaiting_reply"`
	}

	// Initial snapshot carries the welcome message.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "transcript", frame.Type)
	assert.Len(t, frame.Transcript, 1)

	respSend, cleanup := postJSON(t, ts.URL+"/api/sessions/"+created.SessionID+"/messages", `{"text":"hi"}`)
	cleanup()
	require.Equal(t, http.StatusOK, respSend.StatusCode)

	// The paced reply eventually shows up as a three-entry snapshot.
	deadline := time.Now().Add(2 * time.Second)
	for {
		require.True(t, time.Now().Before(deadline), "no transcript event with the bot reply")
		conn.SetReadDeadline(deadline)
		require.NoError(t, conn.ReadJSON(&frame))
		if frame.Type == "transcript" && len(frame.Transcript) == 3 {
			break
		}
	}
}

func TestGateway_EventStreamUnknownSession(t *testing.T) {
	_, _, ts := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/sessions/nope/events"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	if conn != nil {
		conn.Close()
	}
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
