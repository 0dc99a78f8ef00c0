// ABOUTME: Minimal fake bot webhook for E2E testing — echoes messages over the rest channel.
// ABOUTME: Usage: fake-bot [-addr :5005] [-attendant agent-42] [-redirect http://other:5005]

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/parley-chat/parley/internal/bot"
	"github.com/parley-chat/parley/internal/message"
)

func main() {
	addr := flag.String("addr", ":5005", "Listen address")
	attendant := flag.String("attendant", "agent-42", "Channel id offered on the 'human' trigger")
	redirect := flag.String("redirect", "", "Host offered on the 'redirect' trigger")
	flag.Parse()

	http.HandleFunc(bot.WebhookPath, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req struct {
			Message string `json:"message"`
			Sender  string `json:"sender"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		log.Printf("message from %s: %q", req.Sender, req.Message)
		replies := repliesFor(req.Message, req.Sender, *attendant, *redirect)

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(replies); err != nil {
			log.Printf("encoding reply: %v", err)
		}
	})

	log.Printf("fake-bot listening on %s%s", *addr, bot.WebhookPath)
	log.Fatal(http.ListenAndServe(*addr, nil))
}

// repliesFor picks a canned reply shape based on trigger words, falling
// back to a plain echo.
func repliesFor(text, sender, attendant, redirect string) []message.RawReply {
	lower := strings.ToLower(text)

	switch {
	case strings.HasPrefix(text, "/handoff"):
		return []message.RawReply{{Text: "welcome back, you are talking to the bot again"}}

	case strings.Contains(lower, "human") || strings.Contains(lower, "attendant"):
		return []message.RawReply{{
			Text:   "connecting you to a human",
			Custom: &message.Custom{HandoffHost: attendant, Title: "Human Attendant"},
		}}

	case strings.Contains(lower, "redirect") && redirect != "":
		return []message.RawReply{{
			Custom: &message.Custom{HandoffHost: redirect, Title: "Other Bot"},
		}}

	case strings.Contains(lower, "buttons"):
		return []message.RawReply{{
			Text: "pick one",
			Buttons: []message.Button{
				{Label: "Yes", Payload: "/affirm"},
				{Label: "No", Payload: "/deny"},
			},
		}}

	case strings.Contains(lower, "image"):
		return []message.RawReply{{
			Text:  "here you go",
			Image: "https://example.com/cat.png",
		}}

	case strings.Contains(lower, "multi"):
		return []message.RawReply{
			{Text: "first"},
			{Text: "second"},
			{Text: "third"},
		}

	default:
		return []message.RawReply{{Text: fmt.Sprintf("echo %s: %s", sender, text)}}
	}
}
