// ABOUTME: Console client for human attendants, speaking the internal role of a session.
// ABOUTME: Usage: parley-attendant -channel agent-42 [-redis localhost:6379] [-welcome "..."]

package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/redis/go-redis/v9"

	"github.com/parley-chat/parley/internal/channel"
	"github.com/parley-chat/parley/internal/session"
)

func main() {
	channelID := flag.String("channel", "", "Attendant channel id to serve (required)")
	redisAddr := flag.String("redis", "localhost:6379", "Redis address for the attendant channel")
	redisPassword := flag.String("password", "", "Redis password")
	redisDB := flag.Int("db", 0, "Redis database")
	welcome := flag.String("welcome", "Hi, you are talking to a human now.", "Greeting sent when a user is handed off")
	verbose := flag.Bool("v", false, "Verbose logging")
	flag.Parse()

	if *channelID == "" {
		fmt.Fprintln(os.Stderr, "Usage: parley-attendant -channel <id> [-redis addr]")
		os.Exit(1)
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *channelID, *redisAddr, *redisPassword, *redisDB, *welcome, logger); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\nGoodbye!")
}

func run(ctx context.Context, channelID, redisAddr, redisPassword string, redisDB int, welcome string, logger *slog.Logger) error {
	rdb := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: redisPassword,
		DB:       redisDB,
	})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connecting to redis %s: %w", redisAddr, err)
	}

	sess, err := session.New(session.Options{
		ExternalRole:   false,
		AttendantID:    channelID,
		WelcomeMessage: welcome,
		Logger:         logger,
	}, nil, channel.NewRedis(rdb, logger))
	if err != nil {
		return fmt.Errorf("starting session: %w", err)
	}
	defer sess.Close()

	cyan := color.New(color.FgCyan)
	fmt.Printf("parley-attendant on channel ")
	cyan.Println(channelID)
	fmt.Println("Waiting for a handoff. Type a message and press Enter. Ctrl+C to quit.")
	fmt.Println()

	events, subID := sess.Subscribe()
	defer sess.Unsubscribe(subID)
	go printEvents(events, channelID)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		inputCh := make(chan string, 1)
		errCh := make(chan error, 1)

		go func() {
			if scanner.Scan() {
				inputCh <- scanner.Text()
			} else {
				if err := scanner.Err(); err != nil {
					errCh <- err
				} else {
					errCh <- io.EOF
				}
			}
		}()

		var input string
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		case input = <-inputCh:
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if input == "/quit" || input == "/exit" || input == "/q" {
			return nil
		}

		if err := sess.Send(ctx, input); err != nil {
			fmt.Printf("[error] %v\n", err)
		}
	}
}

// printEvents renders transcript growth as it happens. Only messages
// beyond the last seen count are printed, so paced delivery shows up
// line by line.
func printEvents(events <-chan session.Event, channelID string) {
	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)

	seen := 0
	for ev := range events {
		switch ev.Type {
		case session.EventTranscript:
			for ; seen < len(ev.Transcript); seen++ {
				msg := ev.Transcript[seen]
				text, ok := msg.DisplayText()
				if !ok {
					text = fmt.Sprintf("[%s]", msg.Payload.Kind)
				}
				if msg.Origin == channelID {
					cyan.Printf("%s: ", msg.Origin)
				} else {
					green.Printf("%s: ", msg.Origin)
				}
				fmt.Println(text)
			}
		case session.EventSessionError:
			gray.Printf("[error] %s\n", ev.Error)
		}
	}
}
