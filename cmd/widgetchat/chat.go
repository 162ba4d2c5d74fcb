package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ashureev/roofchat/internal/chatapi"
	"github.com/ashureev/roofchat/internal/clock"
	"github.com/ashureev/roofchat/internal/conversation"
	"github.com/ashureev/roofchat/internal/domain"
	"github.com/ashureev/roofchat/internal/linkify"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive conversation",
	RunE:  runChat,
}

var (
	boldGreen = color.New(color.FgGreen, color.Bold).SprintFunc()
	boldCyan  = color.New(color.FgCyan, color.Bold).SprintFunc()
	faint     = color.New(color.Faint).SprintFunc()
	linkColor = color.New(color.FgBlue, color.Underline).SprintFunc()
)

func newClient() (*chatapi.Client, error) {
	timeout, err := time.ParseDuration(apiTimeout)
	if err != nil {
		return nil, fmt.Errorf("parse --timeout: %w", err)
	}
	return chatapi.New(apiURL, chatapi.WithChatPath(chatPath), chatapi.WithTimeout(timeout)), nil
}

// render colours links so they stand out in a terminal.
func render(text string) string {
	var b strings.Builder
	for _, s := range linkify.Split(text) {
		if s.IsLink() {
			b.WriteString(linkColor(s.Text))
			if s.Kind == linkify.KindURL && s.Href != s.Text {
				b.WriteString(faint(" <" + s.Href + ">"))
			}
			continue
		}
		b.WriteString(s.Text)
	}
	return b.String()
}

func runChat(cmd *cobra.Command, _ []string) error {
	typing, err := time.ParseDuration(typingDelay)
	if err != nil {
		return fmt.Errorf("parse --typing-delay: %w", err)
	}
	reply, err := time.ParseDuration(replyDelay)
	if err != nil {
		return fmt.Errorf("parse --reply-delay: %w", err)
	}
	client, err := newClient()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched := clock.NewReal()
	defer sched.Stop()

	out := cmd.OutOrStdout()
	botReplies := make(chan struct{}, 1)
	mgr := conversation.New(sched, client, conversation.Config{
		TypingDelay: typing,
		ReplyDelay:  reply,
		OnMessage: func(m domain.ChatMessage) {
			if m.IsUser() {
				return
			}
			fmt.Fprintf(out, "\r%s %s\n\n", boldCyan("Esther:"), render(m.Text))
			select {
			case botReplies <- struct{}{}:
			default:
			}
		},
		OnTyping: func(on bool) {
			if on {
				fmt.Fprint(out, faint("Esther is typing..."))
			}
		},
		Logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})),
	})
	defer mgr.Close()

	fmt.Fprintln(out, boldGreen("Roofing chat"), faint("("+apiURL+")"))
	fmt.Fprintln(out, "Type your message and press Enter. Type 'exit' or press Ctrl+C to quit.")
	fmt.Fprintln(out)
	for _, m := range mgr.Messages() {
		fmt.Fprintf(out, "%s %s\n\n", boldCyan("Esther:"), render(m.Text))
	}

	lines := readLines(ctx, cmd.InOrStdin())

	for {
		fmt.Fprint(out, boldGreen("You: "))
		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			line = l
		}

		if strings.EqualFold(strings.TrimSpace(line), "exit") {
			return nil
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		if err := mgr.Send(ctx, line); err != nil {
			return err
		}

		select {
		case <-botReplies:
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		}
	}
}

// readLines streams lines from r until EOF or until ctx is done.
func readLines(ctx context.Context, r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}
