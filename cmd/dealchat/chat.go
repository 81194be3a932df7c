package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"medius/internal/bus"
	"medius/internal/chat"
	"medius/internal/domain"
)

const helpText = `lines are sent as messages
  /upload <path>   attach a file
  /open <key>      open an attachment
  /release         release the escrowed funds
  /cancel          request (or confirm) cancellation
  /dismiss         hide the connection banner
  /refresh         reconnect after the chat gave up
  /quit            leave
`

func newChatCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "chat <deal-id>",
		Short: "Open the chat of a deal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.build()
			if err != nil {
				return err
			}
			defer closeApp(a)

			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			dealID := args[0]

			user, err := a.Identity.CurrentUser(ctx)
			if err != nil {
				return fmt.Errorf("current user: %w", err)
			}
			s, err := a.SessionFactory(browserOpener{out: out})(dealID)
			if err != nil {
				return err
			}

			r := newRenderer(out, user.ID)
			lines := readLines(cmd.InOrStdin())

			sub := a.Bus.Subscribe(bus.DealTopic(dealID))
			defer a.Bus.Unsubscribe(sub)
			go r.consume(sub)

			if err := load(ctx, s, r, lines); err != nil {
				return err
			}
			r.snapshot(s.Snapshot())

			s.Start(ctx)
			defer s.Close()

			fmt.Fprint(out, "type /help for commands\n")
			return repl(ctx, s, lines, out)
		},
	}
}

// load retries the initial load for as long as the user asks to.
func load(ctx context.Context, s *chat.Session, r *renderer, lines <-chan string) error {
	for {
		err := s.Load(ctx)
		if err == nil {
			return nil
		}
		var loadErr *chat.LoadError
		if !errors.As(err, &loadErr) {
			return err
		}
		if loadErr.Cached != nil {
			r.snapshot(*loadErr.Cached)
		}
		r.printf("x %s\nretry? [y/N] ", loadErr.Message())

		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok || !strings.EqualFold(strings.TrimSpace(line), "y") {
				return err
			}
		}
	}
}

func repl(ctx context.Context, s *chat.Session, lines <-chan string, out io.Writer) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := handleLine(ctx, s, strings.TrimRight(line, "\r\n"), out)
			if err != nil {
				reportErr(out, err)
			}
			if quit {
				return nil
			}
		}
	}
}

func handleLine(ctx context.Context, s *chat.Session, line string, out io.Writer) (quit bool, err error) {
	if !strings.HasPrefix(line, "/") {
		return false, s.SendText(ctx, line)
	}
	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/quit", "/exit":
		return true, nil
	case "/help":
		fmt.Fprint(out, helpText)
	case "/upload":
		if arg == "" {
			return false, fmt.Errorf("usage: /upload <path>: %w", domain.ErrInvalidInput)
		}
		f, err := os.Open(arg)
		if err != nil {
			return false, err
		}
		defer f.Close()
		return false, s.Upload(ctx, filepath.Base(arg), f)
	case "/open":
		_, err := s.OpenAttachment(ctx, arg)
		return false, err
	case "/release":
		return false, s.ReleaseFunds(ctx)
	case "/cancel":
		return false, s.RequestCancel(ctx)
	case "/dismiss":
		s.Dismiss()
	case "/refresh":
		s.Reconnect(ctx)
	default:
		fmt.Fprintf(out, "unknown command %s, see /help\n", cmd)
	}
	return false, nil
}

// reportErr prints errors the session did not already surface as a notice.
func reportErr(out io.Writer, err error) {
	switch {
	case errors.Is(err, domain.ErrEmptyMessage),
		errors.Is(err, domain.ErrSendInProgress),
		errors.Is(err, domain.ErrActionInProgress),
		errors.Is(err, domain.ErrActionNotAllowed),
		errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, os.ErrNotExist):
		fmt.Fprintf(out, "x %v\n", err)
	}
}

// readLines feeds stdin into a channel so reads can be abandoned on
// shutdown.
func readLines(in io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			ch <- sc.Text()
		}
	}()
	return ch
}
