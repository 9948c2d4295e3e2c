package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/comigor/mentorchat/internal/render"
	"github.com/comigor/mentorchat/internal/session"
	"github.com/comigor/mentorchat/internal/transcript"
)

var (
	chatWidth     int
	chatSessionID string
)

// chatCmd runs an interactive session in the terminal
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the mentor in the terminal",
	Long: `Start an interactive two-lane chat.

Type a message and press enter. Commands:
  /reset  clear the transcript
  /quit   leave the chat`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().IntVarP(&chatWidth, "width", "W", 80, "Terminal width used for the lanes")
	chatCmd.Flags().StringVarP(&chatSessionID, "session", "s", "", "Resume a stored session by id")
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	var s *session.Session
	if chatSessionID != "" {
		if s, err = a.sessions.Get(ctx, chatSessionID); err != nil {
			return err
		}
	} else {
		s = a.sessions.Create("")
	}

	out := &lockedWriter{w: cmd.OutOrStdout()}
	term := render.NewTerminal(chatWidth)
	fmt.Fprintf(out, "session %s\n\n", s.ID())
	if v := s.View(); len(v.Rows) > 0 {
		fmt.Fprintln(out, term.Render(v))
	}

	signals, unsubscribe := s.Subscribe(32)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for sig := range signals {
			printSignal(out, term, s, sig)
		}
	}()
	defer func() {
		unsubscribe()
		<-done
	}()

	scanner := bufio.NewScanner(cmd.InOrStdin())
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit":
			return nil
		case "/reset":
			if err := s.Reset(ctx); err != nil {
				fmt.Fprintf(out, "reset failed: %v\n", err)
			}
			continue
		}

		if _, err := s.Submit(ctx, line); err != nil {
			switch {
			case errors.Is(err, session.ErrResponseGeneration):
				fmt.Fprintf(out, "\n(no reply: %v)\n", err)
			case ctx.Err() != nil:
				return nil
			default:
				fmt.Fprintf(out, "error: %v\n", err)
			}
		}
	}
	return scanner.Err()
}

// printSignal draws the entry or indicator a signal refers to.
func printSignal(w io.Writer, term *render.Terminal, s *session.Session, sig transcript.Signal) {
	switch sig.Kind {
	case transcript.SignalScroll:
		v := s.View()
		if int(sig.Ref) < 0 || int(sig.Ref) >= len(v.Rows) {
			return
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, strings.Join(term.RenderRow(v.Rows[sig.Ref]), "\n"))
	case transcript.SignalComposing:
		if sig.Composing {
			fmt.Fprintln(w)
			fmt.Fprintln(w, term.Render(transcript.View{Composing: true, ComposingLabel: sig.Label}))
		}
	case transcript.SignalReset:
		fmt.Fprintln(w, "\n-- transcript cleared --")
	}
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
