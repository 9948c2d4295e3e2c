package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/comigor/mentorchat/internal/render"
	"github.com/comigor/mentorchat/internal/responder"
	"github.com/comigor/mentorchat/internal/session"
	"github.com/comigor/mentorchat/internal/transcript"
)

type echoGen struct{}

func (echoGen) Generate(_ context.Context, req responder.Request) (string, error) {
	return "You said: " + req.Latest.Text, nil
}

func TestPrintSignal(t *testing.T) {
	mgr := session.NewManager(echoGen{}, nil, session.Options{Label: "Design Mentor"})
	s := mgr.Create("")
	_, err := s.Submit(context.Background(), "hello")
	require.NoError(t, err)

	term := render.NewTerminal(60)
	var buf bytes.Buffer

	printSignal(&buf, term, s, transcript.Signal{Kind: transcript.SignalScroll, Ref: 1})
	require.Contains(t, buf.String(), "You said: hello")
	require.Contains(t, buf.String(), "Design Mentor")

	buf.Reset()
	printSignal(&buf, term, s, transcript.Signal{Kind: transcript.SignalComposing, Composing: true, Label: "Design Mentor"})
	require.Contains(t, buf.String(), "Design Mentor is composing…")

	buf.Reset()
	printSignal(&buf, term, s, transcript.Signal{Kind: transcript.SignalComposing})
	require.Empty(t, buf.String())

	buf.Reset()
	printSignal(&buf, term, s, transcript.Signal{Kind: transcript.SignalScroll, Ref: 7})
	require.Empty(t, buf.String())
}
