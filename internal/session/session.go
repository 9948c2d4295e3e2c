// Package session hosts one transcript per conversation and runs agent turns
// against the response generator, keeping the composing flag honest on every path.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/comigor/mentorchat/internal/logger"
	"github.com/comigor/mentorchat/internal/responder"
	"github.com/comigor/mentorchat/internal/transcript"
	"github.com/comigor/mentorchat/internal/mentor"
)

var (
	ErrTurnInFlight       = errors.New("an agent turn is already in progress")
	ErrResponseGeneration = errors.New("response generation failed")
	ErrSessionNotFound    = errors.New("session not found")
)

// Generator produces the agent reply for a turn.
type Generator interface {
	Generate(ctx context.Context, req responder.Request) (string, error)
}

// Store persists transcript entries.
type Store interface {
	Save(ctx context.Context, sessionID string, e transcript.Entry) error
	List(ctx context.Context, sessionID string) ([]transcript.Entry, error)
	Delete(ctx context.Context, sessionID string) error
	Sessions(ctx context.Context) ([]string, error)
}

// Options are shared by every session of a Manager.
type Options struct {
	Label        string
	Timeout      time.Duration // bound on one whole turn; zero means no bound
	FallbackText string        // appended as an agent entry when generation fails, if set
	Window       int           // prior entries sent to the generator
	Classifier   mentor.Classifier
	Gamifier     mentor.Gamifier
	Clock        func() time.Time
}

// TurnResult describes a completed Submit.
type TurnResult struct {
	User  transcript.EntryRef `json:"user"`
	Agent transcript.EntryRef `json:"agent"` // -1 when no agent entry was appended
	Route mentor.Route        `json:"route,omitempty"`
	Game  mentor.Game         `json:"game,omitempty"`
	View  transcript.View     `json:"view"`
}

// Session owns one transcript. Methods are safe for concurrent use; at most one
// agent turn runs at a time.
type Session struct {
	id        string
	label     string
	createdAt time.Time
	opts      Options
	gen       Generator
	store     Store

	mu         sync.Mutex
	tr         *transcript.Transcript
	epoch      int  // bumped by Reset so late replies are discarded
	turnActive bool // a Submit owns the composing flag

	subMu   sync.Mutex
	subs    map[int]chan transcript.Signal
	nextSub int
}

func newSession(id, label string, gen Generator, store Store, opts Options) *Session {
	if label == "" {
		label = opts.Label
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	s := &Session{
		id:        id,
		label:     label,
		createdAt: clock(),
		opts:      opts,
		gen:       gen,
		store:     store,
		subs:      make(map[int]chan transcript.Signal),
	}
	s.tr = transcript.New(transcript.WithClock(clock), transcript.WithListener(s.broadcast))
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Label returns the agent label used for this session's turns.
func (s *Session) Label() string { return s.label }

// CreatedAt returns when the session object was created.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// View renders the current transcript.
func (s *Session) View() transcript.View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tr.Render()
}

// Entries returns a copy of the transcript.
func (s *Session) Entries() []transcript.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tr.Entries()
}

// AppendEntry appends and persists an entry outside of a managed turn.
func (s *Session) AppendEntry(ctx context.Context, sender transcript.Sender, text, agentLabel string) (transcript.EntryRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(ctx, transcript.Entry{Sender: sender, Text: text, AgentLabel: agentLabel})
}

// SetComposing toggles the composing flag outside of a managed turn. While a
// Submit owns the flag it returns ErrTurnInFlight and leaves the flag alone.
func (s *Session) SetComposing(active bool, agentLabel string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.turnActive {
		return ErrTurnInFlight
	}
	s.tr.SetComposing(active, agentLabel)
	return nil
}

func (s *Session) appendLocked(ctx context.Context, e transcript.Entry) (transcript.EntryRef, error) {
	ref, err := s.tr.Append(e)
	if err != nil {
		return ref, err
	}
	stored, _ := s.tr.Entry(ref)
	if s.store != nil {
		// The entry is already live; a caller going away must not drop it from the store.
		if err := s.store.Save(context.WithoutCancel(ctx), s.id, stored); err != nil {
			logger.Session(s.id).Warn("failed to persist entry", "ref", ref, "error", err)
		}
	}
	return ref, nil
}

// Submit runs one full agent turn for the user's text. The composing flag is set
// while the collaborators are awaited and cleared on success, failure and timeout
// alike. The configured timeout bounds classification, generation and presentation
// together.
func (s *Session) Submit(ctx context.Context, text string) (TurnResult, error) {
	log := logger.Session(s.id)
	res := TurnResult{User: -1, Agent: -1}

	s.mu.Lock()
	if active, _ := s.tr.Composing(); active || s.turnActive {
		s.mu.Unlock()
		return res, ErrTurnInFlight
	}
	userRef, err := s.appendLocked(ctx, transcript.Entry{Sender: transcript.SenderUser, Text: text})
	if err != nil {
		s.mu.Unlock()
		return res, err
	}
	res.User = userRef
	latest, _ := s.tr.Entry(userRef)
	history := s.tr.Tail(s.opts.Window + 1)
	history = history[:len(history)-1]
	epoch := s.epoch
	s.turnActive = true
	s.tr.SetComposing(true, s.label)
	s.mu.Unlock()

	started := time.Now()
	turnCtx, cancel := s.turnContext(ctx)
	defer cancel()

	res.Route = s.classify(turnCtx, history, latest)

	req := responder.Request{
		History: history,
		Latest:  latest,
		Route:   res.Route,
		Label:   s.label,
	}
	reply, genErr := await(turnCtx, func(ctx context.Context) (string, error) {
		return s.gen.Generate(ctx, req)
	})
	if genErr == nil {
		reply, res.Game = s.present(turnCtx, res.Route, reply)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.epoch != epoch {
		log.Info("session reset during turn; discarding reply")
		res.View = s.tr.Render()
		return res, nil
	}
	s.turnActive = false
	s.tr.SetComposing(false, "")

	if genErr != nil {
		log.Error("response generation failed", "error", genErr, "duration", time.Since(started))
		if s.opts.FallbackText != "" {
			ref, err := s.appendLocked(ctx, transcript.Entry{
				Sender:     transcript.SenderAgent,
				AgentLabel: s.label,
				Text:       s.opts.FallbackText,
				Route:      string(mentor.RouteFallback),
			})
			if err == nil {
				res.Agent = ref
			}
		}
		res.View = s.tr.Render()
		return res, fmt.Errorf("%w: %w", ErrResponseGeneration, genErr)
	}

	agentRef, err := s.appendLocked(ctx, transcript.Entry{
		Sender:     transcript.SenderAgent,
		AgentLabel: s.label,
		Text:       reply,
		Route:      string(res.Route),
		Game:       string(res.Game),
	})
	if err != nil {
		res.View = s.tr.Render()
		return res, fmt.Errorf("%w: %w", ErrResponseGeneration, err)
	}
	res.Agent = agentRef
	res.View = s.tr.Render()
	log.Info("turn completed", "route", res.Route, "game", res.Game, "duration", time.Since(started))
	return res, nil
}

func (s *Session) turnContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.Timeout > 0 {
		return context.WithTimeout(ctx, s.opts.Timeout)
	}
	return context.WithCancel(ctx)
}

// await runs fn in its own goroutine so a collaborator that ignores ctx cannot
// hold the turn past its deadline.
func await[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		done <- result{v: v, err: err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (s *Session) classify(ctx context.Context, history []transcript.Entry, latest transcript.Entry) mentor.Route {
	if s.opts.Classifier == nil {
		return ""
	}
	route, err := await(ctx, func(ctx context.Context) (mentor.Route, error) {
		return s.opts.Classifier.Classify(ctx, history, latest)
	})
	if err != nil {
		logger.Session(s.id).Warn("classification failed; using fallback route", "error", err)
		return mentor.RouteFallback
	}
	return route
}

type presentation struct {
	text string
	game mentor.Game
}

func (s *Session) present(ctx context.Context, route mentor.Route, reply string) (string, mentor.Game) {
	if s.opts.Gamifier == nil {
		return reply, mentor.GameNone
	}
	p, err := await(ctx, func(ctx context.Context) (presentation, error) {
		text, game, err := s.opts.Gamifier.Present(ctx, route, reply)
		return presentation{text: text, game: game}, err
	})
	if err != nil || p.text == "" {
		if err != nil {
			logger.Session(s.id).Warn("gamification failed; keeping plain reply", "error", err)
		}
		return reply, mentor.GameNone
	}
	return p.text, p.game
}

// Reset clears the transcript and its persisted history. A turn in flight keeps
// running but its reply is dropped.
func (s *Session) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	s.turnActive = false
	s.tr.Reset()
	if s.store != nil {
		if err := s.store.Delete(ctx, s.id); err != nil {
			return fmt.Errorf("reset session %s: %w", s.id, err)
		}
	}
	return nil
}

func (s *Session) load(entries []transcript.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tr.Load(entries)
}

// Subscribe returns a channel of transcript signals. Slow subscribers miss signals
// rather than block the session. The returned func unsubscribes and closes the channel.
func (s *Session) Subscribe(buffer int) (<-chan transcript.Signal, func()) {
	if buffer < 1 {
		buffer = 16
	}
	ch := make(chan transcript.Signal, buffer)

	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
			close(ch)
		})
	}
}

func (s *Session) broadcast(sig transcript.Signal) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- sig:
		default:
		}
	}
}
