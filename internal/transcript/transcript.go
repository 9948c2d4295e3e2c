// Package transcript keeps the ordered chat log of one conversation together with
// the agent composing flag, and maps that state to a two-lane render output.
//
// A Transcript is owned by a single session and is not safe for concurrent use.
package transcript

import (
	"strings"
	"time"
)

// SignalKind names what changed in a transcript.
type SignalKind string

const (
	// SignalScroll asks the presentation layer to scroll to the newest entry.
	SignalScroll    SignalKind = "scroll"
	SignalComposing SignalKind = "composing"
	SignalReset     SignalKind = "reset"
)

// Signal is delivered to listeners after a mutation.
type Signal struct {
	Kind      SignalKind `json:"kind"`
	Ref       EntryRef   `json:"ref"`
	Composing bool       `json:"composing"`
	Label     string     `json:"label,omitempty"`
}

// Listener receives signals synchronously, in mutation order.
type Listener func(Signal)

// Option configures a Transcript.
type Option func(*Transcript)

// WithClock overrides the time source used to stamp entries.
func WithClock(clock func() time.Time) Option {
	return func(t *Transcript) { t.clock = clock }
}

// WithListener registers a listener at construction time.
func WithListener(l Listener) Option {
	return func(t *Transcript) { t.listeners = append(t.listeners, l) }
}

// Transcript is an append-only sequence of entries plus the composing state.
type Transcript struct {
	entries   []Entry
	composing *Composing
	clock     func() time.Time
	listeners []Listener
}

// New creates an empty transcript in the idle state.
func New(opts ...Option) *Transcript {
	t := &Transcript{
		composing: newComposing(),
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// AppendEntry stamps a new entry with the current time and appends it.
// agentLabel is dropped for user entries.
func (t *Transcript) AppendEntry(sender Sender, text, agentLabel string) (EntryRef, error) {
	return t.Append(Entry{Sender: sender, Text: text, AgentLabel: agentLabel})
}

// Append is AppendEntry for a prepared entry carrying route or game metadata.
// The timestamp is always replaced by the append time.
func (t *Transcript) Append(e Entry) (EntryRef, error) {
	if strings.TrimSpace(e.Text) == "" {
		return -1, ErrInvalidEntry
	}
	if e.Sender == SenderUser {
		e.AgentLabel = ""
		e.Route = ""
		e.Game = ""
	}
	e.Timestamp = t.clock()

	t.entries = append(t.entries, e)
	ref := EntryRef(len(t.entries) - 1)
	t.emit(Signal{Kind: SignalScroll, Ref: ref, Composing: t.composing.Active(), Label: t.composing.Label()})
	return ref, nil
}

// SetComposing moves the composing flag. Setting the current value again is a no-op,
// including the label of an already active phase.
func (t *Transcript) SetComposing(active bool, agentLabel string) {
	if !t.composing.set(active, agentLabel) {
		return
	}
	t.emit(Signal{Kind: SignalComposing, Ref: t.lastRef(), Composing: active, Label: t.composing.Label()})
}

// Composing reports the composing flag and its label.
func (t *Transcript) Composing() (bool, string) {
	return t.composing.Active(), t.composing.Label()
}

// Len returns the number of entries.
func (t *Transcript) Len() int {
	return len(t.entries)
}

// Entry returns the entry at ref.
func (t *Transcript) Entry(ref EntryRef) (Entry, bool) {
	if ref < 0 || int(ref) >= len(t.entries) {
		return Entry{}, false
	}
	return t.entries[ref], true
}

// Entries returns a copy of all entries in insertion order.
func (t *Transcript) Entries() []Entry {
	return append([]Entry(nil), t.entries...)
}

// Tail returns a copy of the last n entries.
func (t *Transcript) Tail(n int) []Entry {
	if n <= 0 || n >= len(t.entries) {
		return t.Entries()
	}
	return append([]Entry(nil), t.entries[len(t.entries)-n:]...)
}

// Load replaces the entries with persisted ones, keeping their timestamps.
// Used to hydrate a session; it does not emit signals.
func (t *Transcript) Load(entries []Entry) {
	t.entries = append([]Entry(nil), entries...)
}

// Reset clears every entry and returns the composing flag to idle.
func (t *Transcript) Reset() {
	t.entries = nil
	t.composing.set(false, "")
	t.emit(Signal{Kind: SignalReset, Ref: -1})
}

func (t *Transcript) lastRef() EntryRef {
	return EntryRef(len(t.entries) - 1)
}

func (t *Transcript) emit(s Signal) {
	for _, l := range t.listeners {
		l(s)
	}
}
