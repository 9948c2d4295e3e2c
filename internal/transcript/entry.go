package transcript

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidEntry rejects an append whose text is empty.
var ErrInvalidEntry = errors.New("invalid entry: text is empty")

// Sender identifies which party wrote an entry.
type Sender string

const (
	SenderUser  Sender = "user"
	SenderAgent Sender = "agent"
)

// Lane is the visual column an entry is drawn in.
type Lane string

const (
	LaneLeft  Lane = "left"
	LaneRight Lane = "right"
)

const (
	AvatarUser  = "👤"
	AvatarAgent = "🎓"

	userLabel         = "You"
	defaultAgentLabel = "Agent"
)

// Entry is one transcript record. Entries are never edited after append.
type Entry struct {
	Sender     Sender    `json:"sender"`
	AgentLabel string    `json:"agentLabel,omitempty"`
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`

	// Route and Game are set on agent entries by external collaborators.
	Route string `json:"route,omitempty"`
	Game  string `json:"game,omitempty"`
}

// EntryRef is the zero-based position of an entry in its transcript.
type EntryRef int

// RenderLane puts user entries on the right and agent entries on the left.
// Any other sender is a programming error.
func RenderLane(e Entry) Lane {
	switch e.Sender {
	case SenderUser:
		return LaneRight
	case SenderAgent:
		return LaneLeft
	default:
		panic(fmt.Sprintf("transcript: unknown sender %q", e.Sender))
	}
}

// FormatTimestamp renders the captured wall-clock time as zero-padded HH:MM.
func FormatTimestamp(e Entry) string {
	return e.Timestamp.Format("15:04")
}

func avatarFor(s Sender) string {
	if s == SenderUser {
		return AvatarUser
	}
	return AvatarAgent
}

func labelFor(e Entry) string {
	if e.Sender == SenderUser {
		return userLabel
	}
	if e.AgentLabel == "" {
		return defaultAgentLabel
	}
	return e.AgentLabel
}
