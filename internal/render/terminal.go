// Package render draws a transcript view as two terminal lanes: the agent on the
// left, the user on the right.
package render

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/comigor/mentorchat/internal/transcript"
)

const (
	defaultWidth  = 80
	maxLabelWidth = 24
	bodyIndent    = "  "
)

var (
	agentLabelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4")).Bold(true)
	agentBodyStyle  = lipgloss.NewStyle()
	userLabelStyle  = lipgloss.NewStyle().Faint(true).Bold(true)
	userBodyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#0EA5E9"))
	timeStyle       = lipgloss.NewStyle().Faint(true)
	composingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4")).Faint(true).Italic(true)
)

// Terminal renders views for a fixed-width terminal.
type Terminal struct {
	width int
}

// NewTerminal returns a renderer for the given width; non-positive widths default to 80.
func NewTerminal(width int) *Terminal {
	if width <= 0 {
		width = defaultWidth
	}
	return &Terminal{width: width}
}

// bubbleWidth is the widest a message body may get in either lane.
func (t *Terminal) bubbleWidth() int {
	w := t.width * 3 / 4
	if w < 10 {
		w = t.width
	}
	return w
}

// Render draws every row followed by the composing indicator when it is shown.
func (t *Terminal) Render(v transcript.View) string {
	var lines []string
	for i, row := range v.Rows {
		if i > 0 {
			lines = append(lines, "")
		}
		lines = append(lines, t.RenderRow(row)...)
	}
	if v.Composing {
		if len(lines) > 0 {
			lines = append(lines, "")
		}
		lines = append(lines, t.composingLine(v.ComposingLabel))
	}
	return strings.Join(lines, "\n")
}

// RenderRow draws one row as a header line and its wrapped body.
func (t *Terminal) RenderRow(row transcript.Row) []string {
	label := runewidth.Truncate(row.Label, maxLabelWidth, "…")
	body := wrapText(row.Text, t.bubbleWidth()-len(bodyIndent))

	if row.Lane == transcript.LaneRight {
		header := timeStyle.Render(row.Time) + "  " + userLabelStyle.Render(label) + " " + row.Avatar
		out := []string{t.alignRight(header)}
		for _, l := range body {
			out = append(out, t.alignRight(userBodyStyle.Render(l)+bodyIndent))
		}
		return out
	}

	header := row.Avatar + " " + agentLabelStyle.Render(label) + "  " + timeStyle.Render(row.Time)
	out := []string{header}
	for _, l := range body {
		out = append(out, bodyIndent+agentBodyStyle.Render(l))
	}
	return out
}

func (t *Terminal) composingLine(label string) string {
	if label == "" {
		label = "Agent"
	}
	label = runewidth.Truncate(label, maxLabelWidth, "…")
	return transcript.AvatarAgent + " " + composingStyle.Render(label+" is composing…")
}

func (t *Terminal) alignRight(line string) string {
	pad := t.width - lipgloss.Width(line)
	if pad <= 0 {
		return line
	}
	return strings.Repeat(" ", pad) + line
}
