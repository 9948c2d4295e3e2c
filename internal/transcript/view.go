package transcript

// Row is one rendered entry.
type Row struct {
	Lane   Lane   `json:"lane"`
	Avatar string `json:"avatar"`
	Label  string `json:"label"`
	Text   string `json:"text"`
	Time   string `json:"time"`
	Route  string `json:"route,omitempty"`
	Game   string `json:"game,omitempty"`
}

// View is the structured render output handed to presentation adapters.
// When Composing is set the indicator belongs in the left lane.
type View struct {
	Rows           []Row  `json:"rows"`
	Composing      bool   `json:"composing"`
	ComposingLabel string `json:"composingLabel,omitempty"`
}

// RenderRow maps a single entry.
func RenderRow(e Entry) Row {
	return Row{
		Lane:   RenderLane(e),
		Avatar: avatarFor(e.Sender),
		Label:  labelFor(e),
		Text:   e.Text,
		Time:   FormatTimestamp(e),
		Route:  e.Route,
		Game:   e.Game,
	}
}

// Render maps the current state to a View.
func (t *Transcript) Render() View {
	rows := make([]Row, 0, len(t.entries))
	for _, e := range t.entries {
		rows = append(rows, RenderRow(e))
	}
	active, label := t.Composing()
	if active && label == "" {
		label = defaultAgentLabel
	}
	return View{Rows: rows, Composing: active, ComposingLabel: label}
}
