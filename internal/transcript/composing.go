package transcript

import (
	"github.com/qmuntal/stateless"
)

type ComposingState string

const (
	StateIdle      ComposingState = "Idle"
	StateComposing ComposingState = "Composing"
)

type composingTrigger string

const (
	triggerBegin composingTrigger = "Begin"
	triggerEnd   composingTrigger = "End"
)

// Composing tracks whether the agent lane shows a composing placeholder.
// Idle is both the initial and the terminal state of every agent turn;
// re-firing the trigger of the current state is ignored.
type Composing struct {
	fsm   *stateless.StateMachine
	label string
}

func newComposing() *Composing {
	fsm := stateless.NewStateMachine(StateIdle)

	fsm.Configure(StateIdle).
		Permit(triggerBegin, StateComposing).
		Ignore(triggerEnd)

	fsm.Configure(StateComposing).
		Permit(triggerEnd, StateIdle).
		Ignore(triggerBegin)

	return &Composing{fsm: fsm}
}

// Active reports whether a composing phase is in progress.
func (c *Composing) Active() bool {
	return c.fsm.MustState() == StateComposing
}

// Label is the agent label of the active phase, empty when idle.
func (c *Composing) Label() string {
	return c.label
}

// set fires the matching trigger and reports whether the state changed.
func (c *Composing) set(active bool, label string) bool {
	was := c.Active()

	trigger := triggerEnd
	if active {
		trigger = triggerBegin
	}
	if err := c.fsm.Fire(trigger); err != nil {
		// Both triggers are permitted or ignored in both states.
		panic("transcript: composing fsm: " + err.Error())
	}

	if was == c.Active() {
		return false
	}
	if active {
		c.label = label
	} else {
		c.label = ""
	}
	return true
}
