// Package mentor declares the contracts of the collaborators that decide how an agent
// turn is answered: a classifier picking the conversation route for a user message and
// a gamifier optionally wrapping the reply in an interactive game.
package mentor

import (
	"context"
	"fmt"

	"github.com/comigor/mentorchat/internal/transcript"
)

// Route is the response strategy assigned to a user message.
type Route string

const (
	RouteProgressiveOpening    Route = "progressive_opening"
	RouteSocraticExploration   Route = "socratic_exploration"
	RouteCognitiveIntervention Route = "cognitive_intervention"
	RouteFallback              Route = "fallback"
)

// Routes lists every known route.
var Routes = []Route{
	RouteProgressiveOpening,
	RouteSocraticExploration,
	RouteCognitiveIntervention,
	RouteFallback,
}

// Game is an interactive presentation wrapping an agent reply.
type Game string

const (
	GameNone             Game = ""
	GameDetective        Game = "detective"
	GameTimeTravel       Game = "time_travel"
	GamePerspectiveShift Game = "perspective_shift"
	GameRolePlay         Game = "role_play"
	GameConstraint       Game = "constraint"
	GameStorytelling     Game = "storytelling"
	GameTransformation   Game = "transformation"
)

// Games lists every known game.
var Games = []Game{
	GameDetective,
	GameTimeTravel,
	GamePerspectiveShift,
	GameRolePlay,
	GameConstraint,
	GameStorytelling,
	GameTransformation,
}

// ParseRoute validates a route name. "error" is accepted as an alias of fallback.
func ParseRoute(s string) (Route, error) {
	if s == "error" {
		return RouteFallback, nil
	}
	for _, r := range Routes {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown route %q", s)
}

// ParseGame validates a game name; the empty string means no game.
func ParseGame(s string) (Game, error) {
	if s == "" {
		return GameNone, nil
	}
	for _, g := range Games {
		if string(g) == s {
			return g, nil
		}
	}
	return "", fmt.Errorf("unknown game %q", s)
}

// Hint is a one-line description of the route used when prompting a model.
func (r Route) Hint() string {
	switch r {
	case RouteProgressiveOpening:
		return "Open the topic gradually: acknowledge the idea and ask one broad question."
	case RouteSocraticExploration:
		return "Explore with probing questions; do not hand over answers."
	case RouteCognitiveIntervention:
		return "Gently challenge an assumption or bias in the user's reasoning."
	case RouteFallback:
		return "Answer briefly and ask the user to clarify what they need."
	default:
		return ""
	}
}

// Classifier assigns a route to the latest user entry.
type Classifier interface {
	Classify(ctx context.Context, history []transcript.Entry, latest transcript.Entry) (Route, error)
}

// Gamifier may wrap a reply in a game presentation. Returning GameNone keeps the reply as is.
type Gamifier interface {
	Present(ctx context.Context, route Route, reply string) (string, Game, error)
}
