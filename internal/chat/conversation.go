package chat

import (
	"strings"

	"github.com/google/uuid"
)

// State is the conversation gate.
type State string

const (
	StateAwaitingLocation State = "AWAITING_LOCATION"
	StateReady            State = "READY"
)

// RouteKind says where an accepted input goes.
type RouteKind int

const (
	RouteLocation RouteKind = iota // consumed locally as the grower's location
	RouteRemote                    // forwarded to the backend as a query
)

// Route is the decision for one input. Text is the trimmed input.
type Route struct {
	Kind RouteKind
	Text string
}

// Conversation holds the per-transcript session id and the captured location.
// The first non-blank input is the location; everything after goes to the backend.
// Not safe for concurrent use; the Controller serializes access.
type Conversation struct {
	sessionID string
	location  string
	located   bool
}

func NewConversation() *Conversation {
	return &Conversation{sessionID: uuid.NewString()}
}

func (c *Conversation) SessionID() string { return c.sessionID }
func (c *Conversation) Location() string  { return c.location }

func (c *Conversation) State() State {
	if c.located {
		return StateReady
	}
	return StateAwaitingLocation
}

// Route classifies input and, on the location turn, records the location.
// Blank input returns ErrBlankInput and changes nothing.
func (c *Conversation) Route(input string) (Route, error) {
	text := strings.TrimSpace(input)
	if text == "" {
		return Route{}, ErrBlankInput
	}
	if !c.located {
		c.location = text
		c.located = true
		return Route{Kind: RouteLocation, Text: text}, nil
	}
	return Route{Kind: RouteRemote, Text: text}, nil
}
