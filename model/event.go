package model

import "time"

// EventKind discriminates queued analytics events.
type EventKind string

const (
	KindInteraction EventKind = "interaction"
	KindCommand     EventKind = "command"
	KindLinkClick   EventKind = "link_click"
)

// CommandKind distinguishes terminal commands from AI chat exchanges.
type CommandKind string

const (
	CommandTerminal CommandKind = "terminal"
	CommandAI       CommandKind = "ai"
)

// EventContext carries optional placement information for an interaction.
type EventContext struct {
	Section  string                 `json:"section"`
	Position int                    `json:"position,omitempty"`
	URL      string                 `json:"url,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Event is a single queued analytics event. The populated fields depend on
// Kind: interactions use Category/Identifier/Action/Context, commands use
// Command/Response/CommandKind, link clicks use URL/Title.
type Event struct {
	Kind       EventKind     `json:"kind"`
	Timestamp  time.Time     `json:"timestamp"`
	Category   string        `json:"category,omitempty"`
	Identifier string        `json:"identifier,omitempty"`
	Action     string        `json:"action,omitempty"`
	Context    *EventContext `json:"context,omitempty"`

	Command     string      `json:"command,omitempty"`
	Response    string      `json:"response,omitempty"`
	CommandKind CommandKind `json:"commandType,omitempty"`

	URL   string `json:"url,omitempty"`
	Title string `json:"title,omitempty"`
}

// ClickPayload is the wire format accepted by the ingestion endpoint.
// A client-supplied timestamp is deliberately absent: server time wins.
type ClickPayload struct {
	UserID string `json:"userId"`
	URL    string `json:"url"`
	Title  string `json:"title"`
}
