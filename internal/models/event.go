package models

import (
	"encoding/json"
	"strings"
	"time"
)

// EventType categorizes session events.
type EventType string

const (
	EventTypeSessionSpawned     EventType = "session.spawned"
	EventTypeSessionOutputLine  EventType = "session.output_line"
	EventTypeSessionStepMatched EventType = "session.step_matched"
	EventTypeSessionInputSent   EventType = "session.input_sent"
	EventTypeSessionExit        EventType = "session.exit"
	EventTypeSessionResolved    EventType = "session.resolved"
)

// Event represents an append-only log entry for a session.
type Event struct {
	// ID is the unique identifier for the event.
	ID string `json:"id"`

	// SessionID links the event to its session.
	SessionID string `json:"session_id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type categorizes the event.
	Type EventType `json:"type"`

	// Payload contains event-specific data.
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Validate checks if the event is valid.
func (e *Event) Validate() error {
	validation := &ValidationErrors{}
	if strings.TrimSpace(string(e.Type)) == "" {
		validation.AddMessage("type", "event type is required")
	}
	if strings.TrimSpace(e.SessionID) == "" {
		validation.AddMessage("session_id", "session_id is required")
	}
	return validation.Err()
}
