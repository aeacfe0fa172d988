package models

import (
	"strings"
	"time"
)

// SessionOutcome is the terminal state recorded for a session.
type SessionOutcome string

const (
	SessionOutcomeRunning   SessionOutcome = "running"
	SessionOutcomeSucceeded SessionOutcome = "succeeded"
	SessionOutcomeFailed    SessionOutcome = "failed"
	SessionOutcomeTimedOut  SessionOutcome = "timed_out"
	SessionOutcomeCancelled SessionOutcome = "cancelled"
)

// SessionRecord is one recorded driver session.
type SessionRecord struct {
	ID      string   `json:"id"`
	Name    string   `json:"name,omitempty"`
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
	Dir     string   `json:"dir,omitempty"`

	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	Outcome        SessionOutcome `json:"outcome"`
	Error          string         `json:"error,omitempty"`
	StepsTotal     int            `json:"steps_total"`
	StepsCompleted int            `json:"steps_completed"`
}

// Validate checks if the record is valid.
func (s *SessionRecord) Validate() error {
	validation := &ValidationErrors{}
	if strings.TrimSpace(s.ID) == "" {
		validation.AddMessage("id", "session id is required")
	}
	if strings.TrimSpace(s.Command) == "" {
		validation.AddMessage("command", "command is required")
	}
	if s.StepsTotal < 0 {
		validation.AddMessage("steps_total", "steps_total must not be negative")
	}
	return validation.Err()
}

// Finished reports whether the session has resolved.
func (s *SessionRecord) Finished() bool {
	return s.FinishedAt != nil && s.Outcome != SessionOutcomeRunning
}
