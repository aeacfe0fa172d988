package driver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"
)

const (
	EventTypeSpawned     = "session.spawned"
	EventTypeOutputLine  = "session.output_line"
	EventTypeStepMatched = "session.step_matched"
	EventTypeInputSent   = "session.input_sent"
	EventTypeExit        = "session.exit"
	EventTypeResolved    = "session.resolved"
)

// SessionEvent is a structured event emitted while a session runs.
type SessionEvent struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id"`
	Name      string    `json:"name,omitempty"`
	Data      any       `json:"data,omitempty"`
}

// SpawnedData is emitted once the process has started.
type SpawnedData struct {
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
	Dir     string   `json:"dir,omitempty"`
	Steps   int      `json:"steps"`
}

// OutputLineData is emitted for each completed output line.
type OutputLineData struct {
	Line      string `json:"line"`
	Truncated bool   `json:"truncated,omitempty"`
}

// StepMatchedData is emitted when an expectation is satisfied.
type StepMatchedData struct {
	Step    int           `json:"step"`
	Pattern string        `json:"pattern"`
	Waited  time.Duration `json:"waited_ns"`
}

// InputSentData is emitted after a send step is written.
type InputSentData struct {
	Step int    `json:"step"`
	Text string `json:"text"`
}

// ExitData is emitted when the process exits.
type ExitData struct {
	ExitCode int    `json:"exit_code"`
	Error    string `json:"error,omitempty"`
}

// ResolvedData is emitted exactly once per session with its outcome.
type ResolvedData struct {
	Outcome        State         `json:"outcome"`
	Error          string        `json:"error,omitempty"`
	Duration       time.Duration `json:"duration_ns"`
	StepsCompleted int           `json:"steps_completed"`
	StepsTotal     int           `json:"steps_total"`
}

// EventSink receives session events.
type EventSink interface {
	Emit(ctx context.Context, event SessionEvent) error
	Close() error
}

// NoopSink drops all events.
type NoopSink struct{}

// Emit ignores events.
func (NoopSink) Emit(ctx context.Context, event SessionEvent) error {
	return nil
}

// Close is a no-op.
func (NoopSink) Close() error {
	return nil
}

// MultiSink fans events out to several sinks.
type MultiSink []EventSink

// Emit forwards to every sink and joins their errors.
func (m MultiSink) Emit(ctx context.Context, event SessionEvent) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink and joins their errors.
func (m MultiSink) Close() error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WriterEventSink streams events as JSON lines.
type WriterEventSink struct {
	mu      sync.Mutex
	w       io.Writer
	encoder *json.Encoder
	closed  bool
}

// NewWriterEventSink writes JSON lines to w. If w is an io.Closer it is
// closed by Close.
func NewWriterEventSink(w io.Writer) *WriterEventSink {
	return &WriterEventSink{w: w, encoder: json.NewEncoder(w)}
}

// Emit writes an event.
func (s *WriterEventSink) Emit(ctx context.Context, event SessionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("event writer closed")
	}
	return s.encoder.Encode(event)
}

// Close closes the underlying writer when it supports it.
func (s *WriterEventSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if closer, ok := s.w.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
