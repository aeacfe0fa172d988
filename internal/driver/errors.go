package driver

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrMissingCommand indicates no command was provided to spawn.
	ErrMissingCommand = errors.New("command is required")
	// ErrAlreadyRun indicates Run was called on a session that already started.
	ErrAlreadyRun = errors.New("session already started")
	// ErrCancelled is the cause recorded when Cancel aborts a session.
	ErrCancelled = errors.New("session cancelled")
)

const errorTailBytes = 512

// SpawnError reports that the child process could not be created.
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// TimeoutError reports that no matching output arrived within the timeout.
// An empty Pattern means every step matched but the process never exited.
type TimeoutError struct {
	Step    int
	Pattern string
	Timeout time.Duration
	Buffer  string
}

func (e *TimeoutError) Error() string {
	if e.Pattern == "" {
		return fmt.Sprintf("timed out after %s waiting for process exit; last output: %q", e.Timeout, tail(e.Buffer, errorTailBytes))
	}
	return fmt.Sprintf("timed out after %s waiting for %q (step %d); last output: %q", e.Timeout, e.Pattern, e.Step+1, tail(e.Buffer, errorTailBytes))
}

// UnexpectedExitError reports that the process exited before the script finished.
type UnexpectedExitError struct {
	ExitCode int
	Step     int
	Pattern  string
	Buffer   string
}

func (e *UnexpectedExitError) Error() string {
	return fmt.Sprintf("process exited with code %d before %q (step %d) was seen; last output: %q", e.ExitCode, e.Pattern, e.Step+1, tail(e.Buffer, errorTailBytes))
}

// NonZeroExitError reports a failing exit status after all steps matched.
type NonZeroExitError struct {
	ExitCode int
	Buffer   string
}

func (e *NonZeroExitError) Error() string {
	return fmt.Sprintf("process exited with code %d; last output: %q", e.ExitCode, tail(e.Buffer, errorTailBytes))
}

// CancelledError reports that the caller aborted the session.
type CancelledError struct {
	Step  int
	Cause error
}

func (e *CancelledError) Error() string {
	return fmt.Sprintf("session cancelled at step %d: %v", e.Step+1, e.Cause)
}

func (e *CancelledError) Unwrap() error { return e.Cause }

// SendError reports a failed write to the process input.
type SendError struct {
	Step int
	Err  error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send step %d: %v", e.Step+1, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

func tail(value string, max int) string {
	if max <= 0 || len(value) <= max {
		return value
	}
	return value[len(value)-max:]
}
