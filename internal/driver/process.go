package driver

import (
	"context"
	"io"
	"strings"
)

// Command describes the child process to launch.
type Command struct {
	Path string
	Args []string
	Dir  string
	// Env entries are appended to the launcher's base environment.
	Env []string
}

// String renders the command line for logs.
func (c Command) String() string {
	parts := append([]string{c.Path}, c.Args...)
	return strings.Join(parts, " ")
}

// Process is a running child attached to a terminal.
type Process interface {
	io.Reader
	io.Writer

	// Wait blocks until the process exits and returns its exit code.
	// A non-nil error means the status could not be determined.
	Wait() (int, error)

	// Kill forcibly terminates the process.
	Kill() error

	// Close releases the terminal and any other handles.
	Close() error
}

// Launcher creates processes for sessions.
type Launcher interface {
	Launch(ctx context.Context, cmd Command) (Process, error)
}

// LauncherFunc adapts a function to Launcher.
type LauncherFunc func(ctx context.Context, cmd Command) (Process, error)

func (f LauncherFunc) Launch(ctx context.Context, cmd Command) (Process, error) {
	return f(ctx, cmd)
}
