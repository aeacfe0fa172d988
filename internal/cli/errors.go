package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/opencode-ai/e2ecore/internal/driver"
)

// Exit codes returned by Execute.
const (
	exitOK          = 0
	exitFailure     = 1
	exitUsage       = 2
	exitTimeout     = 124
	exitSpawn       = 127
	exitInterrupted = 130
)

// PreflightError is a setup problem with a suggested fix.
type PreflightError struct {
	Message  string
	Hint     string
	NextStep string
}

func (e *PreflightError) Error() string {
	return e.Message
}

func printError(out io.Writer, err error) {
	fmt.Fprintf(out, "%s %v\n", colorize("error:", colorRed), err)

	var preflight *PreflightError
	if errors.As(err, &preflight) {
		if preflight.Hint != "" {
			fmt.Fprintf(out, "  hint: %s\n", preflight.Hint)
		}
		if preflight.NextStep != "" {
			fmt.Fprintf(out, "  try:  %s\n", preflight.NextStep)
		}
	}
}

// exitCodeFor maps session failures to conventional shell exit codes.
func exitCodeFor(err error) int {
	if err == nil {
		return exitOK
	}

	var (
		timeoutErr   *driver.TimeoutError
		spawnErr     *driver.SpawnError
		cancelErr    *driver.CancelledError
		nonZeroErr   *driver.NonZeroExitError
		preflightErr *PreflightError
	)
	switch {
	case errors.As(err, &timeoutErr):
		return exitTimeout
	case errors.As(err, &spawnErr):
		return exitSpawn
	case errors.As(err, &cancelErr):
		return exitInterrupted
	case errors.As(err, &nonZeroErr):
		if nonZeroErr.ExitCode > 0 && nonZeroErr.ExitCode < 256 {
			return nonZeroErr.ExitCode
		}
		return exitFailure
	case errors.As(err, &preflightErr):
		return exitUsage
	default:
		return exitFailure
	}
}
