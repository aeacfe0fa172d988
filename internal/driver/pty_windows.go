//go:build windows

package driver

import (
	"context"
	"errors"
)

// PTYLauncher is unavailable on Windows; use a remote launcher instead.
type PTYLauncher struct {
	Rows uint16
	Cols uint16
}

// Launch always fails on Windows.
func (l PTYLauncher) Launch(ctx context.Context, cmd Command) (Process, error) {
	return nil, errors.New("local pty sessions are not supported on windows")
}
