//go:build !windows

package driver

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"

	"github.com/creack/pty"
)

const (
	defaultRows = 40
	defaultCols = 120
)

// PTYLauncher starts commands on a local pseudo-terminal.
type PTYLauncher struct {
	Rows uint16
	Cols uint16
}

// Launch starts cmd attached to a new pty.
func (l PTYLauncher) Launch(ctx context.Context, cmd Command) (Process, error) {
	if cmd.Path == "" {
		return nil, ErrMissingCommand
	}

	c := exec.CommandContext(ctx, cmd.Path, cmd.Args...)
	c.Dir = cmd.Dir
	c.Env = append(os.Environ(), cmd.Env...)

	size := &pty.Winsize{Rows: l.Rows, Cols: l.Cols}
	if size.Rows == 0 {
		size.Rows = defaultRows
	}
	if size.Cols == 0 {
		size.Cols = defaultCols
	}

	f, err := pty.StartWithSize(c, size)
	if err != nil {
		return nil, err
	}
	return &ptyProcess{cmd: c, pty: f}, nil
}

type ptyProcess struct {
	cmd *exec.Cmd
	pty *os.File

	closeOnce sync.Once
	closeErr  error
}

func (p *ptyProcess) Read(b []byte) (int, error) {
	n, err := p.pty.Read(b)
	// Linux reports EIO once the slave side is gone.
	if err != nil && errors.Is(err, syscall.EIO) {
		err = io.EOF
	}
	return n, err
}

func (p *ptyProcess) Write(b []byte) (int, error) {
	return p.pty.Write(b)
}

func (p *ptyProcess) Wait() (int, error) {
	err := p.cmd.Wait()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}

// Kill signals the whole process group; pty.Start makes the child a session
// leader, so helpers it forked die with it.
func (p *ptyProcess) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	pid := p.cmd.Process.Pid
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return p.cmd.Process.Kill()
	}
	return nil
}

func (p *ptyProcess) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.pty.Close()
	})
	return p.closeErr
}
