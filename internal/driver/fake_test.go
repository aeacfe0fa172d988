package driver

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeProcess is an in-memory Process whose output and exit the test controls.
type fakeProcess struct {
	out  *io.PipeReader
	outW *io.PipeWriter

	mu     sync.Mutex
	input  []string
	inputC chan string

	exit     chan int
	killed   chan struct{}
	killOnce sync.Once
}

func newFakeProcess() *fakeProcess {
	r, w := io.Pipe()
	return &fakeProcess{
		out:    r,
		outW:   w,
		inputC: make(chan string, 64),
		exit:   make(chan int, 1),
		killed: make(chan struct{}),
	}
}

func (p *fakeProcess) Read(b []byte) (int, error) { return p.out.Read(b) }

func (p *fakeProcess) Write(b []byte) (int, error) {
	p.mu.Lock()
	p.input = append(p.input, string(b))
	p.mu.Unlock()
	p.inputC <- string(b)
	return len(b), nil
}

func (p *fakeProcess) Wait() (int, error) {
	select {
	case code := <-p.exit:
		return code, nil
	case <-p.killed:
		return -1, nil
	}
}

func (p *fakeProcess) Kill() error {
	p.killOnce.Do(func() { close(p.killed) })
	return nil
}

func (p *fakeProcess) Close() error {
	return p.outW.Close()
}

// emit writes output as the child would.
func (p *fakeProcess) emit(t *testing.T, text string) {
	t.Helper()
	_, err := io.WriteString(p.outW, text)
	require.NoError(t, err)
}

// exitWith ends output and reports the exit code.
func (p *fakeProcess) exitWith(code int) {
	p.outW.Close()
	p.exit <- code
}

func (p *fakeProcess) inputs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.input...)
}

func fakeLauncher(p *fakeProcess) Launcher {
	return LauncherFunc(func(ctx context.Context, cmd Command) (Process, error) {
		return p, nil
	})
}

// writeStub writes an executable /bin/sh script and returns its path.
func writeStub(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "stub.sh")
	script := "#!/bin/sh\n" + strings.TrimLeft(body, "\n")
	require.NoError(t, os.WriteFile(path, []byte(script), 0755))
	return path
}

type memorySink struct {
	mu     sync.Mutex
	events []SessionEvent
}

func (s *memorySink) Emit(ctx context.Context, event SessionEvent) error {
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
	return nil
}

func (s *memorySink) Close() error {
	return nil
}

func (s *memorySink) Types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	types := make([]string, 0, len(s.events))
	for _, event := range s.events {
		types = append(types, event.Type)
	}
	return types
}

func (s *memorySink) Count(eventType string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, event := range s.events {
		if event.Type == eventType {
			n++
		}
	}
	return n
}

func (s *memorySink) Last(eventType string) (SessionEvent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.events) - 1; i >= 0; i-- {
		if s.events[i].Type == eventType {
			return s.events[i], true
		}
	}
	return SessionEvent{}, false
}
