package driver

import (
	"bytes"
	"strings"
	"sync"

	"github.com/charmbracelet/x/ansi"
)

const maxPartialLine = 16384

// Transcript keeps the last N complete output lines of a session.
type Transcript struct {
	mu      sync.Mutex
	strip   bool
	size    int
	lines   []string
	next    int
	full    bool
	partial []byte
}

// NewTranscript returns a transcript that retains size lines.
func NewTranscript(size int, strip bool) *Transcript {
	if size <= 0 {
		size = 1
	}
	return &Transcript{
		strip: strip,
		size:  size,
		lines: make([]string, size),
	}
}

// Write splits chunk into lines, stores completed ones and returns them.
func (t *Transcript) Write(chunk []byte) []string {
	if t == nil {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.partial = append(t.partial, chunk...)
	var completed []string
	for {
		idx := bytes.IndexByte(t.partial, '\n')
		if idx < 0 {
			break
		}
		line := t.clean(t.partial[:idx])
		t.partial = t.partial[idx+1:]
		t.add(line)
		completed = append(completed, line)
	}
	if len(t.partial) > maxPartialLine {
		t.partial = t.partial[len(t.partial)-maxPartialLine:]
	}
	return completed
}

// Flush stores a trailing line without newline, such as a final prompt.
func (t *Transcript) Flush() string {
	if t == nil {
		return ""
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.partial) == 0 {
		return ""
	}
	line := t.clean(t.partial)
	t.partial = nil
	t.add(line)
	return line
}

// Lines returns the retained lines in chronological order.
func (t *Transcript) Lines() []string {
	if t == nil {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.full {
		out := make([]string, t.next)
		copy(out, t.lines[:t.next])
		return out
	}

	out := make([]string, t.size)
	copy(out, t.lines[t.next:])
	copy(out[t.size-t.next:], t.lines[:t.next])
	return out
}

func (t *Transcript) add(line string) {
	t.lines[t.next] = line
	t.next++
	if t.next >= t.size {
		t.next = 0
		t.full = true
	}
}

func (t *Transcript) clean(raw []byte) string {
	line := strings.TrimRight(string(raw), "\r")
	if t.strip {
		line = ansi.Strip(line)
	}
	return line
}
