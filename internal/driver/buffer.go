package driver

import (
	"bytes"

	"github.com/charmbracelet/x/ansi"
)

const (
	maxBufferBytes  = 1 << 20
	maxHeldEscape   = 256
	escapeByte      = 0x1b
	bellByte        = 0x07
	csiIntroducer   = '['
	oscIntroducer   = ']'
	finalByteMin    = 0x40
	finalByteMax    = 0x7e
	stringTerminate = '\\'
)

// matchBuffer accumulates output since the last successful expectation.
// With stripping on, escape sequences split across chunks are held back
// until their terminator arrives so a prompt is never cut by a colour code.
type matchBuffer struct {
	strip   bool
	held    []byte
	text    string
	dropped int
}

func newMatchBuffer(strip bool) *matchBuffer {
	return &matchBuffer{strip: strip}
}

// Append adds a chunk of raw output.
func (b *matchBuffer) Append(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	if !b.strip {
		b.push(string(chunk))
		return
	}

	data := append(b.held, chunk...)
	complete, rest := splitIncompleteEscape(data)
	if len(rest) > maxHeldEscape {
		complete, rest = data, nil
	}
	b.held = append([]byte(nil), rest...)
	if len(complete) > 0 {
		b.push(ansi.Strip(string(complete)))
	}
}

// Flush releases any held-back bytes, used once the stream has ended.
func (b *matchBuffer) Flush() {
	if len(b.held) == 0 {
		return
	}
	held := string(b.held)
	b.held = nil
	if b.strip {
		held = ansi.Strip(held)
	}
	b.push(held)
}

// Consume tests m against the buffer. On a match everything up to and
// including the matched text is removed and returned.
func (b *matchBuffer) Consume(m Matcher) (string, bool) {
	if m == nil {
		return "", false
	}
	start, end, ok := m.Match(b.text)
	if !ok {
		return "", false
	}
	matched := b.text[start:end]
	b.text = b.text[end:]
	return matched, true
}

// String returns the unconsumed text.
func (b *matchBuffer) String() string {
	return b.text
}

func (b *matchBuffer) push(s string) {
	b.text += s
	if len(b.text) > maxBufferBytes {
		cut := len(b.text) - maxBufferBytes
		b.dropped += cut
		b.text = b.text[cut:]
	}
}

// splitIncompleteEscape returns data up to the start of a trailing escape
// sequence that has not been terminated yet, and that trailing sequence.
func splitIncompleteEscape(data []byte) ([]byte, []byte) {
	idx := bytes.LastIndexByte(data, escapeByte)
	if idx < 0 {
		return data, nil
	}
	seq := data[idx:]
	if len(seq) == 1 {
		return data[:idx], seq
	}

	switch seq[1] {
	case csiIntroducer:
		for _, c := range seq[2:] {
			if c >= finalByteMin && c <= finalByteMax {
				return data, nil
			}
		}
		return data[:idx], seq
	case oscIntroducer:
		if bytes.IndexByte(seq, bellByte) >= 0 {
			return data, nil
		}
		// ESC \ terminates an OSC; the ESC of that terminator would have been
		// found by LastIndexByte, so reaching here means it is still open.
		return data[:idx], seq
	case stringTerminate:
		// Trailing ST: look for the OSC it closes.
		return data, nil
	default:
		return data, nil
	}
}
