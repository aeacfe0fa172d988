package driver

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Control sequences a terminal sends for common keys.
const (
	KeyCarriageReturn = "\r"
	KeyDownArrow      = "\x1b[B"
	KeyUpArrow        = "\x1b[A"
	KeyRightArrow     = "\x1b[C"
	KeyLeftArrow      = "\x1b[D"
	KeyTab            = "\t"
	KeySpace          = " "
	KeyBackspace      = "\x7f"
	KeyEscape         = "\x1b"
	KeyCtrlC          = "\x03"
	KeyCtrlD          = "\x04"

	ConfirmYes = "y"
	ConfirmNo  = "n"
)

var keyNames = map[string]string{
	"enter":      KeyCarriageReturn,
	"return":     KeyCarriageReturn,
	"cr":         KeyCarriageReturn,
	"down":       KeyDownArrow,
	"up":         KeyUpArrow,
	"right":      KeyRightArrow,
	"left":       KeyLeftArrow,
	"tab":        KeyTab,
	"space":      KeySpace,
	"backspace":  KeyBackspace,
	"escape":     KeyEscape,
	"esc":        KeyEscape,
	"ctrl-c":     KeyCtrlC,
	"ctrl-d":     KeyCtrlD,
	"eof":        KeyCtrlD,
	"interrupt":  KeyCtrlC,
	"down-arrow": KeyDownArrow,
	"up-arrow":   KeyUpArrow,
}

// LookupKey resolves a key name such as "down" or "ctrl-c".
func LookupKey(name string) (string, bool) {
	normalized := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "_", "-")
	seq, ok := keyNames[normalized]
	return seq, ok
}

// StepKind distinguishes the two step variants.
type StepKind string

const (
	StepExpect StepKind = "expect"
	StepSend   StepKind = "send"
)

// Step is a single scripted action.
type Step struct {
	Kind    StepKind
	Matcher Matcher
	Data    string
	// Label describes a send step in logs and events; defaults to the quoted data.
	Label string
}

// Expect returns a step that waits for m.
func Expect(m Matcher) Step {
	return Step{Kind: StepExpect, Matcher: m}
}

// ExpectText returns a step that waits for a literal substring.
func ExpectText(pattern string) Step {
	return Expect(Literal(pattern))
}

// Send returns a step that writes data verbatim.
func Send(data string) Step {
	return Step{Kind: StepSend, Data: data}
}

// SendKey returns a send step labelled with a key name.
func SendKey(name, seq string) Step {
	return Step{Kind: StepSend, Data: seq, Label: "<" + name + ">"}
}

// String renders the step for logs.
func (s Step) String() string {
	switch s.Kind {
	case StepExpect:
		if s.Matcher == nil {
			return "expect <nil>"
		}
		return "expect " + s.Matcher.String()
	case StepSend:
		return "send " + s.label()
	default:
		return fmt.Sprintf("unknown step %q", s.Kind)
	}
}

func (s Step) label() string {
	if s.Label != "" {
		return s.Label
	}
	return strconv.Quote(s.Data)
}

func (s Step) pattern() string {
	if s.Matcher == nil {
		return ""
	}
	return s.Matcher.String()
}

// Matcher finds a pattern in observed output.
type Matcher interface {
	// Match returns the byte range of the first match in text.
	Match(text string) (start, end int, ok bool)
	String() string
}

// Literal matches a case-sensitive substring.
type Literal string

func (l Literal) Match(text string) (int, int, bool) {
	idx := strings.Index(text, string(l))
	if idx < 0 {
		return 0, 0, false
	}
	return idx, idx + len(l), true
}

func (l Literal) String() string { return string(l) }

// Fold matches a substring ignoring Unicode simple case. Case variants may
// differ in encoded length, so candidates are compared rune by rune.
type Fold string

func (f Fold) Match(text string) (int, int, bool) {
	if f == "" {
		return 0, 0, true
	}
	for i := 0; i < len(text); {
		if end, ok := foldPrefix(text[i:], string(f)); ok {
			return i, i + end, true
		}
		_, size := utf8.DecodeRuneInString(text[i:])
		i += size
	}
	return 0, 0, false
}

// foldPrefix reports whether text starts with a case-folded copy of pattern
// and returns the byte length of that prefix in text.
func foldPrefix(text, pattern string) (int, bool) {
	pos := 0
	for _, want := range pattern {
		if pos >= len(text) {
			return 0, false
		}
		got, size := utf8.DecodeRuneInString(text[pos:])
		if !strings.EqualFold(string(got), string(want)) {
			return 0, false
		}
		pos += size
	}
	return pos, true
}

func (f Fold) String() string { return string(f) }

// Regexp matches a regular expression.
type Regexp struct {
	re *regexp.Regexp
}

// NewRegexp compiles expr into a matcher.
func NewRegexp(expr string) (*Regexp, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compile pattern %q: %w", expr, err)
	}
	return &Regexp{re: re}, nil
}

// MustRegexp is NewRegexp that panics on error, for package-level patterns.
func MustRegexp(expr string) *Regexp {
	m, err := NewRegexp(expr)
	if err != nil {
		panic(err)
	}
	return m
}

func (r *Regexp) Match(text string) (int, int, bool) {
	loc := r.re.FindStringIndex(text)
	if loc == nil {
		return 0, 0, false
	}
	return loc[0], loc[1], true
}

func (r *Regexp) String() string { return "/" + r.re.String() + "/" }
