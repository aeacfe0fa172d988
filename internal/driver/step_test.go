package driver

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMatchers(t *testing.T) {
	tests := []struct {
		name    string
		matcher Matcher
		text    string
		start   int
		end     int
		ok      bool
	}{
		{"literal hit", Literal("Map?"), "Who can access this Map?", 20, 24, true},
		{"literal is case sensitive", Literal("map?"), "this Map?", 0, 0, false},
		{"fold ignores case", Fold("map?"), "this Map?", 5, 9, true},
		{"fold miss", Fold("index"), "this Map?", 0, 0, false},
		{"fold kelvin sign", Fold("k"), "5 \u212a left", 2, 5, true},
		{"fold multibyte pattern", Fold("\u212aey"), "the key", 4, 7, true},
		{"fold empty", Fold(""), "anything", 0, 0, true},
		{"regexp", MustRegexp(`Select the (Map|PlaceIndex)`), "? Select the PlaceIndex you want", 2, 23, true},
		{"regexp miss", MustRegexp(`^\d+$`), "abc", 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, ok := tt.matcher.Match(tt.text)
			require.Equal(t, tt.ok, ok)
			if ok {
				require.Equal(t, tt.start, start)
				require.Equal(t, tt.end, end)
			}
		})
	}
}

func TestNewRegexpRejectsInvalid(t *testing.T) {
	_, err := NewRegexp("(unclosed")
	require.Error(t, err)
	require.Panics(t, func() { MustRegexp("(unclosed") })
}

func TestLookupKey(t *testing.T) {
	tests := []struct {
		name string
		want string
		ok   bool
	}{
		{"down", KeyDownArrow, true},
		{"DOWN_ARROW", KeyDownArrow, true},
		{" enter ", KeyCarriageReturn, true},
		{"ctrl_c", KeyCtrlC, true},
		{"eof", KeyCtrlD, true},
		{"hyper", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := LookupKey(tt.name)
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestStepString(t *testing.T) {
	require.Equal(t, "expect Name:", ExpectText("Name:").String())
	require.Equal(t, `send "myMap\r"`, Send("myMap\r").String())
	require.Equal(t, "send <down>", SendKey("down", KeyDownArrow).String())
	require.Equal(t, "expect /a+/", Expect(MustRegexp("a+")).String())
}

func TestBuilderAppendsInOrder(t *testing.T) {
	s := Spawn("amplify", []string{"geo", "add"}, Options{}).
		Wait("Select which capability you want to add:").
		SendCarriageReturn().
		Wait("Provide a name for the Map:").
		SendLine("myMap").
		SendKeyDown().
		SendConfirmYes().
		SendConfirmNo().
		SendEOF()

	steps := s.Steps()
	require.Len(t, steps, 8)
	require.Equal(t, StepExpect, steps[0].Kind)
	require.Equal(t, KeyCarriageReturn, steps[1].Data)
	require.Equal(t, "myMap\r", steps[3].Data)
	require.Equal(t, KeyDownArrow, steps[4].Data)
	require.Equal(t, "y\r", steps[5].Data)
	require.Equal(t, "n\r", steps[6].Data)
	require.Equal(t, KeyCtrlD, steps[7].Data)
	require.Equal(t, StateIdle, s.State())
	require.NotEmpty(t, s.ID())
}

func TestSendLineUsesConfiguredTerminator(t *testing.T) {
	s := Spawn("cli", nil, Options{LineTerminator: "\n"}).SendLine("hi")
	require.Equal(t, "hi\n", s.Steps()[0].Data)
}
