package cli

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/opencode-ai/e2ecore/internal/driver"
	"github.com/opencode-ai/e2ecore/internal/geo"
	"github.com/opencode-ai/e2ecore/internal/scripts"
	"github.com/spf13/cobra"
)

func TestFilterScripts(t *testing.T) {
	items := []*scripts.Script{
		{Name: "a", Tags: []string{"geo", "map"}},
		{Name: "b", Tags: []string{"auth"}},
		{Name: "c", Tags: []string{"geo"}},
		{Name: "d", Tags: nil},
	}

	tests := []struct {
		name     string
		tags     []string
		expected int
	}{
		{"no filter", nil, 4},
		{"filter geo", []string{"geo"}, 2},
		{"filter auth", []string{"auth"}, 1},
		{"filter multiple", []string{"geo", "auth"}, 3},
		{"filter nonexistent", []string{"nonexistent"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := filterScripts(items, tt.tags)
			if len(result) != tt.expected {
				t.Errorf("filterScripts() = %d items, want %d", len(result), tt.expected)
			}
		})
	}
}

func TestParseScriptVars(t *testing.T) {
	tests := []struct {
		name    string
		input   []string
		wantLen int
		wantErr bool
	}{
		{"single var", []string{"key=value"}, 1, false},
		{"multiple vars", []string{"k1=v1", "k2=v2"}, 2, false},
		{"comma separated", []string{"k1=v1,k2=v2"}, 2, false},
		{"empty value", []string{"key="}, 1, false},
		{"value with equals", []string{"url=a=b"}, 1, false},
		{"missing equals", []string{"invalid"}, 0, true},
		{"empty key", []string{"=value"}, 0, true},
		{"empty input", nil, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := parseScriptVars(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("parseScriptVars() error = %v, wantErr = %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr && len(result) != tt.wantLen {
				t.Errorf("parseScriptVars() = %d vars, want %d", len(result), tt.wantLen)
			}
		})
	}
}

func TestScriptSourceLabel(t *testing.T) {
	tests := []struct {
		name       string
		source     string
		userDir    string
		projectDir string
		want       string
	}{
		{"builtin", "builtin", "/home/user/.config/e2ecore/scripts", "/project/.e2ecore/scripts", "builtin"},
		{"user script", "/home/user/.config/e2ecore/scripts/foo.yaml", "/home/user/.config/e2ecore/scripts", "", "user"},
		{"project script", "/project/.e2ecore/scripts/bar.yaml", "", "/project/.e2ecore/scripts", "project"},
		{"other file", "/some/other/path.yaml", "/home/user/.config/e2ecore/scripts", "/project/.e2ecore/scripts", "file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := scriptSourceLabel(tt.source, tt.userDir, tt.projectDir)
			if result != tt.want {
				t.Errorf("scriptSourceLabel() = %q, want %q", result, tt.want)
			}
		})
	}
}

func TestFormatScriptStep(t *testing.T) {
	tests := []struct {
		step scripts.Step
		want string
	}{
		{scripts.Step{Type: scripts.StepTypeWait, Pattern: "Name?"}, "[wait] Name?"},
		{scripts.Step{Type: scripts.StepTypeWaitRegex, Pattern: `v\d+`}, `[wait_regex] v\d+`},
		{scripts.Step{Type: scripts.StepTypeSendLine, Content: "{{.name}}"}, "[send_line] {{.name}}"},
		{scripts.Step{Type: scripts.StepTypeKey, Key: "down"}, "[key] down"},
		{scripts.Step{Type: scripts.StepTypeConfirm, Answer: "yes"}, "[confirm] yes"},
	}

	for _, tt := range tests {
		if got := formatScriptStep(tt.step); got != tt.want {
			t.Errorf("formatScriptStep(%+v) = %q, want %q", tt.step, got, tt.want)
		}
	}
}

func TestWithCLIVar(t *testing.T) {
	resetCLIState(t)
	appConfig = GetConfig()
	appConfig.CLIPath = "/opt/bin/amplify"

	declares := &scripts.Script{Variables: []scripts.Variable{{Name: "cli"}}}
	if got := withCLIVar(declares, map[string]string{})["cli"]; got != "/opt/bin/amplify" {
		t.Fatalf("cli = %q, want configured path", got)
	}
	if got := withCLIVar(declares, map[string]string{"cli": "mine"})["cli"]; got != "mine" {
		t.Fatalf("explicit cli var overridden: %q", got)
	}
	if _, ok := withCLIVar(&scripts.Script{}, map[string]string{})["cli"]; ok {
		t.Fatalf("cli set for a script that does not declare it")
	}
}

func TestExitCodeFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, exitOK},
		{"timeout", &driver.TimeoutError{Pattern: "x"}, exitTimeout},
		{"spawn", &driver.SpawnError{Command: "nope", Err: os.ErrNotExist}, exitSpawn},
		{"cancelled", &driver.CancelledError{Cause: driver.ErrCancelled}, exitInterrupted},
		{"non-zero", &driver.NonZeroExitError{ExitCode: 3}, 3},
		{"non-zero out of range", &driver.NonZeroExitError{ExitCode: -1}, exitFailure},
		{"wrapped", fmt.Errorf("geo-remove-map: %w", &driver.TimeoutError{}), exitTimeout},
		{"unexpected exit", &driver.UnexpectedExitError{ExitCode: 0}, exitFailure},
		{"preflight", &PreflightError{Message: "no db"}, exitUsage},
		{"other", errors.New("boom"), exitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCodeFor(tt.err); got != tt.want {
				t.Errorf("exitCodeFor() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPrintErrorIncludesHint(t *testing.T) {
	resetCLIState(t)
	var out bytes.Buffer
	printError(&out, &PreflightError{Message: "no events database configured", Hint: "use --events-db", NextStep: "e2ecore sessions list"})

	text := out.String()
	for _, want := range []string{"error: no events database configured", "hint: use --events-db", "try:  e2ecore sessions list"} {
		if !strings.Contains(text, want) {
			t.Errorf("printError output missing %q:\n%s", want, text)
		}
	}
}

func TestWriteOutputJSONL(t *testing.T) {
	resetCLIState(t)
	jsonlOutput = true

	var out bytes.Buffer
	if err := WriteOutput(&out, []map[string]int{{"a": 1}, {"b": 2}}); err != nil {
		t.Fatalf("WriteOutput: %v", err)
	}
	if got, want := out.String(), "{\"a\":1}\n{\"b\":2}\n"; got != want {
		t.Fatalf("WriteOutput() = %q, want %q", got, want)
	}
}

func TestExpandPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	tests := map[string]string{
		"~/e2ecore/sessions.db": filepath.Join(home, "e2ecore", "sessions.db"),
		"~":                     home,
		"/var/lib/e2ecore.db":   "/var/lib/e2ecore.db",
		"~other/x":              "~other/x",
	}
	for input, want := range tests {
		if got := expandPath(input); got != want {
			t.Errorf("expandPath(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestGeoOptions(t *testing.T) {
	addMap, _ := geo.LookupFlow("add-map")
	removeMap, _ := geo.LookupFlow("remove-map")

	tests := []struct {
		name    string
		flow    geo.Flow
		args    []string
		want    geo.Config
		wantErr bool
	}{
		{"defaults", addMap, nil, geo.Config{Default: true}, false},
		{"first with name", addMap, []string{"--first", "--name", "myMap"}, geo.Config{FirstResource: true, Default: true, ResourceName: "myMap"}, false},
		{"additional not default", addMap, []string{"--additional", "--default=false"}, geo.Config{Additional: true}, false},
		{"default without additional", addMap, []string{"--default=false"}, geo.Config{}, true},
		{"options on fixed flow", removeMap, []string{"--first"}, geo.Config{}, true},
		{"fixed flow", removeMap, nil, geo.Config{Default: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetCLIState(t)
			cmd := &cobra.Command{Use: tt.flow.Name}
			cmd.Flags().AddFlagSet(geoCmd.PersistentFlags())
			if err := cmd.Flags().Parse(tt.args); err != nil {
				t.Fatalf("parse flags: %v", err)
			}

			opts, err := geoOptions(cmd, tt.flow)
			if (err != nil) != tt.wantErr {
				t.Fatalf("geoOptions() error = %v, wantErr = %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}

			cfg := geo.DefaultConfig()
			for _, opt := range opts {
				opt(&cfg)
			}
			if cfg != tt.want {
				t.Fatalf("config = %+v, want %+v", cfg, tt.want)
			}
		})
	}
}

func TestFormatSessionOutcome(t *testing.T) {
	resetCLIState(t)
	noColor = true

	if got := formatSessionOutcome("timed_out"); got != "WAIT timed out" {
		t.Fatalf("formatSessionOutcome() = %q", got)
	}
	if got := formatSessionOutcome("succeeded"); got != "OK succeeded" {
		t.Fatalf("formatSessionOutcome() = %q", got)
	}
}
