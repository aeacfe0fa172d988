//go:build !windows

package cli

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/opencode-ai/e2ecore/internal/driver"
	"github.com/opencode-ai/e2ecore/internal/models"
	"github.com/stretchr/testify/require"
)

const greetScript = `name: greet
description: Answer the name prompt
command: /bin/sh
args:
  - -c
  - printf 'Name? '; read n; echo "hello $n"
tags: [demo]
variables:
  - name: who
    default: world
steps:
  - type: wait
    pattern: "Name?"
  - type: send_line
    content: "{{.who}}"
  - type: wait
    pattern: "hello {{.who}}"
`

func writeScriptFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestRunCommandRecordsSession(t *testing.T) {
	home := isolateHome(t)
	scriptPath := writeScriptFile(t, home, "greet.yaml", greetScript)
	dbPath := filepath.Join(home, "data", "sessions.db")
	metricsPath := filepath.Join(home, "e2ecore.prom")

	out, err := executeCommand(t, "--events-db", dbPath, "--metrics-file", metricsPath, "--json",
		"run", scriptPath, "--var", "who=tester", "--cwd", home)
	require.NoError(t, err)

	var result runResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	require.Equal(t, "greet", result.Name)
	require.Equal(t, driver.StateSucceeded, result.Outcome)
	require.Empty(t, result.Error)
	require.NotEmpty(t, result.SessionID)

	metricsText, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	require.Contains(t, string(metricsText), `e2ecore_sessions_total{outcome="succeeded"} 1`)

	out, err = executeCommand(t, "--events-db", dbPath, "--json", "sessions", "list")
	require.NoError(t, err)
	var records []models.SessionRecord
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	require.Len(t, records, 1)
	require.Equal(t, result.SessionID, records[0].ID)
	require.Equal(t, models.SessionOutcomeSucceeded, records[0].Outcome)
	require.Equal(t, 3, records[0].StepsCompleted)

	out, err = executeCommand(t, "--events-db", dbPath, "--json", "sessions", "events", result.SessionID[:8], "--type", "session.input_sent")
	require.NoError(t, err)
	var events []models.Event
	require.NoError(t, json.Unmarshal([]byte(out), &events))
	require.Len(t, events, 1)
	require.Contains(t, string(events[0].Payload), "tester")
}

func TestRunCommandTimeout(t *testing.T) {
	home := isolateHome(t)
	scriptPath := writeScriptFile(t, home, "stuck.yaml", `name: stuck
command: /bin/sh
args: ["-c", "printf 'ready'; sleep 30"]
steps:
  - type: wait
    pattern: "never printed"
`)

	_, err := executeCommand(t, "--timeout", "300ms", "run", scriptPath)
	var timeoutErr *driver.TimeoutError
	require.True(t, errors.As(err, &timeoutErr), "expected TimeoutError, got %v", err)
	require.Equal(t, "never printed", timeoutErr.Pattern)
	require.Equal(t, exitTimeout, exitCodeFor(err))
}

func TestRunCommandAllowFailure(t *testing.T) {
	home := isolateHome(t)
	scriptPath := writeScriptFile(t, home, "fails.yaml", `name: fails
command: /bin/sh
args: ["-c", "echo done; exit 4"]
steps:
  - type: wait
    pattern: "done"
`)

	_, err := executeCommand(t, "run", scriptPath)
	var exitErr *driver.NonZeroExitError
	require.True(t, errors.As(err, &exitErr), "expected NonZeroExitError, got %v", err)
	require.Equal(t, 4, exitCodeFor(err))

	_, err = executeCommand(t, "run", scriptPath, "--allow-failure")
	require.NoError(t, err)
}

func TestRunCommandOverridesCommand(t *testing.T) {
	home := isolateHome(t)
	scriptPath := writeScriptFile(t, home, "override.yaml", `name: override
command: /does/not/exist
steps:
  - type: wait
    pattern: "hi"
`)

	_, err := executeCommand(t, "run", scriptPath)
	var spawnErr *driver.SpawnError
	require.True(t, errors.As(err, &spawnErr), "expected SpawnError, got %v", err)

	stub := writeScriptFile(t, home, "bin/hi", "#!/bin/sh\necho hi\n")
	require.NoError(t, os.Chmod(stub, 0o755))
	_, err = executeCommand(t, "run", scriptPath, "--command", stub)
	require.NoError(t, err)
}

func TestRunCommandUnknownScript(t *testing.T) {
	isolateHome(t)

	_, err := executeCommand(t, "run", "no-such-script")
	var preflight *PreflightError
	require.True(t, errors.As(err, &preflight), "expected PreflightError, got %v", err)
}

func TestScriptsListAndShow(t *testing.T) {
	home := isolateHome(t)
	project := filepath.Join(home, "project")
	writeScriptFile(t, project, ".e2ecore/scripts/greet.yaml", greetScript)

	out, err := executeCommand(t, "scripts", "list", "--project", project)
	require.NoError(t, err)
	require.Contains(t, out, "greet")
	require.Contains(t, out, "project")
	require.Contains(t, out, "geo-remove-map")

	out, err = executeCommand(t, "scripts", "list", "--project", project, "--tag", "demo")
	require.NoError(t, err)
	require.Contains(t, out, "greet")
	require.NotContains(t, out, "geo-remove-map")

	out, err = executeCommand(t, "scripts", "show", "greet", "--project", project, "--var", "who=ada")
	require.NoError(t, err)
	require.Contains(t, out, `line  "ada"`)
	require.Contains(t, out, `wait  "hello ada"`)
	require.Contains(t, out, "who [default: world]")
	require.NotContains(t, out, "overrides")
}

func TestScriptsShowReportsOverriddenLayers(t *testing.T) {
	home := isolateHome(t)
	project := filepath.Join(home, "project")
	writeScriptFile(t, project, ".e2ecore/scripts/greet.yaml", greetScript)
	writeScriptFile(t, home, ".config/e2ecore/scripts/greet.yaml", greetScript)
	writeScriptFile(t, project, ".e2ecore/scripts/remove.yaml", `name: geo-remove-map
command: ./cli
steps:
  - type: wait
    pattern: "gone?"
`)

	out, err := executeCommand(t, "scripts", "show", "greet", "--project", project)
	require.NoError(t, err)
	require.Contains(t, out, "overrides user")

	out, err = executeCommand(t, "scripts", "show", "geo-remove-map", "--project", project)
	require.NoError(t, err)
	require.Contains(t, out, "overrides builtin")
}

func TestGeoListJSON(t *testing.T) {
	isolateHome(t)

	out, err := executeCommand(t, "--json", "geo", "list")
	require.NoError(t, err)

	var flows []struct {
		Name         string `json:"name"`
		Configurable bool   `json:"configurable"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &flows))
	require.Len(t, flows, 10)
	require.Equal(t, "add-map", flows[0].Name)
	require.True(t, flows[0].Configurable)
}

func TestGeoFlowRunsConfiguredCLI(t *testing.T) {
	home := isolateHome(t)
	cli := writeScriptFile(t, home, "bin/fake-amplify", `#!/bin/sh
printf '? Select which capability you want to remove: Map\n'
read answer
printf '? Select the Map you want to remove\n'
read answer
printf '? Are you sure you want to delete the resource?\n'
read answer
echo "removed"
`)
	require.NoError(t, os.Chmod(cli, 0o755))

	_, err := executeCommand(t, "--cli-path", cli, "geo", "remove-map", "--cwd", home)
	require.NoError(t, err)

	_, err = executeCommand(t, "--cli-path", cli, "geo", "remove-map", "--first")
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "only supported by the add flows"))
}

func TestSessionsListWithoutDatabase(t *testing.T) {
	isolateHome(t)

	_, err := executeCommand(t, "sessions", "list")
	var preflight *PreflightError
	require.True(t, errors.As(err, &preflight), "expected PreflightError, got %v", err)
}
