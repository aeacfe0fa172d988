//go:build !windows

package geo

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/opencode-ai/e2ecore/internal/driver"
	"github.com/opencode-ai/e2ecore/internal/scripts"
	"github.com/stretchr/testify/require"
)

// fakeCLI prints each prompt from $PROMPTS_FILE in bold and records the
// answer line unless the prompt is marked noread.
const fakeCLI = `#!/bin/sh
[ "$1" = "geo" ] || exit 64
printf '%s\n' "$2" > "$ACTION_FILE"
while IFS='|' read -r prompt mode <&3; do
  printf '\033[1m?\033[0m %s\n' "$prompt"
  if [ "$mode" != "noread" ]; then
    read -r answer
    printf '%s\n' "$answer" >> "$ANSWERS_FILE"
  fi
done 3< "$PROMPTS_FILE"
exit 0
`

type fakeRun struct {
	client  *Client
	dir     string
	answers string
	action  string
}

func newFakeRun(t *testing.T, prompts []string) *fakeRun {
	t.Helper()
	dir := t.TempDir()

	cli := filepath.Join(dir, "amplify")
	require.NoError(t, os.WriteFile(cli, []byte(fakeCLI), 0755))

	promptsFile := filepath.Join(dir, "prompts")
	require.NoError(t, os.WriteFile(promptsFile, []byte(strings.Join(prompts, "\n")+"\n"), 0644))

	run := &fakeRun{
		dir:     dir,
		answers: filepath.Join(dir, "answers"),
		action:  filepath.Join(dir, "action"),
	}
	run.client = NewClient(cli, driver.Options{
		Timeout: 5 * time.Second,
		Env: []string{
			"PROMPTS_FILE=" + promptsFile,
			"ANSWERS_FILE=" + run.answers,
			"ACTION_FILE=" + run.action,
		},
	})
	return run
}

func (r *fakeRun) Answers(t *testing.T) []string {
	t.Helper()
	data, err := os.ReadFile(r.answers)
	require.NoError(t, err)
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}

func (r *fakeRun) Action(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(r.action)
	require.NoError(t, err)
	return strings.TrimSpace(string(data))
}

func TestAddMap(t *testing.T) {
	tests := []struct {
		name    string
		opts    []Option
		prompts []string
		answers []string
	}{
		{
			name: "defaults",
			prompts: []string{
				promptAddCapability,
				promptMapName,
				promptMapAccess,
				promptAdvancedSettings,
			},
			answers: []string{"", "", "", "n"},
		},
		{
			name: "first resource named",
			opts: []Option{WithFirstResource(), WithResourceName("myMap")},
			prompts: []string{
				promptAddCapability,
				promptMapName,
				promptMapAccess,
				promptCommercialAssets,
				promptPricingPlanSet + "|noread",
				promptAdvancedSettings,
			},
			answers: []string{"", "myMap", "", "n", "n"},
		},
		{
			name: "additional not default",
			opts: []Option{WithAdditional(false)},
			prompts: []string{
				promptAddCapability,
				promptMapName,
				promptMapAccess,
				promptAdvancedSettings,
				promptMapDefault,
			},
			answers: []string{"", "", "", "n", "n"},
		},
		{
			name: "additional default",
			opts: []Option{WithAdditional(true)},
			prompts: []string{
				promptAddCapability,
				promptMapName,
				promptMapAccess,
				promptAdvancedSettings,
				promptMapDefault,
			},
			answers: []string{"", "", "", "n", "y"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run := newFakeRun(t, tt.prompts)
			require.NoError(t, run.client.AddMap(context.Background(), run.dir, tt.opts...))
			require.Equal(t, tt.answers, run.Answers(t))
			require.Equal(t, "add", run.Action(t))
		})
	}
}

func TestAddPlaceIndexSelectsSecondCapability(t *testing.T) {
	run := newFakeRun(t, []string{
		promptAddCapability,
		promptPlaceIndexName,
		promptPlaceIndexAccess,
		promptAdvancedSettings,
		promptPlaceIndexDefault,
	})

	err := run.client.AddPlaceIndex(context.Background(), run.dir, WithAdditional(true), WithResourceName("myIndex"))
	require.NoError(t, err)

	answers := run.Answers(t)
	require.Equal(t, driver.KeyDownArrow, answers[0])
	require.Equal(t, []string{"myIndex", "", "n", "y"}, answers[1:])
}

func TestStaticFlows(t *testing.T) {
	tests := []struct {
		flow    string
		action  string
		prompts []string
		answers []string
	}{
		{
			flow:    "update-map",
			action:  "update",
			prompts: []string{"Select which capability you want to update:", "Select the Map you want to update", "Who can access this Map?"},
			answers: []string{"", "", driver.KeyDownArrow},
		},
		{
			flow:    "update-second-map-default",
			action:  "update",
			prompts: []string{"Select which capability you want to update:", "Select the Map you want to update", "Who can access this Map?", "Do you want to set this map as default?"},
			answers: []string{"", driver.KeyDownArrow, "", "y"},
		},
		{
			flow:    "update-place-index",
			action:  "update",
			prompts: []string{"Select which capability you want to update:", "Select the search index you want to update", "Who can access this Search Index?"},
			answers: []string{driver.KeyDownArrow, "", driver.KeyDownArrow},
		},
		{
			flow:    "update-second-place-index-default",
			action:  "update",
			prompts: []string{"Select which capability you want to update:", "Select the search index you want to update", "Who can access this Search Index?", "Do you want to set this search index as default?"},
			answers: []string{driver.KeyDownArrow, driver.KeyDownArrow, "", "y"},
		},
		{
			flow:    "remove-map",
			action:  "remove",
			prompts: []string{"Select which capability you want to remove:", "Select the Map you want to remove", "Are you sure you want to delete the resource?"},
			answers: []string{"", "", "y"},
		},
		{
			flow:    "remove-first-default-map",
			action:  "remove",
			prompts: []string{"Select which capability you want to remove:", "Select the Map you want to remove", "Select the Map you want to set as default:", "Are you sure you want to delete the resource?"},
			answers: []string{"", "", "", "y"},
		},
		{
			flow:    "remove-place-index",
			action:  "remove",
			prompts: []string{"Select which capability you want to remove:", "Select the PlaceIndex you want to remove", "Are you sure you want to delete the resource?"},
			answers: []string{driver.KeyDownArrow, "", "y"},
		},
		{
			flow:    "remove-first-default-place-index",
			action:  "remove",
			prompts: []string{"Select which capability you want to remove:", "Select the PlaceIndex you want to remove", "Select the search index you want to set as default:", "Are you sure you want to delete the resource?"},
			answers: []string{driver.KeyDownArrow, "", "", "y"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.flow, func(t *testing.T) {
			flow, ok := LookupFlow(tt.flow)
			require.True(t, ok)
			require.False(t, flow.Configurable)

			run := newFakeRun(t, tt.prompts)
			require.NoError(t, flow.Run(run.client, context.Background(), run.dir))
			require.Equal(t, tt.answers, run.Answers(t))
			require.Equal(t, tt.action, run.Action(t))
		})
	}
}

func TestMissingPromptFails(t *testing.T) {
	run := newFakeRun(t, []string{
		promptAddCapability,
		promptMapName,
	})
	run.client.Options.Timeout = 300 * time.Millisecond

	err := run.client.AddMap(context.Background(), run.dir, WithResourceName("myMap"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "geo-add-map")

	var exitErr *driver.UnexpectedExitError
	require.ErrorAs(t, err, &exitErr)
	require.Equal(t, promptMapAccess, exitErr.Pattern)
}

func TestAddScripts(t *testing.T) {
	script := AddMapScript(Config{FirstResource: true, Additional: true, Default: false, ResourceName: "{{weird}}"})
	rendered, err := scripts.RenderScript(script, map[string]string{"cli": "amplify"})
	require.NoError(t, err)
	require.Equal(t, []string{"geo", "add"}, rendered.Args)
	require.Equal(t, "{{weird}}", rendered.Steps[3].Content)

	lines := rendered.Describe()
	require.Equal(t, `wait  "Select which capability you want to add:"`, lines[0])
	require.Equal(t, "send  <no>", lines[len(lines)-1])

	placeIndex := AddPlaceIndexScript(DefaultConfig())
	require.Equal(t, scripts.StepTypeKey, placeIndex.Steps[1].Type)
	require.Equal(t, "down", placeIndex.Steps[1].Key)
	require.Len(t, placeIndex.Steps, 9)
}

func TestFlowsListsEveryFlow(t *testing.T) {
	flows := Flows()
	require.Len(t, flows, 10)
	require.Equal(t, "add-map", flows[0].Name)

	_, ok := LookupFlow("nope")
	require.False(t, ok)
}
