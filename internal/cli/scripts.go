package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/opencode-ai/e2ecore/internal/scripts"
	"github.com/spf13/cobra"
)

var (
	scriptsListTags []string
	scriptsShowVars []string
	scriptsDir      string
)

func init() {
	rootCmd.AddCommand(scriptsCmd)
	scriptsCmd.AddCommand(scriptsListCmd)
	scriptsCmd.AddCommand(scriptsShowCmd)

	scriptsCmd.PersistentFlags().StringVar(&scriptsDir, "project", "", "project directory to search for .e2ecore/scripts (default current directory)")
	scriptsListCmd.Flags().StringSliceVar(&scriptsListTags, "tag", nil, "only list scripts with one of these tags")
	scriptsShowCmd.Flags().StringSliceVar(&scriptsShowVars, "var", nil, "variable for rendering the preview (key=value)")
}

var scriptsCmd = &cobra.Command{
	Use:   "scripts",
	Short: "List and inspect scripts",
	Long: `Scripts are YAML files describing a command and the prompts it answers.
They are loaded from .e2ecore/scripts in the project, ~/.config/e2ecore/scripts,
/usr/share/e2ecore/scripts and the built-in set, first match wins.`,
}

var scriptsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available scripts",
	RunE: func(cmd *cobra.Command, args []string) error {
		projectDir, err := resolveProjectDir(scriptsDir)
		if err != nil {
			return err
		}
		catalog, err := scripts.LoadCatalog(projectDir)
		if err != nil {
			return err
		}
		items := filterScripts(catalog.Scripts(), scriptsListTags)

		out := cmd.OutOrStdout()
		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(out, items)
		}
		if len(items) == 0 {
			fmt.Fprintln(out, "No scripts found.")
			return nil
		}

		userDir, projectScripts := scriptDirs(projectDir)
		table := make([][]string, 0, len(items))
		for _, script := range items {
			table = append(table, []string{
				script.Name,
				scriptSourceLabel(script.Source, userDir, projectScripts),
				fmt.Sprintf("%d", len(script.Steps)),
				strings.Join(script.Tags, ","),
				script.Description,
			})
		}
		return writeTable(out, []string{"NAME", "SOURCE", "STEPS", "TAGS", "DESCRIPTION"}, table)
	},
}

var scriptsShowCmd = &cobra.Command{
	Use:   "show <name|file>",
	Short: "Show a script and its rendered steps",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		projectDir, err := resolveProjectDir(scriptsDir)
		if err != nil {
			return err
		}
		catalog, err := scripts.LoadCatalog(projectDir)
		if err != nil {
			return err
		}
		script, err := catalog.Resolve(args[0])
		if err != nil {
			return err
		}

		vars, err := parseScriptVars(scriptsShowVars)
		if err != nil {
			return err
		}
		rendered, renderErr := scripts.RenderScript(script, withCLIVar(script, vars))

		out := cmd.OutOrStdout()
		if IsJSONOutput() || IsJSONLOutput() {
			return WriteOutput(out, script)
		}

		userDir, projectScripts := scriptDirs(projectDir)
		fmt.Fprintf(out, "%s  %s\n", bold(script.Name), colorize(scriptSourceLabel(script.Source, userDir, projectScripts), colorMuted))
		if script.Description != "" {
			fmt.Fprintln(out, script.Description)
		}
		for _, hidden := range catalog.Shadowed(script.Name) {
			if hidden == script.Source {
				continue
			}
			fmt.Fprintf(out, "%s %s\n", colorize("overrides", colorMuted), scriptSourceLabel(hidden, userDir, projectScripts))
		}
		fmt.Fprintf(out, "\nCommand: %s %s\n", script.Command, strings.Join(script.Args, " "))
		if script.Timeout != "" {
			fmt.Fprintf(out, "Timeout: %s\n", script.Timeout)
		}
		if len(script.Variables) > 0 {
			fmt.Fprintln(out, "\nVariables:")
			for _, variable := range script.Variables {
				fmt.Fprintf(out, "  %s\n", formatScriptVariable(variable))
			}
		}

		fmt.Fprintln(out, "\nSteps:")
		if renderErr != nil {
			for i, step := range script.Steps {
				fmt.Fprintf(out, "  %2d. %s\n", i+1, formatScriptStep(step))
			}
			fmt.Fprintf(out, "\n%s %v\n", colorize("cannot render:", colorYellow), renderErr)
			return nil
		}
		for i, line := range rendered.Describe() {
			fmt.Fprintf(out, "  %2d. %s\n", i+1, line)
		}
		return nil
	},
}

func resolveProjectDir(dir string) (string, error) {
	if strings.TrimSpace(dir) != "" {
		return filepath.Abs(dir)
	}
	return os.Getwd()
}

func scriptDirs(projectDir string) (userDir, projectScripts string) {
	for _, layer := range scripts.SearchLayers(projectDir) {
		switch layer.Name {
		case scripts.LayerUser:
			userDir = layer.Dir
		case scripts.LayerProject:
			projectScripts = layer.Dir
		}
	}
	return userDir, projectScripts
}

func filterScripts(items []*scripts.Script, tags []string) []*scripts.Script {
	if len(tags) == 0 {
		return items
	}
	filtered := make([]*scripts.Script, 0, len(items))
	for _, item := range items {
		for _, tag := range tags {
			if item.HasTag(strings.TrimSpace(tag)) {
				filtered = append(filtered, item)
				break
			}
		}
	}
	return filtered
}

// parseScriptVars parses key=value pairs; a single flag value may hold
// several comma separated pairs.
func parseScriptVars(values []string) (map[string]string, error) {
	vars := make(map[string]string)
	for _, value := range values {
		for _, pair := range strings.Split(value, ",") {
			pair = strings.TrimSpace(pair)
			if pair == "" {
				continue
			}
			key, val, ok := strings.Cut(pair, "=")
			if !ok {
				return nil, fmt.Errorf("invalid variable %q (expected key=value)", pair)
			}
			key = strings.TrimSpace(key)
			if key == "" {
				return nil, fmt.Errorf("invalid variable %q (empty key)", pair)
			}
			vars[key] = val
		}
	}
	return vars, nil
}

// withCLIVar fills the "cli" variable from the configured CLI path for
// scripts that declare it.
func withCLIVar(script *scripts.Script, vars map[string]string) map[string]string {
	if _, ok := vars["cli"]; ok {
		return vars
	}
	cliPath := strings.TrimSpace(GetConfig().CLIPath)
	if cliPath == "" {
		return vars
	}
	for _, variable := range script.Variables {
		if variable.Name == "cli" {
			vars["cli"] = cliPath
			break
		}
	}
	return vars
}

func scriptSourceLabel(source, userDir, projectDir string) string {
	switch {
	case source == scripts.LayerBuiltin:
		return scripts.LayerBuiltin
	case projectDir != "" && strings.HasPrefix(source, projectDir+string(filepath.Separator)):
		return "project"
	case userDir != "" && strings.HasPrefix(source, userDir+string(filepath.Separator)):
		return "user"
	default:
		return "file"
	}
}

func formatScriptStep(step scripts.Step) string {
	switch step.Type {
	case scripts.StepTypeWait, scripts.StepTypeWaitRegex:
		return fmt.Sprintf("[%s] %s", step.Type, step.Pattern)
	case scripts.StepTypeKey:
		return fmt.Sprintf("[key] %s", step.Key)
	case scripts.StepTypeConfirm:
		return fmt.Sprintf("[confirm] %s", step.Answer)
	default:
		return fmt.Sprintf("[%s] %s", step.Type, step.Content)
	}
}

func formatScriptVariable(variable scripts.Variable) string {
	parts := []string{variable.Name}
	if variable.Required {
		parts = append(parts, "(required)")
	}
	if variable.Default != "" {
		parts = append(parts, fmt.Sprintf("[default: %s]", variable.Default))
	}
	if variable.Description != "" {
		parts = append(parts, "- "+variable.Description)
	}
	return strings.Join(parts, " ")
}
