package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/opencode-ai/e2ecore/internal/driver"
	"github.com/opencode-ai/e2ecore/internal/scripts"
	"github.com/spf13/cobra"
)

var (
	runVars         []string
	runCwd          string
	runCommand      string
	runAllowFailure bool
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringSliceVar(&runVars, "var", nil, "script variable (key=value, repeatable)")
	runCmd.Flags().StringVar(&runCwd, "cwd", "", "working directory for the command (default current directory)")
	runCmd.Flags().StringVar(&runCommand, "command", "", "override the script's command")
	runCmd.Flags().BoolVar(&runAllowFailure, "allow-failure", false, "treat a non-zero exit after all steps as success")
}

var runCmd = &cobra.Command{
	Use:   "run <script|file>",
	Short: "Run a script",
	Long: `Run a script by name or from a YAML file. The command is started on a
pseudo-terminal (or on --ssh-host), each wait step blocks until its pattern
appears in the output and each send step answers it.`,
	Example: `  e2ecore run geo-remove-map --cwd ./my-app
  e2ecore run ./scripts/init.yaml --var name=demo --echo`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cwd, err := resolveProjectDir(runCwd)
		if err != nil {
			return err
		}

		catalog, err := scripts.LoadCatalog(cwd)
		if err != nil {
			return err
		}
		script, err := catalog.Resolve(args[0])
		if err != nil {
			return &PreflightError{
				Message:  err.Error(),
				Hint:     "Pass a script name or a path to a .yaml file",
				NextStep: "e2ecore scripts list",
			}
		}

		vars, err := parseScriptVars(runVars)
		if err != nil {
			return err
		}
		rendered, err := scripts.RenderScript(script, withCLIVar(script, vars))
		if err != nil {
			return err
		}
		if strings.TrimSpace(runCommand) != "" {
			rendered.Command = strings.TrimSpace(runCommand)
		}
		if runAllowFailure {
			rendered.AllowFailure = true
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		rt, err := newSessionRuntime(GetConfig(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer rt.Close()

		opts := rt.options
		opts.Dir = cwd
		session := rendered.Spawn(opts)
		return runSession(ctx, cmd.OutOrStdout(), cmd.ErrOrStderr(), script.Name, session)
	},
}

// runResult is the --json payload for a finished session.
type runResult struct {
	SessionID  string        `json:"session_id"`
	Name       string        `json:"name"`
	Command    string        `json:"command"`
	Outcome    driver.State  `json:"outcome"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration_ns"`
	Transcript []string      `json:"transcript,omitempty"`
}

func runSession(ctx context.Context, stdout, stderr io.Writer, name string, session *driver.Session) error {
	progress := startProgress(stderr, fmt.Sprintf("Running %s", name))
	started := time.Now()
	err := session.Run(ctx)
	elapsed := time.Since(started)

	if err != nil {
		progress.Fail(err)
	} else {
		progress.Done()
	}

	if IsJSONOutput() {
		result := runResult{
			SessionID:  session.ID(),
			Name:       name,
			Command:    session.Command().String(),
			Outcome:    session.State(),
			Duration:   elapsed,
			Transcript: session.Transcript(),
		}
		if err != nil {
			result.Error = err.Error()
		}
		if writeErr := WriteOutput(stdout, result); writeErr != nil {
			return writeErr
		}
		return err
	}

	if err != nil && !IsJSONLOutput() {
		if lines := session.Transcript(); len(lines) > 0 {
			fmt.Fprintln(stderr, colorize("last output:", colorMuted))
			for _, line := range lines {
				fmt.Fprintf(stderr, "  %s\n", line)
			}
		}
	}
	return err
}
