// Package cli implements the e2ecore command line.
package cli

import (
	"fmt"
	"os"

	"github.com/opencode-ai/e2ecore/internal/config"
	"github.com/opencode-ai/e2ecore/internal/logging"
	"github.com/spf13/cobra"
)

var (
	cfgFile        string
	jsonOutput     bool
	jsonlOutput    bool
	noColor        bool
	noProgress     bool
	nonInteractive bool

	appConfig *config.Config
)

// configFlags maps persistent flags to config keys.
var configFlags = map[string]string{
	"log-level":    "logging.level",
	"log-format":   "logging.format",
	"timeout":      "driver.timeout",
	"echo":         "driver.echo",
	"events-db":    "events.db_path",
	"metrics-file": "metrics.textfile",
	"cli-path":     "cli_path",
	"ssh-host":     "ssh.host",
	"ssh-port":     "ssh.port",
	"ssh-user":     "ssh.user",
	"ssh-key":      "ssh.key_path",
	"ssh-insecure": "ssh.insecure",
}

var rootCmd = &cobra.Command{
	Use:   "e2ecore",
	Short: "Drive interactive CLIs from scripts",
	Long: `e2ecore runs interactive command line programs on a pseudo-terminal,
waits for their prompts and answers them from a script.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig(cmd)
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default ~/.config/e2ecore/config.yaml)")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-format", "", "log format (console, json)")
	flags.Duration("timeout", 0, "inactivity timeout while waiting for output")
	flags.Bool("no-strip-colors", false, "match against raw output including ANSI escapes")
	flags.Bool("echo", false, "copy process output to stderr")
	flags.String("events-db", "", "record sessions and events in this SQLite database")
	flags.String("metrics-file", "", "write Prometheus metrics to this textfile on exit")
	flags.String("cli-path", "", "path of the CLI driven by geo flows")
	flags.String("ssh-host", "", "run commands on this host over SSH")
	flags.Int("ssh-port", 0, "SSH port")
	flags.String("ssh-user", "", "SSH user")
	flags.String("ssh-key", "", "SSH private key")
	flags.Bool("ssh-insecure", false, "skip SSH host key verification")
	flags.BoolVar(&jsonOutput, "json", false, "print results as JSON")
	flags.BoolVar(&jsonlOutput, "jsonl", false, "stream session events as JSON lines")
	flags.BoolVar(&noColor, "no-color", false, "disable colored output")
	flags.BoolVar(&noProgress, "no-progress", false, "disable progress output")
	flags.BoolVar(&nonInteractive, "non-interactive", false, "never prompt (unknown SSH host keys are rejected)")
}

func initConfig(cmd *cobra.Command) error {
	v := config.New()
	for flag, key := range configFlags {
		if f := cmd.Flags().Lookup(flag); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("bind flag %s: %w", flag, err)
			}
		}
	}
	if f := cmd.Flags().Lookup("no-strip-colors"); f != nil && f.Changed {
		v.Set("driver.strip_colors", false)
	}

	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return err
	}

	if err := logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: os.Stderr,
	}); err != nil {
		return err
	}

	appConfig = cfg
	return nil
}

// GetConfig returns the loaded configuration, or the defaults before the
// root command has run.
func GetConfig() *config.Config {
	if appConfig == nil {
		return config.DefaultConfig()
	}
	return appConfig
}

// IsJSONOutput reports whether --json was given.
func IsJSONOutput() bool {
	return jsonOutput
}

// IsJSONLOutput reports whether --jsonl was given.
func IsJSONLOutput() bool {
	return jsonlOutput
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		printError(os.Stderr, err)
		return exitCodeFor(err)
	}
	return 0
}
