package cli

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// executeCommand runs the root command with args and returns its stdout.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetCLIState(t)
	t.Cleanup(func() { resetCLIState(t) })

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()
	if stderr.Len() > 0 {
		t.Logf("stderr:\n%s", stderr.String())
	}
	return stdout.String(), err
}

// resetCLIState restores every flag to its default so commands can run
// repeatedly in one process.
func resetCLIState(t *testing.T) {
	t.Helper()
	var walk func(cmd *cobra.Command)
	walk = func(cmd *cobra.Command) {
		resetFlags(cmd.Flags())
		resetFlags(cmd.PersistentFlags())
		for _, child := range cmd.Commands() {
			walk(child)
		}
	}
	walk(rootCmd)
	appConfig = nil
}

func resetFlags(flags *pflag.FlagSet) {
	flags.VisitAll(func(f *pflag.Flag) {
		if slice, ok := f.Value.(pflag.SliceValue); ok {
			_ = slice.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	})
}

func isolateHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("E2ECORE_NO_PROGRESS", "1")
	t.Setenv("NO_COLOR", "1")
	return home
}

func TestInitConfigFlagsOverrideDefaults(t *testing.T) {
	isolateHome(t)

	_, err := executeCommand(t, "--timeout", "3s", "--no-strip-colors", "--cli-path", "/opt/amplify", "--ssh-host", "build-box", "geo", "list")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	cfg := GetConfig()
	if cfg.Driver.Timeout.String() != "3s" {
		t.Fatalf("timeout = %s, want 3s", cfg.Driver.Timeout)
	}
	if cfg.Driver.StripColors {
		t.Fatalf("expected --no-strip-colors to disable stripping")
	}
	if cfg.CLIPath != "/opt/amplify" {
		t.Fatalf("cli path = %q", cfg.CLIPath)
	}
	if cfg.SSH.Host != "build-box" || cfg.SSH.Port != 22 {
		t.Fatalf("ssh = %+v", cfg.SSH)
	}
}

func TestInitConfigEnvironment(t *testing.T) {
	isolateHome(t)
	t.Setenv("E2ECORE_DRIVER_TIMEOUT", "90s")

	if _, err := executeCommand(t, "geo", "list"); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if got := GetConfig().Driver.Timeout.String(); got != "1m30s" {
		t.Fatalf("timeout = %s, want 1m30s", got)
	}
}

func TestInitConfigRejectsBadLogFormat(t *testing.T) {
	isolateHome(t)

	if _, err := executeCommand(t, "--log-format", "xml", "geo", "list"); err == nil {
		t.Fatalf("expected invalid log format to fail")
	}
}

func TestGetConfigBeforeInit(t *testing.T) {
	resetCLIState(t)
	if GetConfig() == nil {
		t.Fatalf("expected defaults before init")
	}
}
