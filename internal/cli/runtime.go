package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/opencode-ai/e2ecore/internal/config"
	"github.com/opencode-ai/e2ecore/internal/db"
	"github.com/opencode-ai/e2ecore/internal/driver"
	"github.com/opencode-ai/e2ecore/internal/logging"
	"github.com/opencode-ai/e2ecore/internal/metrics"
	"github.com/opencode-ai/e2ecore/internal/ssh"
)

// sessionRuntime holds the sinks and launcher shared by the sessions of one
// command invocation.
type sessionRuntime struct {
	cfg      *config.Config
	options  driver.Options
	sinks    driver.MultiSink
	recorder *metrics.Recorder
}

func newSessionRuntime(cfg *config.Config, stdout, stderr io.Writer) (*sessionRuntime, error) {
	rt := &sessionRuntime{cfg: cfg}

	if path := strings.TrimSpace(cfg.Events.DBPath); path != "" {
		database, err := openDatabaseAt(path)
		if err != nil {
			return nil, err
		}
		rt.sinks = append(rt.sinks, driver.NewDatabaseEventSink(database, true))
	}
	if strings.TrimSpace(cfg.Metrics.Textfile) != "" {
		rt.recorder = metrics.NewRecorder()
		rt.sinks = append(rt.sinks, rt.recorder)
	}
	if IsJSONLOutput() {
		rt.sinks = append(rt.sinks, driver.NewWriterEventSink(nopCloser{stdout}))
	}

	rt.options = driver.Options{
		StripColors:     cfg.Driver.StripColors,
		Timeout:         cfg.Driver.Timeout,
		TranscriptLines: cfg.Driver.TranscriptLines,
	}
	if len(rt.sinks) > 0 {
		rt.options.EventSink = rt.sinks
	}
	if cfg.Driver.Echo {
		rt.options.Echo = stderr
	}
	if cfg.SSH.Enabled() {
		rt.options.Launcher = newSSHLauncher(cfg.SSH)
	}
	return rt, nil
}

func newSSHLauncher(cfg config.SSHConfig) *ssh.Launcher {
	var prompt ssh.HostKeyPrompt
	if IsInteractive() {
		prompt = ssh.TerminalPrompt(os.Stdin, os.Stderr)
	}
	return ssh.NewLauncher(ssh.ConnectionOptions{
		Host:           cfg.Host,
		Port:           cfg.Port,
		User:           cfg.User,
		KeyPath:        cfg.KeyPath,
		KnownHostsPath: cfg.KnownHosts,
		Insecure:       cfg.Insecure,
		Timeout:        cfg.Timeout,
	}, prompt)
}

// Close flushes metrics and closes every sink.
func (rt *sessionRuntime) Close() error {
	var errs []error
	if rt.recorder != nil {
		if err := rt.recorder.WriteTextfile(expandPath(rt.cfg.Metrics.Textfile)); err != nil {
			errs = append(errs, err)
		}
	}
	if err := rt.sinks.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		logger := logging.Component("cli")
		logger.Warn().Err(err).Msg("failed to close session runtime")
		return err
	}
	return nil
}

func openDatabaseAt(path string) (*db.DB, error) {
	database, err := db.Open(expandPath(path))
	if err != nil {
		return nil, fmt.Errorf("open events database: %w", err)
	}
	return database, nil
}

// openDatabase opens the configured events database for read commands.
func openDatabase() (*db.DB, error) {
	path := strings.TrimSpace(GetConfig().Events.DBPath)
	if path == "" {
		return nil, &PreflightError{
			Message:  "no events database configured",
			Hint:     "Record sessions with --events-db or set events.db_path in the config file",
			NextStep: "e2ecore --events-db ~/.local/share/e2ecore/sessions.db sessions list",
		}
	}
	if _, err := os.Stat(expandPath(path)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &PreflightError{
				Message: fmt.Sprintf("events database %s does not exist", path),
				Hint:    "Run a script or geo flow with the same --events-db first",
			}
		}
		return nil, err
	}
	return openDatabaseAt(path)
}

// expandPath resolves a leading ~ to the home directory.
func expandPath(path string) string {
	path = strings.TrimSpace(path)
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
