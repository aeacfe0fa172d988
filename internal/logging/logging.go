// Package logging configures the process-wide zerolog logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config controls logger output.
type Config struct {
	Level  string
	Format string // "console" or "json"
	Output io.Writer
}

var (
	mu   sync.RWMutex
	base = zerolog.New(os.Stderr).With().Timestamp().Logger().Level(zerolog.WarnLevel)
)

// Init replaces the base logger. It is safe to call more than once.
func Init(cfg Config) error {
	level := zerolog.InfoLevel
	if strings.TrimSpace(cfg.Level) != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		level = parsed
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "", "console", "text":
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	case "json":
	default:
		return fmt.Errorf("invalid log format %q", cfg.Format)
	}

	logger := zerolog.New(out).With().Timestamp().Logger().Level(level)

	mu.Lock()
	base = logger
	mu.Unlock()
	return nil
}

// Logger returns the base logger.
func Logger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// Component returns a child logger tagged with the component name.
func Component(name string) zerolog.Logger {
	return Logger().With().Str("component", name).Logger()
}
