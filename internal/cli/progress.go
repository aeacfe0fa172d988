package cli

import (
	"fmt"
	"io"
	"os"
	"time"
)

// progressStep prints "label... ok (1.2s)" around a session run.
type progressStep struct {
	out     io.Writer
	label   string
	started time.Time
}

func startProgress(out io.Writer, label string) *progressStep {
	if !progressEnabled() {
		return nil
	}
	fmt.Fprintf(out, "%s... ", label)
	return &progressStep{out: out, label: label, started: time.Now()}
}

func (p *progressStep) Done() {
	if p == nil {
		return
	}
	fmt.Fprintf(p.out, "%s (%s)\n", colorize("ok", colorGreen), formatDuration(time.Since(p.started)))
}

func (p *progressStep) Fail(err error) {
	if p == nil {
		return
	}
	if err != nil {
		fmt.Fprintf(p.out, "%s (%s)\n", colorize("failed", colorRed), formatDuration(time.Since(p.started)))
		return
	}
	fmt.Fprintln(p.out, colorize("failed", colorRed))
}

func progressEnabled() bool {
	if IsJSONOutput() || IsJSONLOutput() || noProgress {
		return false
	}
	// Echoed process output would interleave with the progress line.
	if GetConfig().Driver.Echo {
		return false
	}
	if _, ok := os.LookupEnv("E2ECORE_NO_PROGRESS"); ok {
		return false
	}
	if _, ok := os.LookupEnv("NO_PROGRESS"); ok {
		return false
	}
	return true
}

func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return d.String()
	}
	if d < time.Second {
		return d.Round(10 * time.Millisecond).String()
	}
	return d.Round(100 * time.Millisecond).String()
}
