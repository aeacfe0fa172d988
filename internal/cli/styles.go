package cli

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

const (
	colorRed     = "1"
	colorGreen   = "2"
	colorYellow  = "3"
	colorMagenta = "5"
	colorCyan    = "6"
	colorMuted   = "8"
)

func colorEnabled() bool {
	if noColor || IsJSONOutput() || IsJSONLOutput() {
		return false
	}
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func colorize(text, color string) string {
	if !colorEnabled() || color == "" {
		return text
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Render(text)
}

func bold(text string) string {
	if !colorEnabled() {
		return text
	}
	return lipgloss.NewStyle().Bold(true).Render(text)
}

func hasTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}
