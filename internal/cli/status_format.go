package cli

import (
	"fmt"
	"strings"

	"github.com/opencode-ai/e2ecore/internal/models"
)

func formatSessionOutcome(outcome models.SessionOutcome) string {
	label, color := statusLabelForOutcome(outcome)
	return colorize(formatStatusLabel(label, string(outcome)), color)
}

func statusLabelForOutcome(outcome models.SessionOutcome) (string, string) {
	switch outcome {
	case models.SessionOutcomeSucceeded:
		return "OK", colorGreen
	case models.SessionOutcomeRunning:
		return "BUSY", colorCyan
	case models.SessionOutcomeTimedOut:
		return "WAIT", colorYellow
	case models.SessionOutcomeCancelled:
		return "WARN", colorMagenta
	case models.SessionOutcomeFailed:
		return "ERR", colorRed
	default:
		return "WARN", colorYellow
	}
}

func formatStatusLabel(label, status string) string {
	normalized := strings.TrimSpace(status)
	if normalized != "" {
		normalized = strings.ReplaceAll(normalized, "_", " ")
	}
	if normalized == "" {
		return label
	}
	return fmt.Sprintf("%s %s", label, normalized)
}
