package cli

import "os"

// IsNonInteractive reports whether prompts should be skipped.
func IsNonInteractive() bool {
	if nonInteractive {
		return true
	}
	if _, ok := os.LookupEnv("E2ECORE_NON_INTERACTIVE"); ok {
		return true
	}
	return !hasTTY()
}

// IsInteractive reports whether the command can prompt for user input.
func IsInteractive() bool {
	return !IsNonInteractive()
}
