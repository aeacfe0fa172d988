package scripts

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/opencode-ai/e2ecore/internal/driver"
	"gopkg.in/yaml.v3"
)

// LoadScript reads a single script from disk.
func LoadScript(path string) (*Script, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("script path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script %s: %w", path, err)
	}

	script, err := parseScript(data)
	if err != nil {
		return nil, fmt.Errorf("parse script %s: %w", path, err)
	}
	script.Source = path
	return script, nil
}

func parseScript(data []byte) (*Script, error) {
	var script Script
	if err := yaml.Unmarshal(data, &script); err != nil {
		return nil, err
	}

	script.Name = strings.TrimSpace(script.Name)
	if script.Name == "" {
		return nil, fmt.Errorf("script name is required")
	}
	script.Description = strings.TrimSpace(script.Description)
	script.Command = strings.TrimSpace(script.Command)
	if script.Command == "" {
		return nil, fmt.Errorf("script command is required")
	}

	if len(script.Steps) == 0 {
		return nil, fmt.Errorf("script steps are required")
	}

	if script.Timeout = strings.TrimSpace(script.Timeout); script.Timeout != "" {
		timeout, err := time.ParseDuration(script.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout: %w", err)
		}
		if timeout <= 0 {
			return nil, fmt.Errorf("timeout must be greater than 0")
		}
	}

	seen := make(map[string]struct{})
	for i := range script.Variables {
		name := strings.TrimSpace(script.Variables[i].Name)
		if name == "" {
			return nil, fmt.Errorf("script variable name is required")
		}
		if _, exists := seen[name]; exists {
			return nil, fmt.Errorf("duplicate script variable %q", name)
		}
		seen[name] = struct{}{}
		script.Variables[i].Name = name
	}

	for i := range script.Steps {
		if err := normalizeStep(&script.Steps[i]); err != nil {
			return nil, fmt.Errorf("script step %d: %w", i+1, err)
		}
	}

	return &script, nil
}

// normalizeStep validates a step. Wait patterns and send content keep their
// whitespace since prompts and input are matched and sent byte for byte.
func normalizeStep(step *Step) error {
	stepType := strings.ToLower(strings.TrimSpace(string(step.Type)))
	step.Type = StepType(strings.ReplaceAll(stepType, "-", "_"))
	step.Key = strings.TrimSpace(step.Key)
	step.Answer = strings.ToLower(strings.TrimSpace(step.Answer))

	switch step.Type {
	case StepTypeWait:
		if step.Pattern == "" {
			return fmt.Errorf("wait pattern is required")
		}

	case StepTypeWaitRegex:
		if step.Pattern == "" {
			return fmt.Errorf("wait_regex pattern is required")
		}
		if !strings.Contains(step.Pattern, "{{") {
			if _, err := driver.NewRegexp(step.Pattern); err != nil {
				return err
			}
		}

	case StepTypeSend:
		if step.Content == "" {
			return fmt.Errorf("send content is required")
		}

	case StepTypeSendLine:
		// An empty line accepts the prompt's suggested default.

	case StepTypeKey:
		if step.Key == "" {
			return fmt.Errorf("key name is required")
		}
		if _, ok := driver.LookupKey(step.Key); !ok {
			return fmt.Errorf("unknown key %q", step.Key)
		}

	case StepTypeConfirm:
		if _, err := parseAnswer(step.Answer); err != nil {
			return err
		}

	default:
		return fmt.Errorf("unknown step type %q", step.Type)
	}

	return nil
}

func parseAnswer(answer string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes", "true":
		return true, nil
	case "n", "no", "false":
		return false, nil
	case "":
		return false, fmt.Errorf("confirm answer is required")
	default:
		return false, fmt.Errorf("invalid confirm answer %q", answer)
	}
}
