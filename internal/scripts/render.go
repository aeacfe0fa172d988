package scripts

import (
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/opencode-ai/e2ecore/internal/driver"
)

// Rendered is a script with variables applied, ready to run.
type Rendered struct {
	Name         string
	Command      string
	Args         []string
	Steps        []Step
	Timeout      time.Duration
	StripColors  *bool
	AllowFailure bool
}

// RenderScript applies vars to the command, args, wait patterns and send content.
func RenderScript(script *Script, vars map[string]string) (*Rendered, error) {
	if script == nil {
		return nil, fmt.Errorf("script is required")
	}

	data := make(map[string]string, len(vars))
	for key, value := range vars {
		data[key] = value
	}

	for _, variable := range script.Variables {
		value := strings.TrimSpace(data[variable.Name])
		if value == "" {
			if variable.Default != "" {
				data[variable.Name] = variable.Default
				continue
			}
			if variable.Required {
				return nil, fmt.Errorf("missing required variable %q", variable.Name)
			}
		}
	}

	command, err := renderText(script.Name, script.Command, data)
	if err != nil {
		return nil, fmt.Errorf("render script %q command: %w", script.Name, err)
	}
	command = strings.TrimSpace(command)
	if command == "" {
		return nil, fmt.Errorf("render script %q: command rendered empty", script.Name)
	}

	rendered := &Rendered{
		Name:         script.Name,
		Command:      command,
		Args:         make([]string, 0, len(script.Args)),
		Steps:        make([]Step, 0, len(script.Steps)),
		StripColors:  script.StripColors,
		AllowFailure: script.AllowFailure,
	}

	for i, arg := range script.Args {
		value, err := renderText(script.Name, arg, data)
		if err != nil {
			return nil, fmt.Errorf("render script %q arg %d: %w", script.Name, i+1, err)
		}
		rendered.Args = append(rendered.Args, value)
	}

	if script.Timeout != "" {
		timeout, err := time.ParseDuration(script.Timeout)
		if err != nil {
			return nil, fmt.Errorf("render script %q: invalid timeout: %w", script.Name, err)
		}
		rendered.Timeout = timeout
	}

	for i, step := range script.Steps {
		out := step
		switch step.Type {
		case StepTypeWait, StepTypeWaitRegex:
			out.Pattern, err = renderText(script.Name, step.Pattern, data)
			if err != nil {
				return nil, fmt.Errorf("render script %q step %d: %w", script.Name, i+1, err)
			}
			if out.Pattern == "" {
				return nil, fmt.Errorf("render script %q step %d: pattern rendered empty", script.Name, i+1)
			}
			if step.Type == StepTypeWaitRegex {
				if _, err := driver.NewRegexp(out.Pattern); err != nil {
					return nil, fmt.Errorf("render script %q step %d: %w", script.Name, i+1, err)
				}
			}

		case StepTypeSend, StepTypeSendLine:
			out.Content, err = renderText(script.Name, step.Content, data)
			if err != nil {
				return nil, fmt.Errorf("render script %q step %d: %w", script.Name, i+1, err)
			}

		case StepTypeKey:
			if _, ok := driver.LookupKey(step.Key); !ok {
				return nil, fmt.Errorf("render script %q step %d: unknown key %q", script.Name, i+1, step.Key)
			}

		case StepTypeConfirm:
			if _, err := parseAnswer(step.Answer); err != nil {
				return nil, fmt.Errorf("render script %q step %d: %w", script.Name, i+1, err)
			}

		default:
			return nil, fmt.Errorf("render script %q step %d: unknown step type %q", script.Name, i+1, step.Type)
		}
		rendered.Steps = append(rendered.Steps, out)
	}

	return rendered, nil
}

// Spawn builds a driver session for the rendered script. Script-level
// timeout and colour settings override opts.
func (r *Rendered) Spawn(opts driver.Options) *driver.Session {
	if r.Timeout > 0 {
		opts.Timeout = r.Timeout
	}
	if r.StripColors != nil {
		opts.StripColors = *r.StripColors
	}
	if opts.Name == "" {
		opts.Name = r.Name
	}

	session := driver.Spawn(r.Command, r.Args, opts)
	r.Apply(session)
	if r.AllowFailure {
		session.AllowNonZeroExit()
	}
	return session
}

// Apply appends the rendered steps to session.
func (r *Rendered) Apply(session *driver.Session) *driver.Session {
	for _, step := range r.Steps {
		switch step.Type {
		case StepTypeWait:
			if step.IgnoreCase {
				session.WaitFor(driver.Fold(step.Pattern))
			} else {
				session.Wait(step.Pattern)
			}
		case StepTypeWaitRegex:
			session.WaitFor(driver.MustRegexp(step.Pattern))
		case StepTypeSend:
			session.Send(step.Content)
		case StepTypeSendLine:
			if step.Content == "" {
				session.SendCarriageReturn()
			} else {
				session.SendLine(step.Content)
			}
		case StepTypeKey:
			seq, _ := driver.LookupKey(step.Key)
			session.Append(driver.SendKey(strings.ToLower(step.Key), seq))
		case StepTypeConfirm:
			if yes, _ := parseAnswer(step.Answer); yes {
				session.SendConfirmYes()
			} else {
				session.SendConfirmNo()
			}
		}
	}
	return session
}

// Describe renders each step as a short human-readable line.
func (r *Rendered) Describe() []string {
	lines := make([]string, 0, len(r.Steps))
	for _, step := range r.Steps {
		lines = append(lines, describeStep(step))
	}
	return lines
}

func describeStep(step Step) string {
	switch step.Type {
	case StepTypeWait:
		if step.IgnoreCase {
			return fmt.Sprintf("wait  %q (ignore case)", step.Pattern)
		}
		return fmt.Sprintf("wait  %q", step.Pattern)
	case StepTypeWaitRegex:
		return fmt.Sprintf("wait  /%s/", step.Pattern)
	case StepTypeSend:
		return fmt.Sprintf("send  %q", step.Content)
	case StepTypeSendLine:
		if step.Content == "" {
			return "send  <cr>"
		}
		return fmt.Sprintf("line  %q", step.Content)
	case StepTypeKey:
		return fmt.Sprintf("key   <%s>", strings.ToLower(step.Key))
	case StepTypeConfirm:
		if yes, _ := parseAnswer(step.Answer); yes {
			return "send  <yes>"
		}
		return "send  <no>"
	default:
		return string(step.Type)
	}
}

func renderText(name, content string, data map[string]string) (string, error) {
	if !strings.Contains(content, "{{") {
		return content, nil
	}

	parsed, err := template.New(name).
		Funcs(template.FuncMap{"default": defaultValue}).
		Option("missingkey=zero").
		Parse(content)
	if err != nil {
		return "", fmt.Errorf("parse template %q: %w", name, err)
	}

	var out strings.Builder
	if err := parsed.Execute(&out, data); err != nil {
		return "", fmt.Errorf("render template %q: %w", name, err)
	}

	return out.String(), nil
}

func defaultValue(def string, value any) string {
	if value == nil {
		return def
	}

	switch v := value.(type) {
	case string:
		if strings.TrimSpace(v) == "" {
			return def
		}
		return v
	default:
		text := strings.TrimSpace(fmt.Sprint(v))
		if text == "" {
			return def
		}
		return text
	}
}
