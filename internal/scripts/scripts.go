// Package scripts provides loading and rendering of declarative interactive scripts.
package scripts

// Script is a named command plus the ordered prompts and answers that drive it.
type Script struct {
	Name         string     `yaml:"name"`
	Description  string     `yaml:"description"`
	Command      string     `yaml:"command"`
	Args         []string   `yaml:"args,omitempty"`
	Steps        []Step     `yaml:"steps"`
	Variables    []Variable `yaml:"variables,omitempty"`
	Tags         []string   `yaml:"tags,omitempty"`
	Timeout      string     `yaml:"timeout,omitempty"`
	StripColors  *bool      `yaml:"strip_colors,omitempty"`
	AllowFailure bool       `yaml:"allow_failure,omitempty"`
	Source       string     `yaml:"-"` // file path or "builtin"
}

// Step is a single wait or send in a script.
type Step struct {
	Type    StepType `yaml:"type"`
	Pattern string   `yaml:"pattern,omitempty"`
	Content string   `yaml:"content,omitempty"`
	Key     string   `yaml:"key,omitempty"`
	Answer  string   `yaml:"answer,omitempty"`
	// IgnoreCase makes a wait match regardless of case.
	IgnoreCase bool `yaml:"ignore_case,omitempty"`
}

// Variable describes a template variable used in a script.
type Variable struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Default     string `yaml:"default,omitempty"`
	Required    bool   `yaml:"required"`
}

// StepType defines the kind of script step.
type StepType string

const (
	StepTypeWait      StepType = "wait"
	StepTypeWaitRegex StepType = "wait_regex"
	StepTypeSend      StepType = "send"
	StepTypeSendLine  StepType = "send_line"
	StepTypeKey       StepType = "key"
	StepTypeConfirm   StepType = "confirm"
)

// HasTag reports whether the script carries tag.
func (s *Script) HasTag(tag string) bool {
	for _, t := range s.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
