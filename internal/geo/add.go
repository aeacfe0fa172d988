package geo

import (
	"strconv"
	"strings"

	"github.com/opencode-ai/e2ecore/internal/scripts"
)

// AddMapScript builds the "geo add" script for a map under cfg.
func AddMapScript(cfg Config) *scripts.Script {
	b := newBuilder("geo-add-map", "Add a map with default values", "map")
	b.wait(promptAddCapability).key("enter")
	b.wait(promptMapName).line(cfg.ResourceName)
	b.wait(promptMapAccess).key("enter")
	b.pricingPlan(cfg)
	b.wait(promptAdvancedSettings).confirm(false)
	if cfg.Additional {
		b.wait(promptMapDefault).confirm(cfg.Default)
	}
	return b.script
}

// AddPlaceIndexScript builds the "geo add" script for a place index under cfg.
func AddPlaceIndexScript(cfg Config) *scripts.Script {
	b := newBuilder("geo-add-place-index", "Add a place index with default values", "place-index")
	b.wait(promptAddCapability).key("down").key("enter")
	b.wait(promptPlaceIndexName).line(cfg.ResourceName)
	b.wait(promptPlaceIndexAccess).key("enter")
	b.pricingPlan(cfg)
	b.wait(promptAdvancedSettings).confirm(false)
	if cfg.Additional {
		b.wait(promptPlaceIndexDefault).confirm(cfg.Default)
	}
	return b.script
}

type builder struct {
	script *scripts.Script
}

func newBuilder(name, description, kind string) *builder {
	strip := true
	return &builder{script: &scripts.Script{
		Name:        name,
		Description: description,
		Command:     "{{.cli}}",
		Args:        []string{"geo", "add"},
		Tags:        []string{"geo", kind},
		StripColors: &strip,
		Variables: []scripts.Variable{
			{Name: "cli", Description: "Path to the CLI under test", Default: DefaultCLIPath},
		},
		Source: "builtin",
	}}
}

func (b *builder) add(step scripts.Step) *builder {
	b.script.Steps = append(b.script.Steps, step)
	return b
}

func (b *builder) wait(pattern string) *builder {
	return b.add(scripts.Step{Type: scripts.StepTypeWait, Pattern: pattern})
}

// line types text verbatim at a prompt.
func (b *builder) line(text string) *builder {
	return b.add(scripts.Step{Type: scripts.StepTypeSendLine, Content: escapeTemplate(text)})
}

func (b *builder) key(name string) *builder {
	return b.add(scripts.Step{Type: scripts.StepTypeKey, Key: name})
}

func (b *builder) confirm(yes bool) *builder {
	answer := "no"
	if yes {
		answer = "yes"
	}
	return b.add(scripts.Step{Type: scripts.StepTypeConfirm, Answer: answer})
}

// pricingPlan adds the questions asked for the first geo resource of a project.
func (b *builder) pricingPlan(cfg Config) {
	if !cfg.FirstResource {
		return
	}
	b.wait(promptCommercialAssets).confirm(false)
	b.wait(promptPricingPlanSet)
}

// escapeTemplate quotes text that would otherwise be parsed as a template.
func escapeTemplate(text string) string {
	if !strings.Contains(text, "{{") {
		return text
	}
	return "{{" + strconv.Quote(text) + "}}"
}
