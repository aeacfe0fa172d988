// Package geo drives the interactive "geo" category of the CLI under test.
package geo

import (
	"context"
	"fmt"
	"strings"

	"github.com/opencode-ai/e2ecore/internal/driver"
	"github.com/opencode-ai/e2ecore/internal/logging"
	"github.com/opencode-ai/e2ecore/internal/scripts"
)

// DefaultCLIPath is used when a Client has no CLI path.
const DefaultCLIPath = "amplify"

// Prompts shown by the geo category.
const (
	promptAddCapability     = "Select which capability you want to add:"
	promptMapName           = "Provide a name for the Map:"
	promptPlaceIndexName    = "Provide a name for the location search index (place index):"
	promptMapAccess         = "Who can access this Map?"
	promptPlaceIndexAccess  = "Who can access this Search Index?"
	promptCommercialAssets  = "Are you tracking commercial assets for your business in your app?"
	promptPricingPlanSet    = "Successfully set RequestBasedUsage pricing plan for your Geo resources."
	promptAdvancedSettings  = "Do you want to configure advanced settings?"
	promptMapDefault        = "Do you want to set this map as default?"
	promptPlaceIndexDefault = "Do you want to set this search index as default?"
)

// Config selects the optional prompts of the add flows.
type Config struct {
	// FirstResource expects the pricing plan questions shown for the first
	// geo resource in a project.
	FirstResource bool
	// Additional expects the "set as default" question shown once another
	// resource of the same kind exists.
	Additional bool
	// Default is the answer to the "set as default" question.
	Default bool
	// ResourceName is typed at the name prompt; empty accepts the suggestion.
	ResourceName string
}

// DefaultConfig returns the configuration used when no options are given.
func DefaultConfig() Config {
	return Config{Default: true}
}

// Option adjusts a Config.
type Option func(*Config)

// WithFirstResource marks the resource as the first geo resource in the project.
func WithFirstResource() Option {
	return func(c *Config) { c.FirstResource = true }
}

// WithAdditional marks the resource as an additional one and answers the
// default question with isDefault.
func WithAdditional(isDefault bool) Option {
	return func(c *Config) {
		c.Additional = true
		c.Default = isDefault
	}
}

// WithResourceName types name instead of accepting the suggested one.
func WithResourceName(name string) Option {
	return func(c *Config) { c.ResourceName = name }
}

func newConfig(opts []Option) Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// Client runs geo flows against one CLI binary.
type Client struct {
	CLIPath string
	// Options are the base session options; Dir is set per call and colour
	// stripping is always on.
	Options driver.Options
}

// NewClient returns a client for the CLI at cliPath.
func NewClient(cliPath string, opts driver.Options) *Client {
	return &Client{CLIPath: cliPath, Options: opts}
}

func (c *Client) cliPath() string {
	if strings.TrimSpace(c.CLIPath) == "" {
		return DefaultCLIPath
	}
	return c.CLIPath
}

// AddMap adds a map, accepting defaults. Auth must already be configured.
func (c *Client) AddMap(ctx context.Context, cwd string, opts ...Option) error {
	return c.run(ctx, cwd, AddMapScript(newConfig(opts)))
}

// AddPlaceIndex adds a place index, accepting defaults. Auth must already be configured.
func (c *Client) AddPlaceIndex(ctx context.Context, cwd string, opts ...Option) error {
	return c.run(ctx, cwd, AddPlaceIndexScript(newConfig(opts)))
}

// UpdateMap changes who can access the first map.
func (c *Client) UpdateMap(ctx context.Context, cwd string) error {
	return c.runBuiltin(ctx, cwd, "geo-update-map")
}

// UpdateSecondMapAsDefault makes the second of two maps the default.
func (c *Client) UpdateSecondMapAsDefault(ctx context.Context, cwd string) error {
	return c.runBuiltin(ctx, cwd, "geo-update-second-map-default")
}

// UpdatePlaceIndex changes who can access the first place index.
func (c *Client) UpdatePlaceIndex(ctx context.Context, cwd string) error {
	return c.runBuiltin(ctx, cwd, "geo-update-place-index")
}

// UpdateSecondPlaceIndexAsDefault makes the second of two place indexes the default.
func (c *Client) UpdateSecondPlaceIndexAsDefault(ctx context.Context, cwd string) error {
	return c.runBuiltin(ctx, cwd, "geo-update-second-place-index-default")
}

// RemoveMap removes the first map.
func (c *Client) RemoveMap(ctx context.Context, cwd string) error {
	return c.runBuiltin(ctx, cwd, "geo-remove-map")
}

// RemoveFirstDefaultMap removes the default map of two and keeps the other as default.
func (c *Client) RemoveFirstDefaultMap(ctx context.Context, cwd string) error {
	return c.runBuiltin(ctx, cwd, "geo-remove-first-default-map")
}

// RemovePlaceIndex removes the first place index.
func (c *Client) RemovePlaceIndex(ctx context.Context, cwd string) error {
	return c.runBuiltin(ctx, cwd, "geo-remove-place-index")
}

// RemoveFirstDefaultPlaceIndex removes the default place index of two and
// keeps the other as default.
func (c *Client) RemoveFirstDefaultPlaceIndex(ctx context.Context, cwd string) error {
	return c.runBuiltin(ctx, cwd, "geo-remove-first-default-place-index")
}

func (c *Client) runBuiltin(ctx context.Context, cwd, name string) error {
	script, err := scripts.Builtin(name)
	if err != nil {
		return err
	}
	return c.run(ctx, cwd, script)
}

func (c *Client) run(ctx context.Context, cwd string, script *scripts.Script) error {
	rendered, err := scripts.RenderScript(script, map[string]string{"cli": c.cliPath()})
	if err != nil {
		return err
	}

	opts := c.Options
	opts.Dir = cwd
	opts.StripColors = true
	if opts.Name == "" {
		opts.Name = script.Name
	}

	logger := logging.Component("geo")
	logger.Debug().Str("flow", script.Name).Str("cwd", cwd).Msg("running geo flow")

	if err := rendered.Spawn(opts).Run(ctx); err != nil {
		return fmt.Errorf("%s: %w", script.Name, err)
	}
	return nil
}
