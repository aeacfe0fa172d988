package geo

import (
	"context"
	"sort"
)

// Flow is a named geo flow runnable from the command line.
type Flow struct {
	Name        string
	Description string
	// Configurable flows accept add options.
	Configurable bool
	Run          func(c *Client, ctx context.Context, cwd string, opts ...Option) error
}

var flows = map[string]Flow{
	"add-map": {
		Name:         "add-map",
		Description:  "Add a map with default values",
		Configurable: true,
		Run:          (*Client).AddMap,
	},
	"add-place-index": {
		Name:         "add-place-index",
		Description:  "Add a place index with default values",
		Configurable: true,
		Run:          (*Client).AddPlaceIndex,
	},
	"update-map":                        fixed("update-map", "Change who can access the first map", (*Client).UpdateMap),
	"update-second-map-default":         fixed("update-second-map-default", "Make the second map the default", (*Client).UpdateSecondMapAsDefault),
	"update-place-index":                fixed("update-place-index", "Change who can access the first place index", (*Client).UpdatePlaceIndex),
	"update-second-place-index-default": fixed("update-second-place-index-default", "Make the second place index the default", (*Client).UpdateSecondPlaceIndexAsDefault),
	"remove-map":                        fixed("remove-map", "Remove the first map", (*Client).RemoveMap),
	"remove-first-default-map":          fixed("remove-first-default-map", "Remove the default map and keep the other", (*Client).RemoveFirstDefaultMap),
	"remove-place-index":                fixed("remove-place-index", "Remove the first place index", (*Client).RemovePlaceIndex),
	"remove-first-default-place-index":  fixed("remove-first-default-place-index", "Remove the default place index and keep the other", (*Client).RemoveFirstDefaultPlaceIndex),
}

func fixed(name, description string, run func(*Client, context.Context, string) error) Flow {
	return Flow{
		Name:        name,
		Description: description,
		Run: func(c *Client, ctx context.Context, cwd string, _ ...Option) error {
			return run(c, ctx, cwd)
		},
	}
}

// Flows returns every geo flow sorted by name.
func Flows() []Flow {
	out := make([]Flow, 0, len(flows))
	for _, flow := range flows {
		out = append(out, flow)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// LookupFlow returns the flow called name.
func LookupFlow(name string) (Flow, bool) {
	flow, ok := flows[name]
	return flow, ok
}
