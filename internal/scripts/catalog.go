package scripts

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// Layer names, highest precedence first.
const (
	LayerProject = "project"
	LayerUser    = "user"
	LayerSystem  = "system"
	LayerBuiltin = "builtin"
)

// Layer is one place scripts are looked up from. The builtin layer has no
// directory and reads the scripts embedded in the binary.
type Layer struct {
	Name string
	Dir  string
}

// SearchLayers returns the lookup layers for projectDir in precedence order.
func SearchLayers(projectDir string) []Layer {
	layers := make([]Layer, 0, 4)
	if projectDir != "" {
		layers = append(layers, Layer{Name: LayerProject, Dir: filepath.Join(projectDir, ".e2ecore", "scripts")})
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		layers = append(layers, Layer{Name: LayerUser, Dir: filepath.Join(home, ".config", "e2ecore", "scripts")})
	}
	layers = append(layers,
		Layer{Name: LayerSystem, Dir: filepath.Join(string(filepath.Separator), "usr", "share", "e2ecore", "scripts")},
		Layer{Name: LayerBuiltin},
	)
	return layers
}

func (l Layer) load() ([]*Script, error) {
	if l.Name == LayerBuiltin {
		return loadFS(builtinFS, "builtin", func(string) string { return LayerBuiltin })
	}
	if strings.TrimSpace(l.Dir) == "" {
		return nil, nil
	}
	return loadFS(os.DirFS(l.Dir), ".", func(name string) string {
		return filepath.Join(l.Dir, name)
	})
}

// loadFS parses every .yaml or .yml file in dir, sorted by script name. A
// missing dir is empty.
func loadFS(fsys fs.FS, dir string, source func(name string) string) ([]*Script, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read scripts dir %s: %w", source(""), err)
	}

	scripts := make([]*Script, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		ext := strings.ToLower(path.Ext(name))
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		data, err := fs.ReadFile(fsys, path.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read script %s: %w", source(name), err)
		}
		script, err := parseScript(data)
		if err != nil {
			return nil, fmt.Errorf("parse script %s: %w", source(name), err)
		}
		script.Source = source(name)
		scripts = append(scripts, script)
	}

	sort.Slice(scripts, func(i, j int) bool {
		return scripts[i].Name < scripts[j].Name
	})
	return scripts, nil
}

// Catalog indexes scripts by name across layers. The first layer to define
// a name wins; later definitions are recorded as shadowed.
type Catalog struct {
	scripts  []*Script
	index    map[string]int
	shadowed map[string][]string
}

// LoadCatalog reads every layer for projectDir.
func LoadCatalog(projectDir string) (*Catalog, error) {
	return loadCatalog(SearchLayers(projectDir))
}

func loadCatalog(layers []Layer) (*Catalog, error) {
	c := &Catalog{
		index:    make(map[string]int),
		shadowed: make(map[string][]string),
	}
	for _, layer := range layers {
		scripts, err := layer.load()
		if err != nil {
			return nil, err
		}
		for _, script := range scripts {
			c.add(script)
		}
	}
	return c, nil
}

func (c *Catalog) add(script *Script) {
	if _, exists := c.index[script.Name]; exists {
		c.shadowed[script.Name] = append(c.shadowed[script.Name], script.Source)
		return
	}
	c.index[script.Name] = len(c.scripts)
	c.scripts = append(c.scripts, script)
}

// Scripts returns the winning script for each name in precedence order.
func (c *Catalog) Scripts() []*Script {
	return append([]*Script(nil), c.scripts...)
}

// Lookup returns the script called name.
func (c *Catalog) Lookup(name string) (*Script, bool) {
	i, ok := c.index[name]
	if !ok {
		return nil, false
	}
	return c.scripts[i], true
}

// Shadowed returns the sources of lower layers overridden for name.
func (c *Catalog) Shadowed(name string) []string {
	return append([]string(nil), c.shadowed[name]...)
}

// Resolve treats ref as a script file when it names an existing .yaml or
// .yml file and as a script name otherwise.
func (c *Catalog) Resolve(ref string) (*Script, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("script name is required")
	}

	ext := strings.ToLower(filepath.Ext(ref))
	if ext == ".yaml" || ext == ".yml" {
		if _, err := os.Stat(ref); err == nil {
			return LoadScript(ref)
		}
	}

	if script, ok := c.Lookup(ref); ok {
		return script, nil
	}
	return nil, fmt.Errorf("script %q not found", ref)
}

var builtinCatalog = sync.OnceValues(func() (*Catalog, error) {
	return loadCatalog([]Layer{{Name: LayerBuiltin}})
})

// Builtin returns the embedded script called name. The result is shared and
// must not be modified.
func Builtin(name string) (*Script, error) {
	catalog, err := builtinCatalog()
	if err != nil {
		return nil, err
	}
	script, ok := catalog.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("builtin script %q not found", name)
	}
	return script, nil
}
