package template

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/goccy/go-yaml"

	"github.com/GriffinCanCode/codelive/internal/domain/buffer"
)

//go:embed templates/*.yaml
var definitions embed.FS

// ErrTemplateNotFound is returned for an ID outside the gallery
var ErrTemplateNotFound = errors.New("template not found")

// ID names one starter template
type ID string

const (
	Blank     ID = "blank"
	Basic     ID = "basic"
	Flexbox   ID = "flexbox"
	Animation ID = "animation"
	Canvas    ID = "canvas"
	API       ID = "api"
)

// IDs lists every template in gallery order
var IDs = []ID{Blank, Basic, Flexbox, Animation, Canvas, API}

// Valid reports whether id names a known template
func (id ID) Valid() bool {
	for _, known := range IDs {
		if id == known {
			return true
		}
	}
	return false
}

func (id ID) String() string { return string(id) }

// ParseID validates a user-supplied template name
func ParseID(s string) (ID, error) {
	id := ID(strings.ToLower(strings.TrimSpace(s)))
	if !id.Valid() {
		return "", fmt.Errorf("%w: %q", ErrTemplateNotFound, s)
	}
	return id, nil
}

// Template is one starter buffer set
type Template struct {
	ID          ID     `yaml:"id" json:"id"`
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	HTML        string `yaml:"html" json:"html"`
	CSS         string `yaml:"css" json:"css"`
	JS          string `yaml:"js" json:"js"`
}

// Buffers returns the template as a buffer set
func (t Template) Buffers() buffer.Set {
	return buffer.Set{Markup: t.HTML, Style: t.CSS, Script: t.JS}
}

// Gallery holds every template, keyed by ID
type Gallery struct {
	byID map[ID]Template
}

// Default loads the gallery compiled into the binary
func Default() (*Gallery, error) {
	sub, err := fs.Sub(definitions, "templates")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded templates: %w", err)
	}
	return Load(sub)
}

// Load reads every *.yaml / *.yml definition in fsys. Each known ID must be
// defined exactly once and no unknown IDs may appear.
func Load(fsys fs.FS) (*Gallery, error) {
	paths, err := doublestar.Glob(fsys, "**/*.{yaml,yml}")
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}

	g := &Gallery{byID: make(map[ID]Template, len(IDs))}
	for _, path := range paths {
		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}

		var t Template
		if err := yaml.UnmarshalWithOptions(data, &t, yaml.Strict()); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		if !t.ID.Valid() {
			return nil, fmt.Errorf("%s: unknown template id %q", path, t.ID)
		}
		if t.Name == "" {
			return nil, fmt.Errorf("%s: name is required", path)
		}
		if _, dup := g.byID[t.ID]; dup {
			return nil, fmt.Errorf("%s: duplicate template id %q", path, t.ID)
		}
		g.byID[t.ID] = t
	}

	for _, id := range IDs {
		if _, ok := g.byID[id]; !ok {
			return nil, fmt.Errorf("template %q is not defined", id)
		}
	}
	return g, nil
}

// Lookup returns the template for id
func (g *Gallery) Lookup(id ID) (Template, error) {
	t, ok := g.byID[id]
	if !ok {
		return Template{}, fmt.Errorf("%w: %q", ErrTemplateNotFound, id)
	}
	return t, nil
}

// List returns every template in gallery order
func (g *Gallery) List() []Template {
	out := make([]Template, 0, len(IDs))
	for _, id := range IDs {
		out = append(out, g.byID[id])
	}
	return out
}
