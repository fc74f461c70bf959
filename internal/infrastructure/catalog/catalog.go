// Package catalog loads the component type catalog: editable fields, default
// props and external-source field mappings per component type.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"strings"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/AtRiskMedia/mediakit-go/internal/domain/entities/mediakit"
)

// Field kinds understood by editor templates and value coercion.
const (
	KindText     = "text"
	KindTextarea = "textarea"
	KindNumber   = "number"
	KindBool     = "bool"
	KindList     = "list"
	KindURL      = "url"
)

type Field struct {
	Name  string `toml:"name" json:"name"`
	Label string `toml:"label" json:"label"`
	Kind  string `toml:"kind" json:"kind"`
}

// ComponentType describes one renderable component.
type ComponentType struct {
	Type     string            `toml:"type" json:"type"`
	Label    string            `toml:"label" json:"label"`
	Fields   []Field           `toml:"fields" json:"fields"`
	Defaults map[string]any    `toml:"defaults" json:"defaults,omitempty"`
	Source   map[string]string `toml:"source" json:"source,omitempty"` // external field name -> prop name
}

// Catalog is an immutable set of component types in file order.
type Catalog struct {
	types map[string]*ComponentType
	order []string
}

type catalogFile struct {
	Components []ComponentType `toml:"components"`
}

// Load reads a catalog file, falling back to the built-in catalog when the
// file does not exist.
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes catalog TOML.
func Parse(data []byte) (*Catalog, error) {
	var raw catalogFile
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	c := &Catalog{types: make(map[string]*ComponentType, len(raw.Components))}
	for i := range raw.Components {
		ct := raw.Components[i]
		ct.Type = strings.TrimSpace(ct.Type)
		if ct.Type == "" {
			return nil, fmt.Errorf("parse catalog: component %d has no type", i)
		}
		if _, dup := c.types[ct.Type]; dup {
			return nil, fmt.Errorf("parse catalog: duplicate component type %q", ct.Type)
		}
		for j := range ct.Fields {
			if ct.Fields[j].Kind == "" {
				ct.Fields[j].Kind = KindText
			}
			if ct.Fields[j].Label == "" {
				ct.Fields[j].Label = humanize(ct.Fields[j].Name)
			}
		}
		if ct.Label == "" {
			ct.Label = humanize(ct.Type)
		}
		c.types[ct.Type] = &ct
		c.order = append(c.order, ct.Type)
	}
	return c, nil
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := Parse([]byte(defaultCatalog))
	if err != nil {
		panic(fmt.Sprintf("built-in catalog: %v", err))
	}
	return c
}

func (c *Catalog) Get(componentType string) (*ComponentType, bool) {
	if c == nil {
		return nil, false
	}
	ct, ok := c.types[componentType]
	return ct, ok
}

// Types lists component types in catalog order.
func (c *Catalog) Types() []string {
	if c == nil {
		return nil
	}
	return append([]string(nil), c.order...)
}

// FieldsFor returns the editable field names of a type.
func (c *Catalog) FieldsFor(componentType string) []string {
	ct, ok := c.Get(componentType)
	if !ok {
		return nil
	}
	names := make([]string, 0, len(ct.Fields))
	for _, f := range ct.Fields {
		names = append(names, f.Name)
	}
	return names
}

// FieldSpecs returns the field descriptions of a type.
func (c *Catalog) FieldSpecs(componentType string) []Field {
	ct, ok := c.Get(componentType)
	if !ok {
		return nil
	}
	return append([]Field(nil), ct.Fields...)
}

// DefaultProps builds the starting props of a new component of this type.
func (c *Catalog) DefaultProps(componentType string) mediakit.Props {
	ct, ok := c.Get(componentType)
	if !ok {
		return mediakit.NewProps()
	}
	values := make(map[string]mediakit.Value, len(ct.Defaults))
	for k, raw := range ct.Defaults {
		v, err := mediakit.FromAny(raw)
		if err != nil {
			continue
		}
		values[k] = v
	}
	return mediakit.PropsFromMap(values, c.FieldsFor(componentType)...)
}

// MapExternal renames external-source field names to prop names. Unmapped
// names pass through unchanged.
func (c *Catalog) MapExternal(componentType string, fields map[string]mediakit.Value) mediakit.Props {
	ct, _ := c.Get(componentType)
	mapped := make(map[string]mediakit.Value, len(fields))
	for name, v := range fields {
		prop := name
		if ct != nil {
			if target, ok := ct.Source[name]; ok && target != "" {
				prop = target
			}
		}
		mapped[prop] = v
	}
	return mediakit.PropsFromMap(mapped, c.FieldsFor(componentType)...)
}

func humanize(name string) string {
	words := strings.FieldsFunc(name, func(r rune) bool { return r == '_' || r == '-' || r == ' ' })
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
