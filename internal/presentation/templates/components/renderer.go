// Package components renders preview and editor markup for media kit
// components with html/template. Built-in templates can be overridden per
// type from a directory of <type>.preview.html and <type>.editor.html files.
package components

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/net/html"

	"github.com/AtRiskMedia/mediakit-go/internal/domain/entities/mediakit"
	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/catalog"
	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/dom"
)

var funcs = template.FuncMap{
	"text": func(p mediakit.Props, key string) string {
		v, _ := p.Get(key)
		return v.Text()
	},
	"items": func(p mediakit.Props, key string) []string {
		v, _ := p.Get(key)
		return itemTexts(v)
	},
}

type fieldView struct {
	Name      string
	Label     string
	Kind      string
	Value     string
	Items     []string
	InputType string
	Multiline bool
	Checked   bool
	List      bool
}

type viewData struct {
	ID     string
	Type   string
	Label  string
	Props  mediakit.Props
	Fields []fieldView
}

// Renderer turns components into parentless DOM nodes.
type Renderer struct {
	mu      sync.RWMutex
	set     *template.Template
	dir     string
	catalog *catalog.Catalog
	loaded  []string
}

// NewRenderer parses the built-in templates plus overrides from dir, which
// may be empty.
func NewRenderer(dir string, cat *catalog.Catalog) (*Renderer, error) {
	r := &Renderer{dir: dir, catalog: cat}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Dir returns the override directory.
func (r *Renderer) Dir() string { return r.dir }

// Reload re-reads override templates. On error the previous set stays active.
func (r *Renderer) Reload() error {
	set, err := template.New("components").Funcs(funcs).Parse(builtinTemplates)
	if err != nil {
		return fmt.Errorf("parse built-in templates: %w", err)
	}
	var loaded []string
	if r.dir != "" {
		files, err := filepath.Glob(filepath.Join(r.dir, "*.html"))
		if err != nil {
			return fmt.Errorf("list templates: %w", err)
		}
		sort.Strings(files)
		for _, file := range files {
			name, ok := templateName(filepath.Base(file))
			if !ok {
				continue
			}
			content, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read template %s: %w", file, err)
			}
			if _, err := set.New(name).Parse(string(content)); err != nil {
				return fmt.Errorf("parse template %s: %w", file, err)
			}
			loaded = append(loaded, name)
		}
	}
	r.mu.Lock()
	r.set = set
	r.loaded = loaded
	r.mu.Unlock()
	return nil
}

// Overrides lists the template names loaded from the override directory.
func (r *Renderer) Overrides() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.loaded...)
}

// RenderPreview renders the preview node of a component.
func (r *Renderer) RenderPreview(c *mediakit.Component) (*html.Node, error) {
	return r.render("preview", c)
}

// RenderEditor renders the editor panel of a component.
func (r *Renderer) RenderEditor(c *mediakit.Component) (*html.Node, error) {
	return r.render("editor", c)
}

func (r *Renderer) render(kind string, c *mediakit.Component) (*html.Node, error) {
	if c == nil {
		return nil, fmt.Errorf("%w: nil component", mediakit.ErrInvalidArgument)
	}
	r.mu.RLock()
	set := r.set
	r.mu.RUnlock()

	name := kind + ":" + c.Type
	if set.Lookup(name) == nil {
		name = kind + ":generic"
	}
	var buf bytes.Buffer
	if err := set.ExecuteTemplate(&buf, name, r.view(c)); err != nil {
		return nil, fmt.Errorf("render %s for %s: %w", name, c.ID, err)
	}
	node, err := dom.ParseElement(buf.String())
	if err != nil {
		return nil, fmt.Errorf("render %s for %s: %w", name, c.ID, err)
	}
	return node, nil
}

func (r *Renderer) view(c *mediakit.Component) viewData {
	data := viewData{ID: c.ID, Type: c.Type, Label: c.Type, Props: c.Props}
	if ct, ok := r.catalog.Get(c.Type); ok {
		data.Label = ct.Label
		for _, f := range ct.Fields {
			v, _ := c.Props.Get(f.Name)
			data.Fields = append(data.Fields, newFieldView(f.Name, f.Label, f.Kind, v))
		}
		return data
	}
	for _, f := range c.Props.Fields() {
		data.Fields = append(data.Fields, newFieldView(f.Key, "", inferKind(f.Value), f.Value))
	}
	return data
}

func newFieldView(name, label, kind string, v mediakit.Value) fieldView {
	if label == "" {
		label = name
	}
	fv := fieldView{Name: name, Label: label, Kind: kind, Value: v.Text(), InputType: "text"}
	switch kind {
	case catalog.KindTextarea:
		fv.Multiline = true
	case catalog.KindList:
		fv.List = true
		fv.Multiline = true
		fv.Items = itemTexts(v)
		fv.Value = strings.Join(fv.Items, "\n")
	case catalog.KindNumber:
		fv.InputType = "number"
	case catalog.KindURL:
		fv.InputType = "url"
	case catalog.KindBool:
		b, _ := v.AsBool()
		fv.Checked = b
	}
	return fv
}

func inferKind(v mediakit.Value) string {
	switch v.Kind() {
	case mediakit.KindArray:
		return catalog.KindList
	case mediakit.KindBool:
		return catalog.KindBool
	case mediakit.KindNumber:
		return catalog.KindNumber
	case mediakit.KindString:
		if s, _ := v.AsString(); len(s) > 80 || strings.Contains(s, "\n") {
			return catalog.KindTextarea
		}
	}
	return catalog.KindText
}

func itemTexts(v mediakit.Value) []string {
	items := v.Items()
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.Text())
	}
	return out
}

// templateName maps "hero.preview.html" to "preview:hero".
func templateName(file string) (string, bool) {
	base := strings.TrimSuffix(file, ".html")
	for _, kind := range []string{"preview", "editor"} {
		if strings.HasSuffix(base, "."+kind) {
			componentType := strings.TrimSuffix(base, "."+kind)
			if componentType == "" {
				return "", false
			}
			return kind + ":" + componentType, true
		}
	}
	return "", false
}
