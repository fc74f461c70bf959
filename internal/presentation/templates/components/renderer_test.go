package components

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/AtRiskMedia/mediakit-go/internal/domain/entities/mediakit"
	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/catalog"
	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/dom"
)

func newRenderer(t *testing.T, dir string) *Renderer {
	t.Helper()
	r, err := NewRenderer(dir, catalog.Default())
	require.NoError(t, err)
	return r
}

func fieldNode(root *html.Node, field string) *html.Node {
	nodes := dom.QueryByAttr(root, "data-field", field)
	if len(nodes) == 0 {
		return nil
	}
	return nodes[0]
}

func TestRenderHeroPreview(t *testing.T) {
	r := newRenderer(t, "")
	node, err := r.RenderPreview(&mediakit.Component{
		ID:   "c1",
		Type: "hero",
		Props: mediakit.NewProps(
			mediakit.F("title", mediakit.String("Ada <Lovelace>")),
			mediakit.F("subtitle", mediakit.String("Engine")),
		),
	})
	require.NoError(t, err)

	assert.Equal(t, "section", node.Data)
	require.NotNil(t, fieldNode(node, "title"))
	assert.Equal(t, "Ada <Lovelace>", dom.Text(fieldNode(node, "title")))
	assert.Equal(t, "Engine", dom.Text(fieldNode(node, "subtitle")))
}

func TestRenderListHasNoFieldBinding(t *testing.T) {
	r := newRenderer(t, "")
	node, err := r.RenderPreview(&mediakit.Component{
		ID:    "c2",
		Type:  "topics",
		Props: mediakit.NewProps(mediakit.F("topics", mediakit.Array(mediakit.String("AI"), mediakit.String("Media")))),
	})
	require.NoError(t, err)

	assert.Nil(t, fieldNode(node, "topics"))
	items := dom.QueryAll(node, func(n *html.Node) bool { return n.Data == "li" })
	assert.Len(t, items, 2)
}

func TestRenderEditorPanel(t *testing.T) {
	r := newRenderer(t, "")
	node, err := r.RenderEditor(&mediakit.Component{
		ID:   "c3",
		Type: "biography",
		Props: mediakit.NewProps(
			mediakit.F("name", mediakit.String("Ada")),
			mediakit.F("bio", mediakit.String("Long")),
		),
	})
	require.NoError(t, err)

	assert.Equal(t, "c3", dom.AttrOr(node, "data-editor-for", ""))
	name := fieldNode(node, "name")
	require.NotNil(t, name)
	assert.Equal(t, "input", name.Data)
	assert.Equal(t, "Ada", dom.Value(name))
	bio := fieldNode(node, "bio")
	require.NotNil(t, bio)
	assert.Equal(t, "textarea", bio.Data)
	assert.Equal(t, "Long", dom.Value(bio))
	assert.NotNil(t, fieldNode(node, "location"))
}

func TestUnknownTypeFallsBackToGeneric(t *testing.T) {
	r := newRenderer(t, "")
	comp := &mediakit.Component{
		ID:   "c4",
		Type: "custom-block",
		Props: mediakit.NewProps(
			mediakit.F("headline", mediakit.String("Hello")),
			mediakit.F("visible", mediakit.Bool(true)),
			mediakit.F("tags", mediakit.Array(mediakit.String("x"))),
		),
	}

	preview, err := r.RenderPreview(comp)
	require.NoError(t, err)
	assert.Equal(t, "Hello", dom.Text(fieldNode(preview, "headline")))
	assert.Nil(t, fieldNode(preview, "tags"))

	editor, err := r.RenderEditor(comp)
	require.NoError(t, err)
	visible := fieldNode(editor, "visible")
	require.NotNil(t, visible)
	assert.Equal(t, "true", dom.Value(visible))
	assert.Equal(t, "textarea", fieldNode(editor, "tags").Data)
}

func TestOverridesAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hero.preview.html")
	require.NoError(t, os.WriteFile(path, []byte(`<article class="custom"><h2 data-field="title">{{text .Props "title"}}</h2></article>`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.html"), []byte(`ignored`), 0o644))

	r := newRenderer(t, dir)
	assert.Equal(t, []string{"preview:hero"}, r.Overrides())

	comp := &mediakit.Component{ID: "c1", Type: "hero", Props: mediakit.NewProps(mediakit.F("title", mediakit.String("T")))}
	node, err := r.RenderPreview(comp)
	require.NoError(t, err)
	assert.Equal(t, "article", node.Data)

	require.NoError(t, os.WriteFile(path, []byte(`{{ broken`), 0o644))
	assert.Error(t, r.Reload())
	node, err = r.RenderPreview(comp)
	require.NoError(t, err)
	assert.Equal(t, "article", node.Data, "failed reload keeps previous templates")

	require.NoError(t, os.Remove(path))
	require.NoError(t, r.Reload())
	node, err = r.RenderPreview(comp)
	require.NoError(t, err)
	assert.Equal(t, "section", node.Data)
}

func TestTemplateName(t *testing.T) {
	name, ok := templateName("video-intro.editor.html")
	assert.True(t, ok)
	assert.Equal(t, "editor:video-intro", name)

	_, ok = templateName("notes.html")
	assert.False(t, ok)
	_, ok = templateName(".preview.html")
	assert.False(t, ok)
}
