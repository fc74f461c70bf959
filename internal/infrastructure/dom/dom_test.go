package dom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

const page = `<!DOCTYPE html><html><body>
<div id="preview">
  <section id="a" data-component-id="a" class="mk-component hero"><h1 data-field="title">Hi</h1></section>
  <section data-component-id="a"></section>
</div>
<form id="editor">
  <input name="title" value="Hi">
  <input type="checkbox" name="visible" checked>
  <textarea class="bio-field">Long text</textarea>
  <select name="layout"><option value="left">Left</option><option value="right" selected>Right</option></select>
  <div contenteditable="true" id="tagline">Tag</div>
</form>
</body></html>`

func parse(t *testing.T) *Document {
	t.Helper()
	doc, err := NewDocument(page)
	require.NoError(t, err)
	return doc
}

func TestQueries(t *testing.T) {
	doc := parse(t)

	preview := doc.GetElementByID("preview")
	require.NotNil(t, preview)
	assert.Len(t, doc.QueryByAttr("data-component-id", "a"), 2)
	assert.Len(t, ElementChildren(preview), 2)
	assert.True(t, doc.Contains(preview))
	assert.Equal(t, "body", doc.Body().Data)
	assert.Nil(t, doc.GetElementByID(""))

	title := First(preview, func(n *html.Node) bool { return AttrOr(n, "data-field", "") == "title" })
	require.NotNil(t, title)
	assert.Equal(t, "Hi", Text(title))
}

func TestFormValues(t *testing.T) {
	doc := parse(t)
	editor := doc.GetElementByID("editor")

	input := QueryByAttr(editor, "name", "title")[0]
	assert.True(t, IsFormControl(input))
	assert.Equal(t, "Hi", Value(input))
	SetValue(input, "New")
	assert.Equal(t, "New", Value(input))

	check := QueryByAttr(editor, "name", "visible")[0]
	assert.Equal(t, "true", Value(check))
	SetValue(check, "false")
	assert.Equal(t, "false", Value(check))

	area := First(editor, func(n *html.Node) bool { return HasClass(n, "bio-field") })
	assert.Equal(t, "Long text", Value(area))
	SetValue(area, "Short")
	assert.Equal(t, "Short", Value(area))

	sel := QueryByAttr(editor, "name", "layout")[0]
	assert.Equal(t, "right", Value(sel))
	SetValue(sel, "left")
	assert.Equal(t, "left", Value(sel))

	editable := doc.GetElementByID("tagline")
	assert.True(t, IsFormControl(editable))
	SetValue(editable, "Fresh")
	assert.Equal(t, "Fresh", Text(editable))
}

func TestDetachAndInsert(t *testing.T) {
	doc := parse(t)
	preview := doc.GetElementByID("preview")
	a := doc.GetElementByID("a")

	Detach(a)
	assert.False(t, doc.Contains(a))
	Detach(a)

	InsertBefore(preview, a, nil)
	children := ElementChildren(preview)
	assert.Same(t, a, children[len(children)-1])

	InsertBefore(preview, a, children[0])
	assert.Same(t, a, ElementChildren(preview)[0])
}

func TestClassTokens(t *testing.T) {
	n, err := ParseElement(`<div class="one two"></div>`)
	require.NoError(t, err)

	AddClass(n, "three")
	AddClass(n, "one")
	assert.Equal(t, []string{"one", "two", "three"}, Classes(n))
	RemoveClass(n, "two")
	assert.Equal(t, "one three", AttrOr(n, "class", ""))
}

func TestEventsKeyedByNode(t *testing.T) {
	doc := parse(t)
	input := QueryByAttr(doc.Root, "name", "title")[0]
	events := NewEvents()

	var got []Event
	h := events.AddEventListener(input, "input", func(e Event) { got = append(got, e) })
	events.AddEventListener(input, "change", func(Event) {})
	assert.Equal(t, 2, events.Count(input))

	Detach(input)
	assert.Equal(t, 1, events.Dispatch(input, Event{Type: "input"}))
	require.Len(t, got, 1)
	assert.Same(t, input, got[0].Target)

	assert.True(t, events.RemoveEventListener(h))
	assert.False(t, events.RemoveEventListener(h))
	assert.Equal(t, 0, events.Dispatch(input, Event{Type: "input"}))
	assert.Equal(t, 1, events.Len())
}

func TestCloneTreeIsIndependent(t *testing.T) {
	n, err := ParseElement(`<p id="x">one</p>`)
	require.NoError(t, err)
	c := CloneTree(n)
	SetAttr(c, "id", "y")
	SetText(c, "two")
	assert.Equal(t, `<p id="x">one</p>`, Render(n))
	assert.Equal(t, `<p id="y">two</p>`, Render(c))
}
