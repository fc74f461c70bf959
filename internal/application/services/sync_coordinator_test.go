package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/AtRiskMedia/mediakit-go/internal/domain/entities/mediakit"
	"github.com/AtRiskMedia/mediakit-go/internal/domain/events"
	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/dom"
	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/eventloop"
)

const (
	testDebounce = 20 * time.Millisecond
	testGrace    = 10 * time.Millisecond
	settle       = time.Second
	tick         = 5 * time.Millisecond
)

type syncHarness struct {
	t       *testing.T
	loop    *eventloop.Loop
	store   *StateStore
	events  *dom.Events
	bus     *events.Bus
	preview *dom.Document
	render  *RenderCoordinator
	sync    *SyncCoordinator
}

type staticCatalog map[string][]string

func (c staticCatalog) FieldsFor(componentType string) []string { return c[componentType] }

func newSyncHarness(t *testing.T, previewEditing bool) *syncHarness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	loop := eventloop.New(16, nil)
	go loop.Run(ctx)
	t.Cleanup(func() {
		cancel()
		loop.Stop()
	})

	preview, err := dom.NewDocument(previewPage)
	require.NoError(t, err)
	store, _ := newTestStore(t)
	bus := events.NewBus(nil)
	evs := dom.NewEvents()

	h := &syncHarness{t: t, loop: loop, store: store, events: evs, bus: bus, preview: preview}
	h.do(func() error {
		h.render = NewRenderCoordinator("kit-1", preview, bus, testLogger(), nil)
		h.render.Attach()
		h.sync = NewSyncCoordinator("kit-1", SyncDeps{
			Store:   store,
			Events:  evs,
			Locator: h.render,
			Catalog: staticCatalog{"hero": {"title", "subtitle"}},
			Bus:     bus,
			Loop:    loop,
			Logger:  testLogger(),
		}, SyncOptions{Debounce: testDebounce, LockGrace: testGrace, PreviewEditing: previewEditing})
		h.sync.Attach()
		return nil
	})
	return h
}

func (h *syncHarness) do(fn func() error) {
	h.t.Helper()
	require.NoError(h.t, h.loop.Do(context.Background(), fn))
}

// onLoop evaluates fn on the session loop so reads never race the loop.
func onLoop[T any](h *syncHarness, fn func() T) T {
	var out T
	_ = h.loop.Do(context.Background(), func() error {
		out = fn()
		return nil
	})
	return out
}

// mount adds a hero component with a preview node and a registered editor
// form, returning the editor input and the preview heading.
func (h *syncHarness) mount(id, title string) (input, heading *html.Node) {
	h.t.Helper()
	h.do(func() error {
		if err := h.store.AddComponent(hero(id, title)); err != nil {
			return err
		}
		node, err := dom.ParseElement(`<section class="mk-component"><h1 data-field="title">` + title + `</h1></section>`)
		if err != nil {
			return err
		}
		if !h.render.RenderComponent(id, node, "preview") {
			return errors.New("render failed")
		}
		heading = dom.QueryByAttr(node, AttrField, "title")[0]

		form, err := dom.ParseElement(`<form><input type="text" name="title" data-field="title" value="` + title + `"></form>`)
		if err != nil {
			return err
		}
		input = dom.QueryByAttr(form, AttrField, "title")[0]
		return h.sync.Register(id, RegistrationConfig{ComponentType: "hero", EditorContainer: form, Fields: []string{"title"}})
	})
	return input, heading
}

func (h *syncHarness) typeInto(n *html.Node, values ...string) {
	h.t.Helper()
	h.do(func() error {
		for _, v := range values {
			dom.SetValue(n, v)
			h.events.Dispatch(n, dom.Event{Type: "input"})
		}
		return nil
	})
}

func (h *syncHarness) title(id string) string {
	return onLoop(h, func() string {
		comp, ok := h.store.Component(id)
		if !ok {
			return ""
		}
		v, _ := comp.Props.Get("title")
		return v.Text()
	})
}

func (h *syncHarness) stats() SyncStats {
	return onLoop(h, h.sync.Stats)
}

func TestEditorInputSyncsPreviewAndStore(t *testing.T) {
	h := newSyncHarness(t, false)
	input, heading := h.mount("c2", "Old")

	h.typeInto(input, "New")

	require.Eventually(t, func() bool {
		return onLoop(h, func() string { return dom.Text(heading) }) == "New" && h.title("c2") == "New"
	}, settle, tick)

	stats := h.stats()
	assert.Equal(t, uint64(1), stats.Synced)
	assert.Equal(t, uint64(1), stats.PreviewWrites)
	assert.Zero(t, stats.EditorWrites)
}

func TestRapidInputCollapsesToLastValue(t *testing.T) {
	h := newSyncHarness(t, false)
	input, heading := h.mount("c2", "Old")

	h.typeInto(input, "N", "Ne", "New")

	require.Eventually(t, func() bool { return h.title("c2") == "New" }, settle, tick)
	time.Sleep(3 * testDebounce)
	assert.Equal(t, uint64(1), h.stats().Synced)
	assert.Equal(t, "New", onLoop(h, func() string { return dom.Text(heading) }))
}

func TestSyncLoopFreedomWithPreviewEditing(t *testing.T) {
	h := newSyncHarness(t, true)
	input, heading := h.mount("c2", "Old")
	require.True(t, onLoop(h, func() bool { return dom.IsContentEditable(heading) }))

	h.typeInto(input, "New")

	require.Eventually(t, func() bool { return h.title("c2") == "New" }, settle, tick)
	// give a bounced-back sync every chance to fire
	time.Sleep(3*testDebounce + 3*testGrace)

	stats := h.stats()
	assert.Equal(t, uint64(1), stats.PreviewWrites)
	assert.Zero(t, stats.EditorWrites)
	assert.Equal(t, uint64(1), stats.Synced)
	assert.Equal(t, uint64(1), stats.Conflicts, "the synthetic preview input is absorbed by the lock")
	assert.Equal(t, "New", onLoop(h, func() string { return dom.Value(input) }))
}

func TestPreviewEditSyncsEditor(t *testing.T) {
	h := newSyncHarness(t, true)
	input, heading := h.mount("c2", "Old")

	h.typeInto(heading, "Edited")

	require.Eventually(t, func() bool {
		return onLoop(h, func() string { return dom.Value(input) }) == "Edited" && h.title("c2") == "Edited"
	}, settle, tick)
	time.Sleep(3*testDebounce + 3*testGrace)

	stats := h.stats()
	assert.Equal(t, uint64(1), stats.EditorWrites)
	assert.Zero(t, stats.PreviewWrites)
}

func TestStrayInputAfterRemovalIsHarmless(t *testing.T) {
	h := newSyncHarness(t, false)
	input, _ := h.mount("c2", "Old")

	h.do(func() error {
		h.store.RemoveComponent("c2")
		assert.True(t, h.sync.Unregister("c2"))
		assert.Zero(t, h.events.Count(input))
		return nil
	})
	assert.NotPanics(t, func() { h.typeInto(input, "Ghost") })

	time.Sleep(3 * testDebounce)
	_, exists := onLoop(h, func() *mediakit.State { return h.store.GetState() }).Components["c2"]
	assert.False(t, exists)
	assert.Zero(t, h.stats().Synced)
}

func TestUnregisterCancelsPendingSync(t *testing.T) {
	h := newSyncHarness(t, false)
	input, _ := h.mount("c2", "Old")

	h.do(func() error {
		dom.SetValue(input, "Late")
		h.events.Dispatch(input, dom.Event{Type: "input"})
		h.sync.Unregister("c2")
		return nil
	})

	time.Sleep(3 * testDebounce)
	assert.Equal(t, "Old", h.title("c2"))
	assert.Zero(t, h.stats().Synced)
}

func TestLockBlocksReentryAndIsReleased(t *testing.T) {
	h := newSyncHarness(t, false)
	h.mount("c2", "Old")

	h.do(func() error {
		assert.True(t, h.sync.PerformSync("c2", "title", "First", events.ToPreview))
		assert.True(t, h.sync.Locked("c2", "title"))
		assert.False(t, h.sync.PerformSync("c2", "title", "Second", events.ToPreview))
		return nil
	})
	assert.Equal(t, uint64(1), h.stats().Conflicts)
	assert.Equal(t, "First", h.title("c2"))

	require.Eventually(t, func() bool {
		return !onLoop(h, func() bool { return h.sync.Locked("c2", "title") })
	}, settle, tick)
}

func TestFailedSyncReleasesLock(t *testing.T) {
	h := newSyncHarness(t, false)
	h.mount("c2", "Old")
	var notices []events.Notice
	h.do(func() error {
		h.bus.Subscribe(events.NameNotice, func(e events.Event) {
			notices = append(notices, e.(events.Notice))
		})
		return nil
	})

	h.do(func() error {
		h.store.RemoveComponent("c2")
		assert.False(t, h.sync.PerformSync("c2", "title", "Orphan", events.ToPreview))
		return nil
	})
	assert.Equal(t, uint64(1), h.stats().Errors)
	got := onLoop(h, func() []events.Notice { return append([]events.Notice(nil), notices...) })
	require.Len(t, got, 1)
	assert.Equal(t, events.NoticeError, got[0].Level)
	assert.Contains(t, got[0].Message, "title")
	require.Eventually(t, func() bool {
		return !onLoop(h, func() bool { return h.sync.Locked("c2", "title") })
	}, settle, tick)
}

func TestRegisterTwiceReplacesListeners(t *testing.T) {
	h := newSyncHarness(t, false)
	input, _ := h.mount("c2", "Old")

	h.do(func() error {
		form := input.Parent
		assert.NoError(t, h.sync.Register("c2", RegistrationConfig{EditorContainer: form, Fields: []string{"title"}}))
		assert.Equal(t, len(fieldEventTypes), h.events.Count(input))
		assert.Equal(t, 1, h.sync.Stats().Registered)
		return nil
	})
}

func TestRegisterRejectsBadConfig(t *testing.T) {
	h := newSyncHarness(t, false)
	h.do(func() error {
		empty, err := dom.ParseElement(`<form><p>nothing to edit</p></form>`)
		if err != nil {
			return err
		}

		err = h.sync.Register("", RegistrationConfig{EditorContainer: empty})
		assert.True(t, errors.Is(err, mediakit.ErrInvalidArgument))
		err = h.sync.Register("c9", RegistrationConfig{})
		assert.True(t, errors.Is(err, mediakit.ErrInvalidArgument))
		err = h.sync.Register("c9", RegistrationConfig{EditorContainer: empty})
		assert.True(t, errors.Is(err, mediakit.ErrInvalidArgument))
		assert.False(t, h.sync.IsRegistered("c9"))
		return nil
	})
}

func TestBusDrivesRegistration(t *testing.T) {
	h := newSyncHarness(t, false)
	var registered []events.SyncComponentRegistered
	h.bus.Subscribe(events.NameSyncComponentRegistered, func(e events.Event) {
		registered = append(registered, e.(events.SyncComponentRegistered))
	})

	h.do(func() error {
		form, err := dom.ParseElement(`<form><input name="title"><input name="subtitle"><input name="extra"></form>`)
		if err != nil {
			return err
		}
		h.bus.Publish(events.EditorReady{ComponentID: "c3", ComponentType: "hero", Container: form})
		assert.True(t, h.sync.IsRegistered("c3"))
		assert.Equal(t, []string{"title", "subtitle"}, h.sync.Fields("c3"))

		h.bus.Publish(events.ComponentDestroyed{ComponentID: "c3"})
		assert.False(t, h.sync.IsRegistered("c3"))
		assert.Zero(t, h.events.Len())
		return nil
	})
	require.Len(t, registered, 1)
	assert.Equal(t, "c3", registered[0].ComponentID)
}

func TestTogglePreviewEditing(t *testing.T) {
	h := newSyncHarness(t, false)
	_, heading := h.mount("c2", "Old")

	h.do(func() error {
		assert.Zero(t, h.events.Count(heading))
		h.sync.TogglePreviewEditing(true)
		assert.True(t, dom.IsContentEditable(heading))
		assert.Equal(t, len(fieldEventTypes), h.events.Count(heading))

		h.sync.TogglePreviewEditing(false)
		assert.False(t, dom.IsContentEditable(heading))
		assert.Zero(t, h.events.Count(heading))
		return nil
	})
}

func TestRerenderRebindsPreview(t *testing.T) {
	h := newSyncHarness(t, true)
	input, oldHeading := h.mount("c2", "Old")

	var newHeading *html.Node
	h.do(func() error {
		node, err := dom.ParseElement(`<section><h1 data-field="title">Old</h1></section>`)
		if err != nil {
			return err
		}
		if !h.render.RenderComponent("c2", node, "preview") {
			return errors.New("render failed")
		}
		newHeading = dom.QueryByAttr(node, AttrField, "title")[0]

		assert.Zero(t, h.events.Count(oldHeading))
		assert.Equal(t, len(fieldEventTypes), h.events.Count(newHeading))
		return nil
	})

	h.typeInto(input, "Fresh")
	require.Eventually(t, func() bool {
		return onLoop(h, func() string { return dom.Text(newHeading) }) == "Fresh"
	}, settle, tick)
}

func TestSyncKeepsStoredKinds(t *testing.T) {
	h := newSyncHarness(t, false)
	h.do(func() error {
		comp := &mediakit.Component{ID: "c4", Type: "stats", Props: mediakit.NewProps(
			mediakit.F("count", mediakit.Int(3)),
			mediakit.F("public", mediakit.Bool(false)),
			mediakit.F("tags", mediakit.Array(mediakit.String("a"))),
		)}
		if err := h.store.AddComponent(comp); err != nil {
			return err
		}
		form, err := dom.ParseElement(`<form><input name="count"><input name="public"><textarea name="tags"></textarea></form>`)
		if err != nil {
			return err
		}
		if err := h.sync.Register("c4", RegistrationConfig{EditorContainer: form}); err != nil {
			return err
		}
		assert.Equal(t, []string{"count", "public", "tags"}, h.sync.Fields("c4"))

		h.sync.PerformSync("c4", "count", "7", events.ToPreview)
		h.sync.PerformSync("c4", "public", "true", events.ToPreview)
		h.sync.PerformSync("c4", "tags", "one\n\ntwo\n", events.ToPreview)

		got, _ := h.store.Component("c4")
		count, _ := got.Props.Get("count")
		n, isNumber := count.AsNumber()
		assert.True(t, isNumber)
		assert.Equal(t, float64(7), n)
		public, _ := got.Props.Get("public")
		b, isBool := public.AsBool()
		assert.True(t, isBool && b)
		tags, _ := got.Props.Get("tags")
		assert.True(t, tags.Equal(mediakit.Array(mediakit.String("one"), mediakit.String("two"))))
		return nil
	})
}

func TestFindFieldElementsTiers(t *testing.T) {
	container, err := dom.ParseElement(`<div>
<input class="mk-title-field" id="legacy">
<input data-field="title" id="bound">
<textarea name="bio" id="named"></textarea>
<input class="guest__headline" id="token">
<span data-field="caption" id="text"></span>
</div>`)
	require.NoError(t, err)

	ids := func(nodes []*html.Node) []string {
		var out []string
		for _, n := range nodes {
			out = append(out, dom.AttrOr(n, "id", ""))
		}
		return out
	}

	assert.Equal(t, []string{"bound"}, ids(findFieldElements(container, "title", true)))
	assert.Equal(t, []string{"named"}, ids(findFieldElements(container, "bio", true)))
	assert.Equal(t, []string{"token"}, ids(findFieldElements(container, "headline", true)))
	assert.Empty(t, findFieldElements(container, "caption", true))
	assert.Equal(t, []string{"text"}, ids(findFieldElements(container, "caption", false)))
	assert.Empty(t, findFieldElements(container, "missing", false))
}

func TestDiscoverFieldsInDocumentOrder(t *testing.T) {
	form, err := dom.ParseElement(`<form><input data-field="a"><input name="b"><textarea name="a"></textarea><button>save</button><p name="c"></p></form>`)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, discoverFields(form))
}
