package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AtRiskMedia/mediakit-go/internal/domain/entities/mediakit"
	"github.com/AtRiskMedia/mediakit-go/internal/domain/events"
	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/catalog"
	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/dom"
	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/eventloop"
	"github.com/AtRiskMedia/mediakit-go/internal/presentation/templates/components"
)

type recordingSink struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingSink) Broadcast(kitID, event string, _ any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, kitID+"/"+event)
}

func (r *recordingSink) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func testSessionConfig(t *testing.T, storage StateStorage, sink EventSink) SessionConfig {
	t.Helper()
	cat := catalog.Default()
	templates, err := components.NewRenderer("", cat)
	require.NoError(t, err)
	return SessionConfig{
		Storage:   storage,
		Templates: templates,
		Catalog:   cat,
		Sink:      sink,
		Logger:    testLogger(),
		Sync:      SyncOptions{Debounce: testDebounce, LockGrace: testGrace},
	}
}

func newTestSession(t *testing.T) (*EditingSession, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	sess, err := NewEditingSession("kit-1", testSessionConfig(t, newMemoryStorage(), sink))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	sess.Start(ctx)
	t.Cleanup(func() {
		_ = sess.Close(context.Background())
		cancel()
	})
	return sess, sink
}

// inSession runs fn on the session loop and returns its result.
func inSession[T any](t *testing.T, sess *EditingSession, fn func() T) T {
	t.Helper()
	var out T
	require.NoError(t, sess.Do(context.Background(), func() error {
		out = fn()
		return nil
	}))
	return out
}

func panelIDs(sess *EditingSession) []string {
	container := sess.EditorDocument().GetElementByID(EditorContainerID)
	var ids []string
	for _, panel := range dom.ElementChildren(container) {
		ids = append(ids, dom.AttrOr(panel, attrEditorFor, ""))
	}
	return ids
}

func editorValue(sess *EditingSession, id, field string) string {
	panel := sess.panels[id]
	if panel == nil {
		return ""
	}
	fields := findFieldElements(panel, field, true)
	if len(fields) == 0 {
		return ""
	}
	return dom.Value(fields[0])
}

func TestSessionAddRendersPreviewAndEditor(t *testing.T) {
	sess, sink := newTestSession(t)

	require.NoError(t, sess.Do(context.Background(), func() error {
		return sess.Store().AddComponent(hero("c1", "Ada"))
	}))

	registered := inSession(t, sess, func() bool {
		return sess.Render().LocateComponent("c1") != nil && sess.Sync().IsRegistered("c1")
	})
	assert.True(t, registered)
	assert.Equal(t, []string{"c1"}, inSession(t, sess, func() []string { return panelIDs(sess) }))
	assert.Equal(t, "Ada", inSession(t, sess, func() string { return editorValue(sess, "c1", "title") }))

	names := sink.names()
	assert.Contains(t, names, "kit-1/"+events.NameEditorReady)
	assert.Contains(t, names, "kit-1/"+events.NameStateChanged)
	assert.Contains(t, names, "kit-1/"+events.NameComponentRenderedCoordinated)
	for _, name := range names {
		assert.NotContains(t, name, "coordinate-", "coordination requests stay inside the session")
	}
}

func TestSessionRejectsContainerIDs(t *testing.T) {
	sess, _ := newTestSession(t)

	for _, id := range []string{DefaultPreviewContainer, EditorContainerID} {
		err := sess.Do(context.Background(), func() error {
			return sess.Store().AddComponent(hero(id, "x"))
		})
		assert.ErrorIs(t, err, mediakit.ErrInvalidArgument, id)
	}
	require.NoError(t, sess.Do(context.Background(), func() error {
		return sess.Store().AddComponent(hero("c1", "Ada"))
	}))
	assert.True(t, inSession(t, sess, func() bool {
		return sess.PreviewDocument().GetElementByID(DefaultPreviewContainer) != nil && sess.Render().LocateComponent("c1") != nil
	}))
}

func TestSessionEditorInputReachesStoreAndPreview(t *testing.T) {
	sess, _ := newTestSession(t)
	require.NoError(t, sess.Do(context.Background(), func() error {
		return sess.Store().AddComponent(hero("c1", "Ada"))
	}))

	require.NoError(t, sess.Do(context.Background(), func() error {
		return sess.ApplyInput("c1", "title", "Grace", SurfaceEditor)
	}))

	require.Eventually(t, func() bool {
		comp, ok := sess.Store().Component("c1")
		if !ok {
			return false
		}
		v, _ := comp.Props.Get("title")
		return v.Text() == "Grace"
	}, settle, tick)

	heading := inSession(t, sess, func() string {
		node := sess.Render().LocateComponent("c1")
		return dom.Text(dom.QueryByAttr(node, AttrField, "title")[0])
	})
	assert.Equal(t, "Grace", heading)
}

func TestSessionStoreChangesRefreshEditor(t *testing.T) {
	sess, _ := newTestSession(t)
	require.NoError(t, sess.Do(context.Background(), func() error {
		if err := sess.Store().AddComponent(hero("c1", "Ada")); err != nil {
			return err
		}
		return sess.Store().UpdateComponentProps("c1", mediakit.NewProps(mediakit.F("title", mediakit.String("Changed"))))
	}))

	assert.Equal(t, "Changed", inSession(t, sess, func() string { return editorValue(sess, "c1", "title") }))
	assert.True(t, inSession(t, sess, func() bool { return sess.Sync().IsRegistered("c1") }))
}

func TestSessionRemovalUnmountsEditor(t *testing.T) {
	sess, _ := newTestSession(t)
	require.NoError(t, sess.Do(context.Background(), func() error {
		if err := sess.Store().AddComponent(hero("c1", "One")); err != nil {
			return err
		}
		if err := sess.Store().AddComponent(hero("c2", "Two")); err != nil {
			return err
		}
		sess.Store().RemoveComponent("c1")
		return nil
	}))

	assert.Equal(t, []string{"c2"}, inSession(t, sess, func() []string { return panelIDs(sess) }))
	assert.False(t, inSession(t, sess, func() bool { return sess.Sync().IsRegistered("c1") }))
	assert.False(t, inSession(t, sess, func() bool { return sess.Render().LocateComponent("c1") != nil }))
}

func TestSessionPanelsFollowLayout(t *testing.T) {
	sess, _ := newTestSession(t)
	require.NoError(t, sess.Do(context.Background(), func() error {
		for _, c := range []*mediakit.Component{hero("a", "A"), hero("b", "B"), hero("c", "C")} {
			if err := sess.Store().AddComponent(c); err != nil {
				return err
			}
		}
		sess.Store().SetLayout([]string{"c", "a", "b"})
		return nil
	}))

	assert.Equal(t, []string{"c", "a", "b"}, inSession(t, sess, func() []string { return panelIDs(sess) }))
	assert.Equal(t, []string{"c", "a", "b"}, inSession(t, sess, func() []string {
		return childIDs(sess.PreviewDocument(), sess.PreviewContainerID())
	}))
}

func TestSessionCloseEditorKeepsPreview(t *testing.T) {
	sess, _ := newTestSession(t)
	require.NoError(t, sess.Do(context.Background(), func() error {
		return sess.Store().AddComponent(hero("c1", "Ada"))
	}))

	closed := inSession(t, sess, func() bool { return sess.CloseEditor("c1") })
	assert.True(t, closed)
	assert.Empty(t, inSession(t, sess, func() []string { return panelIDs(sess) }))
	assert.False(t, inSession(t, sess, func() bool { return sess.Sync().IsRegistered("c1") }))
	assert.True(t, inSession(t, sess, func() bool { return sess.Render().LocateComponent("c1") != nil }))

	require.NoError(t, sess.Do(context.Background(), func() error { return sess.OpenEditor("c1") }))
	assert.True(t, inSession(t, sess, func() bool { return sess.Sync().IsRegistered("c1") }))

	err := sess.Do(context.Background(), func() error { return sess.OpenEditor("missing") })
	assert.True(t, errors.Is(err, mediakit.ErrNotFound))
}

func TestSessionPreviewInputNeedsPreviewEditing(t *testing.T) {
	sess, _ := newTestSession(t)
	require.NoError(t, sess.Do(context.Background(), func() error {
		return sess.Store().AddComponent(hero("c1", "Ada"))
	}))

	err := sess.Do(context.Background(), func() error {
		return sess.ApplyInput("c1", "title", "Grace", SurfacePreview)
	})
	assert.True(t, errors.Is(err, mediakit.ErrInvalidArgument))

	err = sess.Do(context.Background(), func() error {
		return sess.ApplyInput("c1", "title", "Grace", "sidebar")
	})
	assert.True(t, errors.Is(err, mediakit.ErrInvalidArgument))

	require.NoError(t, sess.Do(context.Background(), func() error {
		sess.Sync().TogglePreviewEditing(true)
		return sess.ApplyInput("c1", "title", "Grace", SurfacePreview)
	}))
	require.Eventually(t, func() bool {
		return inSession(t, sess, func() string { return editorValue(sess, "c1", "title") }) == "Grace"
	}, settle, tick)
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	sess, _ := newTestSession(t)
	require.NoError(t, sess.Do(context.Background(), func() error {
		return sess.Store().AddComponent(hero("c1", "Ada"))
	}))

	require.NoError(t, sess.Close(context.Background()))
	require.NoError(t, sess.Close(context.Background()))
	assert.True(t, sess.Closed())
	assert.Empty(t, sess.panels)

	err := sess.Do(context.Background(), func() error { return nil })
	assert.True(t, errors.Is(err, eventloop.ErrStopped))
}

func TestSessionCloseWithoutStart(t *testing.T) {
	sess, err := NewEditingSession("kit-1", testSessionConfig(t, nil, nil))
	require.NoError(t, err)
	assert.NoError(t, sess.Close(context.Background()))
}

func TestSessionRejectsBadConfig(t *testing.T) {
	_, err := NewEditingSession("", testSessionConfig(t, nil, nil))
	assert.True(t, errors.Is(err, mediakit.ErrInvalidArgument))

	_, err = NewEditingSession("kit-1", SessionConfig{})
	assert.True(t, errors.Is(err, mediakit.ErrInvalidArgument))
}

func TestEditorTextJoinsLists(t *testing.T) {
	assert.Equal(t, "a\nb", editorText(mediakit.Array(mediakit.String("a"), mediakit.String("b"))))
	assert.Equal(t, "3", editorText(mediakit.Int(3)))
}
