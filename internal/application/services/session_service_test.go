package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AtRiskMedia/mediakit-go/internal/domain/entities/mediakit"
	"github.com/AtRiskMedia/mediakit-go/internal/domain/events"
	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/catalog"
	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/dom"
	"github.com/AtRiskMedia/mediakit-go/internal/presentation/templates/components"
)

type fixedConnections int

func (f fixedConnections) ConnectionCount(string) int { return int(f) }

func newTestSessionService(t *testing.T, storage *memoryStorage, maxOpen int) *SessionService {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	svc := NewSessionService(ctx, testSessionConfig(t, storage, nil), maxOpen, fixedConnections(2))
	t.Cleanup(func() {
		svc.Shutdown(context.Background())
		cancel()
	})
	return svc
}

func storedKit(t *testing.T, storage *memoryStorage, kitID string, comps ...*mediakit.Component) {
	t.Helper()
	st := mediakit.NewState()
	for _, c := range comps {
		st.Components[c.ID] = c
		st.Layout = append(st.Layout, c.ID)
	}
	data, err := mediakit.Serialize(st)
	require.NoError(t, err)
	storage.data[kitID] = data
}

func TestOpenLoadsStoredStateAndRenders(t *testing.T) {
	storage := newMemoryStorage()
	storedKit(t, storage, "kit-1", hero("c1", "Stored"))
	svc := newTestSessionService(t, storage, 0)

	sess, created, err := svc.Open(context.Background(), "kit-1")
	require.NoError(t, err)
	assert.True(t, created)
	assert.False(t, sess.Store().IsDirty())
	assert.Equal(t, "Stored", propText(t, sess.Store().GetState(), "c1", "title"))
	assert.True(t, inSession(t, sess, func() bool { return sess.Render().LocateComponent("c1") != nil }))

	again, created, err := svc.Open(context.Background(), "kit-1")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Same(t, sess, again)
}

func TestOpenWithoutStoredStateStartsEmpty(t *testing.T) {
	svc := newTestSessionService(t, newMemoryStorage(), 0)
	sess, _, err := svc.Open(context.Background(), "fresh")
	require.NoError(t, err)
	assert.True(t, sess.Store().GetState().IsEmpty())
}

func TestOpenFailsOnStorageError(t *testing.T) {
	storage := newMemoryStorage()
	storage.loadErr = errors.New("disk on fire")
	svc := newTestSessionService(t, storage, 0)

	_, _, err := svc.Open(context.Background(), "kit-1")
	assert.True(t, errors.Is(err, mediakit.ErrPersistence))
	assert.Zero(t, svc.Len())
}

func TestOpenRespectsLimit(t *testing.T) {
	svc := newTestSessionService(t, newMemoryStorage(), 1)
	_, _, err := svc.Open(context.Background(), "a")
	require.NoError(t, err)
	_, _, err = svc.Open(context.Background(), "b")
	assert.ErrorIs(t, err, ErrTooManySessions)

	// reopening an open kit is not a new session
	_, _, err = svc.Open(context.Background(), "a")
	assert.NoError(t, err)
}

func TestGetUnknownSession(t *testing.T) {
	svc := newTestSessionService(t, newMemoryStorage(), 0)
	_, err := svc.Get("nope")
	assert.True(t, errors.Is(err, mediakit.ErrNotFound))
}

func TestCloseSavesDirtyState(t *testing.T) {
	storage := newMemoryStorage()
	svc := newTestSessionService(t, storage, 0)
	sess, _, err := svc.Open(context.Background(), "kit-1")
	require.NoError(t, err)
	require.NoError(t, sess.Do(context.Background(), func() error {
		return sess.Store().AddComponent(hero("c1", "Unsaved"))
	}))

	require.NoError(t, svc.Close(context.Background(), "kit-1"))
	assert.Equal(t, 1, storage.saves)
	assert.True(t, sess.Closed())
	_, err = svc.Get("kit-1")
	assert.Error(t, err)

	reopened, created, err := svc.Open(context.Background(), "kit-1")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "Unsaved", propText(t, reopened.Store().GetState(), "c1", "title"))
}

func TestCloseRunsHooks(t *testing.T) {
	svc := newTestSessionService(t, newMemoryStorage(), 0)
	var closed []string
	svc.OnClose(func(kitID string) { closed = append(closed, kitID) })

	for _, kit := range []string{"a", "b"} {
		_, _, err := svc.Open(context.Background(), kit)
		require.NoError(t, err)
	}
	require.NoError(t, svc.Close(context.Background(), "a"))
	assert.Equal(t, []string{"a"}, closed)

	svc.Shutdown(context.Background())
	assert.Equal(t, []string{"a", "b"}, closed)
}

func TestCloseKeepsSessionWhenSaveFails(t *testing.T) {
	storage := newMemoryStorage()
	svc := newTestSessionService(t, storage, 0)
	sess, _, err := svc.Open(context.Background(), "kit-1")
	require.NoError(t, err)
	require.NoError(t, sess.Do(context.Background(), func() error {
		return sess.Store().AddComponent(hero("c1", "Unsaved"))
	}))
	storage.mu.Lock()
	storage.saveErr = errors.New("read-only")
	storage.mu.Unlock()

	err = svc.Close(context.Background(), "kit-1")
	assert.True(t, errors.Is(err, mediakit.ErrPersistence))
	assert.False(t, sess.Closed())
	_, err = svc.Get("kit-1")
	assert.NoError(t, err)

	storage.mu.Lock()
	storage.saveErr = nil
	storage.mu.Unlock()
}

func TestSaveAnnouncesStateSaved(t *testing.T) {
	svc := newTestSessionService(t, newMemoryStorage(), 0)
	sess, _, err := svc.Open(context.Background(), "kit-1")
	require.NoError(t, err)

	saved := make(chan events.StateSaved, 1)
	require.NoError(t, sess.Do(context.Background(), func() error {
		sess.Bus().Subscribe(events.NameStateSaved, func(e events.Event) { saved <- e.(events.StateSaved) })
		return sess.Store().AddComponent(hero("c1", "One"))
	}))

	require.NoError(t, svc.Save(context.Background(), "kit-1"))
	select {
	case e := <-saved:
		assert.Equal(t, "kit-1", e.KitID)
		assert.False(t, e.Auto)
	case <-time.After(settle):
		t.Fatal("no state-saved event")
	}
	assert.False(t, sess.Store().IsDirty())
}

func TestAutosaveWritesOnlyDirtySessions(t *testing.T) {
	storage := newMemoryStorage()
	svc := newTestSessionService(t, storage, 0)
	dirty, _, err := svc.Open(context.Background(), "dirty")
	require.NoError(t, err)
	_, _, err = svc.Open(context.Background(), "clean")
	require.NoError(t, err)
	require.NoError(t, dirty.Do(context.Background(), func() error {
		return dirty.Store().AddComponent(hero("c1", "One"))
	}))

	autosave := NewAutosaveService(svc, time.Hour, testLogger())
	assert.Equal(t, 1, autosave.RunOnce(context.Background()))
	assert.Equal(t, 1, storage.saves)
	assert.Zero(t, autosave.RunOnce(context.Background()))
}

func TestAutosaveSchedule(t *testing.T) {
	storage := newMemoryStorage()
	svc := newTestSessionService(t, storage, 0)
	sess, _, err := svc.Open(context.Background(), "kit-1")
	require.NoError(t, err)
	require.NoError(t, sess.Do(context.Background(), func() error {
		return sess.Store().AddComponent(hero("c1", "One"))
	}))

	autosave := NewAutosaveService(svc, time.Second, testLogger())
	require.NoError(t, autosave.Start())
	defer autosave.Stop()

	require.Eventually(t, func() bool { return !sess.Store().IsDirty() }, 3*time.Second, 20*time.Millisecond)

	disabled := NewAutosaveService(svc, 0, testLogger())
	assert.NoError(t, disabled.Start())
	disabled.Stop()
}

func TestSessionSummaries(t *testing.T) {
	svc := newTestSessionService(t, newMemoryStorage(), 0)
	sess, _, err := svc.Open(context.Background(), "b")
	require.NoError(t, err)
	_, _, err = svc.Open(context.Background(), "a")
	require.NoError(t, err)
	require.NoError(t, sess.Do(context.Background(), func() error {
		return sess.Store().AddComponent(hero("c1", "One"))
	}))

	summaries := svc.SessionSummaries()
	require.Len(t, summaries, 2)
	assert.Equal(t, "a", summaries[0].KitID)
	assert.Equal(t, "b", summaries[1].KitID)
	assert.Equal(t, 1, summaries[1].Components)
	assert.True(t, summaries[1].Dirty)
	assert.Equal(t, 1, summaries[1].SyncFields)
	assert.Equal(t, 2, summaries[1].Connections)
}

func TestShutdownSavesAndCloses(t *testing.T) {
	storage := newMemoryStorage()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc := NewSessionService(ctx, testSessionConfig(t, storage, nil), 0, nil)
	sess, _, err := svc.Open(context.Background(), "kit-1")
	require.NoError(t, err)
	require.NoError(t, sess.Do(context.Background(), func() error {
		return sess.Store().AddComponent(hero("c1", "One"))
	}))

	svc.Shutdown(context.Background())
	assert.Equal(t, 1, storage.saves)
	assert.True(t, sess.Closed())
	assert.Zero(t, svc.Len())
}

func TestTemplateReloadRerendersSessions(t *testing.T) {
	dir := t.TempDir()
	templates, err := components.NewRenderer(dir, catalog.Default())
	require.NoError(t, err)

	cfg := testSessionConfig(t, newMemoryStorage(), nil)
	cfg.Templates = templates
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc := NewSessionService(ctx, cfg, 0, nil)
	defer svc.Shutdown(context.Background())

	sess, _, err := svc.Open(context.Background(), "kit-1")
	require.NoError(t, err)
	require.NoError(t, sess.Do(context.Background(), func() error {
		return sess.Store().AddComponent(hero("c1", "Ada"))
	}))

	override := `<section class="custom-hero"><h2 data-field="title">{{text .Props "title"}}</h2></section>`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hero.preview.html"), []byte(override), 0o644))

	watcher := NewTemplateWatcher(templates, svc, 10*time.Millisecond, testLogger())
	require.NoError(t, watcher.ReloadNow(context.Background()))

	custom := inSession(t, sess, func() bool {
		return dom.HasClass(sess.Render().LocateComponent("c1"), "custom-hero")
	})
	assert.True(t, custom)
	assert.True(t, inSession(t, sess, func() bool { return sess.Sync().IsRegistered("c1") }))

	// a broken template keeps the previous set
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hero.preview.html"), []byte(`{{if}}`), 0o644))
	assert.Error(t, watcher.ReloadNow(context.Background()))
	assert.True(t, inSession(t, sess, func() bool {
		return dom.HasClass(sess.Render().LocateComponent("c1"), "custom-hero")
	}))
}

func TestTemplateWatcherPicksUpChanges(t *testing.T) {
	dir := t.TempDir()
	templates, err := components.NewRenderer(dir, catalog.Default())
	require.NoError(t, err)
	cfg := testSessionConfig(t, newMemoryStorage(), nil)
	cfg.Templates = templates
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	svc := NewSessionService(ctx, cfg, 0, nil)
	defer svc.Shutdown(context.Background())

	watcher := NewTemplateWatcher(templates, svc, 10*time.Millisecond, testLogger())
	require.NoError(t, watcher.Start(ctx))
	defer watcher.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "hero.editor.html"), []byte(`<form data-editor-for="{{.ID}}"></form>`), 0o644))
	require.Eventually(t, func() bool {
		return len(templates.Overrides()) == 1
	}, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, []string{"editor:hero"}, templates.Overrides())
}

func TestTemplateWatcherWithoutDirectory(t *testing.T) {
	templates, err := components.NewRenderer("", catalog.Default())
	require.NoError(t, err)
	watcher := NewTemplateWatcher(templates, nil, 0, testLogger())
	assert.NoError(t, watcher.Start(context.Background()))
	assert.NoError(t, watcher.Close())
}
