package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/net/html"

	"github.com/AtRiskMedia/mediakit-go/internal/domain/entities/mediakit"
	"github.com/AtRiskMedia/mediakit-go/internal/domain/events"
	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/dom"
	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/eventloop"
	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/observability/performance"
)

const (
	DefaultPreviewContainer = "media-kit-preview"
	EditorContainerID       = "mk-editor-panels"

	attrEditorFor     = "data-editor-for"
	attrComponentType = "data-component-type"
)

// Input surfaces accepted by ApplyInput.
const (
	SurfaceEditor  = "editor"
	SurfacePreview = "preview"
)

// coordination requests stay inside the session
var sessionOnlyEvents = map[string]bool{
	events.NameCoordinateRenderRequest:  true,
	events.NameCoordinateRemoveRequest:  true,
	events.NameCoordinateReorderRequest: true,
	events.NameComponentRendered:        true,
}

// EventSink receives the events of a session for delivery to browsers.
type EventSink interface {
	Broadcast(kitID, event string, payload any)
}

// SessionConfig carries the collaborators and tuning of an EditingSession.
type SessionConfig struct {
	Storage   StateStorage
	Source    ExternalSource
	Templates ComponentRenderer
	Catalog   FieldCatalog
	Sink      EventSink
	Logger    *logging.ChanneledLogger
	Perf      *performance.Tracker

	LoopBuffer       int
	Sync             SyncOptions
	BulkHistoryLimit int
	PreviewContainer string
	NewID            func() string
}

// EditingSession hosts one open media kit: its store, coordinators, the
// preview and editor documents and the loop that serializes all of them.
type EditingSession struct {
	kitID     string
	container string
	loop      *eventloop.Loop
	preview   *dom.Document
	editor    *dom.Document
	domEvents *dom.Events
	bus       *events.Bus

	store      *StateStore
	render     *RenderCoordinator
	reconciler *PreviewReconciler
	sync       *SyncCoordinator
	bulk       *BulkOperationController
	templates  ComponentRenderer
	logger     *logging.ChanneledLogger

	panels    map[string]*html.Node
	disposers []func()

	openedAt     time.Time
	lastActivity atomic.Int64
	started      atomic.Bool
	closed       atomic.Bool
}

// NewEditingSession builds a session with an empty document. The loop does
// not run until Start.
func NewEditingSession(kitID string, cfg SessionConfig) (*EditingSession, error) {
	if kitID == "" {
		return nil, fmt.Errorf("%w: kit id is required", mediakit.ErrInvalidArgument)
	}
	if cfg.Templates == nil {
		return nil, fmt.Errorf("%w: session needs component templates", mediakit.ErrInvalidArgument)
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewDiscardLogger(nil)
	}
	container := cfg.PreviewContainer
	if container == "" {
		container = DefaultPreviewContainer
	}

	preview, err := dom.NewDocument(`<!DOCTYPE html><html><head><title>Media Kit</title></head><body><main id="` +
		html.EscapeString(container) + `" class="mk-preview"></main></body></html>`)
	if err != nil {
		return nil, fmt.Errorf("create preview document: %w", err)
	}
	editor, err := dom.NewDocument(`<!DOCTYPE html><html><body><div id="` + EditorContainerID + `"></div></body></html>`)
	if err != nil {
		return nil, fmt.Errorf("create editor document: %w", err)
	}

	s := &EditingSession{
		kitID:     kitID,
		container: container,
		loop:      eventloop.New(cfg.LoopBuffer, cfg.Logger.WithKit(logging.ChannelSystem, kitID)),
		preview:   preview,
		editor:    editor,
		domEvents: dom.NewEvents(),
		bus:       events.NewBus(cfg.Logger.WithKit(logging.ChannelDebug, kitID)),
		templates: cfg.Templates,
		logger:    cfg.Logger,
		panels:    make(map[string]*html.Node),
		openedAt:  time.Now(),
	}
	s.lastActivity.Store(s.openedAt.UnixNano())

	s.store = NewStateStore(kitID, cfg.Storage, cfg.Logger, cfg.Perf)
	s.store.ReserveIDs(container, EditorContainerID)
	s.render = NewRenderCoordinator(kitID, preview, s.bus, cfg.Logger, cfg.Perf)
	s.render.ProtectContainers(container)
	s.render.Attach()
	s.reconciler = NewPreviewReconciler(kitID, s.store, s.render, cfg.Templates, s.bus, cfg.Logger, container)
	s.sync = NewSyncCoordinator(kitID, SyncDeps{
		Store:   s.store,
		Events:  s.domEvents,
		Locator: s.render,
		Patcher: s.reconciler,
		Catalog: cfg.Catalog,
		Bus:     s.bus,
		Loop:    s.loop,
		Logger:  cfg.Logger,
		Perf:    cfg.Perf,
	}, cfg.Sync)
	s.sync.Attach()

	newID := cfg.NewID
	if newID == nil {
		newID = NewComponentID
	}
	s.bulk = NewBulkOperationController(kitID, s.store, cfg.Source, s.bus, cfg.Logger, cfg.Perf, newID, cfg.BulkHistoryLimit)

	s.render.OnReady = s.componentReady
	s.disposers = append(s.disposers,
		// registered after the sync coordinator, so panels go after their listeners
		s.bus.Subscribe(events.NameComponentDestroyed, func(e events.Event) {
			s.unmountEditor(e.(events.ComponentDestroyed).ComponentID)
		}),
	)
	if cfg.Sink != nil {
		sink := cfg.Sink
		s.disposers = append(s.disposers, s.bus.SubscribeAll(func(e events.Event) {
			if sessionOnlyEvents[e.Name()] {
				return
			}
			sink.Broadcast(kitID, e.Name(), e)
		}))
	}

	s.reconciler.Attach()
	s.disposers = append(s.disposers, s.store.SubscribeGlobal(func(st *mediakit.State) {
		s.orderPanels(st.Layout)
		s.bus.Publish(events.StateChanged{State: st})
	}))
	return s, nil
}

// Start runs the session loop until ctx ends or the session closes.
func (s *EditingSession) Start(ctx context.Context) {
	if s.started.CompareAndSwap(false, true) {
		go s.loop.Run(ctx)
	}
}

// Do runs fn on the session loop and waits for it.
func (s *EditingSession) Do(ctx context.Context, fn func() error) error {
	if s.closed.Load() {
		return eventloop.ErrStopped
	}
	s.touch()
	return s.loop.Do(ctx, fn)
}

// Post queues fn on the session loop without waiting.
func (s *EditingSession) Post(fn func()) bool {
	s.touch()
	return s.loop.Post(fn)
}

// Close tears down every coordinator on the loop and stops it. Closing twice
// is harmless.
func (s *EditingSession) Close(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := eventloop.ErrStopped
	if s.started.Load() {
		err = s.loop.Do(ctx, func() error {
			s.dispose()
			return nil
		})
	}
	s.loop.Stop()
	if errors.Is(err, eventloop.ErrStopped) {
		// the loop never ran or already ended; nothing else can touch the session
		s.dispose()
		err = nil
	}
	s.logger.System().Debug("Editing session closed", "kitId", s.kitID)
	return err
}

func (s *EditingSession) dispose() {
	s.sync.Dispose()
	s.reconciler.Dispose()
	s.render.Dispose()
	for _, dispose := range s.disposers {
		dispose()
	}
	s.disposers = nil
	s.render.OnReady = nil
	for id, panel := range s.panels {
		dom.Detach(panel)
		delete(s.panels, id)
	}
}

func (s *EditingSession) KitID() string                  { return s.kitID }
func (s *EditingSession) Store() *StateStore             { return s.store }
func (s *EditingSession) Render() *RenderCoordinator     { return s.render }
func (s *EditingSession) Reconciler() *PreviewReconciler { return s.reconciler }
func (s *EditingSession) Sync() *SyncCoordinator         { return s.sync }
func (s *EditingSession) Bulk() *BulkOperationController { return s.bulk }
func (s *EditingSession) Bus() *events.Bus               { return s.bus }
func (s *EditingSession) PreviewDocument() *dom.Document { return s.preview }
func (s *EditingSession) EditorDocument() *dom.Document  { return s.editor }
func (s *EditingSession) PreviewContainerID() string     { return s.container }
func (s *EditingSession) OpenedAt() time.Time            { return s.openedAt }
func (s *EditingSession) Closed() bool                   { return s.closed.Load() }
func (s *EditingSession) LastActivity() time.Time        { return time.Unix(0, s.lastActivity.Load()) }
func (s *EditingSession) touch()                         { s.lastActivity.Store(time.Now().UnixNano()) }

// PreviewHTML renders the preview container. Call on the loop.
func (s *EditingSession) PreviewHTML() string {
	node := s.preview.GetElementByID(s.container)
	if node == nil {
		return ""
	}
	return dom.Render(node)
}

// EditorHTML renders the editor panel of a component. Call on the loop.
func (s *EditingSession) EditorHTML(componentID string) (string, bool) {
	panel, ok := s.panels[componentID]
	if !ok {
		return "", false
	}
	return dom.Render(panel), true
}

// OpenEditor mounts a fresh editor panel for a component and announces it.
func (s *EditingSession) OpenEditor(componentID string) error {
	comp, ok := s.store.Component(componentID)
	if !ok {
		return fmt.Errorf("%w: %q", mediakit.ErrNotFound, componentID)
	}
	return s.mountEditor(comp)
}

// CloseEditor unmounts the editor panel of a component and drops its sync
// registration. The preview node stays.
func (s *EditingSession) CloseEditor(componentID string) bool {
	if _, ok := s.panels[componentID]; !ok {
		return false
	}
	s.bus.Publish(events.ComponentDestroyed{ComponentID: componentID})
	return true
}

// ApplyInput replays a keystroke from a browser against one surface.
func (s *EditingSession) ApplyInput(componentID, field, value, surface string) error {
	switch surface {
	case "", SurfaceEditor:
		if !s.sync.ApplyEditorInput(componentID, field, value) {
			return fmt.Errorf("%w: no editor control for %s.%s", mediakit.ErrNotFound, componentID, field)
		}
		return nil
	case SurfacePreview:
		if !s.sync.PreviewEditing() {
			return fmt.Errorf("%w: preview editing is off", mediakit.ErrInvalidArgument)
		}
		node := s.render.LocateComponent(componentID)
		targets := findFieldElements(node, field, false)
		if len(targets) == 0 {
			return fmt.Errorf("%w: no preview element for %s.%s", mediakit.ErrNotFound, componentID, field)
		}
		dom.SetValue(targets[0], value)
		s.domEvents.Dispatch(targets[0], dom.Event{Type: "input"})
		return nil
	default:
		return fmt.Errorf("%w: unknown surface %q", mediakit.ErrInvalidArgument, surface)
	}
}

// componentReady runs after every verified preview render.
func (s *EditingSession) componentReady(componentID string, _ *html.Node) {
	comp, ok := s.store.Component(componentID)
	if !ok {
		return
	}
	if panel, mounted := s.panels[componentID]; mounted && dom.AttrOr(panel, attrComponentType, comp.Type) == comp.Type {
		refreshEditor(panel, comp)
		return
	}
	if err := s.mountEditor(comp); err != nil {
		s.logger.LogError(logging.ChannelRender, "editor", err, s.kitID, map[string]any{"componentId": componentID})
	}
}

func (s *EditingSession) mountEditor(comp *mediakit.Component) error {
	panel, err := s.templates.RenderEditor(comp)
	if err != nil {
		return err
	}
	container := s.editor.GetElementByID(EditorContainerID)
	if container == nil {
		return fmt.Errorf("%w: editor container", mediakit.ErrNotFound)
	}
	dom.SetAttr(panel, attrEditorFor, comp.ID)
	dom.SetAttr(panel, attrComponentType, comp.Type)

	if old, ok := s.panels[comp.ID]; ok && old.Parent == container {
		dom.InsertBefore(container, panel, old)
		dom.Detach(old)
	} else {
		dom.InsertBefore(container, panel, nil)
	}
	s.panels[comp.ID] = panel

	s.bus.Publish(events.EditorReady{ComponentID: comp.ID, ComponentType: comp.Type, Container: panel})
	return nil
}

func (s *EditingSession) unmountEditor(componentID string) {
	panel, ok := s.panels[componentID]
	if !ok {
		return
	}
	dom.Detach(panel)
	delete(s.panels, componentID)
}

// orderPanels keeps editor panels in layout order.
func (s *EditingSession) orderPanels(layout []string) {
	container := s.editor.GetElementByID(EditorContainerID)
	if container == nil {
		return
	}
	var ref *html.Node
	for i := len(layout) - 1; i >= 0; i-- {
		panel, ok := s.panels[layout[i]]
		if !ok || panel.Parent != container {
			continue
		}
		if panel.NextSibling != ref {
			dom.InsertBefore(container, panel, ref)
		}
		ref = panel
	}
}

// refreshEditor writes stored values into editor controls without raising
// input events.
func refreshEditor(panel *html.Node, comp *mediakit.Component) {
	for _, f := range comp.Props.Fields() {
		text := editorText(f.Value)
		for _, el := range findFieldElements(panel, f.Key, true) {
			if dom.Value(el) != text {
				dom.SetValue(el, text)
			}
		}
	}
}

func editorText(v mediakit.Value) string {
	if v.Kind() != mediakit.KindArray {
		return v.Text()
	}
	items := v.Items()
	lines := make([]string, 0, len(items))
	for _, item := range items {
		lines = append(lines, item.Text())
	}
	return strings.Join(lines, "\n")
}
