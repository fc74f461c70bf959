package services

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bep/debounce"
	"golang.org/x/net/html"

	"github.com/AtRiskMedia/mediakit-go/internal/domain/entities/mediakit"
	"github.com/AtRiskMedia/mediakit-go/internal/domain/events"
	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/dom"
	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/eventloop"
	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/observability/performance"
)

// AttrField is the explicit field-binding attribute on editor and preview markup.
const AttrField = "data-field"

var fieldEventTypes = []string{"input", "change"}

// PreviewLocator finds the live preview node of a component.
type PreviewLocator interface {
	LocateComponent(id string) *html.Node
}

// FieldPatcher is told about single-field edits the sync already applied to
// the preview, so they are not re-rendered.
type FieldPatcher interface {
	FieldPatched(componentID, field string, value mediakit.Value)
}

// FieldCatalog supplies the editable fields of a component type.
type FieldCatalog interface {
	FieldsFor(componentType string) []string
}

// RegistrationConfig describes the surfaces bound for one component.
type RegistrationConfig struct {
	ComponentType    string
	EditorContainer  *html.Node
	PreviewContainer *html.Node // resolved through the PreviewLocator when nil
	Fields           []string   // discovered from the editor markup when empty
}

type syncRegistration struct {
	componentID     string
	config          RegistrationConfig
	fields          []string
	preview         *html.Node
	autoPreview     bool
	editorHandles   []dom.ListenerHandle
	previewHandles  []dom.ListenerHandle
	previewEditable []*html.Node
}

// SyncStats counts sync activity for diagnostics.
type SyncStats struct {
	Registered    int    `json:"registered"`
	Synced        uint64 `json:"synced"`
	Conflicts     uint64 `json:"conflicts"`
	Errors        uint64 `json:"errors"`
	PreviewWrites uint64 `json:"previewWrites"`
	EditorWrites  uint64 `json:"editorWrites"`
}

// SyncOptions tunes debouncing and lock release.
type SyncOptions struct {
	Debounce       time.Duration
	LockGrace      time.Duration
	PreviewEditing bool
}

// SyncCoordinator mirrors field values between editor controls and preview
// nodes. All methods run on the session loop; timers post back onto it.
type SyncCoordinator struct {
	kitID   string
	store   *StateStore
	events  *dom.Events
	locator PreviewLocator
	patcher FieldPatcher
	catalog FieldCatalog
	bus     *events.Bus
	loop    eventloop.Poster
	logger  *logging.ChanneledLogger
	perf    *performance.Tracker
	opts    SyncOptions

	regs           map[string]*syncRegistration
	debouncers     map[string]func(func())
	locks          map[string]struct{}
	previewEditing bool
	disposers      []func()

	statsMu sync.Mutex
	stats   SyncStats
}

// SyncDeps gathers the collaborators of a SyncCoordinator.
type SyncDeps struct {
	Store   *StateStore
	Events  *dom.Events
	Locator PreviewLocator
	Patcher FieldPatcher
	Catalog FieldCatalog
	Bus     *events.Bus
	Loop    eventloop.Poster
	Logger  *logging.ChanneledLogger
	Perf    *performance.Tracker
}

func NewSyncCoordinator(kitID string, deps SyncDeps, opts SyncOptions) *SyncCoordinator {
	return &SyncCoordinator{
		kitID:          kitID,
		store:          deps.Store,
		events:         deps.Events,
		locator:        deps.Locator,
		patcher:        deps.Patcher,
		catalog:        deps.Catalog,
		bus:            deps.Bus,
		loop:           deps.Loop,
		logger:         deps.Logger,
		perf:           deps.Perf,
		opts:           opts,
		regs:           make(map[string]*syncRegistration),
		debouncers:     make(map[string]func(func())),
		locks:          make(map[string]struct{}),
		previewEditing: opts.PreviewEditing,
	}
}

// Attach wires the coordinator to editor lifecycle events on its bus.
func (s *SyncCoordinator) Attach() {
	if s.bus == nil || len(s.disposers) > 0 {
		return
	}
	s.disposers = append(s.disposers,
		s.bus.Subscribe(events.NameEditorReady, func(e events.Event) {
			ready := e.(events.EditorReady)
			var fields []string
			if s.catalog != nil {
				fields = s.catalog.FieldsFor(ready.ComponentType)
			}
			err := s.Register(ready.ComponentID, RegistrationConfig{
				ComponentType:   ready.ComponentType,
				EditorContainer: ready.Container,
				Fields:          fields,
			})
			if err != nil {
				s.logger.Sync().Error("Auto-registration failed",
					"kitId", s.kitID, "componentId", ready.ComponentID, "error", err)
			}
		}),
		s.bus.Subscribe(events.NameComponentDestroyed, func(e events.Event) {
			s.Unregister(e.(events.ComponentDestroyed).ComponentID)
		}),
		s.bus.Subscribe(events.NameComponentRenderedCoordinated, func(e events.Event) {
			rendered := e.(events.ComponentRenderedCoordinated)
			s.rebindPreview(rendered.ComponentID, rendered.Element)
		}),
	)
}

// Dispose unregisters every component and leaves the bus.
func (s *SyncCoordinator) Dispose() {
	for id := range s.regs {
		s.Unregister(id)
	}
	for _, dispose := range s.disposers {
		dispose()
	}
	s.disposers = nil
}

// Register binds the fields of a component. Registering again replaces the
// previous binding.
func (s *SyncCoordinator) Register(componentID string, cfg RegistrationConfig) error {
	if componentID == "" {
		return fmt.Errorf("%w: component id is required", mediakit.ErrInvalidArgument)
	}
	if cfg.EditorContainer == nil {
		return fmt.Errorf("%w: editor container is required for %q", mediakit.ErrInvalidArgument, componentID)
	}

	fields := dedupe(cfg.Fields)
	if len(fields) == 0 {
		fields = discoverFields(cfg.EditorContainer)
	}
	if len(fields) == 0 {
		return fmt.Errorf("%w: no sync fields found for %q", mediakit.ErrInvalidArgument, componentID)
	}

	if existing, ok := s.regs[componentID]; ok {
		s.teardown(existing)
	}

	reg := &syncRegistration{
		componentID: componentID,
		config:      cfg,
		fields:      fields,
		preview:     cfg.PreviewContainer,
		autoPreview: cfg.PreviewContainer == nil,
	}
	if reg.autoPreview && s.locator != nil {
		reg.preview = s.locator.LocateComponent(componentID)
	}

	for _, field := range fields {
		field := field
		for _, el := range findFieldElements(cfg.EditorContainer, field, true) {
			for _, typ := range fieldEventTypes {
				h := s.events.AddEventListener(el, typ, func(ev dom.Event) {
					s.onFieldEvent(componentID, field, ev, events.ToPreview)
				})
				reg.editorHandles = append(reg.editorHandles, h)
			}
		}
	}
	s.regs[componentID] = reg
	if s.previewEditing {
		s.attachPreview(reg)
	}
	s.setRegistered()

	s.logger.Sync().Info("Component registered for sync",
		"kitId", s.kitID, "componentId", componentID, "fields", fields,
		"editorListeners", len(reg.editorHandles), "previewBound", reg.preview != nil)
	s.publish(events.SyncComponentRegistered{ComponentID: componentID, Fields: append([]string(nil), fields...)})
	return nil
}

// Unregister removes every listener and pending sync of a component.
func (s *SyncCoordinator) Unregister(componentID string) bool {
	reg, ok := s.regs[componentID]
	if !ok {
		return false
	}
	s.teardown(reg)
	delete(s.regs, componentID)
	s.setRegistered()
	s.logger.Sync().Debug("Component unregistered from sync", "kitId", s.kitID, "componentId", componentID)
	return true
}

// IsRegistered reports whether componentID has a live registration.
func (s *SyncCoordinator) IsRegistered(componentID string) bool {
	_, ok := s.regs[componentID]
	return ok
}

// Fields returns the bound fields of a component.
func (s *SyncCoordinator) Fields(componentID string) []string {
	if reg, ok := s.regs[componentID]; ok {
		return append([]string(nil), reg.fields...)
	}
	return nil
}

// TogglePreviewEditing makes preview fields editable and listened to, or
// read-only again.
func (s *SyncCoordinator) TogglePreviewEditing(enabled bool) {
	if s.previewEditing == enabled {
		return
	}
	s.previewEditing = enabled
	for _, reg := range s.regs {
		if enabled {
			s.attachPreview(reg)
		} else {
			s.detachPreview(reg)
		}
	}
	s.logger.Sync().Info("Preview editing toggled", "kitId", s.kitID, "enabled", enabled)
}

func (s *SyncCoordinator) PreviewEditing() bool { return s.previewEditing }

// ApplyEditorInput writes value into the editor control of a field and fires
// its input event, as a browser keystroke would.
func (s *SyncCoordinator) ApplyEditorInput(componentID, field, value string) bool {
	reg, ok := s.regs[componentID]
	if !ok {
		return false
	}
	targets := findFieldElements(reg.config.EditorContainer, field, true)
	if len(targets) == 0 {
		return false
	}
	dom.SetValue(targets[0], value)
	s.events.Dispatch(targets[0], dom.Event{Type: "input"})
	return true
}

// PerformSync writes value to the opposite surface and into the store. It is
// a no-op while another sync of the same field holds the lock.
func (s *SyncCoordinator) PerformSync(componentID, field, value string, direction events.SyncDirection) (synced bool) {
	reg, ok := s.regs[componentID]
	if !ok {
		return false
	}
	key := lockKey(componentID, field)
	if _, busy := s.locks[key]; busy {
		s.bump(func(st *SyncStats) { st.Conflicts++ })
		s.logger.Sync().Debug("Sync skipped, field locked",
			"kitId", s.kitID, "componentId", componentID, "field", field, "error", mediakit.ErrSyncConflict)
		return false
	}

	marker := s.perf.StartOperation("sync:field", s.kitID)
	s.locks[key] = struct{}{}
	defer marker.Complete()
	defer s.releaseLater(key)
	defer func() {
		if r := recover(); r != nil {
			synced = false
			marker.SetError(fmt.Errorf("panic: %v", r))
			s.bump(func(st *SyncStats) { st.Errors++ })
			s.logger.Sync().Error("Sync failed",
				"kitId", s.kitID, "componentId", componentID, "field", field, "panic", r)
			s.failed(componentID, field)
		}
	}()

	var container *html.Node
	if direction == events.ToEditor {
		container = reg.config.EditorContainer
	} else {
		container = s.previewFor(reg)
	}

	var written []*html.Node
	var targets []*html.Node
	if container != nil {
		targets = findFieldElements(container, field, direction == events.ToEditor)
		for _, el := range targets {
			if dom.Value(el) == value {
				continue
			}
			dom.SetValue(el, value)
			written = append(written, el)
		}
	}
	// writes raise input events like a browser would; the held lock absorbs them
	for _, el := range written {
		s.events.Dispatch(el, dom.Event{Type: "input", Synthetic: true})
	}
	s.bump(func(st *SyncStats) {
		if direction == events.ToEditor {
			st.EditorWrites += uint64(len(written))
		} else {
			st.PreviewWrites += uint64(len(written))
		}
	})

	typed := s.coerce(componentID, field, value)
	// without a bound preview element the change needs a full re-render
	if direction == events.ToPreview && len(targets) > 0 && s.patcher != nil {
		s.patcher.FieldPatched(componentID, field, typed)
	}
	if err := s.store.UpdateComponentProps(componentID, mediakit.NewProps(mediakit.F(field, typed))); err != nil {
		marker.SetError(err)
		s.bump(func(st *SyncStats) { st.Errors++ })
		s.logger.LogError(logging.ChannelSync, "sync", err, s.kitID,
			map[string]any{"componentId": componentID, "field": field})
		s.failed(componentID, field)
		return false
	}

	s.bump(func(st *SyncStats) { st.Synced++ })
	marker.AddMetadata("writes", len(written))
	s.publish(events.SyncFieldSynced{ComponentID: componentID, Field: field, Value: typed, Direction: direction})
	return true
}

// Stats returns a copy of the counters.
func (s *SyncCoordinator) Stats() SyncStats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}

// Locked reports whether a field currently holds its reentrancy lock.
func (s *SyncCoordinator) Locked(componentID, field string) bool {
	_, busy := s.locks[lockKey(componentID, field)]
	return busy
}

func (s *SyncCoordinator) onFieldEvent(componentID, field string, ev dom.Event, direction events.SyncDirection) {
	if _, ok := s.regs[componentID]; !ok {
		return
	}
	if ev.Synthetic && s.Locked(componentID, field) {
		s.bump(func(st *SyncStats) { st.Conflicts++ })
		return
	}
	value := dom.Value(ev.Target)
	key := lockKey(componentID, field) + ":" + string(direction)
	s.debouncer(key)(func() {
		s.loop.Post(func() { s.PerformSync(componentID, field, value, direction) })
	})
}

func (s *SyncCoordinator) debouncer(key string) func(func()) {
	d, ok := s.debouncers[key]
	if !ok {
		d = debounce.New(s.opts.Debounce)
		s.debouncers[key] = d
	}
	return d
}

func (s *SyncCoordinator) releaseLater(key string) {
	if s.opts.LockGrace <= 0 {
		delete(s.locks, key)
		return
	}
	time.AfterFunc(s.opts.LockGrace, func() {
		if !s.loop.Post(func() { delete(s.locks, key) }) {
			s.logger.Sync().Debug("Lock release dropped, loop stopped", "kitId", s.kitID, "key", key)
		}
	})
}

func (s *SyncCoordinator) teardown(reg *syncRegistration) {
	for _, h := range reg.editorHandles {
		s.events.RemoveEventListener(h)
	}
	reg.editorHandles = nil
	s.detachPreview(reg)

	prefix := reg.componentID + ":"
	for key, d := range s.debouncers {
		if strings.HasPrefix(key, prefix) {
			d(func() {})
			delete(s.debouncers, key)
		}
	}
}

func (s *SyncCoordinator) previewFor(reg *syncRegistration) *html.Node {
	if reg.autoPreview && s.locator != nil {
		if live := s.locator.LocateComponent(reg.componentID); live != nil && live != reg.preview {
			s.swapPreview(reg, live)
		}
	}
	return reg.preview
}

func (s *SyncCoordinator) rebindPreview(componentID string, node *html.Node) {
	reg, ok := s.regs[componentID]
	if !ok || !reg.autoPreview || node == nil || node == reg.preview {
		return
	}
	s.swapPreview(reg, node)
}

func (s *SyncCoordinator) swapPreview(reg *syncRegistration, node *html.Node) {
	s.detachPreview(reg)
	reg.preview = node
	if s.previewEditing {
		s.attachPreview(reg)
	}
}

func (s *SyncCoordinator) attachPreview(reg *syncRegistration) {
	if len(reg.previewHandles) > 0 {
		return
	}
	preview := reg.preview
	if preview == nil && reg.autoPreview && s.locator != nil {
		preview = s.locator.LocateComponent(reg.componentID)
		reg.preview = preview
	}
	if preview == nil {
		return
	}
	for _, field := range reg.fields {
		field := field
		for _, el := range findFieldElements(preview, field, false) {
			if !dom.IsFormControl(el) {
				dom.SetAttr(el, "contenteditable", "true")
				reg.previewEditable = append(reg.previewEditable, el)
			}
			for _, typ := range fieldEventTypes {
				h := s.events.AddEventListener(el, typ, func(ev dom.Event) {
					s.onFieldEvent(reg.componentID, field, ev, events.ToEditor)
				})
				reg.previewHandles = append(reg.previewHandles, h)
			}
		}
	}
}

func (s *SyncCoordinator) detachPreview(reg *syncRegistration) {
	for _, h := range reg.previewHandles {
		s.events.RemoveEventListener(h)
	}
	reg.previewHandles = nil
	for _, el := range reg.previewEditable {
		dom.RemoveAttr(el, "contenteditable")
	}
	reg.previewEditable = nil
}

// coerce keeps the stored kind of a field when the text still parses as it.
func (s *SyncCoordinator) coerce(componentID, field, raw string) mediakit.Value {
	comp, ok := s.store.Component(componentID)
	if !ok {
		return mediakit.String(raw)
	}
	current, ok := comp.Props.Get(field)
	if !ok {
		return mediakit.String(raw)
	}
	switch current.Kind() {
	case mediakit.KindNumber:
		if f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil {
			return mediakit.Number(f)
		}
	case mediakit.KindBool:
		if b, err := strconv.ParseBool(strings.TrimSpace(raw)); err == nil {
			return mediakit.Bool(b)
		}
	case mediakit.KindArray:
		var items []mediakit.Value
		for _, line := range strings.Split(raw, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				items = append(items, mediakit.String(line))
			}
		}
		return mediakit.Array(items...)
	}
	return mediakit.String(raw)
}

func (s *SyncCoordinator) setRegistered() {
	n := len(s.regs)
	s.bump(func(st *SyncStats) { st.Registered = n })
}

func (s *SyncCoordinator) bump(fn func(*SyncStats)) {
	s.statsMu.Lock()
	fn(&s.stats)
	s.statsMu.Unlock()
}

func (s *SyncCoordinator) publish(e events.Event) {
	if s.bus != nil {
		s.bus.Publish(e)
	}
}

// failed tells the user a field edit did not stick.
func (s *SyncCoordinator) failed(componentID, field string) {
	s.publish(events.Notice{
		Level:   events.NoticeError,
		Message: fmt.Sprintf("Could not sync %s on %s. Please try again.", field, componentID),
	})
}

func lockKey(componentID, field string) string { return componentID + ":" + field }

// findFieldElements locates the elements bound to field inside container,
// trying the explicit binding attribute, then the form name, then class or id
// tokens naming the field. On the editor side only input controls qualify.
func findFieldElements(container *html.Node, field string, editorSide bool) []*html.Node {
	if container == nil || field == "" {
		return nil
	}
	candidate := func(n *html.Node) bool {
		if n == container {
			return false
		}
		return !editorSide || dom.IsFormControl(n)
	}
	tiers := []func(*html.Node) bool{
		func(n *html.Node) bool { return dom.AttrOr(n, AttrField, "") == field },
		func(n *html.Node) bool { return dom.AttrOr(n, "name", "") == field },
		func(n *html.Node) bool { return matchesFieldToken(n, field) },
	}
	for _, tier := range tiers {
		found := dom.QueryAll(container, func(n *html.Node) bool { return candidate(n) && tier(n) })
		if len(found) > 0 {
			return found
		}
	}
	return nil
}

func matchesFieldToken(n *html.Node, field string) bool {
	names := []string{field, field + "-field", field + "_field", field + "__field"}
	tokens := append(dom.Classes(n), dom.AttrOr(n, "id", ""))
	for _, token := range tokens {
		if token == "" {
			continue
		}
		for _, name := range names {
			if token == name || strings.HasSuffix(token, "-"+name) || strings.HasSuffix(token, "__"+name) {
				return true
			}
		}
	}
	return false
}

// discoverFields lists the bound controls of an editor panel in document order.
func discoverFields(editor *html.Node) []string {
	var fields []string
	for _, n := range dom.QueryAll(editor, dom.IsFormControl) {
		name := dom.AttrOr(n, AttrField, "")
		if name == "" {
			name = dom.AttrOr(n, "name", "")
		}
		if name != "" {
			fields = append(fields, name)
		}
	}
	return dedupe(fields)
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	var out []string
	for _, v := range in {
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
