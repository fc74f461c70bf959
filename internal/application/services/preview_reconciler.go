package services

import (
	"golang.org/x/net/html"

	"github.com/AtRiskMedia/mediakit-go/internal/domain/entities/mediakit"
	"github.com/AtRiskMedia/mediakit-go/internal/domain/events"
	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/observability/logging"
)

// ComponentRenderer produces detached markup for a component.
type ComponentRenderer interface {
	RenderPreview(c *mediakit.Component) (*html.Node, error)
	RenderEditor(c *mediakit.Component) (*html.Node, error)
}

// PreviewReconciler keeps the preview surface in line with the store: it
// removes vanished components, renders new or changed ones and reorders.
type PreviewReconciler struct {
	kitID       string
	store       *StateStore
	renderer    *RenderCoordinator
	templates   ComponentRenderer
	bus         *events.Bus
	logger      *logging.ChanneledLogger
	containerID string

	rendered    map[string]*mediakit.Component
	unsubscribe func()
}

func NewPreviewReconciler(kitID string, store *StateStore, renderer *RenderCoordinator, templates ComponentRenderer, bus *events.Bus, logger *logging.ChanneledLogger, containerID string) *PreviewReconciler {
	return &PreviewReconciler{
		kitID:       kitID,
		store:       store,
		renderer:    renderer,
		templates:   templates,
		bus:         bus,
		logger:      logger,
		containerID: containerID,
		rendered:    make(map[string]*mediakit.Component),
	}
}

// Attach subscribes to the store and renders the current document.
func (p *PreviewReconciler) Attach() {
	if p.unsubscribe != nil {
		return
	}
	p.unsubscribe = p.store.SubscribeGlobal(p.Reconcile)
	p.Reconcile(p.store.GetState())
}

func (p *PreviewReconciler) Dispose() {
	if p.unsubscribe != nil {
		p.unsubscribe()
		p.unsubscribe = nil
	}
}

// Reconcile brings the preview in line with st.
func (p *PreviewReconciler) Reconcile(st *mediakit.State) {
	for id := range p.rendered {
		if _, ok := st.Components[id]; ok {
			continue
		}
		// editors unbind before their nodes go away
		p.bus.Publish(events.ComponentDestroyed{ComponentID: id})
		p.renderer.RemoveComponent(id)
		delete(p.rendered, id)
	}

	rendered := 0
	for _, comp := range st.ComponentsInLayout() {
		previous, seen := p.rendered[comp.ID]
		if seen && sameContent(previous, comp) && p.renderer.LocateComponent(comp.ID) != nil {
			continue
		}
		if p.render(comp) {
			rendered++
		}
	}
	moves := p.renderer.ReorderComponents(st.Layout)
	if rendered > 0 || moves > 0 {
		p.logger.Render().Debug("Preview reconciled",
			"kitId", p.kitID, "rendered", rendered, "moves", moves, "components", len(st.Components))
	}
}

// FieldPatched records a single-field edit that was already written into the
// preview, so the following store notification does not re-render it.
func (p *PreviewReconciler) FieldPatched(componentID, field string, value mediakit.Value) {
	comp, ok := p.rendered[componentID]
	if !ok {
		return
	}
	comp.Props.Set(field, value.Clone())
}

// RerenderAll renders every component again, as after a template reload.
func (p *PreviewReconciler) RerenderAll() {
	p.rendered = make(map[string]*mediakit.Component)
	p.Reconcile(p.store.GetState())
}

func (p *PreviewReconciler) render(comp *mediakit.Component) bool {
	node, err := p.templates.RenderPreview(comp)
	if err != nil {
		p.logger.LogError(logging.ChannelRender, "template", err, p.kitID,
			map[string]any{"componentId": comp.ID, "type": comp.Type})
		return false
	}
	if !p.renderer.RenderComponent(comp.ID, node, p.containerID) {
		return false
	}
	p.rendered[comp.ID] = comp.Clone()
	return true
}

func sameContent(a, b *mediakit.Component) bool {
	return a.Type == b.Type && a.Props.Equal(b.Props)
}
