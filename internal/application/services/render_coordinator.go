package services

import (
	"fmt"
	"strconv"
	"time"

	"golang.org/x/net/html"

	"github.com/AtRiskMedia/mediakit-go/internal/domain/entities/mediakit"
	"github.com/AtRiskMedia/mediakit-go/internal/domain/events"
	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/dom"
	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/observability/performance"
)

const (
	AttrComponentID = "data-component-id"
	AttrRenderTime  = "data-render-time"
)

// RenderCoordinator keeps exactly one live preview node per component id.
// It never trusts its registry alone: every insertion is preceded by a scan
// for stray nodes and followed by a uniqueness check.
type RenderCoordinator struct {
	kitID  string
	doc    *dom.Document
	bus    *events.Bus
	logger *logging.ChanneledLogger
	perf   *performance.Tracker

	registry   map[string]*html.Node
	containers map[string]struct{}
	disposers  []func()

	// OnReady is called after a node is inserted and verified, for
	// collaborators that attach controls to rendered components.
	OnReady func(componentID string, node *html.Node)
	now     func() time.Time
}

func NewRenderCoordinator(kitID string, doc *dom.Document, bus *events.Bus, logger *logging.ChanneledLogger, perf *performance.Tracker) *RenderCoordinator {
	return &RenderCoordinator{
		kitID:    kitID,
		doc:      doc,
		bus:      bus,
		logger:   logger,
		perf:     perf,
		registry:   make(map[string]*html.Node),
		containers: make(map[string]struct{}),
		now:        time.Now,
	}
}

// ProtectContainers registers container ids whose nodes and ancestors are
// never removed, even before anything has been rendered into them.
func (r *RenderCoordinator) ProtectContainers(ids ...string) {
	for _, id := range ids {
		r.containers[id] = struct{}{}
	}
}

// Attach subscribes the coordinator to render commands on its bus.
func (r *RenderCoordinator) Attach() {
	if r.bus == nil || len(r.disposers) > 0 {
		return
	}
	r.disposers = append(r.disposers,
		r.bus.Subscribe(events.NameCoordinateRenderRequest, func(e events.Event) {
			req := e.(events.CoordinateRenderRequest)
			r.RenderComponent(req.ComponentID, req.Element, req.TargetContainer)
		}),
		r.bus.Subscribe(events.NameCoordinateRemoveRequest, func(e events.Event) {
			r.RemoveComponent(e.(events.CoordinateRemoveRequest).ComponentID)
		}),
		r.bus.Subscribe(events.NameCoordinateReorderRequest, func(e events.Event) {
			r.ReorderComponents(e.(events.CoordinateReorderRequest).Layout)
		}),
		r.bus.Subscribe(events.NameComponentRendered, func(e events.Event) {
			r.RefreshRegistry(e.(events.ComponentRendered).ComponentID)
		}),
	)
}

// Dispose drops bus subscriptions and the registry.
func (r *RenderCoordinator) Dispose() {
	for _, dispose := range r.disposers {
		dispose()
	}
	r.disposers = nil
	r.registry = make(map[string]*html.Node)
}

// RenderComponent places node into the target container as the only node for
// id. On failure nothing in the document changes.
func (r *RenderCoordinator) RenderComponent(id string, node *html.Node, targetContainerID string) bool {
	marker := r.perf.StartOperation("render:component", r.kitID)
	defer marker.Complete()
	log := r.logger.WithKit(logging.ChannelRender, r.kitID).With("componentId", id, "operation", "render")

	if id == "" || node == nil || node.Type != html.ElementNode {
		err := fmt.Errorf("%w: render needs a component id and an element", mediakit.ErrInvalidArgument)
		marker.SetError(err)
		log.Error("Render rejected", "error", err)
		return false
	}
	container := r.doc.GetElementByID(targetContainerID)
	if container == nil {
		err := fmt.Errorf("%w: container %q", mediakit.ErrNotFound, targetContainerID)
		marker.SetError(err)
		log.Error("Render target missing", "error", err)
		return false
	}
	if dom.Contains(node, container) {
		err := fmt.Errorf("%w: node contains its own target container", mediakit.ErrInvalidArgument)
		marker.SetError(err)
		log.Error("Render rejected", "error", err)
		return false
	}
	r.containers[targetContainerID] = struct{}{}
	if holder := r.doc.GetElementByID(id); holder != nil && r.shelters(holder) {
		err := fmt.Errorf("%w: id %q belongs to a render container", mediakit.ErrInvalidArgument, id)
		marker.SetError(err)
		log.Error("Render rejected", "error", err)
		return false
	}

	existing := r.findNodes(id, node)

	var anchor *html.Node
	for _, n := range existing {
		if n.Parent == container {
			anchor = n
			break
		}
	}

	renderTime := r.now()
	dom.SetAttr(node, "id", id)
	dom.SetAttr(node, AttrComponentID, id)
	dom.SetAttr(node, AttrRenderTime, strconv.FormatInt(renderTime.UnixMilli(), 10))

	dom.InsertBefore(container, node, anchor)
	for _, n := range existing {
		dom.Detach(n)
	}

	verification := r.VerifyUniqueElement(id)
	if !verification.IsUnique {
		log.Warn("Duplicate nodes after render, running emergency cleanup",
			"error", mediakit.ErrDuplicateDetected,
			"countById", verification.CountByID,
			"countByDataId", verification.CountByDataID)
		removed := r.removeAllExcept(id, node)
		marker.AddMetadata("duplicatesRemoved", removed)
		verification = r.VerifyUniqueElement(id)
	}

	r.registry[id] = node
	marker.AddMetadata("replaced", len(existing))
	log.Debug("Component rendered", "container", targetContainerID, "replaced", len(existing))

	r.publish(events.ComponentRenderedCoordinated{
		ComponentID:     id,
		Element:         node,
		TargetContainer: targetContainerID,
		RenderTime:      renderTime,
		Verification:    verification,
	})
	if r.OnReady != nil {
		r.OnReady(id, node)
	}
	return true
}

// RemoveComponent drops every node for id. It is safe to call repeatedly.
func (r *RenderCoordinator) RemoveComponent(id string) bool {
	if id == "" {
		return true
	}
	_, registered := r.registry[id]
	delete(r.registry, id)

	nodes := r.findNodes(id, nil)
	for _, n := range nodes {
		dom.Detach(n)
	}
	if registered || len(nodes) > 0 {
		r.logger.Render().Debug("Component removed",
			"kitId", r.kitID, "componentId", id, "nodes", len(nodes))
		r.publish(events.ComponentRemovedCoordinated{ComponentID: id, RemovedAt: r.now()})
	}
	return true
}

// ReorderComponents moves registered nodes to follow layout within their
// parents. Ids without a live node are skipped.
func (r *RenderCoordinator) ReorderComponents(layout []string) int {
	positions := make(map[*html.Node]int)
	moves := 0
	for _, id := range layout {
		node := r.liveNode(id)
		if node == nil {
			continue
		}
		parent := node.Parent
		idx := positions[parent]
		children := dom.ElementChildren(parent)
		var ref *html.Node
		if idx < len(children) {
			ref = children[idx]
		}
		if ref != node {
			dom.InsertBefore(parent, node, ref)
			moves++
		}
		positions[parent] = idx + 1
	}
	if moves > 0 {
		r.logger.Render().Debug("Components reordered", "kitId", r.kitID, "moves", moves)
	}
	return moves
}

// VerifyUniqueElement counts the nodes claiming id.
func (r *RenderCoordinator) VerifyUniqueElement(id string) events.Verification {
	var v events.Verification
	union := 0
	r.doc.QueryAll(func(n *html.Node) bool {
		byID := dom.AttrOr(n, "id", "") == id
		byData := dom.AttrOr(n, AttrComponentID, "") == id
		if byID {
			v.CountByID++
		}
		if byData {
			v.CountByDataID++
		}
		if byID || byData {
			union++
		}
		return false
	})
	v.IsUnique = union <= 1
	return v
}

// ForceCleanupAllDuplicates keeps the first node per component id in document
// order and removes the rest. It returns the number of nodes removed.
func (r *RenderCoordinator) ForceCleanupAllDuplicates() int {
	first := make(map[string]*html.Node)
	var extra []*html.Node
	for _, n := range r.doc.QueryAll(func(n *html.Node) bool {
		_, ok := dom.Attr(n, AttrComponentID)
		return ok
	}) {
		id := dom.AttrOr(n, AttrComponentID, "")
		if _, seen := first[id]; seen {
			extra = append(extra, n)
			continue
		}
		first[id] = n
	}
	for _, n := range extra {
		dom.Detach(n)
	}
	for id, n := range first {
		if _, registered := r.registry[id]; registered {
			r.registry[id] = n
		}
	}
	if len(extra) > 0 {
		r.logger.Render().Warn("Duplicate sweep removed nodes", "kitId", r.kitID, "removed", len(extra))
	}
	return len(extra)
}

// RefreshRegistry re-reads the node for id after an outside renderer
// replaced it.
func (r *RenderCoordinator) RefreshRegistry(id string) {
	nodes := r.findNodes(id, nil)
	if len(nodes) == 0 {
		delete(r.registry, id)
		return
	}
	r.registry[id] = nodes[0]
	if len(nodes) > 1 {
		r.logger.Render().Warn("Registry refresh found duplicates",
			"kitId", r.kitID, "componentId", id, "count", len(nodes), "error", mediakit.ErrDuplicateDetected)
	}
}

// LocateComponent returns the live preview node for id, if any.
func (r *RenderCoordinator) LocateComponent(id string) *html.Node {
	if node := r.liveNode(id); node != nil {
		return node
	}
	if nodes := r.findNodes(id, nil); len(nodes) > 0 {
		return nodes[0]
	}
	return nil
}

// Registered returns the ids currently held in the registry.
func (r *RenderCoordinator) Registered() []string {
	ids := make([]string, 0, len(r.registry))
	for id := range r.registry {
		ids = append(ids, id)
	}
	return ids
}

func (r *RenderCoordinator) liveNode(id string) *html.Node {
	node, ok := r.registry[id]
	if !ok || !r.doc.Contains(node) {
		return nil
	}
	return node
}

// shelters reports whether n is a known render container or one of its
// ancestors. Such nodes are never collected for removal.
func (r *RenderCoordinator) shelters(n *html.Node) bool {
	for id := range r.containers {
		if c := r.doc.GetElementByID(id); c != nil && dom.Contains(n, c) {
			return true
		}
	}
	return false
}

// findNodes collects the registered node and every node carrying id as its
// id or component attribute, skipping except and any render container.
func (r *RenderCoordinator) findNodes(id string, except *html.Node) []*html.Node {
	var out []*html.Node
	seen := make(map[*html.Node]struct{})
	add := func(n *html.Node) {
		if n == nil || n == except || r.shelters(n) {
			return
		}
		if _, dup := seen[n]; dup {
			return
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	add(r.liveNode(id))
	for _, n := range r.doc.QueryAll(func(n *html.Node) bool {
		return dom.AttrOr(n, "id", "") == id || dom.AttrOr(n, AttrComponentID, "") == id
	}) {
		add(n)
	}
	return out
}

func (r *RenderCoordinator) removeAllExcept(id string, keep *html.Node) int {
	nodes := r.findNodes(id, keep)
	for _, n := range nodes {
		dom.Detach(n)
	}
	return len(nodes)
}

func (r *RenderCoordinator) publish(e events.Event) {
	if r.bus != nil {
		r.bus.Publish(e)
	}
}
