package dom

import (
	"sync"

	"golang.org/x/net/html"
)

// Event is dispatched to listeners on a node.
type Event struct {
	Type   string
	Target *html.Node
	// Synthetic marks events raised by the engine after it wrote a value,
	// as opposed to user input.
	Synthetic bool
}

type Listener func(Event)

// ListenerHandle identifies one registration for removal.
type ListenerHandle struct {
	id   uint64
	node *html.Node
	typ  string
}

// Node returns the node the listener is attached to.
func (h ListenerHandle) Node() *html.Node { return h.node }

func (h ListenerHandle) Valid() bool { return h.id != 0 }

type registration struct {
	id       uint64
	listener Listener
}

// Events holds listeners keyed by node rather than by document position, so a
// detached node keeps receiving dispatches until its listeners are removed.
type Events struct {
	mu     sync.Mutex
	nextID uint64
	byNode map[*html.Node]map[string][]registration
}

func NewEvents() *Events {
	return &Events{byNode: make(map[*html.Node]map[string][]registration)}
}

func (e *Events) AddEventListener(n *html.Node, typ string, fn Listener) ListenerHandle {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	types := e.byNode[n]
	if types == nil {
		types = make(map[string][]registration)
		e.byNode[n] = types
	}
	types[typ] = append(types[typ], registration{id: e.nextID, listener: fn})
	return ListenerHandle{id: e.nextID, node: n, typ: typ}
}

// RemoveEventListener detaches one listener; it reports whether it was present.
func (e *Events) RemoveEventListener(h ListenerHandle) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	types := e.byNode[h.node]
	regs := types[h.typ]
	for i, r := range regs {
		if r.id != h.id {
			continue
		}
		regs = append(regs[:i:i], regs[i+1:]...)
		if len(regs) == 0 {
			delete(types, h.typ)
		} else {
			types[h.typ] = regs
		}
		if len(types) == 0 {
			delete(e.byNode, h.node)
		}
		return true
	}
	return false
}

// Dispatch invokes the listeners registered on n for ev.Type and returns how
// many ran.
func (e *Events) Dispatch(n *html.Node, ev Event) int {
	if ev.Target == nil {
		ev.Target = n
	}
	e.mu.Lock()
	regs := append([]registration(nil), e.byNode[n][ev.Type]...)
	e.mu.Unlock()

	for _, r := range regs {
		r.listener(ev)
	}
	return len(regs)
}

// Count returns the number of listeners attached to n.
func (e *Events) Count(n *html.Node) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	total := 0
	for _, regs := range e.byNode[n] {
		total += len(regs)
	}
	return total
}

// Len returns the total number of live listeners.
func (e *Events) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	total := 0
	for _, types := range e.byNode {
		for _, regs := range types {
			total += len(regs)
		}
	}
	return total
}
