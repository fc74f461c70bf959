package mediakit

import (
	"fmt"
	"time"
)

// Direction is a single-step move within the layout.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// ParseDirection validates a direction name.
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case DirectionUp, DirectionDown:
		return Direction(s), nil
	default:
		return "", fmt.Errorf("%w: direction %q", ErrInvalidArgument, s)
	}
}

// Component is one content block of a media kit.
type Component struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Props       Props  `json:"props"`
	LastUpdated int64  `json:"lastUpdated"`
}

func (c *Component) Clone() *Component {
	if c == nil {
		return nil
	}
	return &Component{
		ID:          c.ID,
		Type:        c.Type,
		Props:       c.Props.Clone(),
		LastUpdated: c.LastUpdated,
	}
}

func (c *Component) Equal(o *Component) bool {
	if c == nil || o == nil {
		return c == o
	}
	return c.ID == o.ID && c.Type == o.Type && c.LastUpdated == o.LastUpdated && c.Props.Equal(o.Props)
}

// Touch stamps LastUpdated with the current time in unix milliseconds.
func (c *Component) Touch() {
	c.LastUpdated = time.Now().UnixMilli()
}

// State is the root document of a media kit.
type State struct {
	Components     map[string]*Component `json:"components"`
	Layout         []string              `json:"layout"`
	GlobalSettings map[string]Value      `json:"globalSettings"`
}

// NewState returns an empty document.
func NewState() *State {
	return &State{
		Components:     make(map[string]*Component),
		Layout:         []string{},
		GlobalSettings: make(map[string]Value),
	}
}

// Clone returns a deep copy that shares nothing with s.
func (s *State) Clone() *State {
	if s == nil {
		return NewState()
	}
	c := &State{
		Components:     make(map[string]*Component, len(s.Components)),
		Layout:         make([]string, len(s.Layout)),
		GlobalSettings: make(map[string]Value, len(s.GlobalSettings)),
	}
	for id, comp := range s.Components {
		c.Components[id] = comp.Clone()
	}
	copy(c.Layout, s.Layout)
	for k, v := range s.GlobalSettings {
		c.GlobalSettings[k] = v.Clone()
	}
	return c
}

// Equal compares two documents structurally. Layout order matters.
func (s *State) Equal(o *State) bool {
	if s == nil || o == nil {
		return s == o
	}
	if len(s.Components) != len(o.Components) || len(s.Layout) != len(o.Layout) ||
		len(s.GlobalSettings) != len(o.GlobalSettings) {
		return false
	}
	for id, comp := range s.Components {
		if !comp.Equal(o.Components[id]) {
			return false
		}
	}
	for i := range s.Layout {
		if s.Layout[i] != o.Layout[i] {
			return false
		}
	}
	for k, v := range s.GlobalSettings {
		other, ok := o.GlobalSettings[k]
		if !ok || !v.Equal(other) {
			return false
		}
	}
	return true
}

// IsEmpty reports whether the document has no components.
func (s *State) IsEmpty() bool {
	return s == nil || len(s.Components) == 0
}

// IndexOf returns the layout position of id, or -1.
func (s *State) IndexOf(id string) int {
	for i, entry := range s.Layout {
		if entry == id {
			return i
		}
	}
	return -1
}

// ComponentsInLayout returns components in display order.
func (s *State) ComponentsInLayout() []*Component {
	out := make([]*Component, 0, len(s.Layout))
	for _, id := range s.Layout {
		if comp, ok := s.Components[id]; ok {
			out = append(out, comp)
		}
	}
	return out
}

// Validate reports the first layout/components inconsistency.
func (s *State) Validate() error {
	seen := make(map[string]struct{}, len(s.Layout))
	for _, id := range s.Layout {
		if _, ok := s.Components[id]; !ok {
			return fmt.Errorf("%w: layout references unknown component %q", ErrInvalidArgument, id)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: component %q appears twice in layout", ErrInvalidArgument, id)
		}
		seen[id] = struct{}{}
	}
	for id, comp := range s.Components {
		if comp == nil || comp.ID != id {
			return fmt.Errorf("%w: component key %q does not match its id", ErrInvalidArgument, id)
		}
		if _, ok := seen[id]; !ok {
			return fmt.Errorf("%w: component %q missing from layout", ErrInvalidArgument, id)
		}
	}
	return nil
}

// RepairLayout rewrites candidate so that it lists every component exactly
// once: unknown and repeated ids are dropped, and components the candidate
// omits are appended in the order they held in fallback. It returns the
// repaired layout and the ids that were dropped or appended.
func (s *State) RepairLayout(candidate, fallback []string) (layout, dropped, appended []string) {
	layout = make([]string, 0, len(s.Components))
	seen := make(map[string]struct{}, len(s.Components))
	for _, id := range candidate {
		if _, ok := s.Components[id]; !ok {
			dropped = append(dropped, id)
			continue
		}
		if _, dup := seen[id]; dup {
			dropped = append(dropped, id)
			continue
		}
		seen[id] = struct{}{}
		layout = append(layout, id)
	}
	for _, id := range fallback {
		if _, ok := s.Components[id]; !ok {
			continue
		}
		if _, done := seen[id]; done {
			continue
		}
		seen[id] = struct{}{}
		layout = append(layout, id)
		appended = append(appended, id)
	}
	if len(seen) < len(s.Components) {
		// components known to neither list, in stable order
		rest := make([]string, 0, len(s.Components)-len(seen))
		for id := range s.Components {
			if _, done := seen[id]; !done {
				rest = append(rest, id)
			}
		}
		sortIDs(rest)
		layout = append(layout, rest...)
		appended = append(appended, rest...)
	}
	return layout, dropped, appended
}
