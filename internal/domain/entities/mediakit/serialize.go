package mediakit

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Serialize encodes the document as
// {components: {<id>: {id, type, props, lastUpdated}}, layout: [...], globalSettings: {...}}.
func Serialize(s *State) ([]byte, error) {
	if s == nil {
		s = NewState()
	}
	out := s
	if s.Components == nil || s.Layout == nil || s.GlobalSettings == nil {
		out = s.Clone()
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("serialize state: %w", err)
	}
	return data, nil
}

// Deserialize decodes a serialized document. Missing sections become empty,
// a component without an id takes its map key, and a layout that disagrees
// with the component map is repaired. The returned repairs list describes
// every adjustment so callers can log it.
func Deserialize(data []byte) (*State, []string, error) {
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, nil, fmt.Errorf("deserialize state: %w", err)
	}
	var repairs []string
	if s.Components == nil {
		s.Components = make(map[string]*Component)
	}
	if s.GlobalSettings == nil {
		s.GlobalSettings = make(map[string]Value)
	}
	if s.Layout == nil {
		s.Layout = []string{}
	}
	for key, comp := range s.Components {
		if comp == nil {
			delete(s.Components, key)
			repairs = append(repairs, fmt.Sprintf("dropped null component %q", key))
			continue
		}
		if comp.ID == "" {
			comp.ID = key
			repairs = append(repairs, fmt.Sprintf("component %q had no id", key))
		}
		if comp.ID != key {
			return nil, nil, fmt.Errorf("deserialize state: %w: component key %q holds id %q", ErrInvalidArgument, key, comp.ID)
		}
		if comp.Props.m == nil {
			comp.Props = NewProps()
		}
	}
	if err := s.Validate(); err != nil {
		layout, dropped, appended := s.RepairLayout(s.Layout, nil)
		s.Layout = layout
		for _, id := range dropped {
			repairs = append(repairs, fmt.Sprintf("dropped layout entry %q", id))
		}
		for _, id := range appended {
			repairs = append(repairs, fmt.Sprintf("appended unlisted component %q", id))
		}
	}
	return &s, repairs, nil
}

func sortIDs(ids []string) { sort.Strings(ids) }
