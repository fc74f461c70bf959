// Package services holds the editing engine of a media kit session: the
// state store, the render and sync coordinators, bulk operations and the
// session lifecycle around them.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/AtRiskMedia/mediakit-go/internal/domain/entities/mediakit"
	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/observability/performance"
)

// StateStorage persists serialized kit state.
type StateStorage interface {
	LoadState(ctx context.Context, kitID string) ([]byte, error)
	SaveState(ctx context.Context, kitID string, data []byte) error
}

// StateListener receives the new document after every notified change. The
// state is shared between listeners of one notification and must not be
// modified.
type StateListener func(*mediakit.State)

type stateSubscription struct {
	id       uint64
	listener StateListener
}

// StateStore is the single source of truth for one kit's document. Every
// mutation goes through it.
type StateStore struct {
	kitID   string
	storage StateStorage
	logger  *logging.ChanneledLogger
	perf    *performance.Tracker

	mu         sync.Mutex
	state      *mediakit.State
	subs       []stateSubscription
	nextSubID  uint64
	batching   bool
	batchStart *mediakit.State
	batchDirty bool
	version    uint64
	savedAt    uint64
	reserved   map[string]struct{}
}

// NewStateStore creates a store holding an empty document.
func NewStateStore(kitID string, storage StateStorage, logger *logging.ChanneledLogger, perf *performance.Tracker) *StateStore {
	return &StateStore{
		kitID:   kitID,
		storage: storage,
		logger:  logger,
		perf:    perf,
		state:   mediakit.NewState(),
	}
}

func (s *StateStore) KitID() string { return s.kitID }

// ReserveIDs marks ids that new components may not take, such as the
// preview and editor container ids.
func (s *StateStore) ReserveIDs(ids ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reserved == nil {
		s.reserved = make(map[string]struct{}, len(ids))
	}
	for _, id := range ids {
		s.reserved[id] = struct{}{}
	}
}

// GetState returns a deep copy of the current document.
func (s *StateStore) GetState() *mediakit.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Component returns a copy of one component.
func (s *StateStore) Component(id string) (*mediakit.Component, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	comp, ok := s.state.Components[id]
	if !ok {
		return nil, false
	}
	return comp.Clone(), true
}

// AddComponent inserts a new component and appends it to the layout.
func (s *StateStore) AddComponent(c *mediakit.Component) error {
	if c == nil || c.ID == "" {
		return fmt.Errorf("%w: component id is required", mediakit.ErrInvalidArgument)
	}
	return s.mutate(func(st *mediakit.State) (bool, error) {
		if _, exists := st.Components[c.ID]; exists {
			return false, fmt.Errorf("%w: component %q already exists", mediakit.ErrInvalidArgument, c.ID)
		}
		if _, taken := s.reserved[c.ID]; taken {
			return false, fmt.Errorf("%w: id %q is reserved", mediakit.ErrInvalidArgument, c.ID)
		}
		comp := c.Clone()
		if comp.LastUpdated == 0 {
			comp.Touch()
		}
		st.Components[comp.ID] = comp
		if st.IndexOf(comp.ID) < 0 {
			st.Layout = append(st.Layout, comp.ID)
		}
		return true, nil
	})
}

// RemoveComponent deletes a component. It reports false when id was absent.
func (s *StateStore) RemoveComponent(id string) bool {
	removed := false
	_ = s.mutate(func(st *mediakit.State) (bool, error) {
		if _, exists := st.Components[id]; !exists {
			return false, nil
		}
		delete(st.Components, id)
		kept := st.Layout[:0]
		for _, entry := range st.Layout {
			if entry != id {
				kept = append(kept, entry)
			}
		}
		st.Layout = kept
		removed = true
		return true, nil
	})
	return removed
}

// UpdateComponentProps shallow-merges partial into the component's props. An
// update that changes no value is a no-op.
func (s *StateStore) UpdateComponentProps(id string, partial mediakit.Props) error {
	if id == "" {
		return fmt.Errorf("%w: component id is required", mediakit.ErrInvalidArgument)
	}
	return s.mutate(func(st *mediakit.State) (bool, error) {
		comp, exists := st.Components[id]
		if !exists {
			return false, fmt.Errorf("%w: %q", mediakit.ErrNotFound, id)
		}
		merged := comp.Props.Clone()
		merged.Merge(partial)
		if merged.Equal(comp.Props) {
			return false, nil
		}
		comp.Props = merged
		comp.Touch()
		return true, nil
	})
}

// MoveComponent swaps a component with its neighbour. It reports false when
// id is absent or already at that edge.
func (s *StateStore) MoveComponent(id string, direction mediakit.Direction) bool {
	moved := false
	_ = s.mutate(func(st *mediakit.State) (bool, error) {
		idx := st.IndexOf(id)
		if idx < 0 {
			return false, nil
		}
		target := idx - 1
		if direction == mediakit.DirectionDown {
			target = idx + 1
		}
		if target < 0 || target >= len(st.Layout) {
			return false, nil
		}
		st.Layout[idx], st.Layout[target] = st.Layout[target], st.Layout[idx]
		moved = true
		return true, nil
	})
	return moved
}

// SetLayout replaces the display order. Unknown and repeated ids are dropped
// and components the new order leaves out are appended in their previous
// order, so layout and components always agree. It returns the applied layout.
func (s *StateStore) SetLayout(layout []string) []string {
	var applied []string
	_ = s.mutate(func(st *mediakit.State) (bool, error) {
		repaired, dropped, appended := st.RepairLayout(layout, st.Layout)
		if len(dropped) > 0 || len(appended) > 0 {
			s.logger.State().Warn("Layout repaired",
				"kitId", s.kitID, "dropped", dropped, "appended", appended)
		}
		applied = repaired
		if equalIDs(repaired, st.Layout) {
			return false, nil
		}
		st.Layout = repaired
		return true, nil
	})
	return append([]string(nil), applied...)
}

// UpdateGlobalSettings shallow-merges kit-wide settings. A null value deletes
// the key.
func (s *StateStore) UpdateGlobalSettings(settings map[string]mediakit.Value) {
	_ = s.mutate(func(st *mediakit.State) (bool, error) {
		changed := false
		for k, v := range settings {
			current, exists := st.GlobalSettings[k]
			if v.IsNull() {
				if exists {
					delete(st.GlobalSettings, k)
					changed = true
				}
				continue
			}
			if exists && current.Equal(v) {
				continue
			}
			st.GlobalSettings[k] = v.Clone()
			changed = true
		}
		return changed, nil
	})
}

// ReplaceState swaps in a whole document, as undo and reset do.
func (s *StateStore) ReplaceState(next *mediakit.State) {
	replacement := next.Clone()
	if err := replacement.Validate(); err != nil {
		layout, _, _ := replacement.RepairLayout(replacement.Layout, nil)
		replacement.Layout = layout
		s.logger.State().Warn("Replacement state repaired", "kitId", s.kitID, "error", err)
	}
	_ = s.mutate(func(st *mediakit.State) (bool, error) {
		if st.Equal(replacement) {
			return false, nil
		}
		*st = *replacement
		return true, nil
	})
}

// StartBatchUpdate defers notifications until EndBatchUpdate. Batches do not
// nest; a second start joins the open batch.
func (s *StateStore) StartBatchUpdate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.batching {
		s.logger.State().Warn("Nested batch update ignored", "kitId", s.kitID)
		return
	}
	s.batching = true
	s.batchDirty = false
	s.batchStart = s.state.Clone()
}

// EndBatchUpdate closes the batch and emits a single notification when the
// document differs from its state at StartBatchUpdate.
func (s *StateStore) EndBatchUpdate() {
	s.mu.Lock()
	if !s.batching {
		s.mu.Unlock()
		s.logger.State().Warn("EndBatchUpdate without matching start", "kitId", s.kitID)
		return
	}
	s.batching = false
	changed := s.batchDirty && !s.state.Equal(s.batchStart)
	s.batchStart = nil
	s.batchDirty = false
	if !changed {
		s.mu.Unlock()
		return
	}
	snapshot, subs := s.prepareNotify()
	s.mu.Unlock()
	s.notify(subs, snapshot)
}

// Batch runs fn inside a batch and always closes it.
func (s *StateStore) Batch(fn func() error) error {
	s.StartBatchUpdate()
	defer s.EndBatchUpdate()
	return fn()
}

// SubscribeGlobal registers a listener; the returned disposer is idempotent.
func (s *StateStore) SubscribeGlobal(listener StateListener) func() {
	s.mu.Lock()
	s.nextSubID++
	id := s.nextSubID
	s.subs = append(s.subs, stateSubscription{id: id, listener: listener})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, sub := range s.subs {
				if sub.id == id {
					s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// IsDirty reports unsaved changes.
func (s *StateStore) IsDirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version != s.savedAt
}

// LoadStateFromStorage replaces the document with the stored one. Corrupt
// data is logged and leaves the current document untouched.
func (s *StateStore) LoadStateFromStorage(ctx context.Context) error {
	marker := s.perf.StartOperation("state:load", s.kitID)
	defer marker.Complete()

	if s.storage == nil {
		marker.SetSuccess(false)
		return fmt.Errorf("%w: no storage configured", mediakit.ErrPersistence)
	}
	data, err := s.storage.LoadState(ctx, s.kitID)
	if err != nil {
		marker.SetError(err)
		if errors.Is(err, mediakit.ErrNoStoredState) {
			return err
		}
		s.logger.LogError(logging.ChannelState, "load", err, s.kitID, nil)
		return fmt.Errorf("%w: load state: %v", mediakit.ErrPersistence, err)
	}

	loaded, repairs, err := mediakit.Deserialize(data)
	if err != nil {
		marker.SetError(err)
		s.logger.State().Error("Stored state is corrupt, keeping current state",
			"kitId", s.kitID, "bytes", len(data), "error", err)
		return fmt.Errorf("%w: %v", mediakit.ErrPersistence, err)
	}
	for _, repair := range repairs {
		s.logger.State().Warn("Stored state repaired", "kitId", s.kitID, "repair", repair)
	}

	s.mu.Lock()
	changed := !s.state.Equal(loaded)
	s.state = loaded
	s.version++
	s.savedAt = s.version
	if s.batching {
		s.batchDirty = s.batchDirty || changed
		s.mu.Unlock()
		return nil
	}
	if !changed {
		s.mu.Unlock()
		return nil
	}
	snapshot, subs := s.prepareNotify()
	s.mu.Unlock()

	s.logger.State().Info("State loaded", "kitId", s.kitID, "components", len(loaded.Components))
	s.notify(subs, snapshot)
	return nil
}

// SaveStateToStorage writes the current document.
func (s *StateStore) SaveStateToStorage(ctx context.Context) error {
	marker := s.perf.StartOperation("state:save", s.kitID)
	defer marker.Complete()

	if s.storage == nil {
		marker.SetSuccess(false)
		return fmt.Errorf("%w: no storage configured", mediakit.ErrPersistence)
	}
	s.mu.Lock()
	data, err := mediakit.Serialize(s.state)
	version := s.version
	s.mu.Unlock()
	if err != nil {
		marker.SetError(err)
		return fmt.Errorf("%w: %v", mediakit.ErrPersistence, err)
	}

	if err := s.storage.SaveState(ctx, s.kitID, data); err != nil {
		marker.SetError(err)
		s.logger.LogError(logging.ChannelState, "save", err, s.kitID, nil)
		return fmt.Errorf("%w: save state: %v", mediakit.ErrPersistence, err)
	}

	s.mu.Lock()
	if version > s.savedAt {
		s.savedAt = version
	}
	s.mu.Unlock()
	marker.AddMetadata("bytes", len(data))
	s.logger.State().Debug("State saved", "kitId", s.kitID, "bytes", len(data))
	return nil
}

// mutate applies fn under the lock and notifies outside it.
func (s *StateStore) mutate(fn func(*mediakit.State) (bool, error)) error {
	s.mu.Lock()
	changed, err := fn(s.state)
	if err != nil || !changed {
		s.mu.Unlock()
		return err
	}
	s.version++
	if s.batching {
		s.batchDirty = true
		s.mu.Unlock()
		return nil
	}
	snapshot, subs := s.prepareNotify()
	s.mu.Unlock()
	s.notify(subs, snapshot)
	return nil
}

func (s *StateStore) prepareNotify() (*mediakit.State, []stateSubscription) {
	return s.state.Clone(), append([]stateSubscription(nil), s.subs...)
}

func (s *StateStore) notify(subs []stateSubscription, snapshot *mediakit.State) {
	start := time.Now()
	for _, sub := range subs {
		s.deliver(sub, snapshot)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		s.logger.Perf().Warn("Slow state notification",
			"kitId", s.kitID, "subscribers", len(subs), "duration", elapsed)
	}
}

func (s *StateStore) deliver(sub stateSubscription, snapshot *mediakit.State) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.State().Error("State listener panicked", "kitId", s.kitID, "panic", r,
				slog.Uint64("subscription", sub.id))
		}
	}()
	sub.listener(snapshot)
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
