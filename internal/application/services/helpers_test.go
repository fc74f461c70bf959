package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AtRiskMedia/mediakit-go/internal/domain/entities/mediakit"
	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/observability/logging"
)

type memoryStorage struct {
	mu      sync.Mutex
	data    map[string][]byte
	saves   int
	loadErr error
	saveErr error
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{data: make(map[string][]byte)}
}

func (m *memoryStorage) LoadState(_ context.Context, kitID string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	data, ok := m.data[kitID]
	if !ok {
		return nil, mediakit.ErrNoStoredState
	}
	return append([]byte(nil), data...), nil
}

func (m *memoryStorage) SaveState(_ context.Context, kitID string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.data[kitID] = append([]byte(nil), data...)
	return nil
}

func testLogger() *logging.ChanneledLogger {
	return logging.NewDiscardLogger(nil)
}

func newTestStore(t *testing.T) (*StateStore, *memoryStorage) {
	t.Helper()
	storage := newMemoryStorage()
	return NewStateStore("kit-1", storage, testLogger(), nil), storage
}

func hero(id, title string) *mediakit.Component {
	return &mediakit.Component{
		ID:    id,
		Type:  "hero",
		Props: mediakit.NewProps(mediakit.F("title", mediakit.String(title))),
	}
}

func mustAdd(t *testing.T, store *StateStore, comps ...*mediakit.Component) {
	t.Helper()
	for _, c := range comps {
		require.NoError(t, store.AddComponent(c))
	}
}

func propText(t *testing.T, st *mediakit.State, id, field string) string {
	t.Helper()
	comp, ok := st.Components[id]
	require.True(t, ok, "component %s missing", id)
	v, ok := comp.Props.Get(field)
	require.True(t, ok, "field %s missing on %s", field, id)
	return v.Text()
}
