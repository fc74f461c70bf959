package messaging

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/observability/logging"
)

func TestBroadcastReachesOnlyKitClients(t *testing.T) {
	b := NewSSEBroadcaster(0, 4, logging.NewDiscardLogger(nil))
	first, err := b.AddClient("kit-1")
	require.NoError(t, err)
	other, err := b.AddClient("kit-2")
	require.NoError(t, err)

	b.Broadcast("kit-1", "notice", map[string]string{"message": "saved"})

	select {
	case frame := <-first.Events:
		assert.Equal(t, "event: notice\ndata: {\"message\":\"saved\"}\n\n", frame)
	default:
		t.Fatal("kit-1 client received nothing")
	}
	assert.Len(t, other.Events, 0)
	assert.Equal(t, 1, b.ConnectionCount("kit-1"))
	assert.Equal(t, 2, b.TotalConnections())
}

func TestRemoveClientClosesChannelOnce(t *testing.T) {
	b := NewSSEBroadcaster(0, 4, logging.NewDiscardLogger(nil))
	client, err := b.AddClient("kit-1")
	require.NoError(t, err)

	b.RemoveClient(client)
	b.RemoveClient(client)

	_, open := <-client.Events
	assert.False(t, open)
	assert.Zero(t, b.ConnectionCount("kit-1"))
	assert.Zero(t, b.TotalConnections())
}

func TestConnectionLimit(t *testing.T) {
	b := NewSSEBroadcaster(1, 4, logging.NewDiscardLogger(nil))
	_, err := b.AddClient("kit-1")
	require.NoError(t, err)
	_, err = b.AddClient("kit-2")
	assert.ErrorIs(t, err, ErrTooManyConnections)
}

func TestFullClientBufferDropsFrames(t *testing.T) {
	b := NewSSEBroadcaster(0, 1, logging.NewDiscardLogger(nil))
	client, err := b.AddClient("kit-1")
	require.NoError(t, err)

	b.Broadcast("kit-1", "a", 1)
	b.Broadcast("kit-1", "b", 2)
	assert.Len(t, client.Events, 1)
}

func TestFormatEventRejectsNewlines(t *testing.T) {
	_, err := FormatEvent("bad\nname", nil)
	assert.Error(t, err)
}

type fixedSessions []SessionSummary

func (f fixedSessions) SessionSummaries() []SessionSummary {
	return append([]SessionSummary(nil), f...)
}

func TestSysOpSnapshot(t *testing.T) {
	now := time.Now()
	source := fixedSessions{
		{KitID: "b", Dirty: true, LastActivity: now},
		{KitID: "a", LastActivity: now.Add(-time.Hour)},
	}
	b := NewSysOpBroadcaster(source, time.Hour, logging.NewDiscardLogger(nil))

	snap := b.Snapshot()
	require.Len(t, snap.Sessions, 2)
	assert.Equal(t, "a", snap.Sessions[0].KitID)
	assert.Equal(t, 2, snap.TotalCount)
	assert.Equal(t, 1, snap.DirtyCount)
	assert.Equal(t, 1, snap.ActiveCount)
}

func TestSysOpRegisterSendsSnapshot(t *testing.T) {
	b := NewSysOpBroadcaster(fixedSessions{{KitID: "kit-1"}}, time.Hour, logging.NewDiscardLogger(nil))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	client := &SysOpClient{Send: make(chan []byte, 1)}
	b.Register(client)

	select {
	case msg := <-client.Send:
		var payload SessionStatePayload
		require.NoError(t, json.Unmarshal(msg, &payload))
		assert.Equal(t, 1, payload.TotalCount)
	case <-time.After(time.Second):
		t.Fatal("no snapshot on register")
	}

	b.Unregister(client)
	require.Eventually(t, func() bool { return b.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestSysOpRegisterAfterStop(t *testing.T) {
	b := NewSysOpBroadcaster(nil, time.Hour, logging.NewDiscardLogger(nil))
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	client := &SysOpClient{Send: make(chan []byte, 1)}
	b.Register(client)
	_, open := <-client.Send
	assert.False(t, open)
	b.Unregister(client)
}
