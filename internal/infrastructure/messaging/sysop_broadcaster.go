package messaging

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/observability/logging"
)

// SysOpClient represents a single connected sysop dashboard client.
type SysOpClient struct {
	Conn *websocket.Conn
	Send chan []byte
}

// NewSysOpClient wraps a websocket connection with a send buffer.
func NewSysOpClient(conn *websocket.Conn) *SysOpClient {
	return &SysOpClient{Conn: conn, Send: make(chan []byte, 8)}
}

// SessionSummary describes one open editing session.
type SessionSummary struct {
	KitID        string    `json:"kitId"`
	Components   int       `json:"components"`
	Dirty        bool      `json:"dirty"`
	Connections  int       `json:"connections"`
	SyncFields   int       `json:"syncRegistrations"`
	Synced       uint64    `json:"synced"`
	Conflicts    uint64    `json:"conflicts"`
	OpenedAt     time.Time `json:"openedAt"`
	LastActivity time.Time `json:"lastActivity"`
}

// SessionSource lists the open sessions.
type SessionSource interface {
	SessionSummaries() []SessionSummary
}

// SessionStatePayload is the complete data structure sent on each tick.
type SessionStatePayload struct {
	Sessions    []SessionSummary `json:"sessions"`
	TotalCount  int              `json:"totalCount"`
	DirtyCount  int              `json:"dirtyCount"`
	ActiveCount int              `json:"activeCount"`
	GeneratedAt time.Time        `json:"generatedAt"`
}

// activeWindow is how recent the last activity must be to count as active.
const activeWindow = 5 * time.Minute

// SysOpBroadcaster pushes open-session snapshots to dashboard websockets.
type SysOpBroadcaster struct {
	clients    map[*SysOpClient]bool
	register   chan *SysOpClient
	unregister chan *SysOpClient
	source     SessionSource
	interval   time.Duration
	logger     *logging.ChanneledLogger
	mu         sync.RWMutex
	done       chan struct{}
}

func NewSysOpBroadcaster(source SessionSource, interval time.Duration, logger *logging.ChanneledLogger) *SysOpBroadcaster {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &SysOpBroadcaster{
		clients:    make(map[*SysOpClient]bool),
		register:   make(chan *SysOpClient),
		unregister: make(chan *SysOpClient),
		source:     source,
		interval:   interval,
		logger:     logger,
		done:       make(chan struct{}),
	}
}

// Run starts the broadcaster's main loop. This should be run as a goroutine.
func (b *SysOpBroadcaster) Run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	defer close(b.done)

	for {
		select {
		case <-ctx.Done():
			b.mu.Lock()
			for client := range b.clients {
				close(client.Send)
				delete(b.clients, client)
			}
			b.mu.Unlock()
			return

		case client := <-b.register:
			b.mu.Lock()
			b.clients[client] = true
			b.mu.Unlock()
			b.logger.SSE().Debug("SysOp client registered", "clients", b.ClientCount())
			b.sendTo(client, b.Snapshot())

		case client := <-b.unregister:
			b.mu.Lock()
			if _, ok := b.clients[client]; ok {
				delete(b.clients, client)
				close(client.Send)
			}
			b.mu.Unlock()
			b.logger.SSE().Debug("SysOp client unregistered", "clients", b.ClientCount())

		case <-ticker.C:
			b.broadcast()
		}
	}
}

// Register queues a client for registration. After Run has returned the
// client's Send channel is closed instead.
func (b *SysOpBroadcaster) Register(client *SysOpClient) {
	select {
	case b.register <- client:
	case <-b.done:
		close(client.Send)
	}
}

// Unregister queues a client for unregistration.
func (b *SysOpBroadcaster) Unregister(client *SysOpClient) {
	select {
	case b.unregister <- client:
	case <-b.done:
	}
}

func (b *SysOpBroadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Snapshot gathers the current session list, sorted by kit id.
func (b *SysOpBroadcaster) Snapshot() SessionStatePayload {
	var sessions []SessionSummary
	if b.source != nil {
		sessions = b.source.SessionSummaries()
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].KitID < sessions[j].KitID })

	now := time.Now()
	payload := SessionStatePayload{Sessions: sessions, TotalCount: len(sessions), GeneratedAt: now.UTC()}
	for _, s := range sessions {
		if s.Dirty {
			payload.DirtyCount++
		}
		if now.Sub(s.LastActivity) <= activeWindow {
			payload.ActiveCount++
		}
	}
	if payload.Sessions == nil {
		payload.Sessions = []SessionSummary{}
	}
	return payload
}

func (b *SysOpBroadcaster) broadcast() {
	b.mu.RLock()
	empty := len(b.clients) == 0
	b.mu.RUnlock()
	if empty {
		return
	}

	message, err := json.Marshal(b.Snapshot())
	if err != nil {
		b.logger.SSE().Error("Session snapshot encoding failed", "error", err.Error())
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for client := range b.clients {
		select {
		case client.Send <- message:
		default:
		}
	}
}

func (b *SysOpBroadcaster) sendTo(client *SysOpClient, payload SessionStatePayload) {
	message, err := json.Marshal(payload)
	if err != nil {
		return
	}
	select {
	case client.Send <- message:
	default:
	}
}
