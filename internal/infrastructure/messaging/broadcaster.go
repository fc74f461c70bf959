// Package messaging provides the kit-scoped SSE broadcaster and the sysop
// session monitor.
package messaging

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/security"
)

// ErrTooManyConnections is returned when the connection limit is reached.
var ErrTooManyConnections = errors.New("too many live connections")

// Client is one live event stream of a kit.
type Client struct {
	ID     string
	KitID  string
	Events chan string
}

// SSEBroadcaster manages kit-scoped SSE connections.
type SSEBroadcaster struct {
	kits      map[string]map[string]*Client // kitId -> clientId -> client
	total     int
	maxConns  int
	bufferLen int
	mu        sync.Mutex
	logger    *logging.ChanneledLogger
}

// NewSSEBroadcaster creates a broadcaster. maxConns of zero means unlimited.
func NewSSEBroadcaster(maxConns, bufferLen int, logger *logging.ChanneledLogger) *SSEBroadcaster {
	if bufferLen <= 0 {
		bufferLen = 10
	}
	return &SSEBroadcaster{
		kits:      make(map[string]map[string]*Client),
		maxConns:  maxConns,
		bufferLen: bufferLen,
		logger:    logger,
	}
}

// AddClient registers a new SSE client for a kit.
func (b *SSEBroadcaster) AddClient(kitID string) (*Client, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.maxConns > 0 && b.total >= b.maxConns {
		b.logger.SSE().Warn("SSE connection refused, limit reached", "kitId", kitID, "limit", b.maxConns)
		return nil, ErrTooManyConnections
	}
	client := &Client{ID: security.GenerateULID(), KitID: kitID, Events: make(chan string, b.bufferLen)}
	if b.kits[kitID] == nil {
		b.kits[kitID] = make(map[string]*Client)
	}
	b.kits[kitID][client.ID] = client
	b.total++

	b.logger.SSE().Debug("SSE client registered", "kitId", kitID, "clientId", client.ID)
	return client, nil
}

// RemoveClient unregisters a client and closes its channel. Removing twice is
// harmless.
func (b *SSEBroadcaster) RemoveClient(client *Client) {
	if client == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	clients, ok := b.kits[client.KitID]
	if !ok {
		return
	}
	if _, ok := clients[client.ID]; !ok {
		return
	}
	delete(clients, client.ID)
	close(client.Events)
	b.total--
	if len(clients) == 0 {
		delete(b.kits, client.KitID)
	}
	b.logger.SSE().Debug("SSE client unregistered", "kitId", client.KitID, "clientId", client.ID)
}

// ConnectionCount returns the live connections of a kit.
func (b *SSEBroadcaster) ConnectionCount(kitID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.kits[kitID])
}

// TotalConnections returns the live connections across all kits.
func (b *SSEBroadcaster) TotalConnections() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}

// Broadcast sends one SSE frame to every client of a kit. Clients whose
// buffer is full miss the frame.
func (b *SSEBroadcaster) Broadcast(kitID, event string, payload any) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.SSE().Error("Panic recovered in Broadcast", "error", r, "kitId", kitID, "event", event)
		}
	}()

	message, err := FormatEvent(event, payload)
	if err != nil {
		b.logger.SSE().Error("Event encoding failed", "error", err.Error(), "kitId", kitID, "event", event)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for _, client := range b.kits[kitID] {
		select {
		case client.Events <- message:
		default:
			b.logger.SSE().Warn("SSE channel full, message dropped", "kitId", kitID, "clientId", client.ID, "event", event)
		}
	}
}

// CloseKit disconnects every client of a kit.
func (b *SSEBroadcaster) CloseKit(kitID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, client := range b.kits[kitID] {
		close(client.Events)
		b.total--
	}
	delete(b.kits, kitID)
}

// FormatEvent renders an SSE frame with a JSON data line.
func FormatEvent(event string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	if strings.ContainsAny(event, "\r\n") {
		return "", fmt.Errorf("invalid event name %q", event)
	}
	return fmt.Sprintf("event: %s\ndata: %s\n\n", event, data), nil
}
