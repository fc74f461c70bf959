// Package logging provides the log broadcaster for real-time log streaming.
package logging

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// LogEntry represents a single log entry to be sent to the client.
type LogEntry struct {
	Timestamp   string `json:"timestamp"`
	Channel     string `json:"channel"`
	Level       string `json:"level"`
	Message     string `json:"message"`
	KitID       string `json:"kitId,omitempty"`
	ComponentID string `json:"componentId,omitempty"`
}

// Client represents a single connected log viewer.
type Client struct {
	id      string
	Channel chan []byte
	filters AppliedFilters
}

// AppliedFilters defines the filtering criteria for a client.
type AppliedFilters struct {
	Channel Channel    // "all" matches every channel
	Level   slog.Level // minimum level
}

// LogBroadcaster manages clients and broadcasts log messages.
type LogBroadcaster struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan LogEntry
	mu         sync.RWMutex
	stop       chan struct{}
	stopOnce   sync.Once
}

var (
	broadcaster *LogBroadcaster
	once        sync.Once
)

// GetBroadcaster initializes and returns the singleton LogBroadcaster instance.
func GetBroadcaster() *LogBroadcaster {
	once.Do(func() {
		broadcaster = &LogBroadcaster{
			clients:    make(map[*Client]bool),
			register:   make(chan *Client),
			unregister: make(chan *Client),
			broadcast:  make(chan LogEntry, 1000),
			stop:       make(chan struct{}),
		}
		go broadcaster.run()
	})
	return broadcaster
}

func (b *LogBroadcaster) run() {
	for {
		select {
		case <-b.stop:
			return
		case client := <-b.register:
			b.mu.Lock()
			b.clients[client] = true
			b.mu.Unlock()
		case client := <-b.unregister:
			b.mu.Lock()
			if _, ok := b.clients[client]; ok {
				delete(b.clients, client)
				close(client.Channel)
			}
			b.mu.Unlock()
		case entry := <-b.broadcast:
			b.distribute(entry)
		}
	}
}

func (b *LogBroadcaster) distribute(entry LogEntry) {
	message, err := json.Marshal(entry)
	if err != nil {
		return
	}
	level := ParseLevel(entry.Level)

	b.mu.RLock()
	defer b.mu.RUnlock()

	for client := range b.clients {
		channelMatch := client.filters.Channel == "all" || client.filters.Channel == Channel(entry.Channel)
		if !channelMatch || level < client.filters.Level {
			continue
		}
		select {
		case client.Channel <- message:
		default:
			// slow viewer, drop
		}
	}
}

// SubmitLog hands a log entry to the broadcaster without blocking.
func (b *LogBroadcaster) SubmitLog(entry LogEntry) {
	select {
	case b.broadcast <- entry:
	default:
		fmt.Println("Log broadcaster channel full. Log message dropped.")
	}
}

// NewClient creates a new client for the broadcaster.
func (b *LogBroadcaster) NewClient(filters AppliedFilters) *Client {
	return &Client{
		id:      fmt.Sprintf("%d", time.Now().UnixNano()),
		Channel: make(chan []byte, 100),
		filters: filters,
	}
}

// Shutdown gracefully stops the broadcaster.
func (b *LogBroadcaster) Shutdown() {
	b.stopOnce.Do(func() { close(b.stop) })
}

// RegisterClient adds a new client.
func (b *LogBroadcaster) RegisterClient(client *Client) {
	b.register <- client
}

// UnregisterClient removes a client and closes its channel.
func (b *LogBroadcaster) UnregisterClient(client *Client) {
	b.unregister <- client
}
