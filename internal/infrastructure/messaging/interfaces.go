// Package messaging defines interfaces for real-time communication.
package messaging

// Broadcaster fans session events out to the live connections of a kit.
type Broadcaster interface {
	AddClient(kitID string) (*Client, error)
	RemoveClient(client *Client)
	ConnectionCount(kitID string) int
	TotalConnections() int
	Broadcast(kitID, event string, payload any)
}

var _ Broadcaster = (*SSEBroadcaster)(nil)
