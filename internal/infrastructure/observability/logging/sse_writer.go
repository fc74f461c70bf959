// Package logging provides the custom io.Writer for SSE log streaming.
package logging

import (
	"encoding/json"
	"log/slog"
	"time"
)

// SSEWriter intercepts JSON log records and forwards them to the LogBroadcaster.
type SSEWriter struct {
	broadcaster *LogBroadcaster
}

// NewSSEWriter creates a new writer that sends log data to the broadcaster.
func NewSSEWriter() *SSEWriter {
	return &SSEWriter{broadcaster: GetBroadcaster()}
}

// Write satisfies io.Writer. It never fails; unparseable records are reported
// as a system error entry instead.
func (w *SSEWriter) Write(p []byte) (n int, err error) {
	var rawLog map[string]any
	if err := json.Unmarshal(p, &rawLog); err != nil {
		w.broadcaster.SubmitLog(LogEntry{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Level:     slog.LevelError.String(),
			Channel:   string(ChannelSystem),
			Message:   "sse_writer: failed to parse incoming log message",
		})
		return len(p), nil
	}

	w.broadcaster.SubmitLog(LogEntry{
		Timestamp:   w.getString(rawLog, "time"),
		Level:       w.getString(rawLog, "level"),
		Channel:     w.getString(rawLog, "channel"),
		Message:     w.getString(rawLog, "msg"),
		KitID:       w.getString(rawLog, "kitId"),
		ComponentID: w.getString(rawLog, "componentId"),
	})

	return len(p), nil
}

func (w *SSEWriter) getString(data map[string]any, key string) string {
	if val, ok := data[key]; ok {
		if strVal, ok := val.(string); ok {
			return strVal
		}
	}
	return ""
}
