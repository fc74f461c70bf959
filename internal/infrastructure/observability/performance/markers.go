// Package performance provides performance markers for tracking editing
// session operations (renders, syncs, saves, bulk operations).
package performance

import (
	"time"
)

// Marker represents a single performance measurement for an operation
type Marker struct {
	Operation string         `json:"operation"` // e.g. "render:component", "state:save"
	KitID     string         `json:"kitId"`
	StartTime time.Time      `json:"startTime"`
	EndTime   time.Time      `json:"endTime"`
	Duration  time.Duration  `json:"duration"`
	Success   bool           `json:"success"`
	Error     string         `json:"error,omitempty"`
	Metadata  map[string]any `json:"metadata"`
	Completed bool           `json:"completed"`

	onComplete func(*Marker)
}

// Complete marks the operation as finished and calculates final metrics
func (m *Marker) Complete() {
	if m.Completed {
		return
	}

	m.EndTime = time.Now()
	m.Duration = m.EndTime.Sub(m.StartTime)
	m.Completed = true

	if m.onComplete != nil {
		m.onComplete(m)
	}
}

// SetSuccess marks the operation as successful or failed
func (m *Marker) SetSuccess(success bool) {
	m.Success = success
}

// SetError sets an error message and marks the operation as failed
func (m *Marker) SetError(err error) {
	if err != nil {
		m.Error = err.Error()
		m.Success = false
	}
}

// AddMetadata adds key-value metadata to the marker
func (m *Marker) AddMetadata(key string, value any) {
	if m.Metadata == nil {
		m.Metadata = make(map[string]any)
	}
	m.Metadata[key] = value
}

// AlertSeverity represents the severity level of a performance alert
type AlertSeverity string

const (
	AlertWarning  AlertSeverity = "warning"
	AlertCritical AlertSeverity = "critical"
)

// PerformanceAlert represents a performance threshold violation
type PerformanceAlert struct {
	Timestamp time.Time     `json:"timestamp"`
	KitID     string        `json:"kitId"`
	Severity  AlertSeverity `json:"severity"`
	Operation string        `json:"operation"`
	Threshold time.Duration `json:"threshold"`
	Actual    time.Duration `json:"actual"`
	Message   string        `json:"message"`
}

// OperationSummary aggregates completed markers for one operation name
type OperationSummary struct {
	Operation string        `json:"operation"`
	Count     int           `json:"count"`
	Failures  int           `json:"failures"`
	Average   time.Duration `json:"average"`
	Max       time.Duration `json:"max"`
}
