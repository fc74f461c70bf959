// Package performance provides performance tracking for media kit operations.
package performance

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Tracker keeps a bounded window of completed markers and raises alerts for
// operations that exceed their thresholds.
type Tracker struct {
	completed  []Marker
	alerts     []*PerformanceAlert
	thresholds *AlertThresholds
	config     *TrackerConfig
	mu         sync.RWMutex
}

// TrackerConfig contains configuration options for the performance tracker
type TrackerConfig struct {
	MaxMarkers   int  `json:"maxMarkers"`
	MaxAlerts    int  `json:"maxAlerts"`
	EnableAlerts bool `json:"enableAlerts"`
}

// DefaultTrackerConfig returns a sensible default configuration
func DefaultTrackerConfig() *TrackerConfig {
	return &TrackerConfig{
		MaxMarkers:   5000,
		MaxAlerts:    500,
		EnableAlerts: true,
	}
}

// AlertThresholds defines performance thresholds for generating alerts
type AlertThresholds struct {
	SlowResponseThreshold     time.Duration `json:"slowResponseThreshold"`
	CriticalResponseThreshold time.Duration `json:"criticalResponseThreshold"`
	RenderThreshold           time.Duration `json:"renderThreshold"`
	PersistenceThreshold      time.Duration `json:"persistenceThreshold"`
}

// DefaultAlertThresholds returns sensible default alert thresholds
func DefaultAlertThresholds() *AlertThresholds {
	return &AlertThresholds{
		SlowResponseThreshold:     time.Millisecond * 500,
		CriticalResponseThreshold: time.Second * 5,
		RenderThreshold:           time.Millisecond * 50,
		PersistenceThreshold:      time.Millisecond * 250,
	}
}

// NewTracker creates a new performance tracker with the given configuration
func NewTracker(config *TrackerConfig) *Tracker {
	if config == nil {
		config = DefaultTrackerConfig()
	}
	return &Tracker{
		thresholds: DefaultAlertThresholds(),
		config:     config,
	}
}

// StartOperation creates a new performance marker for an operation. The
// marker is recorded when Complete is called. A nil tracker hands out
// unrecorded markers.
func (t *Tracker) StartOperation(operation, kitID string) *Marker {
	if t == nil {
		return &Marker{Operation: operation, KitID: kitID, StartTime: time.Now(), Success: true}
	}
	return &Marker{
		Operation:  operation,
		KitID:      kitID,
		StartTime:  time.Now(),
		Metadata:   make(map[string]any),
		Success:    true,
		onComplete: t.record,
	}
}

func (t *Tracker) record(marker *Marker) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.completed = append(t.completed, *marker)
	if len(t.completed) > t.config.MaxMarkers {
		t.completed = t.completed[len(t.completed)-t.config.MaxMarkers:]
	}

	if !t.config.EnableAlerts {
		return
	}
	if alert := t.evaluate(marker); alert != nil {
		t.alerts = append(t.alerts, alert)
		if len(t.alerts) > t.config.MaxAlerts {
			t.alerts = t.alerts[len(t.alerts)-t.config.MaxAlerts:]
		}
	}
}

func (t *Tracker) evaluate(marker *Marker) *PerformanceAlert {
	threshold := t.thresholds.SlowResponseThreshold
	switch {
	case strings.HasPrefix(marker.Operation, "render"):
		threshold = t.thresholds.RenderThreshold
	case strings.HasPrefix(marker.Operation, "state:save"), strings.HasPrefix(marker.Operation, "state:load"):
		threshold = t.thresholds.PersistenceThreshold
	}

	severity := AlertWarning
	if marker.Duration > t.thresholds.CriticalResponseThreshold {
		severity = AlertCritical
		threshold = t.thresholds.CriticalResponseThreshold
	} else if marker.Duration <= threshold {
		return nil
	}

	return &PerformanceAlert{
		Timestamp: time.Now(),
		KitID:     marker.KitID,
		Severity:  severity,
		Operation: marker.Operation,
		Threshold: threshold,
		Actual:    marker.Duration,
		Message:   "Operation exceeded threshold",
	}
}

// Summaries aggregates completed markers for a kit by operation name.
// An empty kitID aggregates across all kits.
func (t *Tracker) Summaries(kitID string) []OperationSummary {
	t.mu.RLock()
	defer t.mu.RUnlock()

	byOp := make(map[string]*OperationSummary)
	totals := make(map[string]time.Duration)
	for _, m := range t.completed {
		if kitID != "" && m.KitID != kitID {
			continue
		}
		s, ok := byOp[m.Operation]
		if !ok {
			s = &OperationSummary{Operation: m.Operation}
			byOp[m.Operation] = s
		}
		s.Count++
		if !m.Success {
			s.Failures++
		}
		if m.Duration > s.Max {
			s.Max = m.Duration
		}
		totals[m.Operation] += m.Duration
	}

	out := make([]OperationSummary, 0, len(byOp))
	for op, s := range byOp {
		s.Average = totals[op] / time.Duration(s.Count)
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Operation < out[j].Operation })
	return out
}

// GetAlerts returns alerts raised for a kit, or all alerts when kitID is empty
func (t *Tracker) GetAlerts(kitID string) []*PerformanceAlert {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var alerts []*PerformanceAlert
	for _, alert := range t.alerts {
		if kitID == "" || alert.KitID == kitID {
			alerts = append(alerts, alert)
		}
	}
	return alerts
}
