package performance

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsCompletedMarkers(t *testing.T) {
	tracker := NewTracker(nil)

	ok := tracker.StartOperation("state:save", "kit-1")
	ok.Complete()

	failed := tracker.StartOperation("state:save", "kit-1")
	failed.SetError(errors.New("disk full"))
	failed.Complete()

	tracker.StartOperation("render:component", "kit-2").Complete()

	summaries := tracker.Summaries("kit-1")
	require.Len(t, summaries, 1)
	assert.Equal(t, "state:save", summaries[0].Operation)
	assert.Equal(t, 2, summaries[0].Count)
	assert.Equal(t, 1, summaries[0].Failures)

	assert.Len(t, tracker.Summaries(""), 2)
}

func TestMarkerCompleteIsIdempotent(t *testing.T) {
	tracker := NewTracker(nil)
	m := tracker.StartOperation("sync:field", "kit-1")
	m.Complete()
	m.Complete()

	summaries := tracker.Summaries("kit-1")
	require.Len(t, summaries, 1)
	assert.Equal(t, 1, summaries[0].Count)
}

func TestTrackerRaisesAlertForSlowRender(t *testing.T) {
	tracker := NewTracker(nil)
	m := tracker.StartOperation("render:component", "kit-1")
	m.StartTime = time.Now().Add(-time.Second)
	m.Complete()

	alerts := tracker.GetAlerts("kit-1")
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertWarning, alerts[0].Severity)
	assert.Empty(t, tracker.GetAlerts("kit-2"))
}
