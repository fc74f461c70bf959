package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/observability/logging"
)

// AutosaveService periodically saves sessions with unsaved changes.
type AutosaveService struct {
	sessions *SessionService
	interval time.Duration
	timeout  time.Duration
	logger   *logging.ChanneledLogger

	mu    sync.Mutex
	sched *cron.Cron
}

func NewAutosaveService(sessions *SessionService, interval time.Duration, logger *logging.ChanneledLogger) *AutosaveService {
	return &AutosaveService{
		sessions: sessions,
		interval: interval,
		timeout:  30 * time.Second,
		logger:   logger,
	}
}

// Start schedules the save job. A non-positive interval disables autosave.
func (a *AutosaveService) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.interval <= 0 {
		a.logger.System().Info("Autosave disabled")
		return nil
	}
	if a.sched != nil {
		return nil
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", a.interval), func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		a.RunOnce(ctx)
	}); err != nil {
		return fmt.Errorf("schedule autosave: %w", err)
	}
	c.Start()
	a.sched = c
	a.logger.System().Info("Autosave scheduled", "interval", a.interval)
	return nil
}

// Stop cancels the schedule and waits for a running save to finish.
func (a *AutosaveService) Stop() {
	a.mu.Lock()
	sched := a.sched
	a.sched = nil
	a.mu.Unlock()
	if sched != nil {
		<-sched.Stop().Done()
	}
}

// RunOnce saves every dirty session now.
func (a *AutosaveService) RunOnce(ctx context.Context) int {
	saved, err := a.sessions.SaveDirty(ctx, true)
	if err != nil {
		a.logger.State().Error("Autosave incomplete", "saved", saved, "error", err.Error())
	} else if saved > 0 {
		a.logger.State().Debug("Autosave complete", "saved", saved)
	}
	return saved
}
