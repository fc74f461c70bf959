package services

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"

	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/observability/logging"
)

// TemplateSource is a reloadable set of component templates.
type TemplateSource interface {
	Dir() string
	Reload() error
}

// TemplateWatcher reloads component templates when files in the override
// directory change, then re-renders every open session.
type TemplateWatcher struct {
	templates TemplateSource
	sessions  *SessionService
	lag       time.Duration
	logger    *logging.ChanneledLogger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewTemplateWatcher(templates TemplateSource, sessions *SessionService, lag time.Duration, logger *logging.ChanneledLogger) *TemplateWatcher {
	if lag <= 0 {
		lag = 250 * time.Millisecond
	}
	return &TemplateWatcher{templates: templates, sessions: sessions, lag: lag, logger: logger}
}

// Start watches the override directory. Without one there is nothing to do.
func (w *TemplateWatcher) Start(ctx context.Context) error {
	dir := w.templates.Dir()
	if dir == "" {
		w.logger.Render().Info("No template directory configured, hot reload off")
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create template watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch template directory %q: %w", dir, err)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	w.mu.Lock()
	w.watcher = watcher
	w.cancel = cancel
	w.done = make(chan struct{})
	done := w.done
	w.mu.Unlock()

	debounced := debounce.New(w.lag)
	go func() {
		defer close(done)
		for {
			select {
			case <-watchCtx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !strings.EqualFold(filepath.Ext(event.Name), ".html") {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
					!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
					continue
				}
				w.logger.Render().Debug("Template changed", "file", event.Name, "op", event.Op.String())
				debounced(func() {
					reloadCtx, cancel := context.WithTimeout(watchCtx, 30*time.Second)
					defer cancel()
					_ = w.ReloadNow(reloadCtx)
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				w.logger.Render().Error("Template watcher error", "error", err.Error())
			}
		}
	}()

	w.logger.Render().Info("Watching component templates", "dir", dir, "lag", w.lag)
	return nil
}

// ReloadNow re-reads the templates and re-renders every open session. On a
// parse error the previous templates stay active and nothing is re-rendered.
func (w *TemplateWatcher) ReloadNow(ctx context.Context) error {
	if err := w.templates.Reload(); err != nil {
		w.logger.LogError(logging.ChannelRender, "template-reload", err, "", nil)
		return err
	}
	sessions := w.sessions.Sessions()
	for _, sess := range sessions {
		err := sess.Do(ctx, func() error {
			sess.Reconciler().RerenderAll()
			return nil
		})
		if err != nil {
			w.logger.Render().Warn("Re-render after template reload failed", "kitId", sess.KitID(), "error", err.Error())
		}
	}
	w.logger.Render().Info("Component templates reloaded", "sessions", len(sessions))
	return nil
}

// Close stops watching.
func (w *TemplateWatcher) Close() error {
	w.mu.Lock()
	watcher, cancel, done := w.watcher, w.cancel, w.done
	w.watcher, w.cancel, w.done = nil, nil, nil
	w.mu.Unlock()
	if watcher == nil {
		return nil
	}
	cancel()
	err := watcher.Close()
	<-done
	return err
}
