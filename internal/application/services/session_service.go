package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/AtRiskMedia/mediakit-go/internal/domain/entities/mediakit"
	"github.com/AtRiskMedia/mediakit-go/internal/domain/events"
	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/messaging"
	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/security"
)

// ErrTooManySessions is returned when the open session limit is reached.
var ErrTooManySessions = errors.New("too many open editing sessions")

// NewComponentID returns a fresh component identifier.
func NewComponentID() string {
	return security.GenerateULID()
}

// ConnectionCounter reports the live browser connections of a kit.
type ConnectionCounter interface {
	ConnectionCount(kitID string) int
}

// SessionService opens, tracks and closes editing sessions, one per kit.
type SessionService struct {
	mu       sync.Mutex
	sessions map[string]*EditingSession
	base     SessionConfig
	runCtx   context.Context
	maxOpen  int
	conns    ConnectionCounter
	logger   *logging.ChanneledLogger
	onClose  []func(kitID string)
}

// NewSessionService creates the service. Session loops run until runCtx
// ends; maxOpen of zero means unlimited.
func NewSessionService(runCtx context.Context, base SessionConfig, maxOpen int, conns ConnectionCounter) *SessionService {
	if base.Logger == nil {
		base.Logger = logging.NewDiscardLogger(nil)
	}
	return &SessionService{
		sessions: make(map[string]*EditingSession),
		base:     base,
		runCtx:   runCtx,
		maxOpen:  maxOpen,
		conns:    conns,
		logger:   base.Logger,
	}
}

// OnClose registers fn to run after a session of any kit has closed. Register
// hooks before serving requests.
func (s *SessionService) OnClose(fn func(kitID string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onClose = append(s.onClose, fn)
}

func (s *SessionService) closed(kitID string) {
	s.mu.Lock()
	hooks := slices.Clone(s.onClose)
	s.mu.Unlock()
	for _, fn := range hooks {
		fn(kitID)
	}
}

// Open returns the session of a kit, creating it and loading its stored
// state on first use. A kit with nothing stored starts empty.
func (s *SessionService) Open(ctx context.Context, kitID string) (*EditingSession, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[kitID]; ok && !sess.Closed() {
		return sess, false, nil
	}
	if s.maxOpen > 0 && len(s.sessions) >= s.maxOpen {
		s.logger.System().Warn("Session refused, limit reached", "kitId", kitID, "limit", s.maxOpen)
		return nil, false, ErrTooManySessions
	}

	start := time.Now()
	sess, err := NewEditingSession(kitID, s.base)
	if err != nil {
		return nil, false, err
	}
	sess.Start(s.runCtx)

	err = sess.Do(ctx, func() error {
		err := sess.Store().LoadStateFromStorage(ctx)
		if errors.Is(err, mediakit.ErrNoStoredState) {
			s.logger.State().Info("No stored state, starting empty", "kitId", kitID)
			return nil
		}
		return err
	})
	if err != nil {
		_ = sess.Close(context.Background())
		return nil, false, err
	}

	s.sessions[kitID] = sess
	s.logger.System().Info("Editing session opened",
		"kitId", kitID, "open", len(s.sessions), "duration", time.Since(start))
	return sess, true, nil
}

// Get returns an open session.
func (s *SessionService) Get(kitID string) (*EditingSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[kitID]
	if !ok || sess.Closed() {
		return nil, fmt.Errorf("%w: no open session for kit %q", mediakit.ErrNotFound, kitID)
	}
	return sess, nil
}

// Save writes the state of an open session and announces it.
func (s *SessionService) Save(ctx context.Context, kitID string) error {
	sess, err := s.Get(kitID)
	if err != nil {
		return err
	}
	return s.save(ctx, sess, false)
}

// SaveDirty saves every session with unsaved changes and returns how many
// were written.
func (s *SessionService) SaveDirty(ctx context.Context, auto bool) (int, error) {
	var errs []error
	saved := 0
	for _, sess := range s.Sessions() {
		if !sess.Store().IsDirty() {
			continue
		}
		if err := s.save(ctx, sess, auto); err != nil {
			errs = append(errs, fmt.Errorf("kit %s: %w", sess.KitID(), err))
			continue
		}
		saved++
	}
	return saved, errors.Join(errs...)
}

// Close saves unsaved changes and disposes the session. When the final save
// fails the session stays open.
func (s *SessionService) Close(ctx context.Context, kitID string) error {
	sess, err := s.Get(kitID)
	if err != nil {
		return err
	}
	if sess.Store().IsDirty() {
		if err := s.save(ctx, sess, false); err != nil {
			return err
		}
	}

	s.mu.Lock()
	if s.sessions[kitID] == sess {
		delete(s.sessions, kitID)
	}
	open := len(s.sessions)
	s.mu.Unlock()

	if err := sess.Close(ctx); err != nil {
		return err
	}
	s.closed(kitID)
	s.logger.System().Info("Editing session closed", "kitId", kitID, "open", open)
	return nil
}

// Shutdown saves and closes every session. Save failures are logged and do
// not keep sessions open.
func (s *SessionService) Shutdown(ctx context.Context) {
	s.mu.Lock()
	sessions := make([]*EditingSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.sessions = make(map[string]*EditingSession)
	s.mu.Unlock()

	for _, sess := range sessions {
		if sess.Store().IsDirty() {
			if err := s.save(ctx, sess, false); err != nil {
				s.logger.Shutdown().Error("Final save failed", "kitId", sess.KitID(), "error", err.Error())
			}
		}
		if err := sess.Close(ctx); err != nil {
			s.logger.Shutdown().Error("Session close failed", "kitId", sess.KitID(), "error", err.Error())
		}
		s.closed(sess.KitID())
	}
	s.logger.Shutdown().Info("Editing sessions closed", "count", len(sessions))
}

// Sessions returns the open sessions ordered by kit id.
func (s *SessionService) Sessions() []*EditingSession {
	s.mu.Lock()
	out := make([]*EditingSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].KitID() < out[j].KitID() })
	return out
}

// Len returns the number of open sessions.
func (s *SessionService) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// SessionSummaries describes every open session for the sysop monitor.
func (s *SessionService) SessionSummaries() []messaging.SessionSummary {
	sessions := s.Sessions()
	out := make([]messaging.SessionSummary, 0, len(sessions))
	for _, sess := range sessions {
		stats := sess.Sync().Stats()
		summary := messaging.SessionSummary{
			KitID:        sess.KitID(),
			Components:   len(sess.Store().GetState().Components),
			Dirty:        sess.Store().IsDirty(),
			SyncFields:   stats.Registered,
			Synced:       stats.Synced,
			Conflicts:    stats.Conflicts,
			OpenedAt:     sess.OpenedAt(),
			LastActivity: sess.LastActivity(),
		}
		if s.conns != nil {
			summary.Connections = s.conns.ConnectionCount(sess.KitID())
		}
		out = append(out, summary)
	}
	return out
}

func (s *SessionService) save(ctx context.Context, sess *EditingSession, auto bool) error {
	if err := sess.Store().SaveStateToStorage(ctx); err != nil {
		return err
	}
	saved := events.StateSaved{KitID: sess.KitID(), SavedAt: time.Now().UTC(), Auto: auto}
	sess.Post(func() { sess.Bus().Publish(saved) })
	return nil
}
