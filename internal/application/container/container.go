// Package container provides dependency injection for all singleton services
package container

import (
	"context"
	"time"

	"github.com/AtRiskMedia/mediakit-go/internal/application/services"
	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/catalog"
	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/messaging"
	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/observability/performance"
	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/persistence/database"
	kitstore "github.com/AtRiskMedia/mediakit-go/internal/infrastructure/persistence/mediakit"
	"github.com/AtRiskMedia/mediakit-go/internal/presentation/templates/components"
	"github.com/AtRiskMedia/mediakit-go/pkg/config"
)

// Container holds all singleton services and infrastructure dependencies
type Container struct {
	// Editing services
	SessionService  *services.SessionService
	AutosaveService *services.AutosaveService
	TemplateWatcher *services.TemplateWatcher
	AuthService     *services.AuthService

	// Persistence
	DB           *database.DB
	KitRepo      *kitstore.KitRepository
	ExternalRepo *kitstore.ExternalSourceRepository

	// Components
	Catalog   *catalog.Catalog
	Templates *components.Renderer

	// Live connections
	Broadcaster      *messaging.SSEBroadcaster
	SysOpBroadcaster *messaging.SysOpBroadcaster
	LogBroadcaster   *logging.LogBroadcaster

	// Observability
	Logger      *logging.ChanneledLogger
	PerfTracker *performance.Tracker

	// HTTP settings
	AllowedOrigins []string
	SSEHeartbeat   time.Duration
}

// NewContainer creates and wires all singleton services. Session loops and
// the sysop monitor live until runCtx ends.
func NewContainer(runCtx context.Context, logger *logging.ChanneledLogger, perfTracker *performance.Tracker, db *database.DB, cat *catalog.Catalog, templates *components.Renderer) *Container {
	kitRepo := kitstore.NewKitRepository(db.DB, logger)
	externalRepo := kitstore.NewExternalSourceRepository(db.DB, cat, logger)
	broadcaster := messaging.NewSSEBroadcaster(config.MaxSSEConnections, config.SSEClientBuffer, logger)

	base := services.SessionConfig{
		Storage:   kitRepo,
		Source:    externalRepo,
		Templates: templates,
		Catalog:   cat,
		Sink:      broadcaster,
		Logger:    logger,
		Perf:      perfTracker,

		LoopBuffer: config.EventLoopBuffer,
		Sync: services.SyncOptions{
			Debounce:       config.SyncDebounce,
			LockGrace:      config.SyncLockGrace,
			PreviewEditing: config.PreviewEditing,
		},
		BulkHistoryLimit: config.BulkHistoryLimit,
		PreviewContainer: config.PreviewContainer,
		NewID:            services.NewComponentID,
	}
	sessions := services.NewSessionService(runCtx, base, config.MaxOpenSessions, broadcaster)
	sessions.OnClose(broadcaster.CloseKit)

	return &Container{
		SessionService:  sessions,
		AutosaveService: services.NewAutosaveService(sessions, config.AutosaveInterval, logger),
		TemplateWatcher: services.NewTemplateWatcher(templates, sessions, config.TemplateReloadLag, logger),
		AuthService:     services.NewAuthService(config.JWTSecret, config.EditorPasswordHash, config.TokenTTL, logger, perfTracker),

		DB:           db,
		KitRepo:      kitRepo,
		ExternalRepo: externalRepo,

		Catalog:   cat,
		Templates: templates,

		Broadcaster:      broadcaster,
		SysOpBroadcaster: messaging.NewSysOpBroadcaster(sessions, 5*time.Second, logger),
		LogBroadcaster:   logging.GetBroadcaster(),

		Logger:      logger,
		PerfTracker: perfTracker,

		AllowedOrigins: config.AllowedOrigins,
		SSEHeartbeat:   time.Duration(config.SSEHeartbeatIntervalSeconds) * time.Second,
	}
}
