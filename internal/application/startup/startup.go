// Package startup prepares the application server
package startup

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AtRiskMedia/mediakit-go/internal/application/container"
	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/catalog"
	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/observability/performance"
	"github.com/AtRiskMedia/mediakit-go/internal/infrastructure/persistence/database"
	"github.com/AtRiskMedia/mediakit-go/internal/presentation/http/server"
	"github.com/AtRiskMedia/mediakit-go/internal/presentation/templates/components"
	"github.com/AtRiskMedia/mediakit-go/pkg/config"
)

// Initialize performs the complete startup sequence and blocks until a
// shutdown signal arrives
func Initialize() error {
	setupLogging()

	start := time.Now().UTC()

	ctx, cancelBackgroundTasks := context.WithCancel(context.Background())
	defer cancelBackgroundTasks()

	log.Println("\033[32m" + `

  ██▄  ▄██ ██▀▀▀ ██▀▀▄ ██ ▄▀▀▄ ██ ▄▀ ██ ▀██▀
  ██ ▀▀ ██ ██▀▀  ██  █ ██ █▄▄█ ██▀▄  ██  ██
  ██    ██ ██▄▄▄ ██▄▄▀ ██ █  █ ██  ▀▄██  ██
` + "\033[97m" + `
  made by At Risk Media
` + "\033[0m")

	// Step 1: Create the channeled logger
	log.Println("Initializing logging...")
	logger, err := logging.NewChanneledLogger(loggerConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer logger.Close()
	logger.Startup().Info("Channeled logging ready", "logDirectory", config.LogDirectory, "level", config.LogLevel)

	perfTracker := performance.NewTracker(performance.DefaultTrackerConfig())

	// Step 2: Open the database and ensure the schema
	stepStart := time.Now()
	logger.Startup().Info("Opening database...")
	db, err := database.Open(ctx, database.OptionsFromConfig(), logger)
	if err != nil {
		logger.LogStartupPhase("database", time.Since(stepStart), false)
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	tables := database.NewTableCreator()
	if err := tables.CreateSchema(ctx, db.DB); err != nil {
		logger.LogStartupPhase("database", time.Since(stepStart), false)
		return fmt.Errorf("failed to create schema: %w", err)
	}
	if err := tables.SeedInitialContent(ctx, db.DB); err != nil {
		logger.Startup().Warn("Seeding initial content failed", "error", err.Error())
	}
	logger.LogStartupPhase("database", time.Since(stepStart), true)

	// Step 3: Load the component catalog and templates
	stepStart = time.Now()
	logger.Startup().Info("Loading component catalog...", "path", config.CatalogPath)
	cat, err := catalog.Load(config.CatalogPath)
	if err != nil {
		logger.LogStartupPhase("catalog", time.Since(stepStart), false)
		return fmt.Errorf("failed to load component catalog: %w", err)
	}
	templates, err := components.NewRenderer(config.TemplateDirectory, cat)
	if err != nil {
		logger.LogStartupPhase("catalog", time.Since(stepStart), false)
		return fmt.Errorf("failed to load component templates: %w", err)
	}
	logger.Startup().Info("Component catalog loaded",
		"types", len(cat.Types()), "templateOverrides", len(templates.Overrides()))
	logger.LogStartupPhase("catalog", time.Since(stepStart), true)

	// Step 4: Create dependency injection container
	logger.Startup().Info("Initializing dependency injection container...")
	appContainer := container.NewContainer(ctx, logger, perfTracker, db, cat, templates)
	if config.EditorPasswordHash == "" {
		logger.Startup().Warn("EDITOR_PASSWORD_HASH is not set, editor login is disabled")
	}

	// Step 5: Start background services
	logger.Startup().Info("Starting background services...")
	if err := appContainer.AutosaveService.Start(); err != nil {
		return fmt.Errorf("failed to start autosave: %w", err)
	}
	if err := appContainer.TemplateWatcher.Start(ctx); err != nil {
		logger.Startup().Warn("Template hot reload unavailable", "error", err.Error())
	}
	go appContainer.SysOpBroadcaster.Run(ctx)

	// Step 6: Start HTTP server
	logger.Startup().Info("Starting HTTP server...")
	httpServer := server.NewFromContainer(appContainer)

	gracefulShutdown := make(chan os.Signal, 1)
	signal.Notify(gracefulShutdown, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- httpServer.Start()
	}()

	logger.Startup().Info("Application startup complete",
		"totalDuration", time.Since(start),
		"port", config.Port)

	// Wait for shutdown signal
	select {
	case <-gracefulShutdown:
		logger.Shutdown().Info("Shutdown signal received, starting graceful shutdown...")
	case err := <-serverErr:
		if err != nil {
			logger.System().Error("HTTP server failed", "error", err.Error())
		}
	}

	shutdownStart := time.Now()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Shutdown().Info("Stopping HTTP server...")
	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Shutdown().Error("Error during server shutdown", "error", err.Error())
	} else {
		logger.Shutdown().Info("HTTP server stopped successfully")
	}

	appContainer.AutosaveService.Stop()
	if err := appContainer.TemplateWatcher.Close(); err != nil {
		logger.Shutdown().Warn("Template watcher close failed", "error", err.Error())
	}

	// Final saves run before the session loops are cancelled
	logger.Shutdown().Info("Closing editing sessions...")
	appContainer.SessionService.Shutdown(shutdownCtx)
	cancelBackgroundTasks()

	logger.Shutdown().Info("Application shutdown complete",
		"totalUptime", time.Since(start),
		"shutdownDuration", time.Since(shutdownStart))

	return nil
}

func loggerConfig() *logging.LoggerConfig {
	cfg := logging.DefaultLoggerConfig()
	cfg.OutputToFile = config.LogToFile
	cfg.LogDirectory = config.LogDirectory
	cfg.JSONFormat = config.LogJSONFormat
	cfg.DefaultLevel = logging.ParseLevel(config.LogLevel)
	return cfg
}

// setupLogging configures application logging
func setupLogging() {
	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	log.SetFlags(log.LstdFlags | log.Lshortfile)
}
