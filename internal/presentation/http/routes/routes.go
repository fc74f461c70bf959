// Package routes provides HTTP route configuration for the presentation layer.
package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AtRiskMedia/mediakit-go/internal/application/container"
	"github.com/AtRiskMedia/mediakit-go/internal/presentation/http/handlers"
	"github.com/AtRiskMedia/mediakit-go/internal/presentation/http/middleware"
)

// SetupRoutes configures all HTTP routes and middleware with dependency injection.
func SetupRoutes(container *container.Container) *gin.Engine {
	r := gin.Default()

	r.Use(middleware.CORSMiddleware(container.AllowedOrigins))

	// Initialize handlers
	authHandlers := handlers.NewAuthHandlers(container.AuthService, container.Logger, container.PerfTracker)
	kitHandlers := handlers.NewKitHandlers(container.SessionService, container.Catalog, container.KitRepo, container.Logger, container.PerfTracker)
	editorHandlers := handlers.NewEditorHandlers(container.SessionService, container.AllowedOrigins, container.Logger)
	bulkHandlers := handlers.NewBulkHandlers(container.SessionService, container.ExternalRepo, container.Logger, container.PerfTracker)
	eventHandlers := handlers.NewEventHandlers(container.SessionService, container.Broadcaster, container.SSEHeartbeat, container.Logger)
	sysopHandlers := handlers.NewSysOpHandlers(container)

	requireEditor := middleware.EditorAuthMiddleware(container.AuthService)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": container.SessionService.Len()})
	})

	sysopAPI := r.Group("/api/sysop", requireEditor)
	{
		sysopAPI.GET("/sessions", sysopHandlers.GetSessions)
		sysopAPI.GET("/sessions/ws", sysopHandlers.StreamSessions)
		sysopAPI.GET("/performance", sysopHandlers.GetPerformance)
		sysopAPI.POST("/templates/reload", sysopHandlers.ReloadTemplates)
		sysopAPI.POST("/autosave", sysopHandlers.RunAutosave)
		sysopAPI.GET("/logs/levels", sysopHandlers.GetLogLevels)
		sysopAPI.POST("/logs/levels", sysopHandlers.SetLogLevel)
	}

	// Log streaming stays at top level; EventSource passes the token as a query parameter
	r.GET("/sysop-logs/stream", requireEditor, sysopHandlers.StreamLogs)

	api := r.Group("/api/v1")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/login", authHandlers.PostLogin)
			auth.GET("/status", authHandlers.GetAuthStatus)
		}

		api.GET("/catalog", requireEditor, kitHandlers.GetCatalog)

		kits := api.Group("/kits", requireEditor)
		{
			kits.GET("", kitHandlers.ListKits)
			kits.DELETE("/:kitId", kitHandlers.DeleteKit)
			kits.POST("/:kitId/open", kitHandlers.OpenKit)
			kits.POST("/:kitId/close", kitHandlers.CloseKit)

			// Document
			kits.GET("/:kitId/state", kitHandlers.GetState)
			kits.POST("/:kitId/components", kitHandlers.AddComponent)
			kits.PATCH("/:kitId/components/:componentId", kitHandlers.UpdateComponent)
			kits.DELETE("/:kitId/components/:componentId", kitHandlers.DeleteComponent)
			kits.POST("/:kitId/components/:componentId/move", kitHandlers.MoveComponent)
			kits.PUT("/:kitId/layout", kitHandlers.SetLayout)
			kits.POST("/:kitId/batch", kitHandlers.Batch)
			kits.POST("/:kitId/save", kitHandlers.SaveKit)
			kits.POST("/:kitId/load", kitHandlers.LoadKit)
			kits.PUT("/:kitId/settings", kitHandlers.UpdateSettings)

			// Preview rendering
			kits.GET("/:kitId/preview", kitHandlers.GetPreview)
			kits.GET("/:kitId/render/verify/:componentId", kitHandlers.VerifyRender)
			kits.POST("/:kitId/render/cleanup", kitHandlers.CleanupRender)

			// Editor panels and sync
			kits.POST("/:kitId/editor/:componentId/ready", editorHandlers.EditorReady)
			kits.POST("/:kitId/editor/:componentId/input", editorHandlers.EditorInput)
			kits.DELETE("/:kitId/editor/:componentId", editorHandlers.CloseEditor)
			kits.PUT("/:kitId/sync/preview-editing", editorHandlers.SetPreviewEditing)
			kits.GET("/:kitId/sync/stats", editorHandlers.SyncStats)

			// Bulk operations and generated content
			kits.POST("/:kitId/bulk/sync", bulkHandlers.SyncAll)
			kits.POST("/:kitId/bulk/clear", bulkHandlers.ClearAll)
			kits.POST("/:kitId/bulk/reset", bulkHandlers.Reset)
			kits.POST("/:kitId/bulk/undo", bulkHandlers.Undo)
			kits.GET("/:kitId/bulk/history", bulkHandlers.History)
			kits.GET("/:kitId/external", bulkHandlers.GetExternal)
			kits.PUT("/:kitId/external", bulkHandlers.PutExternal)

			// Live connections
			kits.GET("/:kitId/events", eventHandlers.StreamEvents)
			kits.GET("/:kitId/ws", editorHandlers.InputSocket)
		}
	}

	return r
}
