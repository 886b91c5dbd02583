package api

import (
	"github.com/gin-gonic/gin"

	"github.com/yourusername/safety-backup-engine/internal/api/handlers"
	"github.com/yourusername/safety-backup-engine/internal/api/middleware"
	"github.com/yourusername/safety-backup-engine/internal/backup"
	"github.com/yourusername/safety-backup-engine/internal/config"
)

// SetupRouter configures and returns the HTTP router
func SetupRouter(cfg *config.Config, engine *backup.Engine, scheduler *backup.Scheduler) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	backupHandler := handlers.NewBackupHandler(engine, scheduler)

	v1 := router.Group("/api/v1")
	{
		backupHandler.RegisterRoutes(v1)
	}

	return router
}
