package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/yourusername/safety-backup-engine/internal/api"
	"github.com/yourusername/safety-backup-engine/internal/backup"
	"github.com/yourusername/safety-backup-engine/internal/config"
	"github.com/yourusername/safety-backup-engine/internal/datasource"
	"github.com/yourusername/safety-backup-engine/internal/logging"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Set up logging
	if err := setupLogging(cfg); err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer logging.Close()

	// Open the operational store
	source, err := datasource.NewSQLiteSource(cfg.Storage.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to open operational database: %v", err)
	}
	defer source.Close()

	log.Println("Ensuring operational schema...")
	if err := source.EnsureSchema(); err != nil {
		log.Fatalf("Failed to ensure operational schema: %v", err)
	}

	// Initialize the backup engine
	engine, err := backup.NewEngine(cfg, source)
	if err != nil {
		log.Fatalf("Failed to initialize backup engine: %v", err)
	}

	// Start the schedule runner
	scheduler, err := backup.NewScheduler(engine, cfg.Schedules)
	if err != nil {
		log.Fatalf("Failed to initialize scheduler: %v", err)
	}
	scheduler.Start()

	log.Println("All engine components initialized successfully")

	// Set up HTTP control server
	router := api.SetupRouter(cfg, engine, scheduler)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Starting control API on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop firing new jobs and let running ones finish
	scheduler.Shutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Engine exited")
}

func setupLogging(cfg *config.Config) error {
	if strings.TrimSpace(cfg.Logging.File) != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0755); err != nil {
			return err
		}
	}
	_, err := logging.Init(cfg.Logging)
	return err
}
