package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/safety-backup-engine/internal/backup"
	"github.com/yourusername/safety-backup-engine/internal/ledger"
)

// BackupHandler handles backup-related HTTP requests
type BackupHandler struct {
	engine    *backup.Engine
	scheduler *backup.Scheduler
}

// NewBackupHandler creates a new backup handler
func NewBackupHandler(engine *backup.Engine, scheduler *backup.Scheduler) *BackupHandler {
	return &BackupHandler{
		engine:    engine,
		scheduler: scheduler,
	}
}

// RegisterRoutes registers backup routes under the API group
func (h *BackupHandler) RegisterRoutes(group *gin.RouterGroup) {
	group.GET("/backup/status", h.Status)
	group.POST("/backup/trigger", h.Trigger)
	group.GET("/backup/artifacts", h.ListArtifacts)
	group.GET("/backup/artifacts/:id", h.GetArtifact)
	group.POST("/backup/artifacts/:id/restore", h.RestoreArtifact)
	group.POST("/backup/retention/enforce", h.EnforceRetention)
	group.POST("/backup/schedule/pause", h.PauseSchedule)
	group.POST("/backup/schedule/resume", h.ResumeSchedule)
}

// Status returns active jobs, recent artifacts, and last-success health.
// GET /api/v1/backup/status
func (h *BackupHandler) Status(c *gin.Context) {
	report, err := h.engine.Status()
	if err != nil {
		log.Printf("[API] Failed to build status report: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read backup status"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":          report,
		"schedule_paused": h.scheduler != nil && h.scheduler.Paused(),
	})
}

// Trigger runs one backup of the requested kind immediately.
// POST /api/v1/backup/trigger
func (h *BackupHandler) Trigger(c *gin.Context) {
	var req struct {
		Kind string `json:"kind" binding:"required,oneof=full incremental ledger-sync system-state"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	descriptor, err := h.engine.TriggerManual(ledger.Kind(req.Kind))
	if err != nil {
		if errors.Is(err, backup.ErrFullBackupInFlight) {
			c.JSON(http.StatusConflict, gin.H{"error": "A full backup is already running"})
			return
		}
		log.Printf("[API] Manual %s backup failed: %v", req.Kind, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Backup failed: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"artifact": descriptor})
}

// ListArtifacts returns ledger entries, optionally filtered by kind.
// GET /api/v1/backup/artifacts?kind=full
func (h *BackupHandler) ListArtifacts(c *gin.Context) {
	kind := ledger.Kind(c.Query("kind"))
	if kind != "" && !kind.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown backup kind: " + string(kind)})
		return
	}

	artifacts, err := h.engine.Ledger().Query(kind)
	if err != nil {
		log.Printf("[API] Failed to query artifacts: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to query artifacts"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"artifacts": artifacts, "count": len(artifacts)})
}

// GetArtifact returns one ledger entry by id.
// GET /api/v1/backup/artifacts/:id
func (h *BackupHandler) GetArtifact(c *gin.Context) {
	artifact, err := h.engine.Ledger().Get(c.Param("id"))
	if err != nil {
		log.Printf("[API] Failed to look up artifact: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to look up artifact"})
		return
	}
	if artifact == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Artifact not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"artifact": artifact})
}

// RestoreArtifact verifies and decodes one artifact and returns its
// payload.
// POST /api/v1/backup/artifacts/:id/restore
func (h *BackupHandler) RestoreArtifact(c *gin.Context) {
	artifactID := c.Param("id")

	payload, err := h.engine.Restore(artifactID)
	if err != nil {
		log.Printf("[API] Restore of %s failed: %v", artifactID, err)
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Restore failed: " + err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"artifact_id": artifactID, "payload": payload})
}

// EnforceRetention runs retention sweeps for every recurring kind.
// POST /api/v1/backup/retention/enforce
func (h *BackupHandler) EnforceRetention(c *gin.Context) {
	var failed []string
	for _, kind := range []ledger.Kind{ledger.KindFull, ledger.KindIncremental, ledger.KindLedgerSync, ledger.KindSystemState} {
		if err := h.engine.Retention().Sweep(kind); err != nil {
			log.Printf("[API] Retention sweep for %s failed: %v", kind, err)
			failed = append(failed, string(kind))
		}
	}
	h.engine.Retention().SweepOrphans()

	if len(failed) > 0 {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Retention sweep failed", "kinds": failed})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Retention enforced"})
}

// PauseSchedule suppresses scheduled backup triggers.
// POST /api/v1/backup/schedule/pause
func (h *BackupHandler) PauseSchedule(c *gin.Context) {
	if h.scheduler == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "No scheduler is running"})
		return
	}

	h.scheduler.Pause()
	c.JSON(http.StatusOK, gin.H{"message": "Schedule paused"})
}

// ResumeSchedule re-enables scheduled backup triggers.
// POST /api/v1/backup/schedule/resume
func (h *BackupHandler) ResumeSchedule(c *gin.Context) {
	if h.scheduler == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "No scheduler is running"})
		return
	}

	h.scheduler.Resume()
	c.JSON(http.StatusOK, gin.H{"message": "Schedule resumed"})
}
