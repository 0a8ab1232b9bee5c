package handler

import (
	"context"
	"net/http"

	"github.com/dtroode/ttldump/internal/logger"
)

// Sweeper removes expired dumps.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// Cleanup exposes the reaper to external schedulers such as cron.
type Cleanup struct {
	sweeper Sweeper
	logger  *logger.Logger
}

// NewCleanup creates a new Cleanup handler.
func NewCleanup(sweeper Sweeper, logger *logger.Logger) *Cleanup {
	return &Cleanup{
		sweeper: sweeper,
		logger:  logger,
	}
}

// Run performs one sweep and reports how many dumps were removed.
func (h *Cleanup) Run(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.sweeper.Sweep(r.Context())
	if err != nil {
		h.logger.Error("Cleanup handler: sweep failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to clean up expired items")
		return
	}

	writeJSON(w, http.StatusOK, cleanupResponse{Success: true, DeletedCount: deleted})
}

// Live reports that the process is up.
func Live(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
