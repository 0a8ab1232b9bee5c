package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dtroode/ttldump/internal/blob"
	"github.com/dtroode/ttldump/internal/logger"
	"github.com/dtroode/ttldump/internal/model"
)

var (
	reaperRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ttldump_reaper_runs_total",
		Help: "Total number of reaper sweeps by result.",
	}, []string{"result"})

	reaperDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ttldump_reaper_records_deleted_total",
		Help: "Total number of expired dumps removed by the reaper.",
	})

	reaperBlobErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ttldump_reaper_blob_errors_total",
		Help: "Total number of blob releases that failed during sweeps.",
	}, []string{"reason"})

	reaperDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ttldump_reaper_duration_seconds",
		Help:    "Duration of reaper sweeps in seconds.",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
	})
)

// BlobReleaser deletes external blobs by reference.
type BlobReleaser interface {
	Release(ctx context.Context, ref string) error
}

// Reaper removes expired dumps together with their external blobs.
// It is the only component that deletes anything.
type Reaper struct {
	dumpStore model.DumpStore
	blobs     BlobReleaser
	logger    *logger.Logger
	timeNow   func() time.Time

	// sweepMu serializes sweeps within the process.
	sweepMu sync.Mutex

	loopMu  sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

func NewReaper(dumpStore model.DumpStore, blobs BlobReleaser, logger *logger.Logger) *Reaper {
	return &Reaper{
		dumpStore: dumpStore,
		blobs:     blobs,
		logger:    logger.Component("reaper"),
		timeNow:   time.Now,
	}
}

// Sweep removes every dump expired at the moment the sweep starts and returns how
// many were removed. Blobs are released before their dumps are deleted; a blob
// that is already gone is logged and skipped.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	r.sweepMu.Lock()
	defer r.sweepMu.Unlock()

	return r.sweep(ctx)
}

// TriggerOpportunistic runs a sweep unless one is already in progress. Failures are
// logged and never returned, so callers on request paths are unaffected.
func (r *Reaper) TriggerOpportunistic(ctx context.Context) {
	if !r.sweepMu.TryLock() {
		return
	}
	defer r.sweepMu.Unlock()

	if _, err := r.sweep(ctx); err != nil {
		r.logger.Warn("opportunistic sweep failed", "error", err)
	}
}

func (r *Reaper) sweep(ctx context.Context) (int, error) {
	start := time.Now()
	now := storeTime(r.timeNow())

	defer func() {
		reaperDurationSeconds.Observe(time.Since(start).Seconds())
	}()

	expired, err := r.dumpStore.ListExpired(ctx, now)
	if err != nil {
		reaperRunsTotal.WithLabelValues("error").Inc()
		return 0, fmt.Errorf("%w: failed to list expired dumps: %w", model.ErrStorageUnavailable, err)
	}

	released := make(map[string]struct{})
	for _, held := range heldBlobs(expired) {
		r.release(ctx, held)
		released[held.ref] = struct{}{}
	}

	deleted, leftover, err := r.deleteExpired(ctx, now)
	if err != nil {
		reaperRunsTotal.WithLabelValues("error").Inc()
		return 0, err
	}

	// Dumps that expired between listing and deleting still hold their blobs.
	for _, held := range leftover {
		if _, done := released[held.ref]; !done {
			r.release(ctx, held)
		}
	}

	reaperRunsTotal.WithLabelValues("ok").Inc()
	reaperDeletedTotal.Add(float64(deleted))

	if deleted > 0 {
		r.logger.Info("expired dumps removed",
			"deleted", deleted,
			"duration_ms", time.Since(start).Milliseconds())
	}

	return deleted, nil
}

// deleteExpired removes dumps expired at now and returns how many were removed
// together with the external blobs they held. It never releases blobs itself.
func (r *Reaper) deleteExpired(ctx context.Context, now time.Time) (int, []heldBlob, error) {
	removed, err := r.dumpStore.DeleteExpired(ctx, now)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: failed to delete expired dumps: %w", model.ErrStorageUnavailable, err)
	}

	return len(removed), heldBlobs(removed), nil
}

// heldBlob is an external blob reference and the dump that holds it.
type heldBlob struct {
	dumpID uuid.UUID
	ref    string
}

func heldBlobs(dumps []model.Dump) []heldBlob {
	var held []heldBlob
	for _, dump := range dumps {
		if ref, ok := blob.ExternalReference(dump); ok {
			held = append(held, heldBlob{dumpID: dump.ID, ref: ref})
		}
	}
	return held
}

func (r *Reaper) release(ctx context.Context, held heldBlob) {
	err := r.blobs.Release(ctx, held.ref)
	switch {
	case err == nil:
	case errors.Is(err, model.ErrBlobNotFound):
		reaperBlobErrorsTotal.WithLabelValues("not_found").Inc()
		r.logger.Warn("blob already gone", "dump_id", held.dumpID, "ref", held.ref)
	default:
		reaperBlobErrorsTotal.WithLabelValues("error").Inc()
		r.logger.Error("failed to release blob", "dump_id", held.dumpID, "ref", held.ref, "error", err)
	}
}

// Start runs a sweep immediately and then every interval until ctx is done or Stop
// is called.
func (r *Reaper) Start(ctx context.Context, interval time.Duration) {
	r.loopMu.Lock()
	defer r.loopMu.Unlock()

	if r.cancel != nil {
		select {
		case <-r.stopped:
			// The previous loop exited with its parent context.
			r.cancel()
		default:
			r.logger.Warn("reaper loop already started")
			return
		}
	}

	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.stopped = make(chan struct{})

	go r.run(loopCtx, interval, r.stopped)

	r.logger.Info("reaper loop started", "interval", interval.String())
}

// Stop ends the loop started by Start and waits for it to exit.
func (r *Reaper) Stop() {
	r.loopMu.Lock()
	defer r.loopMu.Unlock()

	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.stopped
	r.cancel = nil

	r.logger.Info("reaper loop stopped")
}

func (r *Reaper) run(ctx context.Context, interval time.Duration, stopped chan<- struct{}) {
	defer close(stopped)

	r.sweepLogged(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweepLogged(ctx)
		}
	}
}

func (r *Reaper) sweepLogged(ctx context.Context) {
	if _, err := r.Sweep(ctx); err != nil && ctx.Err() == nil {
		r.logger.Error("scheduled sweep failed", "error", err)
	}
}
