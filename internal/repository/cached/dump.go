// Package cached puts an in-process LRU in front of another model.DumpStore for
// lookups by id. Dumps are immutable, so a cached copy never goes stale; it only
// has to disappear once the backend deletes the dump.
package cached

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dtroode/ttldump/internal/model"
)

var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ttldump_cache_hits_total",
		Help: "Total number of dump lookups served from the LRU cache.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ttldump_cache_misses_total",
		Help: "Total number of dump lookups that went to the backing store.",
	})
)

var _ model.DumpStore = (*DumpRepository)(nil)

type DumpRepository struct {
	next  model.DumpStore
	cache *expirable.LRU[uuid.UUID, model.Dump]
}

// NewDumpRepository wraps next with a cache of at most size dumps. Entries are
// evicted after model.TTL, the longest time a dump can stay active.
func NewDumpRepository(next model.DumpStore, size int) *DumpRepository {
	return &DumpRepository{
		next:  next,
		cache: expirable.NewLRU[uuid.UUID, model.Dump](size, nil, model.TTL),
	}
}

func (r *DumpRepository) Create(ctx context.Context, dump model.Dump) (model.Dump, error) {
	saved, err := r.next.Create(ctx, dump)
	if err != nil {
		return model.Dump{}, err
	}
	r.cache.Add(saved.ID, saved)

	return saved, nil
}

func (r *DumpRepository) GetByID(ctx context.Context, id uuid.UUID) (model.Dump, error) {
	if dump, ok := r.cache.Get(id); ok {
		cacheHitsTotal.Inc()
		return dump, nil
	}
	cacheMissesTotal.Inc()

	dump, err := r.next.GetByID(ctx, id)
	if err != nil {
		return model.Dump{}, err
	}
	r.cache.Add(id, dump)

	return dump, nil
}

func (r *DumpRepository) ListActive(ctx context.Context, now time.Time) ([]model.Dump, error) {
	return r.next.ListActive(ctx, now)
}

func (r *DumpRepository) ListExpired(ctx context.Context, now time.Time) ([]model.Dump, error) {
	return r.next.ListExpired(ctx, now)
}

func (r *DumpRepository) DeleteExpired(ctx context.Context, now time.Time) ([]model.Dump, error) {
	removed, err := r.next.DeleteExpired(ctx, now)
	if err != nil {
		return nil, err
	}
	for _, dump := range removed {
		r.cache.Remove(dump.ID)
	}

	return removed, nil
}

// Len returns the number of cached dumps.
func (r *DumpRepository) Len() int {
	return r.cache.Len()
}
