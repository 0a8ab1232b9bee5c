// Package memory is a process-local model.DumpStore, used for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dtroode/ttldump/internal/model"
)

var _ model.DumpStore = (*DumpRepository)(nil)

type DumpRepository struct {
	dumps map[uuid.UUID]model.Dump
	mut   sync.RWMutex
}

func NewDumpRepository() *DumpRepository {
	return &DumpRepository{
		dumps: make(map[uuid.UUID]model.Dump),
	}
}

func (r *DumpRepository) Create(_ context.Context, dump model.Dump) (model.Dump, error) {
	r.mut.Lock()
	defer r.mut.Unlock()

	if _, ok := r.dumps[dump.ID]; ok {
		return model.Dump{}, fmt.Errorf("dump %s already exists", dump.ID)
	}
	r.dumps[dump.ID] = dump

	return dump, nil
}

func (r *DumpRepository) GetByID(_ context.Context, id uuid.UUID) (model.Dump, error) {
	r.mut.RLock()
	defer r.mut.RUnlock()

	dump, ok := r.dumps[id]
	if !ok {
		return model.Dump{}, model.ErrNotFound
	}
	return dump, nil
}

func (r *DumpRepository) ListActive(_ context.Context, now time.Time) ([]model.Dump, error) {
	r.mut.RLock()
	defer r.mut.RUnlock()

	var dumps []model.Dump
	for _, dump := range r.dumps {
		if dump.Active(now) {
			dumps = append(dumps, dump)
		}
	}
	sortNewestFirst(dumps)

	return dumps, nil
}

func (r *DumpRepository) ListExpired(_ context.Context, now time.Time) ([]model.Dump, error) {
	r.mut.RLock()
	defer r.mut.RUnlock()

	var dumps []model.Dump
	for _, dump := range r.dumps {
		if !dump.Active(now) {
			dumps = append(dumps, dump)
		}
	}

	return dumps, nil
}

func (r *DumpRepository) DeleteExpired(_ context.Context, now time.Time) ([]model.Dump, error) {
	r.mut.Lock()
	defer r.mut.Unlock()

	var removed []model.Dump
	for id, dump := range r.dumps {
		if !dump.Active(now) {
			delete(r.dumps, id)
			removed = append(removed, dump)
		}
	}

	return removed, nil
}

func sortNewestFirst(dumps []model.Dump) {
	sort.Slice(dumps, func(i, j int) bool {
		if dumps[i].CreatedAt.Equal(dumps[j].CreatedAt) {
			return dumps[i].ID.String() > dumps[j].ID.String()
		}
		return dumps[i].CreatedAt.After(dumps[j].CreatedAt)
	})
}
