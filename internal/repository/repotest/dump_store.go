// Package repotest holds behaviour tests shared by every model.DumpStore backend.
package repotest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/ttldump/internal/model"
)

// Base is the reference creation time used by the shared tests.
var Base = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

// NewDump builds a dump created at Base+offset.
func NewDump(kind model.DumpKind, content string, offset time.Duration) model.Dump {
	created := Base.Add(offset)
	return model.Dump{
		ID:        uuid.New(),
		Kind:      kind,
		Content:   content,
		CreatedAt: created,
		ExpiresAt: created.Add(model.TTL),
	}
}

// RunDumpStoreTests runs the shared backend tests against stores made by newStore.
func RunDumpStoreTests(t *testing.T, newStore func(t *testing.T) model.DumpStore) {
	t.Run("create and get", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		d := NewDump(model.DumpKindFile, "/uploads/x-a.zip", 0)
		d.FileName = "a.zip"
		d.MimeType = "application/zip"

		saved, err := s.Create(ctx, d)
		require.NoError(t, err)
		assertSameDump(t, d, saved)

		got, err := s.GetByID(ctx, d.ID)
		require.NoError(t, err)
		assertSameDump(t, d, got)
	})

	t.Run("get missing", func(t *testing.T) {
		_, err := newStore(t).GetByID(context.Background(), uuid.New())
		assert.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("duplicate id", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		d := NewDump(model.DumpKindText, "one", 0)
		_, err := s.Create(ctx, d)
		require.NoError(t, err)

		d.Content = "two"
		_, err = s.Create(ctx, d)
		assert.Error(t, err)

		got, err := s.GetByID(ctx, d.ID)
		require.NoError(t, err)
		assert.Equal(t, "one", got.Content)
	})

	t.Run("get ignores expiry", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		d := NewDump(model.DumpKindText, "old", -time.Hour)
		_, err := s.Create(ctx, d)
		require.NoError(t, err)

		got, err := s.GetByID(ctx, d.ID)
		require.NoError(t, err)
		assert.Equal(t, d.ID, got.ID)
	})

	t.Run("list active newest first", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		older := NewDump(model.DumpKindText, "older", 0)
		newer := NewDump(model.DumpKindText, "newer", time.Minute)
		expired := NewDump(model.DumpKindText, "expired", -model.TTL)
		for _, d := range []model.Dump{older, expired, newer} {
			_, err := s.Create(ctx, d)
			require.NoError(t, err)
		}

		list, err := s.ListActive(ctx, Base)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, newer.ID, list[0].ID)
		assert.Equal(t, older.ID, list[1].ID)

		list, err = s.ListActive(ctx, Base.Add(model.TTL))
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, newer.ID, list[0].ID)

		list, err = s.ListActive(ctx, Base.Add(2*model.TTL))
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("list expired", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		active := NewDump(model.DumpKindText, "active", 0)
		boundary := NewDump(model.DumpKindText, "boundary", -model.TTL)
		_, err := s.Create(ctx, active)
		require.NoError(t, err)
		_, err = s.Create(ctx, boundary)
		require.NoError(t, err)

		list, err := s.ListExpired(ctx, Base)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, boundary.ID, list[0].ID)
	})

	t.Run("delete expired", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		active := NewDump(model.DumpKindText, "active", 0)
		gone1 := NewDump(model.DumpKindImage, "/uploads/1-a.png", -model.TTL)
		gone2 := NewDump(model.DumpKindText, "text", -2*model.TTL)
		for _, d := range []model.Dump{active, gone1, gone2} {
			_, err := s.Create(ctx, d)
			require.NoError(t, err)
		}

		removed, err := s.DeleteExpired(ctx, Base)
		require.NoError(t, err)
		require.Len(t, removed, 2)
		ids := []uuid.UUID{removed[0].ID, removed[1].ID}
		assert.ElementsMatch(t, []uuid.UUID{gone1.ID, gone2.ID}, ids)
		for _, d := range removed {
			if d.ID == gone1.ID {
				assert.Equal(t, "/uploads/1-a.png", d.Content)
				assert.Equal(t, model.DumpKindImage, d.Kind)
			}
		}

		_, err = s.GetByID(ctx, gone1.ID)
		assert.ErrorIs(t, err, model.ErrNotFound)
		_, err = s.GetByID(ctx, active.ID)
		assert.NoError(t, err)

		removed, err = s.DeleteExpired(ctx, Base)
		require.NoError(t, err)
		assert.Empty(t, removed)
	})

	t.Run("concurrent create and delete", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		for i := 0; i < 20; i++ {
			_, err := s.Create(ctx, NewDump(model.DumpKindText, "expired", -model.TTL-time.Duration(i)*time.Second))
			require.NoError(t, err)
		}

		var (
			wg      sync.WaitGroup
			created = make([]model.Dump, 20)
		)
		for i := range created {
			created[i] = NewDump(model.DumpKindText, "fresh", time.Duration(i)*time.Second)
		}

		wg.Add(2)
		go func() {
			defer wg.Done()
			for _, d := range created {
				_, err := s.Create(ctx, d)
				assert.NoError(t, err)
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < 5; i++ {
				_, err := s.DeleteExpired(ctx, Base)
				assert.NoError(t, err)
			}
		}()
		wg.Wait()

		_, err := s.DeleteExpired(ctx, Base)
		require.NoError(t, err)

		list, err := s.ListActive(ctx, Base)
		require.NoError(t, err)
		assert.Len(t, list, len(created))

		expired, err := s.ListExpired(ctx, Base)
		require.NoError(t, err)
		assert.Empty(t, expired)
	})
}

func assertSameDump(t *testing.T, want, got model.Dump) {
	t.Helper()

	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.Kind, got.Kind)
	assert.Equal(t, want.Content, got.Content)
	assert.Equal(t, want.FileName, got.FileName)
	assert.Equal(t, want.MimeType, got.MimeType)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt), "created_at %v != %v", want.CreatedAt, got.CreatedAt)
	assert.True(t, want.ExpiresAt.Equal(got.ExpiresAt), "expires_at %v != %v", want.ExpiresAt, got.ExpiresAt)
	assert.Equal(t, model.TTL, got.ExpiresAt.Sub(got.CreatedAt))
}
