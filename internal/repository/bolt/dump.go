// Package bolt is an embedded model.DumpStore backed by a bbolt file, for single-node
// deployments without Postgres.
package bolt

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/dtroode/ttldump/internal/model"
)

var bucketDumps = []byte("dumps")

var _ model.DumpStore = (*DumpRepository)(nil)

type DumpRepository struct {
	db *bbolt.DB
}

// Open opens or creates the bbolt database at path.
// The parent directory is created if it does not exist.
func Open(path string) (*DumpRepository, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketDumps)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create bucket: %w", err)
	}

	return &DumpRepository{db: db}, nil
}

func (r *DumpRepository) Close() error {
	return r.db.Close()
}

func (r *DumpRepository) Create(_ context.Context, dump model.Dump) (model.Dump, error) {
	data, err := encode(dump)
	if err != nil {
		return model.Dump{}, err
	}

	err = r.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketDumps)
		if b.Get(dump.ID[:]) != nil {
			return fmt.Errorf("dump %s already exists", dump.ID)
		}
		return b.Put(dump.ID[:], data)
	})
	if err != nil {
		return model.Dump{}, err
	}

	return dump, nil
}

func (r *DumpRepository) GetByID(_ context.Context, id uuid.UUID) (model.Dump, error) {
	var dump model.Dump
	err := r.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketDumps).Get(id[:])
		if data == nil {
			return model.ErrNotFound
		}
		var err error
		dump, err = decode(data)
		return err
	})
	if err != nil {
		return model.Dump{}, err
	}

	return dump, nil
}

func (r *DumpRepository) ListActive(_ context.Context, now time.Time) ([]model.Dump, error) {
	dumps, err := r.scan(func(d model.Dump) bool { return d.Active(now) })
	if err != nil {
		return nil, err
	}

	sort.Slice(dumps, func(i, j int) bool {
		return dumps[i].CreatedAt.After(dumps[j].CreatedAt)
	})

	return dumps, nil
}

func (r *DumpRepository) ListExpired(_ context.Context, now time.Time) ([]model.Dump, error) {
	return r.scan(func(d model.Dump) bool { return !d.Active(now) })
}

func (r *DumpRepository) DeleteExpired(_ context.Context, now time.Time) ([]model.Dump, error) {
	var removed []model.Dump
	err := r.db.Update(func(tx *bbolt.Tx) error {
		removed = removed[:0]
		b := tx.Bucket(bucketDumps)

		var keys [][]byte
		err := b.ForEach(func(k, v []byte) error {
			dump, err := decode(v)
			if err != nil {
				return err
			}
			if !dump.Active(now) {
				keys = append(keys, bytes.Clone(k))
				removed = append(removed, dump)
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, k := range keys {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return removed, nil
}

func (r *DumpRepository) scan(keep func(model.Dump) bool) ([]model.Dump, error) {
	var dumps []model.Dump
	err := r.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketDumps).ForEach(func(_, v []byte) error {
			dump, err := decode(v)
			if err != nil {
				return err
			}
			if keep(dump) {
				dumps = append(dumps, dump)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return dumps, nil
}

func encode(dump model.Dump) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(dump); err != nil {
		return nil, fmt.Errorf("failed to encode dump: %w", err)
	}
	return buf.Bytes(), nil
}

func decode(data []byte) (model.Dump, error) {
	var dump model.Dump
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&dump); err != nil {
		return model.Dump{}, fmt.Errorf("failed to decode dump: %w", err)
	}
	return dump, nil
}
