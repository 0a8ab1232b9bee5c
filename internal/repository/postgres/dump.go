package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dtroode/ttldump/internal/model"
)

var _ model.DumpStore = (*DumpRepository)(nil)

const dumpColumns = `id, kind, content, file_name, mime_type, created_at, expires_at`

type DumpRepository struct {
	db *Connection
}

func NewDumpRepository(db *Connection) *DumpRepository {
	return &DumpRepository{
		db: db,
	}
}

func (r *DumpRepository) Create(ctx context.Context, dump model.Dump) (model.Dump, error) {
	query := `
		INSERT INTO dumps (` + dumpColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + dumpColumns

	row := r.db.QueryRow(ctx, query,
		dump.ID, string(dump.Kind), dump.Content, dump.FileName, dump.MimeType,
		dump.CreatedAt, dump.ExpiresAt,
	)

	saved, err := scanDump(row)
	if err != nil {
		return model.Dump{}, err
	}

	return saved, nil
}

func (r *DumpRepository) GetByID(ctx context.Context, id uuid.UUID) (model.Dump, error) {
	query := `SELECT ` + dumpColumns + ` FROM dumps WHERE id = $1`

	dump, err := scanDump(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Dump{}, model.ErrNotFound
		}
		return model.Dump{}, err
	}

	return dump, nil
}

func (r *DumpRepository) ListActive(ctx context.Context, now time.Time) ([]model.Dump, error) {
	query := `
		SELECT ` + dumpColumns + `
		FROM dumps
		WHERE expires_at > $1
		ORDER BY created_at DESC, id DESC`

	return r.query(ctx, query, now)
}

func (r *DumpRepository) ListExpired(ctx context.Context, now time.Time) ([]model.Dump, error) {
	query := `
		SELECT ` + dumpColumns + `
		FROM dumps
		WHERE expires_at <= $1`

	return r.query(ctx, query, now)
}

// DeleteExpired removes every dump expired at now in one statement and returns them.
func (r *DumpRepository) DeleteExpired(ctx context.Context, now time.Time) ([]model.Dump, error) {
	query := `
		DELETE FROM dumps
		WHERE expires_at <= $1
		RETURNING ` + dumpColumns

	return r.query(ctx, query, now)
}

func (r *DumpRepository) query(ctx context.Context, query string, args ...any) ([]model.Dump, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dumps []model.Dump
	for rows.Next() {
		dump, err := scanDump(rows)
		if err != nil {
			return nil, err
		}
		dumps = append(dumps, dump)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return dumps, nil
}

func scanDump(row pgx.Row) (model.Dump, error) {
	var (
		dump model.Dump
		kind string
	)
	err := row.Scan(
		&dump.ID, &kind, &dump.Content, &dump.FileName, &dump.MimeType,
		&dump.CreatedAt, &dump.ExpiresAt,
	)
	if err != nil {
		return model.Dump{}, err
	}
	dump.Kind = model.DumpKind(kind)

	return dump, nil
}
