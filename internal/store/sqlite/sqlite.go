// Package sqlite provides a SQLite-backed implementation of the store.Index
// port: the ledger of capture targets and URI results in app-private storage.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/haukened/snap/internal/domain"
	"github.com/haukened/snap/internal/store"

	// database/sql SQLite driver
	_ "github.com/mattn/go-sqlite3"
)

var _ store.Index = (*Index)(nil)

// Index implements store.Index using SQLite (via database/sql). It is safe for
// concurrent use; database/sql manages connection pooling and serialization.
type Index struct{ db *sql.DB }

// New constructs an Index, initializing the required schema if absent.
func New(db *sql.DB) (*Index, error) {
	ix := &Index{db: db}
	if err := ix.init(); err != nil {
		return nil, err
	}
	return ix, nil
}

func (i *Index) init() error {
	schema := `CREATE TABLE IF NOT EXISTS files (
id TEXT PRIMARY KEY,
call_id TEXT NOT NULL,
kind TEXT NOT NULL CHECK (kind IN ('capture','result')),
created_at INTEGER NOT NULL,
expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS files_expires_at ON files (expires_at);`
	_, err := i.db.Exec(schema)
	return err
}

// Insert stores a new ledger row.
func (i *Index) Insert(ctx context.Context, rec store.Record) error {
	const q = `INSERT INTO files (id, call_id, kind, created_at, expires_at) VALUES (?,?,?,?,?)`
	_, err := i.db.ExecContext(ctx, q, rec.ID.String(), rec.CallID.String(), string(rec.Kind), rec.CreatedAt.Unix(), rec.ExpiresAt.Unix())
	return err
}

// Get returns the row for id. Expiry is not interpreted here; the janitor
// removes expired rows.
func (i *Index) Get(ctx context.Context, id domain.ID) (store.Record, error) {
	const q = `SELECT call_id, kind, created_at, expires_at FROM files WHERE id=?`
	var (
		callID, kind       string
		created, expiresAt int64
	)
	if err := i.db.QueryRowContext(ctx, q, id.String()).Scan(&callID, &kind, &created, &expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Record{}, domain.ErrNotFound
		}
		return store.Record{}, err
	}
	return store.Record{
		ID:        id,
		CallID:    domain.ID(callID),
		Kind:      domain.FileKind(kind),
		CreatedAt: time.Unix(created, 0).UTC(),
		ExpiresAt: time.Unix(expiresAt, 0).UTC(),
	}, nil
}

// Delete hard-deletes the row for id.
func (i *Index) Delete(ctx context.Context, id domain.ID) error {
	res, err := i.db.ExecContext(ctx, `DELETE FROM files WHERE id=?`, id.String())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ExpireBefore deletes rows expiring before t, returning their ids for file cleanup.
func (i *Index) ExpireBefore(ctx context.Context, t time.Time) ([]domain.ID, error) {
	const del = `DELETE FROM files WHERE expires_at < ? RETURNING id`
	return i.queryIDs(ctx, del, t.Unix())
}

// ListIDs returns the ids of every row.
func (i *Index) ListIDs(ctx context.Context) ([]domain.ID, error) {
	return i.queryIDs(ctx, `SELECT id FROM files`)
}

func (i *Index) queryIDs(ctx context.Context, q string, args ...any) ([]domain.ID, error) {
	rows, err := i.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []domain.ID
	for rows.Next() {
		var id string
		if err = rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, domain.ID(id))
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}
