// Package store defines internal persistence adapter ports used by the
// higher-level CaptureStore implementation. These ports isolate the SQLite
// ledger and filesystem file storage so they can be tested and evolved
// independently. Callers outside this package interact only with the
// app.CaptureStore implementation, not these internal details.
package store

import (
	"context"
	"io"
	"time"

	"github.com/haukened/snap/internal/domain"
)

// Record is one ledger row: a file the service created in app-private
// storage, who owns it, and when it may be removed.
type Record struct {
	ID        domain.ID
	CallID    domain.ID
	Kind      domain.FileKind
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Index abstracts the ledger operations (typically backed by SQLite).
type Index interface {
	Insert(ctx context.Context, rec Record) error
	// Get returns the row for id or domain.ErrNotFound.
	Get(ctx context.Context, id domain.ID) (Record, error)
	// Delete removes the row for id; domain.ErrNotFound if absent.
	Delete(ctx context.Context, id domain.ID) error
	// ExpireBefore deletes rows expiring before t and returns their ids.
	ExpireBefore(ctx context.Context, t time.Time) ([]domain.ID, error)
	// ListIDs returns the ids of every row.
	ListIDs(ctx context.Context) ([]domain.ID, error)
}

// BlobStorage abstracts file persistence on the filesystem.
type BlobStorage interface {
	// Create makes an empty private file for id; it fails if one exists.
	Create(id domain.ID) error
	// Path returns the absolute path of the file for id.
	Path(id domain.ID) string
	// Write replaces the contents of id with r. A positive limit bounds the
	// size; exceeding it fails with domain.ErrTooLarge and leaves the old
	// contents in place.
	Write(id domain.ID, r io.Reader, limit int64) (int64, error)
	Open(id domain.ID) (io.ReadCloser, error)
	Delete(id domain.ID) error
	// List returns the ids of all files present in storage.
	List() ([]domain.ID, error)
}
