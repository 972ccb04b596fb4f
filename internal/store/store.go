// Package store provides the concrete implementation of the application
// CaptureStore port by composing lower-layer persistence ports (Index and
// BlobStorage). External packages should construct the store via New and
// interact only through the app.CaptureStore interface.
package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"time"

	"github.com/haukened/snap/internal/app"
	"github.com/haukened/snap/internal/domain"
)

// Limits bounds file lifetimes and host uploads.
type Limits struct {
	CaptureTTL time.Duration // lifetime of an unreleased capture target
	ResultTTL  time.Duration // lifetime of a URI result
	MaxBytes   int64         // upload bound; <= 0 means unbounded
}

// Store composes an Index and BlobStorage to satisfy app.CaptureStore.
// Every file has a ledger row; the row is written after the file exists and
// removed before the file is, so Reconcile only ever sees brief orphans.
type Store struct {
	index  Index
	blobs  BlobStorage
	clock  app.Clock
	limits Limits
}

// New returns a Store implementation of app.CaptureStore.
func New(index Index, blobs BlobStorage, clock app.Clock, limits Limits) *Store {
	return &Store{index: index, blobs: blobs, clock: clock, limits: limits}
}

var _ app.CaptureStore = (*Store)(nil)

var errNotInitialized = errors.New("store not properly initialized")

func (s *Store) ready() error {
	if s == nil || s.index == nil || s.blobs == nil || s.clock == nil {
		return errNotInitialized
	}
	return nil
}

func (s *Store) ref(rec Record) domain.FileRef {
	return domain.FileRef{ID: rec.ID, CallID: rec.CallID, Kind: rec.Kind, Path: s.blobs.Path(rec.ID)}
}

// insert records a file that already exists on disk, removing the file if
// the ledger write fails.
func (s *Store) insert(ctx context.Context, id, callID domain.ID, kind domain.FileKind, ttl time.Duration) (domain.FileRef, error) {
	now := s.clock.Now().UTC()
	rec := Record{ID: id, CallID: callID, Kind: kind, CreatedAt: now, ExpiresAt: now.Add(ttl)}
	if err := s.index.Insert(ctx, rec); err != nil {
		_ = s.blobs.Delete(id)
		return domain.FileRef{}, err
	}
	return s.ref(rec), nil
}

// Allocate creates an empty capture target owned by callID.
func (s *Store) Allocate(ctx context.Context, callID domain.ID) (domain.FileRef, error) {
	if err := s.ready(); err != nil {
		return domain.FileRef{}, err
	}
	id, err := domain.NewID()
	if err != nil {
		return domain.FileRef{}, err
	}
	if err := s.blobs.Create(id); err != nil {
		return domain.FileRef{}, fmt.Errorf("create capture file: %w", err)
	}
	return s.insert(ctx, id, callID, domain.FileCapture, s.limits.CaptureTTL)
}

// Lookup returns the ledger entry for id.
func (s *Store) Lookup(ctx context.Context, id domain.ID) (domain.FileRef, error) {
	if err := s.ready(); err != nil {
		return domain.FileRef{}, err
	}
	rec, err := s.index.Get(ctx, id)
	if err != nil {
		return domain.FileRef{}, err
	}
	return s.ref(rec), nil
}

// Write replaces the contents of a tracked file, bounded by MaxBytes.
func (s *Store) Write(ctx context.Context, id domain.ID, r io.Reader) (int64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	if _, err := s.index.Get(ctx, id); err != nil {
		return 0, err
	}
	return s.blobs.Write(id, r, s.limits.MaxBytes)
}

// Open streams a tracked file. A row whose file is gone reads as not found.
func (s *Store) Open(ctx context.Context, id domain.ID) (io.ReadCloser, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	if _, err := s.index.Get(ctx, id); err != nil {
		return nil, err
	}
	rc, err := s.blobs.Open(id)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, domain.ErrNotFound
	}
	return rc, err
}

// SaveResult stores an encoded result that lives until ResultTTL elapses.
func (s *Store) SaveResult(ctx context.Context, callID domain.ID, data []byte) (domain.FileRef, error) {
	if err := s.ready(); err != nil {
		return domain.FileRef{}, err
	}
	id, err := domain.NewID()
	if err != nil {
		return domain.FileRef{}, err
	}
	if _, err := s.blobs.Write(id, bytes.NewReader(data), 0); err != nil {
		return domain.FileRef{}, fmt.Errorf("write result file: %w", err)
	}
	return s.insert(ctx, id, callID, domain.FileResult, s.limits.ResultTTL)
}

// Release deletes the ledger row and then the file.
func (s *Store) Release(ctx context.Context, id domain.ID) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := s.index.Delete(ctx, id); err != nil {
		return err
	}
	if err := s.blobs.Delete(id); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// ExpireBefore removes files expiring before t and returns the count.
// File deletion is best-effort; Reconcile catches what is left behind.
func (s *Store) ExpireBefore(ctx context.Context, t time.Time) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	expired, err := s.index.ExpireBefore(ctx, t)
	if err != nil {
		return 0, err
	}
	for _, id := range expired {
		_ = s.blobs.Delete(id)
	}
	return len(expired), nil
}

// Reconcile removes files without ledger rows and rows without files.
func (s *Store) Reconcile(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}
	blobIDs, err := s.blobs.List()
	if err != nil {
		return err
	}
	rowIDs, err := s.index.ListIDs(ctx)
	if err != nil {
		return err
	}
	rows := make(map[domain.ID]struct{}, len(rowIDs))
	for _, id := range rowIDs {
		rows[id] = struct{}{}
	}
	onDisk := make(map[domain.ID]struct{}, len(blobIDs))
	for _, id := range blobIDs {
		onDisk[id] = struct{}{}
		if _, ok := rows[id]; !ok {
			_ = s.blobs.Delete(id)
		}
	}
	for _, id := range rowIDs {
		if _, ok := onDisk[id]; ok {
			continue
		}
		// List skips files younger than its freshness guard, so confirm the
		// file is really gone before dropping the row.
		rc, err := s.blobs.Open(id)
		if err == nil {
			_ = rc.Close()
			continue
		}
		if errors.Is(err, fs.ErrNotExist) {
			if err := s.index.Delete(ctx, id); err != nil && !errors.Is(err, domain.ErrNotFound) {
				return err
			}
		}
	}
	return nil
}
