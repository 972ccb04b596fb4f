// Package filesystem provides the file side of capture storage: a
// BlobStorage implementation holding capture targets and URI results in
// app-private storage, and a Gallery that copies photos where the user can
// find them.
package filesystem

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/haukened/snap/internal/domain"
	"github.com/haukened/snap/internal/store"
)

// Ensure BlobStore implements store.BlobStorage
var _ store.BlobStorage = (*BlobStore)(nil)

const (
	fileExt   = ".jpg"
	tmpPrefix = ".tmp-"
)

// BlobStore implements store.BlobStorage using the local filesystem.
// Files are named by their ID (with a fixed suffix) to simplify lookup.
type BlobStore struct {
	root string
	// MinAge hides files younger than this from List so a file created just
	// before its ledger row is not mistaken for an orphan.
	MinAge time.Duration
}

// New returns a filesystem-backed blob store rooted at root. The directory
// must already exist with private permissions (0700 recommended).
func New(root string) (*BlobStore, error) {
	fi, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return nil, errors.New("blob root is not a directory")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	return &BlobStore{root: abs, MinAge: time.Second}, nil
}

// Path returns the absolute path of the file for id.
func (b *BlobStore) Path(id domain.ID) string { return filepath.Join(b.root, id.String()+fileExt) }

// Create makes an empty 0600 file for id, failing if it already exists.
func (b *BlobStore) Create(id domain.ID) error {
	if err := validateID(id); err != nil {
		return err
	}
	// #nosec G304: path is constructed from a fixed root plus a validated ID with a fixed suffix; no traversal possible.
	f, err := os.OpenFile(b.Path(id), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	return f.Close()
}

// Write replaces the file for id with the contents of r. The data goes to a
// temporary file first and is renamed into place, so readers never see a
// partial file. A positive limit bounds the accepted size.
func (b *BlobStore) Write(id domain.ID, r io.Reader, limit int64) (int64, error) {
	if err := validateID(id); err != nil {
		return 0, err
	}
	tmp, err := os.CreateTemp(b.root, tmpPrefix+id.String()+"-*")
	if err != nil {
		return 0, err
	}
	tmpPath := tmp.Name()
	fail := func(err error) (int64, error) {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return 0, err
	}
	src := r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}
	n, err := io.Copy(tmp, src)
	if err != nil {
		return fail(err)
	}
	if limit > 0 && n > limit {
		return fail(fmt.Errorf("%w: more than %d bytes", domain.ErrTooLarge, limit))
	}
	if err := tmp.Sync(); err != nil {
		return fail(err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return 0, err
	}
	if err := os.Rename(tmpPath, b.Path(id)); err != nil {
		_ = os.Remove(tmpPath)
		return 0, err
	}
	return n, nil
}

// Open opens the file for id for reading.
func (b *BlobStore) Open(id domain.ID) (io.ReadCloser, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	return os.Open(b.Path(id)) // #nosec G304 path constructed internally
}

// Delete removes the file for id.
func (b *BlobStore) Delete(id domain.ID) error {
	if id == "" {
		return nil
	}
	if err := validateID(id); err != nil {
		return err
	}
	return os.Remove(b.Path(id))
}

// List returns all file IDs currently present. Higher layers derive orphans
// by diffing against the ledger. Stale temporary files are removed.
func (b *BlobStore) List() ([]domain.ID, error) {
	entries, err := os.ReadDir(b.root)
	if err != nil {
		return nil, err
	}
	var ids []domain.ID
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		info, err := e.Info()
		if err != nil {
			continue
		}
		fresh := time.Since(info.ModTime()) < b.MinAge
		if strings.HasPrefix(name, tmpPrefix) {
			if !fresh {
				_ = os.Remove(filepath.Join(b.root, name))
			}
			continue
		}
		if filepath.Ext(name) != fileExt || fresh {
			continue
		}
		id, err := domain.ParseID(strings.TrimSuffix(name, fileExt))
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// validateID enforces that the id is a canonical 32-character lowercase
// hexadecimal domain.ID. This prevents path traversal (no separators, fixed
// length) and guarantees uniform filenames.
func validateID(id domain.ID) error {
	if !id.Valid() {
		return fmt.Errorf("%w: file id must be 32 lowercase hex chars", domain.ErrInvalidID)
	}
	return nil
}
