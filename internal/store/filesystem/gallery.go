package filesystem

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/haukened/snap/internal/domain"
)

// Gallery implements app.Gallery by writing world-readable JPEG copies into
// a user-visible directory, named the way camera apps name their shots.
type Gallery struct {
	dir string
	now func() time.Time
}

// NewGallery returns a Gallery writing into dir, creating it if needed.
func NewGallery(dir string, now func() time.Time) (*Gallery, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil { // #nosec G301 gallery is meant to be readable
		return nil, err
	}
	if now == nil {
		now = time.Now
	}
	return &Gallery{dir: dir, now: now}, nil
}

// Save writes data as a new gallery image and returns its path.
func (g *Gallery) Save(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	suffix, err := domain.NewID()
	if err != nil {
		return "", err
	}
	name := fmt.Sprintf("IMG_%s_%s%s", g.now().UTC().Format("20060102_150405"), suffix.String()[:8], fileExt)
	p := filepath.Join(g.dir, name)
	// #nosec G304 G302: name built from a timestamp and random hex.
	f, err := os.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(p)
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(p)
		return "", err
	}
	return p, nil
}
