// Package resolver opens the byte stream behind a content reference handed
// back by the host: capture targets in app-private storage, local files under
// configured roots, and http(s) URLs.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/haukened/snap/internal/app"
	"github.com/haukened/snap/internal/domain"
)

var (
	ErrUnsupportedScheme = errors.New("unsupported uri scheme")
	ErrOutsideRoots      = errors.New("path outside allowed roots")
)

// CaptureOpener streams files owned by the capture store.
type CaptureOpener interface {
	Open(ctx context.Context, id domain.ID) (io.ReadCloser, error)
}

// Resolver implements app.ContentResolver.
type Resolver struct {
	captures CaptureOpener
	roots    []string
	client   *http.Client
	maxBytes int64
}

var _ app.ContentResolver = (*Resolver)(nil)

// New returns a Resolver. Local paths are only served from below roots; a
// nil client disables http(s). A positive maxBytes bounds remote bodies.
func New(captures CaptureOpener, roots []string, client *http.Client, maxBytes int64) (*Resolver, error) {
	abs := make([]string, 0, len(roots))
	for _, r := range roots {
		if r == "" {
			continue
		}
		a, err := filepath.Abs(r)
		if err != nil {
			return nil, fmt.Errorf("file root %q: %w", r, err)
		}
		abs = append(abs, a)
	}
	return &Resolver{captures: captures, roots: abs, client: client, maxBytes: maxBytes}, nil
}

// Open dispatches on the scheme of uri. A bare absolute path is treated as a
// file reference.
func (r *Resolver) Open(ctx context.Context, uri string) (io.ReadCloser, error) {
	if filepath.IsAbs(uri) {
		return r.openFile(uri)
	}
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("parse uri: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case domain.CaptureScheme:
		return r.openCapture(ctx, u)
	case "file":
		return r.openFile(u.Path)
	case "http", "https":
		return r.fetch(ctx, u)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
}

func (r *Resolver) openCapture(ctx context.Context, u *url.URL) (io.ReadCloser, error) {
	if r.captures == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, domain.CaptureScheme)
	}
	id, err := domain.ParseID(u.Host)
	if err != nil {
		return nil, err
	}
	return r.captures.Open(ctx, id)
}

// openFile opens p through an os.Root so neither ".." nor symlinks can
// escape the root that contains it.
func (r *Resolver) openFile(p string) (io.ReadCloser, error) {
	p = filepath.Clean(p)
	for _, root := range r.roots {
		rel, err := filepath.Rel(root, p)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		f, err := os.OpenInRoot(root, rel)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, p)
		}
		if err != nil {
			return nil, err
		}
		return f, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrOutsideRoots, p)
}

func (r *Resolver) fetch(ctx context.Context, u *url.URL) (io.ReadCloser, error) {
	if r.client == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, u.Scheme)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, u.Redacted())
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		resp.Body.Close()
		return nil, fmt.Errorf("fetch %s: status %d", u.Redacted(), resp.StatusCode)
	}
	if r.maxBytes > 0 {
		return http.MaxBytesReader(nil, resp.Body, r.maxBytes), nil
	}
	return resp.Body, nil
}
