// Package app defines the application layer "ports" (interfaces) and simple
// data contracts the capture/pick use-cases depend upon. It follows a
// hexagonal (ports & adapters) design: this package declares what the core
// needs from the host shell, storage and content resolution, while adapter
// packages (host callback client, SQLite+filesystem storage, resolver, HTTP
// layer, janitor) provide concrete implementations.
package app

import (
	"context"
	"io"
	"time"

	"github.com/haukened/snap/internal/domain"
)

// Clock abstracts time to enable deterministic testing of file expiry.
type Clock interface {
	// Now returns the current wall-clock time.
	Now() time.Time
}

// Host is the port to the native shell: permission machinery, the camera
// capture activity, the photo picker and the source chooser. Launch methods
// return once the host has accepted the request; outcomes arrive later via
// Service.Deliver keyed by the call id.
type Host interface {
	// PermissionStates reports the current state of each alias.
	PermissionStates(ctx context.Context, aliases []domain.PermissionAlias) (map[domain.PermissionAlias]domain.PermissionState, error)
	// RequestPermissions asks the user to grant aliases; answered with EventPermissions.
	RequestPermissions(ctx context.Context, callID domain.ID, aliases []domain.PermissionAlias) error
	// PromptSource asks the user to pick camera or library; answered with EventSource.
	PromptSource(ctx context.Context, callID domain.ID) error
	// LaunchCapture starts the camera writing into target; answered with EventCapture.
	LaunchCapture(ctx context.Context, callID domain.ID, target domain.FileRef) error
	// LaunchPicker starts the single image picker; answered with EventPick.
	LaunchPicker(ctx context.Context, callID domain.ID) error
}

// CaptureStore owns every file the service writes to app-private storage.
// Files are tracked in a ledger so expired or orphaned ones can be removed.
type CaptureStore interface {
	// Allocate creates an empty capture target owned by callID.
	Allocate(ctx context.Context, callID domain.ID) (domain.FileRef, error)
	// Lookup returns the ledger entry for id or domain.ErrNotFound.
	Lookup(ctx context.Context, id domain.ID) (domain.FileRef, error)
	// Write replaces the contents of an existing file with r.
	Write(ctx context.Context, id domain.ID, r io.Reader) (int64, error)
	// Open streams a tracked file.
	Open(ctx context.Context, id domain.ID) (io.ReadCloser, error)
	// SaveResult stores an encoded result for URI-shaped responses.
	SaveResult(ctx context.Context, callID domain.ID, data []byte) (domain.FileRef, error)
	// Release deletes the file and its ledger entry.
	Release(ctx context.Context, id domain.ID) error
	// ExpireBefore removes files whose expiry precedes t and returns the count.
	ExpireBefore(ctx context.Context, t time.Time) (int, error)
	// Reconcile removes ledger entries without files and files without entries.
	Reconcile(ctx context.Context) error
}

// ContentResolver opens the byte stream behind a content reference.
type ContentResolver interface {
	Open(ctx context.Context, uri string) (io.ReadCloser, error)
}

// Gallery persists a copy of a captured photo where the user can see it.
type Gallery interface {
	// Save writes data and returns the stored location.
	Save(ctx context.Context, data []byte) (string, error)
}

// Metrics receives counters and summary observations. Optional.
type Metrics interface {
	Inc(name string, delta int64)
	Observe(name string, value int64)
}
