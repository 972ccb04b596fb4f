// Package domain photo.go holds the result and file reference types.
package domain

// Fixed output encoding.
const (
	FormatJPEG  = "jpeg"
	JPEGQuality = 90
)

// CaptureScheme prefixes content-safe references to files in app-private storage.
const CaptureScheme = "capture"

// Photo is the resolved value of a getPhoto call.
type Photo struct {
	Base64String string `json:"base64String,omitempty"`
	Path         string `json:"path,omitempty"`
	WebPath      string `json:"webPath,omitempty"`
	Format       string `json:"format"`
	Saved        bool   `json:"saved"`
}

// FileKind distinguishes pending capture targets from finished URI results.
type FileKind string

const (
	FileCapture FileKind = "capture"
	FileResult  FileKind = "result"
)

// FileRef points at a file the service owns in app-private storage.
type FileRef struct {
	ID     ID
	CallID ID
	Kind   FileKind
	Path   string // absolute filesystem path
}

// URI returns the content-safe reference handed to the host.
func (f FileRef) URI() string { return CaptureScheme + "://" + f.ID.String() }
