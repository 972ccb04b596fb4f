// Package httpx contains the HTTP delivery layer (net/http handlers) for the snap service.
// It exposes the camera bridge calls to the web layer, accepts the host shell's
// callbacks that resume suspended calls, serves URI results and the ops endpoints.
// Handlers are split across files (camera.go, host.go, files.go, health.go, errors.go).
package httpx

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/haukened/snap/internal/app"
	"github.com/haukened/snap/internal/domain"
)

// ServicePort abstracts the subset of app.Service used by the HTTP layer.
// It is satisfied by *app.Service in production and mocked in tests.
type ServicePort interface {
	GetPhoto(ctx context.Context, opts domain.Options) (domain.Photo, error)
	CheckPermissions(ctx context.Context) (map[domain.PermissionAlias]domain.PermissionState, error)
	RequestPermissions(ctx context.Context, names []string) (map[domain.PermissionAlias]domain.PermissionState, error)
	Awaiting(callID string) (app.EventKind, error)
	Deliver(callID string, ev app.Event) error
	UploadCapture(ctx context.Context, fileID string, r io.Reader) (int64, error)
	OpenResult(ctx context.Context, fileID string) (io.ReadCloser, error)
}

// Handler wires HTTP endpoints to the application service.
// It is safe for concurrent use. Zero-value is not valid; construct via New.
type Handler struct {
	Service   ServicePort
	MaxBody   int64                       // upload limit for capture bytes (0 disables extra check)
	Readiness func(context.Context) error // optional readiness check
	Metrics   http.Handler                // optional; mounted at /metrics
	Logger    *slog.Logger                // optional (defaults to slog.Default())
}

// New returns a configured Handler.
// svc: application service port implementation.
// maxBody: maximum allowed capture upload size (0 disables extra check).
// readiness: optional check function for /readyz (nil => always ready).
func New(svc ServicePort, maxBody int64, readiness func(context.Context) error) *Handler {
	return &Handler{Service: svc, MaxBody: maxBody, Readiness: readiness}
}

// maxJSONBody bounds every JSON request body; option bags and host answers are tiny.
const maxJSONBody = 64 << 10

func (h *Handler) log() *slog.Logger {
	if h.Logger == nil {
		return slog.Default().With("domain", "http")
	}
	return h.Logger.With("domain", "http")
}

// Router constructs and returns an http.Handler with all routes mounted and
// the correlation, access log and security headers middleware applied.
func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/camera/getPhoto", h.handleGetPhoto)
	mux.HandleFunc("GET /api/camera/permissions", h.handleCheckPermissions)
	mux.HandleFunc("POST /api/camera/permissions", h.handleRequestPermissions)

	mux.HandleFunc("POST /api/host/calls/{id}/permissions", h.handleHostPermissions)
	mux.HandleFunc("POST /api/host/calls/{id}/source", h.handleHostSource)
	mux.HandleFunc("POST /api/host/calls/{id}/capture", h.handleHostCapture)
	mux.HandleFunc("POST /api/host/calls/{id}/pick", h.handleHostPick)
	mux.HandleFunc("PUT /api/host/captures/{fileID}", h.handleUploadCapture)

	mux.HandleFunc("GET /files/{id}", h.handleFile)
	mux.HandleFunc("GET /healthz", h.handleHealth)
	mux.HandleFunc("GET /readyz", h.handleReady)
	if h.Metrics != nil {
		mux.Handle("GET /metrics", h.Metrics)
	}
	return CorrelationIDMiddleware(h.accessLog(h.secureHeaders(mux)))
}

// secureHeaders middleware adds standard security & cache control headers.
// Responses are JSON or single photos; none are cacheable.
func (h *Handler) secureHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; img-src 'self'; frame-ancestors 'none'; base-uri 'none'")
		next.ServeHTTP(w, r)
	})
}
