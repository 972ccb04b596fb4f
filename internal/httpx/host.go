package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/haukened/snap/internal/app"
	"github.com/haukened/snap/internal/domain"
)

// deliver hands ev to the call named in the path and answers 204 on success.
func (h *Handler) deliver(w http.ResponseWriter, r *http.Request, ev app.Event) {
	if err := h.Service.Deliver(r.PathValue("id"), ev); err != nil {
		h.mapServiceError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// awaits answers the error and returns false unless the call named in the
// path is suspended on kind. It runs before the body is read.
func (h *Handler) awaits(w http.ResponseWriter, r *http.Request, kind app.EventKind) bool {
	got, err := h.Service.Awaiting(r.PathValue("id"))
	if err == nil && got != kind {
		err = fmt.Errorf("%w: call awaits %s, got %s", domain.ErrUnexpectedEvent, got, kind)
	}
	if err != nil {
		h.mapServiceError(r.Context(), w, err)
		return false
	}
	return true
}

// handleHostPermissions implements POST /api/host/calls/{id}/permissions.
func (h *Handler) handleHostPermissions(w http.ResponseWriter, r *http.Request) {
	if !h.awaits(w, r, app.EventPermissions) {
		return
	}
	var req struct {
		States map[string]string `json:"states"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		h.rejectBody(w, r, err)
		return
	}
	states := make(map[domain.PermissionAlias]domain.PermissionState, len(req.States))
	for name, raw := range req.States {
		alias, err := domain.ParsePermissionAlias(name)
		if err != nil {
			h.mapServiceError(r.Context(), w, err)
			return
		}
		st, err := domain.ParsePermissionState(raw)
		if err != nil {
			h.mapServiceError(r.Context(), w, err)
			return
		}
		states[alias] = st
	}
	h.deliver(w, r, app.Event{Kind: app.EventPermissions, States: states})
}

// handleHostSource implements POST /api/host/calls/{id}/source: the user's
// answer to the camera-or-library prompt.
func (h *Handler) handleHostSource(w http.ResponseWriter, r *http.Request) {
	if !h.awaits(w, r, app.EventSource) {
		return
	}
	var req struct {
		Source    string `json:"source"`
		Cancelled bool   `json:"cancelled"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		h.rejectBody(w, r, err)
		return
	}
	ev := app.Event{Kind: app.EventSource, Cancelled: req.Cancelled}
	if !req.Cancelled {
		src, err := domain.ParseSource(req.Source)
		if err == nil && src != domain.SourceCamera && src != domain.SourcePhotos {
			err = fmt.Errorf("%w: source %q is not a prompt answer", domain.ErrInvalidOption, req.Source)
		}
		if err != nil {
			h.mapServiceError(r.Context(), w, err)
			return
		}
		ev.Source = src
	}
	h.deliver(w, r, ev)
}

// handleHostCapture implements POST /api/host/calls/{id}/capture.
func (h *Handler) handleHostCapture(w http.ResponseWriter, r *http.Request) {
	if !h.awaits(w, r, app.EventCapture) {
		return
	}
	var req struct {
		Cancelled bool `json:"cancelled"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		h.rejectBody(w, r, err)
		return
	}
	h.deliver(w, r, app.Event{Kind: app.EventCapture, Cancelled: req.Cancelled})
}

// handleHostPick implements POST /api/host/calls/{id}/pick. An empty uri
// means the picker closed without a selection.
func (h *Handler) handleHostPick(w http.ResponseWriter, r *http.Request) {
	if !h.awaits(w, r, app.EventPick) {
		return
	}
	var req struct {
		URI string `json:"uri"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		h.rejectBody(w, r, err)
		return
	}
	h.deliver(w, r, app.Event{Kind: app.EventPick, URI: req.URI})
}

// handleUploadCapture implements PUT /api/host/captures/{fileID}: the camera
// activity's output written into the target allocated for the call.
func (h *Handler) handleUploadCapture(w http.ResponseWriter, r *http.Request) {
	if h.MaxBody > 0 && r.ContentLength > h.MaxBody {
		h.writeError(r.Context(), w, http.StatusRequestEntityTooLarge, CodeSizeExceeded, "size exceeded")
		return
	}
	defer r.Body.Close()
	fileID := r.PathValue("fileID")
	n, err := h.Service.UploadCapture(r.Context(), fileID, r.Body)
	if err != nil {
		h.mapServiceError(r.Context(), w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(struct {
		FileID string `json:"file_id"`
		Bytes  int64  `json:"bytes"`
	}{FileID: fileID, Bytes: n})
}
