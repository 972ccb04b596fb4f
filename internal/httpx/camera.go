package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/haukened/snap/internal/domain"
)

// decodeJSON reads a bounded JSON body into v. An empty body leaves v untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxJSONBody)
	defer body.Close()
	err := json.NewDecoder(body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return fmt.Errorf("%w: body over %d bytes", domain.ErrTooLarge, mbe.Limit)
	}
	return err
}

// rejectBody answers a request whose body could not be decoded.
func (h *Handler) rejectBody(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, domain.ErrTooLarge) {
		h.mapServiceError(r.Context(), w, err)
		return
	}
	h.writeError(r.Context(), w, http.StatusBadRequest, CodeBadRequest, "malformed body")
}

// handleGetPhoto implements POST /api/camera/getPhoto. The request blocks
// until the host has answered every prompt the call raises.
func (h *Handler) handleGetPhoto(w http.ResponseWriter, r *http.Request) {
	var opts domain.Options
	if err := decodeJSON(w, r, &opts); err != nil {
		h.rejectBody(w, r, err)
		return
	}
	photo, err := h.Service.GetPhoto(r.Context(), opts)
	if err != nil {
		h.mapServiceError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, photo)
}

// handleCheckPermissions implements GET /api/camera/permissions.
func (h *Handler) handleCheckPermissions(w http.ResponseWriter, r *http.Request) {
	states, err := h.Service.CheckPermissions(r.Context())
	if err != nil {
		h.mapServiceError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, states)
}

// handleRequestPermissions implements POST /api/camera/permissions with an
// optional {permissions:[...]} body; an empty list requests every alias.
func (h *Handler) handleRequestPermissions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Permissions []string `json:"permissions"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		h.rejectBody(w, r, err)
		return
	}
	states, err := h.Service.RequestPermissions(r.Context(), req.Permissions)
	if err != nil {
		h.mapServiceError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, states)
}
