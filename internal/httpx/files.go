package httpx

import (
	"io"
	"net/http"
)

// handleFile implements GET /files/{id}, the webPath of URI-shaped results.
func (h *Handler) handleFile(w http.ResponseWriter, r *http.Request) {
	rc, err := h.Service.OpenResult(r.Context(), r.PathValue("id"))
	if err != nil {
		h.mapServiceError(r.Context(), w, err)
		return
	}
	defer rc.Close()
	w.Header().Set("Content-Type", "image/jpeg")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		cid, _ := GetCorrelationID(r.Context())
		h.log().Warn("stream result", "cid", cid, "err", err)
	}
}
