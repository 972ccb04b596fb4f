package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/haukened/snap/internal/domain"
)

// Error codes reported to bridge callers in the {error, code} body.
const (
	CodePermissionDenied = "PERMISSION_DENIED"
	CodeNoFileFound      = "NO_FILE_FOUND"
	CodeUserCancelled    = "USER_CANCELLED"
	CodeDecodeError      = "DECODE_ERROR"
	CodeFileSaveError    = "FILE_SAVE_ERROR"
	CodeInvalidOption    = "INVALID_OPTION"
	CodeInvalidID        = "INVALID_ID"
	CodeNotFound         = "NOT_FOUND"
	CodeUnknownCall      = "UNKNOWN_CALL"
	CodeUnexpectedEvent  = "UNEXPECTED_EVENT"
	CodeSizeExceeded     = "SIZE_EXCEEDED"
	CodeBadRequest       = "BAD_REQUEST"
	CodeCancelled        = "CANCELLED"
	CodeUnavailable      = "UNAVAILABLE"
	CodeInternal         = "INTERNAL"
)

// statusClientClosed is the non-standard status used when the caller went away.
const statusClientClosed = 499

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// writeError writes a JSON error body with given status code.
func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: msg, Code: code})
	if cid, ok := GetCorrelationID(ctx); ok {
		h.log().Debug("wrote error response", "cid", cid, "status", status, "code", code)
	}
}

// writeJSON writes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorMappings pairs each sentinel with its HTTP rendering. Order matters: the
// first match wins, so specific errors precede their wrappers' causes.
var errorMappings = []struct {
	target error
	status int
	code   string
	msg    string
}{
	{domain.ErrInvalidOption, http.StatusBadRequest, CodeInvalidOption, "invalid option"},
	{domain.ErrInvalidID, http.StatusBadRequest, CodeInvalidID, "invalid id"},
	{domain.ErrPermissionDenied, http.StatusForbidden, CodePermissionDenied, "Permission denied"},
	{domain.ErrUserCancelled, http.StatusConflict, CodeUserCancelled, "User cancelled"},
	{domain.ErrNoFileFound, http.StatusUnprocessableEntity, CodeNoFileFound, "No file found"},
	{domain.ErrDecode, http.StatusUnprocessableEntity, CodeDecodeError, "Unable to process bitmap"},
	{domain.ErrFileSave, http.StatusInternalServerError, CodeFileSaveError, "Image file save error"},
	{domain.ErrTooLarge, http.StatusRequestEntityTooLarge, CodeSizeExceeded, "size exceeded"},
	{domain.ErrUnknownCall, http.StatusNotFound, CodeUnknownCall, "unknown call"},
	{domain.ErrUnexpectedEvent, http.StatusConflict, CodeUnexpectedEvent, "unexpected event"},
	{domain.ErrNotFound, http.StatusNotFound, CodeNotFound, "not found"},
	{context.Canceled, statusClientClosed, CodeCancelled, "request cancelled"},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, CodeCancelled, "request timed out"},
}

// mapServiceError maps domain/store/service errors to HTTP responses.
// Unmatched errors are reported as internal without echoing the cause.
func (h *Handler) mapServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	cid, _ := GetCorrelationID(ctx)
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			if m.status >= http.StatusInternalServerError {
				h.log().Warn("service error", "cid", cid, "code", m.code)
			} else {
				h.log().Info("service error", "cid", cid, "code", m.code)
			}
			h.writeError(ctx, w, m.status, m.code, m.msg)
			return
		}
	}
	h.log().Error("unhandled service error", "cid", cid, "code", "unhandled", "err", err)
	h.writeError(ctx, w, http.StatusInternalServerError, CodeInternal, "internal")
}
