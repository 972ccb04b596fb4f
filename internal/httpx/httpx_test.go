package httpx_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/snap/internal/app"
	"github.com/haukened/snap/internal/domain"
	"github.com/haukened/snap/internal/httpx"
)

type mockService struct {
	getPhotoFn func(ctx context.Context, opts domain.Options) (domain.Photo, error)
	checkFn    func(ctx context.Context) (map[domain.PermissionAlias]domain.PermissionState, error)
	requestFn  func(ctx context.Context, names []string) (map[domain.PermissionAlias]domain.PermissionState, error)
	awaitingFn func(callID string) (app.EventKind, error)
	deliverFn  func(callID string, ev app.Event) error
	uploadFn   func(ctx context.Context, fileID string, r io.Reader) (int64, error)
	openFn     func(ctx context.Context, fileID string) (io.ReadCloser, error)
}

func (m *mockService) GetPhoto(ctx context.Context, opts domain.Options) (domain.Photo, error) {
	return m.getPhotoFn(ctx, opts)
}
func (m *mockService) CheckPermissions(ctx context.Context) (map[domain.PermissionAlias]domain.PermissionState, error) {
	return m.checkFn(ctx)
}
func (m *mockService) RequestPermissions(ctx context.Context, names []string) (map[domain.PermissionAlias]domain.PermissionState, error) {
	return m.requestFn(ctx, names)
}
func (m *mockService) Awaiting(callID string) (app.EventKind, error) {
	return m.awaitingFn(callID)
}
func (m *mockService) Deliver(callID string, ev app.Event) error { return m.deliverFn(callID, ev) }

// awaiting reports every call as suspended on kind.
func awaiting(kind app.EventKind) func(string) (app.EventKind, error) {
	return func(string) (app.EventKind, error) { return kind, nil }
}
func (m *mockService) UploadCapture(ctx context.Context, fileID string, r io.Reader) (int64, error) {
	return m.uploadFn(ctx, fileID, r)
}
func (m *mockService) OpenResult(ctx context.Context, fileID string) (io.ReadCloser, error) {
	return m.openFn(ctx, fileID)
}

func serve(t *testing.T, h *httpx.Handler, method, path string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	rr := httptest.NewRecorder()
	h.Router().ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) (string, string) {
	t.Helper()
	var body struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body), "body=%s", rr.Body.String())
	return body.Error, body.Code
}

func TestGetPhotoPassesOptions(t *testing.T) {
	var got domain.Options
	m := &mockService{getPhotoFn: func(_ context.Context, opts domain.Options) (domain.Photo, error) {
		got = opts
		return domain.Photo{Base64String: "AAAA", Format: domain.FormatJPEG}, nil
	}}
	rr := serve(t, httpx.New(m, 0, nil), http.MethodPost, "/api/camera/getPhoto",
		strings.NewReader(`{"resultType":"BASE64","source":"CAMERA","width":640,"saveToGallery":false,"quality":80}`))

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	require.NotNil(t, got.Source)
	assert.Equal(t, "CAMERA", *got.Source)
	require.NotNil(t, got.Width)
	assert.Equal(t, 640, *got.Width)
	require.NotNil(t, got.SaveToGallery)
	assert.False(t, *got.SaveToGallery)
	assert.Nil(t, got.Height)

	var photo domain.Photo
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &photo))
	assert.Equal(t, "AAAA", photo.Base64String)
	assert.Equal(t, "jpeg", photo.Format)
}

func TestGetPhotoEmptyBodyUsesDefaults(t *testing.T) {
	called := false
	m := &mockService{getPhotoFn: func(_ context.Context, opts domain.Options) (domain.Photo, error) {
		called = true
		assert.Equal(t, domain.Options{}, opts)
		return domain.Photo{Path: "/data/x.jpg", WebPath: "/files/x", Format: domain.FormatJPEG}, nil
	}}
	rr := serve(t, httpx.New(m, 0, nil), http.MethodPost, "/api/camera/getPhoto", http.NoBody)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, called)
	assert.Contains(t, rr.Body.String(), `"webPath":"/files/x"`)
}

func TestGetPhotoMalformedBody(t *testing.T) {
	m := &mockService{getPhotoFn: func(context.Context, domain.Options) (domain.Photo, error) {
		t.Fatal("service must not be called")
		return domain.Photo{}, nil
	}}
	rr := serve(t, httpx.New(m, 0, nil), http.MethodPost, "/api/camera/getPhoto", strings.NewReader(`{"width":`))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	_, code := decodeError(t, rr)
	assert.Equal(t, httpx.CodeBadRequest, code)
}

func TestGetPhotoOversizedBody(t *testing.T) {
	m := &mockService{}
	big := `{"source":"` + strings.Repeat("x", 70<<10) + `"}`
	rr := serve(t, httpx.New(m, 0, nil), http.MethodPost, "/api/camera/getPhoto", strings.NewReader(big))
	require.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	_, code := decodeError(t, rr)
	assert.Equal(t, httpx.CodeSizeExceeded, code)
}

func TestGetPhotoErrorCodes(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
		msg    string
	}{
		{domain.ErrPermissionDenied, http.StatusForbidden, httpx.CodePermissionDenied, "Permission denied"},
		{domain.ErrUserCancelled, http.StatusConflict, httpx.CodeUserCancelled, "User cancelled"},
		{domain.ErrNoFileFound, http.StatusUnprocessableEntity, httpx.CodeNoFileFound, "No file found"},
		{domain.ErrDecode, http.StatusUnprocessableEntity, httpx.CodeDecodeError, "Unable to process bitmap"},
		{domain.ErrFileSave, http.StatusInternalServerError, httpx.CodeFileSaveError, "Image file save error"},
		{domain.ErrInvalidOption, http.StatusBadRequest, httpx.CodeInvalidOption, "invalid option"},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			m := &mockService{getPhotoFn: func(context.Context, domain.Options) (domain.Photo, error) {
				return domain.Photo{}, tc.err
			}}
			rr := serve(t, httpx.New(m, 0, nil), http.MethodPost, "/api/camera/getPhoto", http.NoBody)
			require.Equal(t, tc.status, rr.Code)
			msg, code := decodeError(t, rr)
			assert.Equal(t, tc.code, code)
			assert.Equal(t, tc.msg, msg)
		})
	}
}

func TestGetPhotoWrongMethod(t *testing.T) {
	rr := serve(t, httpx.New(&mockService{}, 0, nil), http.MethodGet, "/api/camera/getPhoto", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestPermissionsRoutes(t *testing.T) {
	var requested []string
	m := &mockService{
		checkFn: func(context.Context) (map[domain.PermissionAlias]domain.PermissionState, error) {
			return map[domain.PermissionAlias]domain.PermissionState{
				domain.PermissionCamera:      domain.PermissionGranted,
				domain.PermissionPhotos:      domain.PermissionLimited,
				domain.PermissionSaveGallery: domain.PermissionPrompt,
			}, nil
		},
		requestFn: func(_ context.Context, names []string) (map[domain.PermissionAlias]domain.PermissionState, error) {
			requested = names
			return map[domain.PermissionAlias]domain.PermissionState{domain.PermissionCamera: domain.PermissionDenied}, nil
		},
	}
	h := httpx.New(m, 0, nil)

	rr := serve(t, h, http.MethodGet, "/api/camera/permissions", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var states map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &states))
	assert.Equal(t, map[string]string{"camera": "granted", "photos": "limited", "saveGallery": "prompt"}, states)

	rr = serve(t, h, http.MethodPost, "/api/camera/permissions", strings.NewReader(`{"permissions":["camera"]}`))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []string{"camera"}, requested)
	assert.Contains(t, rr.Body.String(), `"camera":"denied"`)
}

func TestRequestPermissionsInvalidAlias(t *testing.T) {
	m := &mockService{requestFn: func(_ context.Context, names []string) (map[domain.PermissionAlias]domain.PermissionState, error) {
		_, err := domain.ParsePermissionAlias(names[0])
		return nil, err
	}}
	rr := serve(t, httpx.New(m, 0, nil), http.MethodPost, "/api/camera/permissions", strings.NewReader(`{"permissions":["microphone"]}`))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	_, code := decodeError(t, rr)
	assert.Equal(t, httpx.CodeInvalidOption, code)
}

func TestHostCallbacksDeliverEvents(t *testing.T) {
	cases := []struct {
		name string
		path string
		body string
		want app.Event
	}{
		{
			name: "permissions",
			path: "/api/host/calls/call-1/permissions",
			body: `{"states":{"camera":"granted","saveGallery":"denied"}}`,
			want: app.Event{Kind: app.EventPermissions, States: map[domain.PermissionAlias]domain.PermissionState{
				domain.PermissionCamera:      domain.PermissionGranted,
				domain.PermissionSaveGallery: domain.PermissionDenied,
			}},
		},
		{
			name: "source chosen",
			path: "/api/host/calls/call-1/source",
			body: `{"source":"PHOTOS"}`,
			want: app.Event{Kind: app.EventSource, Source: domain.SourcePhotos},
		},
		{
			name: "source cancelled",
			path: "/api/host/calls/call-1/source",
			body: `{"cancelled":true}`,
			want: app.Event{Kind: app.EventSource, Cancelled: true},
		},
		{
			name: "capture done",
			path: "/api/host/calls/call-1/capture",
			body: `{"cancelled":false}`,
			want: app.Event{Kind: app.EventCapture},
		},
		{
			name: "pick",
			path: "/api/host/calls/call-1/pick",
			body: `{"uri":"file:///sdcard/DCIM/a.jpg"}`,
			want: app.Event{Kind: app.EventPick, URI: "file:///sdcard/DCIM/a.jpg"},
		},
		{
			name: "pick nothing",
			path: "/api/host/calls/call-1/pick",
			body: `{}`,
			want: app.Event{Kind: app.EventPick},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var gotID string
			var got app.Event
			m := &mockService{
				awaitingFn: awaiting(tc.want.Kind),
				deliverFn: func(id string, ev app.Event) error {
					gotID, got = id, ev
					return nil
				},
			}
			rr := serve(t, httpx.New(m, 0, nil), http.MethodPost, tc.path, strings.NewReader(tc.body))
			require.Equal(t, http.StatusNoContent, rr.Code, rr.Body.String())
			assert.Equal(t, "call-1", gotID)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestHostCallbackRejectsBadValues(t *testing.T) {
	for _, tc := range []struct {
		path, body string
		kind       app.EventKind
	}{
		{"/api/host/calls/c/permissions", `{"states":{"camera":"maybe"}}`, app.EventPermissions},
		{"/api/host/calls/c/permissions", `{"states":{"location":"granted"}}`, app.EventPermissions},
		{"/api/host/calls/c/source", `{"source":"SCANNER"}`, app.EventSource},
		{"/api/host/calls/c/source", `{"source":"PROMPT"}`, app.EventSource},
		{"/api/host/calls/c/source", `{}`, app.EventSource},
	} {
		m := &mockService{
			awaitingFn: awaiting(tc.kind),
			deliverFn: func(string, app.Event) error {
				t.Fatal("deliver must not be called")
				return nil
			},
		}
		rr := serve(t, httpx.New(m, 0, nil), http.MethodPost, tc.path, strings.NewReader(tc.body))
		require.Equal(t, http.StatusBadRequest, rr.Code, tc.body)
		_, code := decodeError(t, rr)
		assert.Equal(t, httpx.CodeInvalidOption, code)
	}
}

func TestHostCallbackDeliveryErrors(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{domain.ErrUnknownCall, http.StatusNotFound, httpx.CodeUnknownCall},
		{domain.ErrUnexpectedEvent, http.StatusConflict, httpx.CodeUnexpectedEvent},
		{domain.ErrInvalidID, http.StatusBadRequest, httpx.CodeInvalidID},
	}
	for _, tc := range cases {
		m := &mockService{
			awaitingFn: awaiting(app.EventCapture),
			deliverFn:  func(string, app.Event) error { return tc.err },
		}
		rr := serve(t, httpx.New(m, 0, nil), http.MethodPost, "/api/host/calls/x/capture", strings.NewReader(`{}`))
		require.Equal(t, tc.status, rr.Code)
		_, code := decodeError(t, rr)
		assert.Equal(t, tc.code, code)
	}
}

func TestHostCallbackCheckedBeforeBody(t *testing.T) {
	cases := []struct {
		name     string
		awaiting func(string) (app.EventKind, error)
		status   int
		code     string
	}{
		{"unknown call", func(string) (app.EventKind, error) { return app.EventNone, domain.ErrUnknownCall }, http.StatusNotFound, httpx.CodeUnknownCall},
		{"invalid id", func(string) (app.EventKind, error) { return app.EventNone, domain.ErrInvalidID }, http.StatusBadRequest, httpx.CodeInvalidID},
		{"waiting on camera", awaiting(app.EventCapture), http.StatusConflict, httpx.CodeUnexpectedEvent},
		{"not suspended", awaiting(app.EventNone), http.StatusConflict, httpx.CodeUnexpectedEvent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var gotID string
			m := &mockService{
				awaitingFn: func(id string) (app.EventKind, error) {
					gotID = id
					return tc.awaiting(id)
				},
				deliverFn: func(string, app.Event) error {
					t.Fatal("deliver must not be called")
					return nil
				},
			}
			// The body is malformed on purpose: the call check answers first.
			rr := serve(t, httpx.New(m, 0, nil), http.MethodPost, "/api/host/calls/call-9/pick", strings.NewReader(`{`))
			require.Equal(t, tc.status, rr.Code, rr.Body.String())
			_, code := decodeError(t, rr)
			assert.Equal(t, tc.code, code)
			assert.Equal(t, "call-9", gotID)
		})
	}
}

func TestUploadCapture(t *testing.T) {
	var gotID string
	var gotBody []byte
	m := &mockService{uploadFn: func(_ context.Context, id string, r io.Reader) (int64, error) {
		gotID = id
		b, err := io.ReadAll(r)
		gotBody = b
		return int64(len(b)), err
	}}
	rr := serve(t, httpx.New(m, 1024, nil), http.MethodPut, "/api/host/captures/file-9", bytes.NewReader([]byte("jpegbytes")))
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "file-9", gotID)
	assert.Equal(t, "jpegbytes", string(gotBody))
	assert.JSONEq(t, `{"file_id":"file-9","bytes":9}`, rr.Body.String())
}

func TestUploadCaptureTooLarge(t *testing.T) {
	m := &mockService{uploadFn: func(context.Context, string, io.Reader) (int64, error) {
		t.Fatal("upload must not reach the service")
		return 0, nil
	}}
	rr := serve(t, httpx.New(m, 4, nil), http.MethodPut, "/api/host/captures/f", bytes.NewReader([]byte("too many bytes")))
	require.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
	_, code := decodeError(t, rr)
	assert.Equal(t, httpx.CodeSizeExceeded, code)
}

func TestUploadCaptureStoreLimit(t *testing.T) {
	m := &mockService{uploadFn: func(context.Context, string, io.Reader) (int64, error) {
		return 0, domain.ErrTooLarge
	}}
	req := httptest.NewRequest(http.MethodPut, "/api/host/captures/f", strings.NewReader("chunked"))
	req.ContentLength = -1
	req.Header.Del("Content-Length")
	rr := httptest.NewRecorder()
	httpx.New(m, 4, nil).Router().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}

func TestServeFile(t *testing.T) {
	m := &mockService{openFn: func(_ context.Context, id string) (io.ReadCloser, error) {
		if id != "result-1" {
			return nil, domain.ErrNotFound
		}
		return io.NopCloser(strings.NewReader("\xff\xd8jpeg")), nil
	}}
	h := httpx.New(m, 0, nil)

	rr := serve(t, h, http.MethodGet, "/files/result-1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "image/jpeg", rr.Header().Get("Content-Type"))
	assert.Equal(t, "\xff\xd8jpeg", rr.Body.String())

	rr = serve(t, h, http.MethodGet, "/files/other", nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
	_, code := decodeError(t, rr)
	assert.Equal(t, httpx.CodeNotFound, code)
}

func TestRouterCorrelationAndHeaders(t *testing.T) {
	h := httpx.New(&mockService{}, 0, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(httpx.CorrelationIDHeader, "trace-42")
	rr := httptest.NewRecorder()
	h.Router().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "trace-42", rr.Header().Get(httpx.CorrelationIDHeader))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))
}

func TestRouterReadinessAndMetrics(t *testing.T) {
	h := httpx.New(&mockService{}, 0, func(context.Context) error { return errors.New("db down") })
	rr := serve(t, h, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	rr = serve(t, h, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	h.Metrics = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"counters":{}}`))
	})
	rr = serve(t, h, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, `{"counters":{}}`, rr.Body.String())
}
