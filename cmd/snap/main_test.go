package main

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/haukened/snap/internal/config"
	"github.com/haukened/snap/internal/host"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultAppConfig
	cfg.DataDir = filepath.Join(t.TempDir(), "data")
	return &cfg
}

// TestEnsureDirs verifies data, blob and gallery directory creation.
func TestEnsureDirs(t *testing.T) {
	cfg := testConfig(t)
	if err := ensureDirs(cfg); err != nil {
		t.Fatalf("ensureDirs error: %v", err)
	}
	for _, dir := range []string{cfg.DataDir, cfg.BlobDir(), cfg.GalleryDir()} {
		st, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("stat %s: %v", dir, err)
		}
		if !st.IsDir() {
			t.Fatalf("%s is not a directory", dir)
		}
	}
	// idempotent
	if err := ensureDirs(cfg); err != nil {
		t.Fatalf("second ensureDirs: %v", err)
	}
}

// Failure path: data path exists as a file.
func TestEnsureDirs_FilePathError(t *testing.T) {
	cfg := testConfig(t)
	if err := os.WriteFile(cfg.DataDir, []byte("x"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if err := ensureDirs(cfg); err == nil {
		t.Fatalf("expected error for file path")
	}
}

func TestNewServer(t *testing.T) {
	cfg := &config.Config{Addr: ":9999"}
	srv := newServer(cfg, http.NewServeMux())
	if srv.Addr != ":9999" {
		t.Fatalf("addr mismatch got %s", srv.Addr)
	}
	if srv.ReadHeaderTimeout == 0 {
		t.Fatalf("expected header timeout")
	}
	if srv.WriteTimeout != 0 {
		t.Fatalf("getPhoto waits on the user; write timeout must be unset")
	}
}

func TestNewLogger(t *testing.T) {
	ctx := context.Background()
	if !newLogger("debug").Enabled(ctx, slog.LevelDebug) {
		t.Fatalf("debug level not enabled")
	}
	if newLogger("warn").Enabled(ctx, slog.LevelInfo) {
		t.Fatalf("info enabled at warn level")
	}
	if !newLogger("bogus").Enabled(ctx, slog.LevelInfo) {
		t.Fatalf("unknown level should fall back to info")
	}
}

// fakeShell plays the native host: every permission is granted and the
// camera answers a capture intent by uploading a photo and reporting success.
func fakeShell(t *testing.T, photo []byte, snapURL func() string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /permissions", func(w http.ResponseWriter, r *http.Request) {
		var q struct {
			Permissions []string `json:"permissions"`
		}
		_ = json.NewDecoder(r.Body).Decode(&q)
		states := map[string]string{}
		for _, p := range q.Permissions {
			states[p] = "granted"
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"states": states})
	})
	mux.HandleFunc("POST /intents", func(w http.ResponseWriter, r *http.Request) {
		var in host.Intent
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if in.Intent != host.IntentCapture || in.Target == nil {
			http.Error(w, "unexpected intent "+in.Intent, http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusAccepted)
		go func() {
			req, _ := http.NewRequest(http.MethodPut, in.Target.UploadURL, bytes.NewReader(photo))
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Errorf("upload: %v", err)
				return
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Errorf("upload status %d", resp.StatusCode)
				return
			}
			resp, err = http.Post(snapURL()+"/api/host/calls/"+in.CallID+"/capture", "application/json", strings.NewReader(`{"cancelled":false}`))
			if err != nil {
				t.Errorf("capture callback: %v", err)
				return
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusNoContent {
				t.Errorf("capture callback status %d", resp.StatusCode)
			}
		}()
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

// TestCameraRoundTrip drives a getPhoto call through the fully wired service:
// host permissions, capture upload, callback, URI result and the files route.
func TestCameraRoundTrip(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	var snap *httptest.Server
	shell := fakeShell(t, testJPEG(t, 200, 100), func() string { return snap.URL })

	var handler http.Handler
	snap = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(snap.Close)

	cfg.HostURL = shell.URL
	cfg.PublicURL = snap.URL
	if err := ensureDirs(cfg); err != nil {
		t.Fatalf("ensureDirs: %v", err)
	}
	db, idx, err := openDatabase(ctx, cfg)
	if err != nil {
		t.Fatalf("openDatabase: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	c, err := build(ctx, cfg, db, idx, slog.Default())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	handler = c.handler

	resp, err := http.Post(snap.URL+"/api/camera/getPhoto", "application/json",
		strings.NewReader(`{"source":"CAMERA","resultType":"URI","width":100}`))
	if err != nil {
		t.Fatalf("getPhoto: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("getPhoto status %d", resp.StatusCode)
	}
	var photo struct {
		Path    string `json:"path"`
		WebPath string `json:"webPath"`
		Format  string `json:"format"`
		Saved   bool   `json:"saved"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&photo); err != nil {
		t.Fatalf("decode photo: %v", err)
	}
	if photo.Format != "jpeg" || !photo.Saved {
		t.Fatalf("unexpected photo %+v", photo)
	}
	if !strings.HasPrefix(photo.WebPath, filesPrefix) {
		t.Fatalf("webPath %q", photo.WebPath)
	}

	fileResp, err := http.Get(snap.URL + photo.WebPath)
	if err != nil {
		t.Fatalf("get file: %v", err)
	}
	defer fileResp.Body.Close()
	if ct := fileResp.Header.Get("Content-Type"); ct != "image/jpeg" {
		t.Fatalf("content type %q", ct)
	}
	cfgImg, err := jpeg.DecodeConfig(fileResp.Body)
	if err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if cfgImg.Width != 100 || cfgImg.Height != 50 {
		t.Fatalf("expected 100x50, got %dx%d", cfgImg.Width, cfgImg.Height)
	}

	saved, err := os.ReadDir(cfg.GalleryDir())
	if err != nil {
		t.Fatalf("read gallery: %v", err)
	}
	if len(saved) != 1 {
		t.Fatalf("expected one gallery file, got %d", len(saved))
	}
	if c.service.Pending() != 0 {
		t.Fatalf("call left pending")
	}
}

func TestMetricsRouteRequiresToken(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.MetricsToken = "s3cret"
	if err := ensureDirs(cfg); err != nil {
		t.Fatalf("ensureDirs: %v", err)
	}
	db, idx, err := openDatabase(ctx, cfg)
	if err != nil {
		t.Fatalf("openDatabase: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	c, err := build(ctx, cfg, db, idx, slog.Default())
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	rr := httptest.NewRecorder()
	c.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rr = httptest.NewRecorder()
	c.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	c.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("readyz %d", rr.Code)
	}
}
