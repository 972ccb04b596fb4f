// Package main provides the snap binary entry point. It loads configuration
// from the environment, opens the SQLite ledger and blob directories, wires the
// camera service to the host shell callback client and serves the HTTP API
// until interrupted.
//
// The application flow:
//  1. Load and validate configuration.
//  2. Create the data, blob and gallery directories.
//  3. Open SQLite; initialise the ledger and metrics schemas.
//  4. Build the store, resolver, normalizer, host client and service.
//  5. Start the janitor and metrics flusher, then the HTTP server.
//
// On SIGINT/SIGTERM the server drains, the background workers stop and the
// final metrics are flushed.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/haukened/snap/internal/app"
	"github.com/haukened/snap/internal/config"
	"github.com/haukened/snap/internal/host"
	"github.com/haukened/snap/internal/httpx"
	"github.com/haukened/snap/internal/janitor"
	"github.com/haukened/snap/internal/metrics"
	"github.com/haukened/snap/internal/normalize"
	"github.com/haukened/snap/internal/resolver"
	"github.com/haukened/snap/internal/store"
	"github.com/haukened/snap/internal/store/filesystem"
	"github.com/haukened/snap/internal/store/sqlite"
)

// realClock implements app.Clock using time.Now.
type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

// filesPrefix is the route URI results are served under.
const filesPrefix = "/files/"

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// ensureDirs creates the data directory and its blob and gallery children.
func ensureDirs(cfg *config.Config) error {
	if st, err := os.Stat(cfg.DataDir); err == nil && !st.IsDir() {
		return fmt.Errorf("data path %s is not a directory", cfg.DataDir)
	}
	for _, dir := range []string{cfg.DataDir, cfg.BlobDir(), cfg.GalleryDir()} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, *sqlite.Index, error) {
	db, err := sql.Open("sqlite3", cfg.SQLiteDSN())
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite driver: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping sqlite: %w", err)
	}
	idx, err := sqlite.New(db)
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("init ledger schema: %w", err)
	}
	return db, idx, nil
}

// components holds everything run starts and stops.
type components struct {
	service *app.Service
	store   *store.Store
	metrics *metrics.Manager
	janitor *janitor.Janitor
	handler http.Handler
}

func build(ctx context.Context, cfg *config.Config, db *sql.DB, idx store.Index, logger *slog.Logger) (*components, error) {
	blobs, err := filesystem.New(cfg.BlobDir())
	if err != nil {
		return nil, fmt.Errorf("init blob storage: %w", err)
	}
	gallery, err := filesystem.NewGallery(cfg.GalleryDir(), time.Now)
	if err != nil {
		return nil, fmt.Errorf("init gallery: %w", err)
	}
	clock := realClock{}
	st := store.New(idx, blobs, clock, store.Limits{
		CaptureTTL: cfg.CaptureTTL,
		ResultTTL:  cfg.ResultTTL,
		MaxBytes:   cfg.MaxUploadBytes,
	})

	hc := &http.Client{Timeout: cfg.HostTimeout}
	res, err := resolver.New(st, cfg.FileRoots, hc, cfg.MaxUploadBytes)
	if err != nil {
		return nil, fmt.Errorf("init resolver: %w", err)
	}

	mgr := metrics.New(db, metrics.Config{FlushInterval: cfg.MetricsFlush, Logger: logger})
	if err := mgr.InitSchema(ctx); err != nil {
		return nil, fmt.Errorf("init metrics schema: %w", err)
	}

	norm := normalize.New(res, logger)
	norm.MaxPixels = cfg.MaxPixels

	svc := &app.Service{
		Host:       host.New(cfg.HostURL, cfg.PublicURL, hc, logger),
		Store:      st,
		Resolver:   res,
		Normalizer: norm,
		Gallery:    gallery,
		Metrics:    mgr,
		Logger:     logger,
		WebPrefix:  filesPrefix,
	}

	jan := janitor.New(st, janitor.Config{
		Interval: cfg.JanitorInterval,
		Logger:   logger,
		Metrics:  mgr,
	})

	readiness := func(ctx context.Context) error {
		if err := db.PingContext(ctx); err != nil {
			return err
		}
		_, err := os.ReadDir(cfg.BlobDir())
		return err
	}
	h := httpx.New(svc, cfg.MaxUploadBytes, readiness)
	h.Logger = logger
	h.Metrics = metrics.Handler(mgr, cfg.MetricsToken)

	return &components{service: svc, store: st, metrics: mgr, janitor: jan, handler: h.Router()}, nil
}

// newServer has no write timeout: getPhoto responds only once the user has
// finished with the camera or picker.
func newServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := ensureDirs(cfg); err != nil {
		return err
	}
	db, idx, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	c, err := build(ctx, cfg, db, idx, logger)
	if err != nil {
		return err
	}
	c.metrics.Start(ctx)
	c.janitor.Start(ctx)
	defer func() {
		c.janitor.Stop()
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c.metrics.Stop(stopCtx)
	}()

	srv := newServer(cfg, c.handler)
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", cfg.Addr, "pid", os.Getpid(), "host", cfg.HostURL)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down", "pending_calls", c.service.Pending())
	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		// Calls still waiting on the user are cut off.
		_ = srv.Close()
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx); err != nil {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
}
