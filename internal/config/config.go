// Package config loads the snap service configuration.
// Defaults come from DefaultAppConfig, are overlaid by SNAP_* environment
// variables, and the merged result is validated before use.
package config

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "SNAP_"

// Config holds the merged runtime configuration.
type Config struct {
	Addr            string        `koanf:"addr" validate:"required,ip_port"`
	DataDir         string        `koanf:"data_dir" validate:"required,data_dir"`
	PublicURL       string        `koanf:"public_url" validate:"required,http_url"`
	HostURL         string        `koanf:"host_url" validate:"required,http_url"`
	HostTimeout     time.Duration `koanf:"host_timeout" validate:"gt=0"`
	MaxUploadBytes  int64         `koanf:"max_upload_bytes" validate:"gt=0"`
	MaxPixels       int64         `koanf:"max_pixels" validate:"gt=0"`
	CaptureTTL      time.Duration `koanf:"capture_ttl" validate:"gt=0"`
	ResultTTL       time.Duration `koanf:"result_ttl" validate:"gt=0"`
	JanitorInterval time.Duration `koanf:"janitor_interval" validate:"gt=0"`
	MetricsFlush    time.Duration `koanf:"metrics_flush" validate:"gt=0"`
	MetricsToken    string        `koanf:"metrics_token"`
	FileRoots       []string      `koanf:"file_roots" validate:"dive,required"`
	LogLevel        string        `koanf:"log_level" validate:"oneof=debug info warn error"`
}

// DefaultAppConfig is the baseline every Load starts from.
var DefaultAppConfig = Config{
	Addr:            ":8080",
	DataDir:         "./data",
	PublicURL:       "http://127.0.0.1:8080",
	HostURL:         "http://127.0.0.1:8787",
	HostTimeout:     10 * time.Second,
	MaxUploadBytes:  32 << 20, // 32 MiB
	MaxPixels:       100_000_000,
	CaptureTTL:      30 * time.Minute,
	ResultTTL:       24 * time.Hour,
	JanitorInterval: time.Minute,
	MetricsFlush:    30 * time.Second,
	LogLevel:        "info",
}

// SQLiteDSN returns the DSN for the ledger and metrics database inside DataDir.
func (c *Config) SQLiteDSN() string {
	path := filepath.Join(c.DataDir, "snap.db")
	return "file:" + path + "?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000&_synchronous=FULL"
}

// BlobDir is where capture targets and results are stored.
func (c *Config) BlobDir() string { return filepath.Join(c.DataDir, "blobs") }

// GalleryDir is where saveToGallery copies land.
func (c *Config) GalleryDir() string { return filepath.Join(c.DataDir, "gallery") }

var defaultLoader = func(k *koanf.Koanf) error {
	return k.Load(structs.Provider(DefaultAppConfig, "koanf"), nil)
}

var envLoader = func(k *koanf.Koanf) error {
	return k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			return strings.ToLower(strings.TrimPrefix(key, envPrefix)), value
		},
	}), nil)
}

var registerValidators = func(v *validator.Validate) error {
	if err := v.RegisterValidation("ip_port", validIPPort); err != nil {
		return err
	}
	return v.RegisterValidation("data_dir", validDataDir)
}

// Load builds a Config from defaults and the environment.
func Load() (*Config, error) {
	k := koanf.New(".")
	if err := defaultLoader(k); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}
	if err := envLoader(k); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	var cfg Config
	err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				StringToByteSizeHookFunc(),
				mapstructure.StringToTimeDurationHookFunc(),
				StringToRootsHookFunc(","),
			),
			Result:           &cfg,
			WeaklyTypedInput: true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	v := validator.New()
	if err := registerValidators(v); err != nil {
		return nil, fmt.Errorf("register validators: %w", err)
	}
	if err := v.Struct(&cfg); err != nil {
		return nil, err
	}
	if cfg.JanitorInterval >= cfg.CaptureTTL {
		return nil, errors.New("janitor_interval must be less than capture_ttl")
	}
	return &cfg, nil
}

// validIPPort accepts "[ip]:port" or ":port". Hostnames are rejected so the
// listener never depends on name resolution.
func validIPPort(fl validator.FieldLevel) bool {
	host, port, err := net.SplitHostPort(fl.Field().String())
	if err != nil {
		return false
	}
	if host != "" && net.ParseIP(host) == nil {
		return false
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		return false
	}
	return n > 0 && n <= 65535
}

// validDataDir rejects the filesystem root, the working directory itself and
// any path that climbs with "..".
func validDataDir(fl validator.FieldLevel) bool {
	p := fl.Field().String()
	if p == "" {
		return false
	}
	for _, seg := range strings.Split(filepath.ToSlash(p), "/") {
		if seg == ".." {
			return false
		}
	}
	clean := filepath.Clean(p)
	return clean != "." && clean != string(filepath.Separator)
}
