// Package config loads server configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the sagsfiler server settings.
type Config struct {
	ListenAddr  string
	MetricsAddr string

	LogLevel  string
	LogFormat string

	// DatabaseDriver is "postgres" or "sqlite".
	DatabaseDriver string
	DatabaseURL    string

	// StorageBackend is "local" or "s3".
	StorageBackend   string
	LocalStoragePath string

	S3Endpoint  string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3Region    string
	S3UseSSL    bool

	// HTTPS is served when both are set.
	TLSCertFile string
	TLSKeyFile  string

	// An empty secret disables token checks.
	JWTSecret string

	MaxUploadSize int64
	MaxZipEntries int

	ShutdownTimeout time.Duration
}

// Load reads the environment. Unset variables take their defaults;
// malformed values are reported together in one error.
func Load() (*Config, error) {
	var e env
	cfg := &Config{
		ListenAddr:       e.str("LISTEN_ADDR", ":8080"),
		MetricsAddr:      e.str("METRICS_ADDR", ":9090"),
		LogLevel:         e.str("LOG_LEVEL", "info"),
		LogFormat:        e.str("LOG_FORMAT", "json"),
		DatabaseDriver:   e.oneOf("DATABASE_DRIVER", "postgres", "sqlite"),
		DatabaseURL:      e.required("DATABASE_URL"),
		StorageBackend:   e.oneOf("STORAGE_BACKEND", "local", "s3"),
		LocalStoragePath: e.str("LOCAL_STORAGE_PATH", "/data/storage"),
		S3Endpoint:       e.str("S3_ENDPOINT", "http://localhost:9000"),
		S3Bucket:         e.str("S3_BUCKET", "sagsfiler"),
		S3AccessKey:      e.str("S3_ACCESS_KEY", "minioadmin"),
		S3SecretKey:      e.str("S3_SECRET_KEY", "minioadmin"),
		S3Region:         e.str("S3_REGION", "us-east-1"),
		S3UseSSL:         parse(&e, "S3_USE_SSL", false, strconv.ParseBool),
		TLSCertFile:      e.str("TLS_CERT_FILE", ""),
		TLSKeyFile:       e.str("TLS_KEY_FILE", ""),
		JWTSecret:        e.str("JWT_SECRET", ""),
		MaxUploadSize:    parse(&e, "MAX_UPLOAD_SIZE", int64(100<<20), parseInt64),
		MaxZipEntries:    parse(&e, "MAX_ZIP_ENTRIES", 10000, strconv.Atoi),
		ShutdownTimeout:  parse(&e, "SHUTDOWN_TIMEOUT", 30*time.Second, time.ParseDuration),
	}
	if (cfg.TLSCertFile == "") != (cfg.TLSKeyFile == "") {
		e.fail(errors.New("TLS_CERT_FILE and TLS_KEY_FILE must be set together"))
	}
	if cfg.MaxZipEntries <= 0 {
		e.fail(fmt.Errorf("MAX_ZIP_ENTRIES must be positive, got %d", cfg.MaxZipEntries))
	}
	if err := errors.Join(e.errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

type env struct {
	errs []error
}

func (e *env) fail(err error) { e.errs = append(e.errs, err) }

func (e *env) str(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func (e *env) required(key string) string {
	v := e.str(key, "")
	if v == "" {
		e.fail(fmt.Errorf("%s is required", key))
	}
	return v
}

// oneOf returns the value of key, defaulting to the first allowed value.
func (e *env) oneOf(key string, allowed ...string) string {
	v := e.str(key, allowed[0])
	for _, a := range allowed {
		if v == a {
			return v
		}
	}
	e.fail(fmt.Errorf("unsupported %s %q", key, v))
	return v
}

func parse[T any](e *env, key string, fallback T, fn func(string) (T, error)) T {
	raw := e.str(key, "")
	if raw == "" {
		return fallback
	}
	v, err := fn(raw)
	if err != nil {
		e.fail(fmt.Errorf("%s: invalid value %q", key, raw))
		return fallback
	}
	return v
}

func parseInt64(s string) (int64, error) { return strconv.ParseInt(s, 10, 64) }
