// Command server runs the sagsfiler case file API.
//
// Metadata lives in PostgreSQL or SQLite, content on local disk or S3.
// Prometheus metrics are served on a separate listener.
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wouterc/sagsfiler/internal/api"
	"github.com/wouterc/sagsfiler/internal/auth"
	"github.com/wouterc/sagsfiler/internal/config"
	"github.com/wouterc/sagsfiler/internal/events"
	"github.com/wouterc/sagsfiler/internal/logging"
	"github.com/wouterc/sagsfiler/internal/metadata"
	"github.com/wouterc/sagsfiler/internal/metrics"
	"github.com/wouterc/sagsfiler/internal/storage"
)

const dbStatsInterval = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuration error:", err)
		os.Exit(2)
	}
	if err := logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat}); err != nil {
		fmt.Fprintln(os.Stderr, "logging:", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, cfg)
	stop()
	if err != nil {
		logging.Error("server exited", zap.Error(err))
		_ = logging.Sync()
		os.Exit(1)
	}
	logging.Info("server stopped")
	_ = logging.Sync()
}

func run(ctx context.Context, cfg *config.Config) error {
	logging.Info("starting sagsfiler",
		zap.String("listen", cfg.ListenAddr),
		zap.String("metrics", cfg.MetricsAddr),
		zap.String("database", cfg.DatabaseDriver),
		zap.String("storage", cfg.StorageBackend))

	store, err := metadata.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open metadata: %w", err)
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	backend, err := storage.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer backend.Close()

	authn := auth.New(cfg.JWTSecret)
	if !authn.Enabled() {
		logging.Warn("JWT_SECRET is empty, authentication disabled")
	}
	srv := api.NewServer(store, backend, authn, events.NewBroadcaster(), cfg)

	apiServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// Event streams end with the process.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	if cfg.TLSCertFile != "" {
		apiServer.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS13}
	}
	metricsServer := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           metrics.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return serve(metricsServer, "", "")
	})
	g.Go(func() error {
		return serve(apiServer, cfg.TLSCertFile, cfg.TLSKeyFile)
	})
	g.Go(func() error {
		t := time.NewTicker(dbStatsInterval)
		defer t.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-t.C:
				store.UpdateConnectionMetrics()
			}
		}
	})
	g.Go(func() error {
		<-gctx.Done()
		logging.Info("shutting down", zap.Duration("timeout", cfg.ShutdownTimeout))
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := apiServer.Shutdown(sctx); err != nil {
			apiServer.Close()
		}
		return metricsServer.Shutdown(sctx)
	})
	return g.Wait()
}

// serve runs s until it is shut down, over TLS when cert is set.
func serve(s *http.Server, cert, key string) error {
	var err error
	if cert != "" {
		logging.Info("listening", zap.String("addr", s.Addr), zap.String("tls", "1.3"))
		err = s.ListenAndServeTLS(cert, key)
	} else {
		logging.Info("listening", zap.String("addr", s.Addr))
		err = s.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
