// Package server provides functionalities to start and manage the server.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"objserve/internal/assets"
	"objserve/internal/metrics"
	"objserve/pkg/byterange"
	"objserve/pkg/object"
	"objserve/pkg/r2"
	"objserve/pkg/sqlite"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

// OpenBackend initializes the object backend named by cfg.Driver.
func OpenBackend(ctx context.Context, cfg BackendConfig) (object.ObjectStorage, error) {
	var backend object.ObjectStorage
	var param any
	switch cfg.Driver {
	case "r2":
		backend, param = &r2.Storage{}, cfg.R2
	case "sqlite", "libsql":
		backend, param = &sqlite.Storage{}, sqlite.Config{
			Source:         cfg.Source,
			Driver:         cfg.Driver,
			AllowOverwrite: true,
		}
	default:
		return nil, fmt.Errorf("unknown backend driver: %s", cfg.Driver)
	}

	if err := backend.Init(ctx, param); err != nil {
		return nil, err
	}
	return backend, nil
}

// Routes returns the object handler wrapped in the request middleware. It
// is mounted at the root without a ServeMux so that paths reach the key
// normalizer exactly as the client sent them.
func Routes(store assets.Store, resolver byterange.Resolver, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	handler := assets.NewHandler(store, assets.Config{
		Resolver: resolver,
		Metrics:  m,
		Logger:   logger,
	})
	return chain(handler, recoverPanics(logger), accessLog(logger, m))
}

// OpsRoutes serves health and metrics endpoints.
func OpsRoutes(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("pong"))
	})
	handle(mux, "GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return mux
}

// Serve runs the object and operational listeners until ctx is cancelled.
func Serve(ctx context.Context, cfg Config, logger *slog.Logger) error {
	resolver, err := cfg.Resolver()
	if err != nil {
		return err
	}

	backend, err := OpenBackend(ctx, cfg.Backend)
	if err != nil {
		return err
	}
	defer backend.Close(context.Background())
	logger.Info("object backend ready", "driver", cfg.Backend.Driver,
		"range_policy", resolver.Policy().String(), "max_range_length", resolver.MaxLength())

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.MustNewMetrics(reg)

	servers := []*http.Server{{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: Routes(backend, resolver, m, logger),
	}}
	if cfg.MetricsPort > 0 {
		servers = append(servers, &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.MetricsPort),
			Handler: OpsRoutes(reg),
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error {
			logger.Info("starting listener", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("listen %s: %w", srv.Addr, err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down", "timeout", cfg.ShutdownTimeout.String())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		var errs []error
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
	return g.Wait()
}
