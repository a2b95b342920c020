package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/xpmeter/internal/adapters/catalog"
	"github.com/okian/xpmeter/internal/adapters/http/api"
	"github.com/okian/xpmeter/internal/adapters/http/swagger"
	"github.com/okian/xpmeter/internal/adapters/influx"
	service "github.com/okian/xpmeter/internal/app"
	"github.com/okian/xpmeter/internal/config"
	"github.com/okian/xpmeter/pkg/logger"
	"github.com/okian/xpmeter/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP ingestion service",
		Long: `Run the HTTP ingestion service.

Configuration is layered: defaults, then the YAML file named by
XPMETER_CONFIG, then XPMETER_* environment variables.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx)
		},
	}
}

func serve(ctx context.Context) error {
	log := logger.Get()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	svc, err := newService(cfg)
	if err != nil {
		return err
	}
	// workers outlive the signal so Stop can drain the queue
	if err := svc.Start(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("failed to start service: %w", err)
	}

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, svc)

	srv := newHTTPServer(ctx, cfg, svc)
	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
		log.Error(ctx, "HTTP server failed", logger.Error(serveErr))
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	if err := svc.Stop(shutdownCtx); err != nil {
		log.Error(ctx, "service shutdown failed", logger.Error(err))
	}

	log.Info(ctx, "server stopped")
	return serveErr
}

// newService wires the item lookup and sink described by cfg into a service.
func newService(cfg *config.Config) (*service.Service, error) {
	valuer, err := newValuer(cfg)
	if err != nil {
		return nil, err
	}
	opts := []service.Option{
		service.WithLogger(logger.Get().Named("service")),
		service.WithWorkerCount(cfg.WorkerCount),
		service.WithQueueSize(cfg.QueueSize),
		service.WithDedupeSize(cfg.DedupeSize),
		service.WithShardCount(cfg.ShardCount),
		service.WithItemLookup(valuer),
	}
	if cfg.InfluxURL != "" {
		w, err := newWriter(cfg)
		if err != nil {
			return nil, err
		}
		opts = append(opts, service.WithSink(w))
	}
	return service.New(opts...), nil
}

func newValuer(cfg *config.Config) (*catalog.Valuer, error) {
	var (
		c   *catalog.Catalog
		err error
	)
	if cfg.CatalogPath != "" {
		c, err = catalog.Load(cfg.CatalogPath)
	} else {
		c, err = catalog.Default()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load item catalog: %w", err)
	}

	opts := []catalog.ValuerOption{catalog.WithLogger(logger.Get().Named("catalog"))}
	if cfg.PriceURL != "" {
		src := catalog.NewHTTPPriceSource(cfg.PriceURL, cfg.PriceTimeout)
		opts = append(opts, catalog.WithPriceSource(catalog.NewCachedPrices(src, cfg.PriceCacheSize, cfg.PriceCacheTTL)))
	}
	return catalog.NewValuer(c, opts...), nil
}

func newWriter(cfg *config.Config) (*influx.Writer, error) {
	opts := []influx.Option{
		influx.WithBatchSize(cfg.BatchSize),
		influx.WithFlushInterval(cfg.FlushInterval),
		influx.WithTimeout(cfg.WriteTimeout),
		influx.WithMaxRetries(cfg.MaxRetries),
		influx.WithLogger(logger.Get().Named("influx")),
	}
	if cfg.InfluxBucket != "" {
		opts = append(opts, influx.WithV2(cfg.InfluxOrg, cfg.InfluxBucket, cfg.InfluxToken))
	} else {
		opts = append(opts, influx.WithV1(cfg.InfluxDatabase, cfg.InfluxUsername, cfg.InfluxPassword))
	}
	return influx.NewWriter(cfg.InfluxURL, opts...)
}

func newHTTPServer(ctx context.Context, cfg *config.Config, svc *service.Service) *http.Server {
	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(svc, cfg.MaxSeriesLimit).Register(ctx, mux)

	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

func startServiceMetricsUpdater(ctx context.Context, svc *service.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// GetStats refreshes the queue, series and worker gauges.
			_ = svc.GetStats()
		}
	}
}

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}
