package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"BasketLedger/internal/config"
	"BasketLedger/internal/core"
	"BasketLedger/internal/ingestion"
	"BasketLedger/internal/observability"
	"BasketLedger/internal/persistence"
	"BasketLedger/internal/projection"
	"BasketLedger/internal/query"
	"BasketLedger/internal/server"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Recover from the command log and serve commands and queries",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, closeLog, err := loadConfig()
		if err != nil {
			return err
		}
		defer closeLog()
		return serve(cmd.Context(), cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger := observability.NewLogger("basketd")
	logger.Info().Msg("basketd starting")

	// --- Postgres ---
	db, err := sql.Open("postgres", cfg.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("postgres open: %w", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres ping: %w", err)
	}
	if err := persistence.NewMigrator(db, cfg.Migrations.Dir).Up(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	logger.Info().Msg("postgres connected, migrations applied")

	// --- Observability ---
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)
	healthChecker := observability.NewHealthChecker()
	healthChecker.AddCheck("postgres", func() error {
		pingCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		return db.PingContext(pingCtx)
	})

	// --- Engine and recovery ---
	// The persist channel blocks (backpressure); the publish channel drops.
	persistChan := make(chan core.Output, cfg.Persist.ChanSize)
	var publishChan chan core.Output
	if cfg.NATS.Enabled {
		publishChan = make(chan core.Output, cfg.Publish.ChanSize)
	}

	engine, err := core.NewEngine(engineConfig(cfg), persistChan, publishChan,
		persistence.NewPostgresIdempotencyChecker(db), metrics)
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}
	replayed, err := persistence.Recover(ctx, db, engine)
	if err != nil {
		return fmt.Errorf("recovery: %w", err)
	}
	logger.Info().
		Int("replayed", replayed).
		Int64("sequence", engine.Sequence()).
		Hex("state_hash", hashBytes(engine.StateHash())).
		Msg("recovery complete")

	gateway := ingestion.NewGateway(engine, metrics)

	// Workers outlive the request context so they can drain after Stop.
	workers, workerCtx := errgroup.WithContext(context.Background())
	workers.Go(func() error {
		return persistence.NewPersistenceWorker(db, persistChan, cfg.Persist.BatchSize, cfg.Persist.FlushTimeout, metrics).Run(workerCtx)
	})
	go sampleChannels(ctx, metrics, persistChan, publishChan)
	if cfg.Projection.Enabled {
		projector := projection.NewWorker(db, cfg.Projection.Interval, cfg.Projection.BatchSize)
		go func() {
			if err := projector.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("projection worker stopped")
			}
		}()
	}

	// --- NATS ---
	var consumer *ingestion.CommandConsumer
	if cfg.NATS.Enabled {
		nc, js, err := ingestion.ConnectNATS(cfg.NATS.URL)
		if err != nil {
			engine.Stop()
			return err
		}
		defer nc.Drain()
		healthChecker.AddCheck("nats", func() error {
			if nc.Status() != nats.CONNECTED {
				return fmt.Errorf("nats %s", nc.Status())
			}
			return nil
		})

		if err := ingestion.EnsureStreams(ctx, js); err != nil {
			engine.Stop()
			return err
		}
		workers.Go(func() error {
			return ingestion.NewEventPublisher(js, publishChan).Run(workerCtx)
		})
		consumer = ingestion.NewCommandConsumer(js, gateway, cfg.NATS.Consumer)
		if err := consumer.Subscribe(ctx); err != nil {
			engine.Stop()
			return err
		}
	}

	// --- gRPC, HTTP and metrics servers ---
	srv := server.NewGRPCServer(cfg.GRPC.Addr, cfg.HTTP.Addr, &server.ServerDeps{
		Gateway:       gateway,
		Queries:       query.NewService(engine, db),
		HealthChecker: healthChecker,
		Metrics:       metrics,
	})

	servers, serveCtx := errgroup.WithContext(ctx)
	servers.Go(func() error { return srv.StartGRPC(serveCtx) })
	servers.Go(func() error { return srv.StartHTTPGateway(serveCtx) })
	servers.Go(func() error { return serveMetrics(serveCtx, cfg.Metrics.Addr, registry, logger) })

	srv.SetServing(true)
	healthChecker.SetReady(true)
	logger.Info().
		Str("grpc", cfg.GRPC.Addr).
		Str("http", cfg.HTTP.Addr).
		Str("metrics", cfg.Metrics.Addr).
		Bool("nats", cfg.NATS.Enabled).
		Msg("basketd ready")

	// --- Graceful shutdown ---
	// Servers stop accepting first, then the engine closes its outputs and
	// the workers flush what is left.
	serveErr := servers.Wait()
	healthChecker.SetReady(false)
	if consumer != nil {
		consumer.Stop()
	}
	engine.Stop()

	workersDone := make(chan error, 1)
	go func() { workersDone <- workers.Wait() }()
	var workerErr error
	select {
	case workerErr = <-workersDone:
	case <-time.After(30 * time.Second):
		workerErr = errors.New("workers did not drain within 30s")
	}

	logger.Info().Int64("sequence", engine.Sequence()).Msg("basketd shutdown complete")
	if serveErr != nil && !errors.Is(serveErr, context.Canceled) {
		return serveErr
	}
	return workerErr
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	metricsServer := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutCtx)
	}()

	logger.Info().Str("addr", addr).Msg("metrics server listening")
	if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}

// sampleChannels exports output channel depth until ctx is cancelled.
func sampleChannels(ctx context.Context, metrics *observability.Metrics, persist, publish chan core.Output) {
	metrics.ChannelCapacity.WithLabelValues("persist").Set(float64(cap(persist)))
	metrics.ChannelCapacity.WithLabelValues("publish").Set(float64(cap(publish)))

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.ChannelSize.WithLabelValues("persist").Set(float64(len(persist)))
			metrics.ChannelSize.WithLabelValues("publish").Set(float64(len(publish)))
		}
	}
}

func hashBytes(h [32]byte) []byte { return h[:] }
