package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/a1betting/prop-engine/internal/config"
	"github.com/a1betting/prop-engine/internal/handlers"
	"github.com/a1betting/prop-engine/internal/logic"
	"github.com/a1betting/prop-engine/internal/prizepicks"
	"github.com/a1betting/prop-engine/internal/store"
	"github.com/a1betting/prop-engine/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Engine exited with error", zap.Error(err))
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsProduction() {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func run(cfg *config.Config, logger *zap.Logger) error {
	sugar := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := connectBackends(ctx, cfg, sugar)
	if err != nil {
		return err
	}
	defer deps.Close()

	// Upstream
	client := prizepicks.NewClient(prizepicks.Config{
		BaseURL:             cfg.PrizePicksBaseURL,
		APIKey:              cfg.PrizePicksAPIKey,
		Timeout:             cfg.RequestTimeout,
		MinInterval:         cfg.RateLimitGap,
		MaxRetries:          cfg.MaxRetries,
		RetryBaseDelay:      cfg.RetryBaseDelay,
		PerPage:             cfg.ProjectionsPerPage,
		MaxPages:            cfg.ProjectionsMaxPages,
		CacheTTL:            cfg.ResponseCacheTTL,
		CacheSize:           cfg.ResponseCacheSize,
		BreakerFailureRatio: cfg.BreakerFailureRatio,
		BreakerOpenTimeout:  cfg.BreakerOpenTimeout,
		Logger:              logger,
	})

	// State
	projections := store.NewProjectionStore(store.Config{
		HistorySize: cfg.HistorySize,
		TrendSize:   cfg.TrendSize,
		Durable:     deps.history,
		Logger:      logger,
	})

	scheduler := worker.NewScheduler(worker.SchedulerConfig{
		Interval: cfg.IngestInterval,
		Cooldown: cfg.IngestCooldown,
		Source:   client,
		Sink:     projections,
		Logger:   logger,
	})

	// Analysis snapshots go to ClickHouse when configured.
	var sink *worker.AnalysisSink
	var snapshots logic.SnapshotSink = logic.NopSnapshots{}
	if deps.clickhouse != nil {
		sink = worker.NewAnalysisSink(worker.SinkConfig{
			WorkerCount:   cfg.SinkWorkerCount,
			QueueSize:     cfg.SinkQueueSize,
			BatchSize:     cfg.SinkBatchSize,
			FlushInterval: cfg.SinkFlushInterval,
			ClickHouse:    deps.clickhouse,
			Logger:        logger,
		})
		snapshots = sink
	}

	cache := logic.NewAnalysisCache()
	engine := logic.NewEngine(logic.EngineConfig{
		Interval:    cfg.AnalysisInterval,
		Cooldown:    cfg.AnalysisCooldown,
		Projections: projections,
		Performance: deps.history,
		Analyzer:    logic.NewAnalyzer(cfg.HighQualityLeagues),
		Cache:       cache,
		Snapshots:   snapshots,
		Logger:      logger,
	})

	var publisher logic.Publisher = logic.NopPublisher{}
	if deps.redis != nil {
		publisher = logic.NewRedisPublisher(deps.redis, 2*cfg.OpportunityInterval)
	}
	detector := logic.NewDetector(logic.DetectorConfig{
		Interval: cfg.OpportunityInterval,
		Thresholds: logic.Thresholds{
			MinValue:      cfg.OpportunityMinValue,
			MinConfidence: cfg.OpportunityMinConfidence,
			MaxRisk:       cfg.OpportunityMaxRisk,
		},
		Cache:       cache,
		Projections: projections,
		Publisher:   publisher,
		Logger:      logger,
	})

	tracker := worker.NewAccuracyTracker()
	reconciler := worker.NewReconciler(worker.ReconcilerConfig{
		Schedule: cfg.AccuracySchedule,
		Lookback: cfg.AccuracyLookback,
		Location: cfg.ResultsLocation(),
		Durable:  deps.history,
		Tracker:  tracker,
		Logger:   logger,
	})

	service := logic.NewService(projections, scheduler, cache, detector, tracker)

	// HTTP
	hcfg := handlers.Config{
		Service:        service,
		AllowedOrigins: cfg.AllowedOrigins,
		RequestTimeout: cfg.RequestTimeout,
		Logger:         logger,
	}
	if deps.pg != nil {
		hcfg.Postgres = deps.pg
	}
	if deps.clickhouse != nil {
		hcfg.ClickHouse = deps.clickhouse
		hcfg.Sink = sink
	}
	if deps.redis != nil {
		hcfg.Redis = publisher
	}
	h := handlers.New(hcfg)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return scheduler.Run(gctx) })
	g.Go(func() error { return detector.Run(gctx) })
	g.Go(func() error { return reconciler.Run(gctx) })

	// The sink drains after the engine stops producing snapshots.
	engineDone := make(chan struct{})
	g.Go(func() error {
		defer close(engineDone)
		return engine.Run(gctx)
	})
	if sink != nil {
		sink.Start()
		g.Go(func() error {
			<-engineDone
			sink.Stop()
			return nil
		})
	}

	g.Go(func() error {
		sugar.Infow("HTTP server listening", "addr", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sugar.Info("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	sugar.Info("Engine stopped")
	return err
}

// backends holds the optional durable capabilities. A nil field means the
// corresponding no-op implementation is in use.
type backends struct {
	pg         *pgxpool.Pool
	clickhouse driver.Conn
	redis      *redis.Client
	history    store.HistoryStore
}

func connectBackends(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) (*backends, error) {
	b := &backends{history: store.NopHistory{}}

	if cfg.PostgresURL != "" {
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create postgres pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to reach postgres: %w", err)
		}
		b.pg = pool
		b.history = store.NewPostgresHistory(pool)
		logger.Info("Connected to PostgreSQL")
	} else {
		logger.Warn("POSTGRES_URL not set; projection history is in-memory only")
	}

	if cfg.ClickHouseURL != "" {
		opts, err := clickhouse.ParseDSN(cfg.ClickHouseURL)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("invalid clickhouse url: %w", err)
		}
		conn, err := clickhouse.Open(opts)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("failed to open clickhouse: %w", err)
		}
		if err := conn.Ping(ctx); err != nil {
			conn.Close()
			b.Close()
			return nil, fmt.Errorf("failed to reach clickhouse: %w", err)
		}
		b.clickhouse = conn
		logger.Info("Connected to ClickHouse")
	} else {
		logger.Warn("CLICKHOUSE_URL not set; analysis snapshots are not persisted")
	}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			b.Close()
			return nil, fmt.Errorf("failed to reach redis: %w", err)
		}
		b.redis = client
		logger.Info("Connected to Redis")
	} else {
		logger.Warn("REDIS_URL not set; opportunities are not published")
	}

	return b, nil
}

func (b *backends) Close() {
	if b.redis != nil {
		b.redis.Close()
	}
	if b.clickhouse != nil {
		b.clickhouse.Close()
	}
	if b.pg != nil {
		b.pg.Close()
	}
}
