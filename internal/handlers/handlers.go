package handlers

import (
	"context"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/a1betting/prop-engine/internal/models"
)

// EngineService is the read facade the HTTP layer serializes.
type EngineService interface {
	GetCurrentProjections() []models.Projection
	GetProjectionsByLeague(league string) []models.Projection
	GetProjectionsByPlayer(name string) []models.Projection
	GetProjection(id string) (models.Projection, bool)
	GetAnalysis(id string) (models.ProjectionAnalysis, bool)
	GetHighValueOpportunities(minValue, minConfidence float64) []models.Opportunity
	GetLatestOpportunities() []models.Opportunity
	GetServiceStats() models.ServiceStats
}

// SchemaDB is the subset of the Postgres pool used for readiness and schema install
type SchemaDB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
}

// Pinger reports whether a backing service is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// QueueDepther reports the analysis sink backlog
type QueueDepther interface {
	QueueDepth() int
}

type Config struct {
	Service EngineService
	// Optional backends; nil means the capability is disabled.
	Postgres   SchemaDB
	ClickHouse driver.Conn
	Redis      Pinger
	Sink       QueueDepther

	AllowedOrigins []string
	MigrationsDir  string
	RequestTimeout time.Duration
	Logger         *zap.Logger
}

type Handler struct {
	svc            EngineService
	pg             SchemaDB
	ch             driver.Conn
	redis          Pinger
	sink           QueueDepther
	origins        []string
	migrations     string
	requestTimeout time.Duration
	logger         *zap.SugaredLogger
	validator      *validator.Validate
}

func New(cfg Config) *Handler {
	if cfg.MigrationsDir == "" {
		cfg.MigrationsDir = "migrations"
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Handler{
		svc:            cfg.Service,
		pg:             cfg.Postgres,
		ch:             cfg.ClickHouse,
		redis:          cfg.Redis,
		sink:           cfg.Sink,
		origins:        cfg.AllowedOrigins,
		migrations:     cfg.MigrationsDir,
		requestTimeout: cfg.RequestTimeout,
		logger:         cfg.Logger.Sugar(),
		validator:      validator.New(),
	}
}

// Routes builds the HTTP router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(h.requestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: h.origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.Health)
	r.Get("/ready", h.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/projections", h.ListProjections)
		r.Get("/projections/{id}", h.GetProjection)
		r.Get("/projections/{id}/analysis", h.GetAnalysis)
		r.Get("/opportunities", h.ListOpportunities)
		r.Get("/opportunities/latest", h.LatestOpportunities)
		r.Get("/stats", h.Stats)
		r.Post("/system/install", h.InstallDatabase)
	})

	return r
}
