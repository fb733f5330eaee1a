package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/a1betting/prop-engine/internal/models"
	"github.com/a1betting/prop-engine/internal/prizepicks"
	"github.com/a1betting/prop-engine/internal/retry"
	"github.com/a1betting/prop-engine/internal/store"
)

// ErrNoProjections means no league could be fetched in a cycle
var ErrNoProjections = errors.New("ingest: every league fetch failed")

// Scheduler states
const (
	StateIdle       = "idle"
	StateFetching   = "fetching"
	StateProcessing = "processing"
)

// FallbackLeagues keeps the loop alive when the league listing is unavailable
var FallbackLeagues = []models.League{
	{ID: "NBA", Name: "NBA"},
	{ID: "NFL", Name: "NFL"},
	{ID: "MLB", Name: "MLB"},
	{ID: "NHL", Name: "NHL"},
	{ID: "NCAAB", Name: "NCAAB"},
	{ID: "NCAAF", Name: "NCAAF"},
}

var (
	ingestCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "propengine_ingest_cycles_total",
		Help: "Ingestion cycles by result",
	}, []string{"result"})

	ingestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "propengine_ingest_cycle_duration_seconds",
		Help:    "Duration of ingestion cycles",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
	})

	parseSkips = promauto.NewCounter(prometheus.CounterOpts{
		Name: "propengine_parse_skips_total",
		Help: "Upstream records skipped during normalization",
	})
)

// ProjectionSource is the upstream the scheduler polls
type ProjectionSource interface {
	Leagues(ctx context.Context) ([]prizepicks.Resource, error)
	ProjectionPages(ctx context.Context, leagueID string) ([]prizepicks.Document, error)
}

// ProjectionSink receives each cycle's normalized batch
type ProjectionSink interface {
	UpsertBatch(ctx context.Context, projections []models.Projection) store.UpsertResult
}

// SchedulerConfig configures the ingestion loop
type SchedulerConfig struct {
	Interval time.Duration
	Cooldown time.Duration
	Source   ProjectionSource
	Sink     ProjectionSink
	Logger   *zap.Logger
	Now      func() time.Time
	Sleep    func(ctx context.Context, d time.Duration) error
}

// Scheduler polls the upstream on a fixed period and feeds the projection
// store. A failed cycle waits the short cooldown instead of the full period.
type Scheduler struct {
	interval time.Duration
	cooldown time.Duration
	source   ProjectionSource
	sink     ProjectionSink
	logger   *zap.SugaredLogger
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error

	state       atomic.Value
	fetchCount  atomic.Int64
	errorCount  atomic.Int64
	parseErrors atomic.Int64

	mu         sync.RWMutex
	lastUpdate time.Time
}

func NewScheduler(cfg SchedulerConfig) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Sleep == nil {
		cfg.Sleep = retry.SleepContext
	}
	s := &Scheduler{
		interval: cfg.Interval,
		cooldown: cfg.Cooldown,
		source:   cfg.Source,
		sink:     cfg.Sink,
		logger:   cfg.Logger.Sugar(),
		now:      cfg.Now,
		sleep:    cfg.Sleep,
	}
	s.state.Store(StateIdle)
	return s
}

// Run loops until ctx is cancelled. It never returns a cycle error.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Infow("Ingestion scheduler started", "interval", s.interval, "cooldown", s.cooldown)
	for {
		wait := s.interval
		if err := s.RunCycle(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			s.logger.Errorw("Ingestion cycle failed", "error", err, "cooldown", s.cooldown)
			wait = s.cooldown
		}
		if err := s.sleep(ctx, wait); err != nil {
			break
		}
	}
	s.logger.Info("Ingestion scheduler stopped")
	return nil
}

// RunCycle performs one Idle -> Fetching -> Processing -> Idle pass.
func (s *Scheduler) RunCycle(ctx context.Context) (err error) {
	cycleID := uuid.NewString()
	start := time.Now()
	defer func() {
		s.state.Store(StateIdle)
		ingestDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			ingestCycles.WithLabelValues("error").Inc()
		} else {
			ingestCycles.WithLabelValues("ok").Inc()
		}
	}()

	s.state.Store(StateFetching)
	leagues := s.leagues(ctx, cycleID)

	lookup := prizepicks.NewLookup()
	var data []prizepicks.Resource
	failed := 0
	var lastErr error
	for _, league := range leagues {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.fetchCount.Add(1)
		pages, err := s.source.ProjectionPages(ctx, league.ID)
		if err != nil {
			failed++
			lastErr = err
			s.errorCount.Add(1)
			s.logger.Warnw("Failed to fetch league projections",
				"cycle", cycleID, "league", league.Name, "pages", len(pages), "error", err)
		}
		for _, page := range pages {
			if skipped := lookup.Add(page.Included); skipped > 0 {
				s.parseErrors.Add(int64(skipped))
				parseSkips.Add(float64(skipped))
			}
			data = append(data, page.Data...)
		}
	}
	if failed == len(leagues) {
		return fmt.Errorf("%w (%d leagues): %v", ErrNoProjections, failed, lastErr)
	}

	s.state.Store(StateProcessing)
	res := prizepicks.Normalize(data, lookup, s.now())
	if res.Skipped > 0 {
		s.parseErrors.Add(int64(res.Skipped))
		parseSkips.Add(float64(res.Skipped))
		s.logger.Warnw("Skipped malformed projections",
			"cycle", cycleID, "skipped", res.Skipped, "first_error", res.Errors[0])
	}

	stored := s.sink.UpsertBatch(ctx, res.Projections)

	s.mu.Lock()
	s.lastUpdate = s.now()
	s.mu.Unlock()

	s.logger.Infow("Ingestion cycle complete",
		"cycle", cycleID,
		"leagues", len(leagues),
		"failedLeagues", failed,
		"projections", stored.Stored,
		"historyRecorded", stored.Recorded,
		"historyFailed", stored.Failed,
		"duration", time.Since(start))
	return nil
}

func (s *Scheduler) leagues(ctx context.Context, cycleID string) []models.League {
	resources, err := s.source.Leagues(ctx)
	if err != nil {
		s.logger.Warnw("Failed to list leagues, using fallback", "cycle", cycleID, "error", err)
		return FallbackLeagues
	}
	leagues := prizepicks.NormalizeLeagues(resources)
	if len(leagues) == 0 {
		s.logger.Warnw("League listing empty, using fallback", "cycle", cycleID)
		return FallbackLeagues
	}
	return leagues
}

// Stats returns the scheduler's running counters.
func (s *Scheduler) Stats() models.IngestStats {
	s.mu.RLock()
	last := s.lastUpdate
	s.mu.RUnlock()
	return models.IngestStats{
		FetchCount:  s.fetchCount.Load(),
		ErrorCount:  s.errorCount.Load(),
		ParseErrors: s.parseErrors.Load(),
		LastUpdate:  last,
		State:       s.State(),
	}
}

func (s *Scheduler) State() string {
	return s.state.Load().(string)
}

// Interval is the configured polling period.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}
