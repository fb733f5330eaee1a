package logic

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/a1betting/prop-engine/internal/models"
	"github.com/a1betting/prop-engine/internal/retry"
)

var (
	analysesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "propengine_analyses_created_total",
		Help: "Analyses computed by the engine",
	})

	analysesDegraded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "propengine_analyses_degraded_total",
		Help: "Analyses that fell back to the degraded result",
	})

	analysisCacheSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "propengine_analysis_cache_size",
		Help: "Live analyses in the cache",
	})
)

// AnalysisCache holds at most one analysis per projection ID
type AnalysisCache struct {
	mu      sync.RWMutex
	entries map[string]models.ProjectionAnalysis
}

func NewAnalysisCache() *AnalysisCache {
	return &AnalysisCache{entries: make(map[string]models.ProjectionAnalysis)}
}

// Lookup returns the analysis for id if it was computed against line.
func (c *AnalysisCache) Lookup(id string, line float64) (models.ProjectionAnalysis, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.entries[id]
	if !ok || a.Line != line {
		return models.ProjectionAnalysis{}, false
	}
	return a, true
}

// Get returns the analysis for id regardless of line.
func (c *AnalysisCache) Get(id string) (models.ProjectionAnalysis, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.entries[id]
	return a, ok
}

func (c *AnalysisCache) Put(a models.ProjectionAnalysis) {
	c.mu.Lock()
	c.entries[a.ProjectionID] = a
	n := len(c.entries)
	c.mu.Unlock()
	analysisCacheSize.Set(float64(n))
}

// Invalidate drops the analysis for id so the next pass recomputes it.
func (c *AnalysisCache) Invalidate(id string) {
	c.mu.Lock()
	delete(c.entries, id)
	n := len(c.entries)
	c.mu.Unlock()
	analysisCacheSize.Set(float64(n))
}

func (c *AnalysisCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Snapshot copies every cached analysis, ordered by projection ID.
func (c *AnalysisCache) Snapshot() []models.ProjectionAnalysis {
	c.mu.RLock()
	out := make([]models.ProjectionAnalysis, 0, len(c.entries))
	for _, a := range c.entries {
		out = append(out, a)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ProjectionID < out[j].ProjectionID })
	return out
}

// ProjectionReader is the read side of the projection store
type ProjectionReader interface {
	Current() []models.Projection
	Get(id string) (models.Projection, bool)
	TrendPoints(key string) []models.TrendPoint
}

// PerformanceReader loads a player's completed-game history, newest first
type PerformanceReader interface {
	PlayerPerformance(ctx context.Context, playerID, statType string, limit int) ([]models.PerformanceRecord, error)
}

// SnapshotSink receives every fresh analysis for offline backtesting
type SnapshotSink interface {
	Enqueue(snap models.AnalysisSnapshot) bool
}

// NopSnapshots discards snapshots when no warehouse is configured
type NopSnapshots struct{}

func (NopSnapshots) Enqueue(models.AnalysisSnapshot) bool { return true }

// EngineConfig configures the analysis loop
type EngineConfig struct {
	Interval    time.Duration
	Cooldown    time.Duration
	Projections ProjectionReader
	Performance PerformanceReader
	Analyzer    *Analyzer
	Cache       *AnalysisCache
	Snapshots   SnapshotSink
	Logger      *zap.Logger
	Now         func() time.Time
	Sleep       func(ctx context.Context, d time.Duration) error
}

// Engine analyzes every current projection that has no live analysis.
// Existing analyses are never recomputed unless their line changed, they
// were degraded, or a caller invalidated them.
type Engine struct {
	interval    time.Duration
	cooldown    time.Duration
	projections ProjectionReader
	performance PerformanceReader
	analyzer    *Analyzer
	cache       *AnalysisCache
	snapshots   SnapshotSink
	logger      *zap.SugaredLogger
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Interval <= 0 {
		cfg.Interval = 60 * time.Second
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Analyzer == nil {
		cfg.Analyzer = NewAnalyzer(nil)
	}
	if cfg.Cache == nil {
		cfg.Cache = NewAnalysisCache()
	}
	if cfg.Snapshots == nil {
		cfg.Snapshots = NopSnapshots{}
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
	return &Engine{
		interval:    cfg.Interval,
		cooldown:    cfg.Cooldown,
		projections: cfg.Projections,
		performance: cfg.Performance,
		analyzer:    cfg.Analyzer,
		cache:       cfg.Cache,
		snapshots:   cfg.Snapshots,
		logger:      cfg.Logger.Sugar(),
		now:         cfg.Now,
		sleep:       cfg.Sleep,
	}
}

// Cache returns the engine's analysis cache.
func (e *Engine) Cache() *AnalysisCache {
	return e.cache
}

// Run loops until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Infow("Analysis engine started", "interval", e.interval)
	for {
		wait := e.interval
		if _, err := e.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			e.logger.Errorw("Analysis pass failed", "error", err, "cooldown", e.cooldown)
			wait = e.cooldown
		}
		if err := e.sleep(ctx, wait); err != nil {
			break
		}
	}
	e.logger.Info("Analysis engine stopped")
	return nil
}

// RunOnce analyzes every projection without a live analysis and returns
// how many analyses it created.
func (e *Engine) RunOnce(ctx context.Context) (created int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("analysis pass panicked: %v", r)
		}
	}()

	start := time.Now()
	degraded := 0
	for _, p := range e.projections.Current() {
		if ctx.Err() != nil {
			return created, ctx.Err()
		}
		if cached, ok := e.cache.Lookup(p.ID, p.LineScore); ok && !cached.Degraded {
			continue
		}

		a := e.Analyze(ctx, p)
		e.cache.Put(a)
		e.snapshots.Enqueue(models.NewAnalysisSnapshot(p, a))
		created++
		if a.Degraded {
			degraded++
		}
	}

	analysesCreated.Add(float64(created))
	if created > 0 {
		e.logger.Infow("Analysis pass complete",
			"created", created,
			"degraded", degraded,
			"cacheSize", e.cache.Len(),
			"duration", time.Since(start))
	}
	return created, nil
}

// Analyze computes one analysis, falling back to the degraded result on any failure.
func (e *Engine) Analyze(ctx context.Context, p models.Projection) (a models.ProjectionAnalysis) {
	now := e.now()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Errorw("Analysis panicked", "projection", p.ID, "panic", r)
			analysesDegraded.Inc()
			a = DegradedAnalysis(p, now)
		}
	}()

	history, err := e.performance.PlayerPerformance(ctx, p.PlayerID, p.StatType, PerformanceLimit)
	if err != nil {
		e.logger.Warnw("Failed to load player performance", "projection", p.ID, "player", p.PlayerID, "error", err)
		analysesDegraded.Inc()
		return DegradedAnalysis(p, now)
	}

	return e.analyzer.Analyze(AnalysisInput{
		Projection:  p,
		History:     history,
		TrendPoints: e.projections.TrendPoints(p.TrendKey()),
		Now:         now,
	})
}
