package worker

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/a1betting/prop-engine/internal/models"
	"github.com/a1betting/prop-engine/internal/store"
)

const (
	defaultReconcileBatch = 500
	defaultLookback       = 14 * 24 * time.Hour
)

var resultsResolved = promauto.NewCounter(prometheus.CounterOpts{
	Name: "propengine_results_resolved_total",
	Help: "Historical projections matched with an actual result",
})

// AccuracyTracker keeps the running mean accuracy per (player, stat)
type AccuracyTracker struct {
	mu    sync.RWMutex
	stats map[string]accuracyStat
}

type accuracyStat struct {
	sum   float64
	count int
}

func NewAccuracyTracker() *AccuracyTracker {
	return &AccuracyTracker{stats: make(map[string]accuracyStat)}
}

func (t *AccuracyTracker) Record(key string, score float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.stats[key]
	st.sum += score
	st.count++
	t.stats[key] = st
}

// Accuracy returns the mean accuracy for key, if any result was recorded.
func (t *AccuracyTracker) Accuracy(key string) (float64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st, ok := t.stats[key]
	if !ok || st.count == 0 {
		return 0, false
	}
	return st.sum / float64(st.count), true
}

// AccuracyScore is 1 for an exact line, falling linearly to 0 as the
// actual result misses by the full line.
func AccuracyScore(actual, line float64) float64 {
	if line <= 0 {
		return 0
	}
	return math.Max(0, 1-math.Abs(actual-line)/line)
}

// ReconcilerConfig configures the accuracy reconciliation job
type ReconcilerConfig struct {
	Schedule  string
	BatchSize int
	// Lookback bounds how long an unresolved projection keeps being retried.
	Lookback time.Duration
	// Location is the time zone the results feed keys game dates by.
	Location *time.Location
	Durable  store.HistoryStore
	Tracker  *AccuracyTracker
	Logger   *zap.Logger
	Now      func() time.Time
}

// Reconciler matches started projections with actual game results on a cron schedule
type Reconciler struct {
	schedule  string
	batchSize int
	lookback  time.Duration
	location  *time.Location
	durable   store.HistoryStore
	tracker   *AccuracyTracker
	logger    *zap.SugaredLogger
	now       func() time.Time

	// Keyset position of the last row scanned. A zero start restarts the
	// scan at the beginning of the lookback window.
	mu          sync.Mutex
	cursorStart time.Time
	cursorID    string
}

func NewReconciler(cfg ReconcilerConfig) *Reconciler {
	if cfg.Schedule == "" {
		cfg.Schedule = "@every 1h"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultReconcileBatch
	}
	if cfg.Lookback <= 0 {
		cfg.Lookback = defaultLookback
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Tracker == nil {
		cfg.Tracker = NewAccuracyTracker()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Reconciler{
		schedule:  cfg.Schedule,
		batchSize: cfg.BatchSize,
		lookback:  cfg.Lookback,
		location:  cfg.Location,
		durable:   cfg.Durable,
		tracker:   cfg.Tracker,
		logger:    cfg.Logger.Sugar(),
		now:       cfg.Now,
	}
}

// Tracker returns the accuracy tracker fed by this reconciler.
func (r *Reconciler) Tracker() *AccuracyTracker {
	return r.tracker
}

// Run schedules RunOnce and blocks until ctx is cancelled, then waits for a
// running job to finish.
func (r *Reconciler) Run(ctx context.Context) error {
	c := cron.New()
	_, err := c.AddFunc(r.schedule, func() {
		if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
			r.logger.Errorw("Accuracy reconciliation failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid accuracy schedule %q: %w", r.schedule, err)
	}

	c.Start()
	r.logger.Infow("Accuracy reconciler scheduled", "schedule", r.schedule)

	<-ctx.Done()
	<-c.Stop().Done()
	r.logger.Info("Accuracy reconciler stopped")
	return nil
}

// RunOnce resolves one page of pending projections whose game result is
// available. Pages advance through the lookback window across runs and wrap
// around after the last one, so unresolvable rows never hide newer ones.
// Projections older than the lookback are abandoned.
func (r *Reconciler) RunOnce(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	since := now.Add(-r.lookback)
	after, afterID := r.cursorStart, r.cursorID
	if after.Before(since) {
		after, afterID = since, ""
	}

	pending, err := r.durable.PendingResults(ctx, store.PendingFilter{
		Since:      since,
		Before:     now,
		AfterStart: after,
		AfterID:    afterID,
		Limit:      r.batchSize,
	})
	if err != nil {
		return 0, err
	}
	if len(pending) < r.batchSize {
		r.cursorStart, r.cursorID = time.Time{}, ""
	} else {
		last := pending[len(pending)-1]
		r.cursorStart, r.cursorID = last.StartTime, last.ProjectionID
	}

	resolved := 0
	for _, h := range pending {
		rec, err := r.durable.FindResult(ctx, h.PlayerID, h.StatType, h.StartTime.In(r.location))
		if err != nil {
			r.logger.Warnw("Failed to look up result", "projection", h.ProjectionID, "error", err)
			continue
		}
		if rec == nil {
			continue
		}

		result := models.ResolvedResult{
			ProjectionID:  h.ProjectionID,
			ActualResult:  rec.ActualValue,
			HitOver:       rec.ActualValue > h.LineScore,
			AccuracyScore: AccuracyScore(rec.ActualValue, h.LineScore),
		}
		if err := r.durable.ResolveResult(ctx, result); err != nil {
			r.logger.Warnw("Failed to write result", "projection", h.ProjectionID, "error", err)
			continue
		}
		r.tracker.Record(models.TrendKey(h.PlayerID, h.StatType), result.AccuracyScore)
		resolved++
	}
	resultsResolved.Add(float64(resolved))

	if len(pending) > 0 {
		r.logger.Infow("Accuracy reconciliation complete", "pending", len(pending), "resolved", resolved)
	}
	return resolved, nil
}
