package logic

import (
	"context"
	"math"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/a1betting/prop-engine/internal/models"
	"github.com/a1betting/prop-engine/internal/retry"
)

var (
	opportunitiesFound = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "propengine_opportunities",
		Help: "Opportunities found by the last scan",
	})

	publishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "propengine_opportunity_publish_failures_total",
		Help: "Failed opportunity publishes",
	})
)

// Thresholds select opportunities from the analysis cache
type Thresholds struct {
	MinValue      float64
	MinConfidence float64
	// MaxRisk is exclusive. Zero disables the risk filter.
	MaxRisk float64
}

// DefaultThresholds are the scan thresholds for the detector loop
var DefaultThresholds = Thresholds{MinValue: 0.05, MinConfidence: 0.7, MaxRisk: 0.3}

// DetectorConfig configures the opportunity detector
type DetectorConfig struct {
	Interval    time.Duration
	Thresholds  Thresholds
	Cache       *AnalysisCache
	Projections ProjectionReader
	Publisher   Publisher
	Logger      *zap.Logger
	Now         func() time.Time
	Sleep       func(ctx context.Context, d time.Duration) error
}

// Detector ranks cached analyses that clear the value, confidence and risk
// thresholds. Each scan starts from scratch; only the last result is kept.
type Detector struct {
	interval    time.Duration
	thresholds  Thresholds
	cache       *AnalysisCache
	projections ProjectionReader
	publisher   Publisher
	logger      *zap.SugaredLogger
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error

	mu     sync.RWMutex
	latest []models.Opportunity
}

func NewDetector(cfg DetectorConfig) *Detector {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.Thresholds == (Thresholds{}) {
		cfg.Thresholds = DefaultThresholds
	}
	if cfg.Publisher == nil {
		cfg.Publisher = NopPublisher{}
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
	return &Detector{
		interval:    cfg.Interval,
		thresholds:  cfg.Thresholds,
		cache:       cfg.Cache,
		projections: cfg.Projections,
		publisher:   cfg.Publisher,
		logger:      cfg.Logger.Sugar(),
		now:         cfg.Now,
		sleep:       cfg.Sleep,
	}
}

// Run scans on a fixed period until ctx is cancelled.
func (d *Detector) Run(ctx context.Context) error {
	d.logger.Infow("Opportunity detector started", "interval", d.interval)
	for {
		d.Scan(ctx)
		if err := d.sleep(ctx, d.interval); err != nil {
			break
		}
	}
	d.logger.Info("Opportunity detector stopped")
	return nil
}

// Scan selects, ranks, logs and publishes opportunities and remembers them
// as the latest result.
func (d *Detector) Scan(ctx context.Context) []models.Opportunity {
	found := d.Select(d.thresholds)

	d.mu.Lock()
	d.latest = found
	d.mu.Unlock()
	opportunitiesFound.Set(float64(len(found)))

	if len(found) == 0 {
		return found
	}

	d.logger.Infow("Found high-value opportunities", "count", len(found))
	for i, opp := range found[:min(3, len(found))] {
		d.logger.Infow("Top opportunity",
			"rank", i+1,
			"player", opp.Projection.PlayerName,
			"stat", opp.Projection.StatType,
			"predicted", opp.Analysis.PredictedValue,
			"line", opp.Projection.LineScore,
			"value", opp.ValueScore,
			"confidence", opp.Confidence,
			"recommendation", opp.Analysis.Recommendation)
	}

	if err := d.publisher.Publish(ctx, found); err != nil {
		publishFailures.Inc()
		d.logger.Warnw("Failed to publish opportunities", "error", err)
	}
	return found
}

// Select filters the analysis cache by t and sorts by |value score|
// descending. Analyses of projections that left current state or whose
// line has since moved are ignored.
func (d *Detector) Select(t Thresholds) []models.Opportunity {
	now := d.now()
	var out []models.Opportunity
	for _, a := range d.cache.Snapshot() {
		if a.Degraded || math.Abs(a.ValueBetScore) < t.MinValue || a.Confidence < t.MinConfidence {
			continue
		}
		if t.MaxRisk > 0 && a.RiskAssessment.Score >= t.MaxRisk {
			continue
		}
		p, ok := d.projections.Get(a.ProjectionID)
		if !ok || p.LineScore != a.Line {
			continue
		}
		out = append(out, models.Opportunity{
			ID:         OpportunityID(p.ID, p.LineScore),
			Projection: p,
			Analysis:   a,
			ValueScore: a.ValueBetScore,
			Confidence: a.Confidence,
			DetectedAt: now,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return math.Abs(out[i].ValueScore) > math.Abs(out[j].ValueScore)
	})
	return out
}

// opportunityNamespace scopes name-based opportunity IDs.
var opportunityNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:prop-engine:opportunity"))

// OpportunityID is stable for a projection at a given line, so repeated scans
// publish the same ID until the line moves.
func OpportunityID(projectionID string, line float64) string {
	name := projectionID + "|" + strconv.FormatFloat(line, 'f', -1, 64)
	return uuid.NewSHA1(opportunityNamespace, []byte(name)).String()
}

// HighValue returns opportunities clearing minValue and minConfidence,
// without the risk filter.
func (d *Detector) HighValue(minValue, minConfidence float64) []models.Opportunity {
	return d.Select(Thresholds{MinValue: minValue, MinConfidence: minConfidence})
}

// Latest returns the result of the most recent scan.
func (d *Detector) Latest() []models.Opportunity {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]models.Opportunity, len(d.latest))
	copy(out, d.latest)
	return out
}
