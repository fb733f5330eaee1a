// Package store owns current projection state. Ingestion is the single
// writer; analysis, opportunity detection and the HTTP layer only read.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/a1betting/prop-engine/internal/models"
)

const (
	DefaultHistorySize = 10000
	DefaultTrendSize   = 100
)

var (
	projectionsStored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "propengine_projections_stored_total",
		Help: "Projections written to current state",
	})

	historyRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "propengine_history_records_total",
		Help: "New rows written to projection_history",
	})

	historyErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "propengine_history_write_errors_total",
		Help: "Failed projection_history writes",
	})

	currentProjections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "propengine_current_projections",
		Help: "Projections in current state",
	})
)

// Config configures a ProjectionStore
type Config struct {
	HistorySize int
	TrendSize   int
	Durable     HistoryStore
	Logger      *zap.Logger
	Now         func() time.Time
}

// UpsertResult summarizes one UpsertBatch call
type UpsertResult struct {
	Stored   int
	Recorded int
	Failed   int
}

// ProjectionStore holds the current projection per ID, a bounded history
// of every ingested snapshot and per-(player, stat) line trends.
type ProjectionStore struct {
	mu        sync.RWMutex
	current   map[string]models.Projection
	history   *ring[models.HistoricalProjection]
	trends    map[string]*ring[models.TrendPoint]
	trendSize int

	durable HistoryStore
	logger  *zap.SugaredLogger
	now     func() time.Time
}

func NewProjectionStore(cfg Config) *ProjectionStore {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = DefaultHistorySize
	}
	if cfg.TrendSize <= 0 {
		cfg.TrendSize = DefaultTrendSize
	}
	if cfg.Durable == nil {
		cfg.Durable = NopHistory{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &ProjectionStore{
		current:   make(map[string]models.Projection),
		history:   newRing[models.HistoricalProjection](cfg.HistorySize),
		trends:    make(map[string]*ring[models.TrendPoint]),
		trendSize: cfg.TrendSize,
		durable:   cfg.Durable,
		logger:    cfg.Logger.Sugar(),
		now:       cfg.Now,
	}
}

// UpsertBatch replaces current entries by ID, appends to history and trend
// buffers, then records each projection durably. Durable failures are
// logged and counted; they never undo the in-memory update.
func (s *ProjectionStore) UpsertBatch(ctx context.Context, projections []models.Projection) UpsertResult {
	var res UpsertResult
	if len(projections) == 0 {
		return res
	}

	now := s.now()
	records := make([]models.HistoricalProjection, 0, len(projections))

	s.mu.Lock()
	for _, p := range projections {
		s.current[p.ID] = p

		h := models.NewHistoricalProjection(p, now)
		s.history.push(h)
		records = append(records, h)

		key := p.TrendKey()
		tr, ok := s.trends[key]
		if !ok {
			tr = newRing[models.TrendPoint](s.trendSize)
			s.trends[key] = tr
		}
		tr.push(models.TrendPoint{Line: p.LineScore, League: p.League, Timestamp: now})
		res.Stored++
	}
	currentProjections.Set(float64(len(s.current)))
	s.mu.Unlock()
	projectionsStored.Add(float64(res.Stored))

	for _, h := range records {
		inserted, err := s.durable.RecordProjection(ctx, h)
		if err != nil {
			res.Failed++
			historyErrors.Inc()
			s.logger.Warnw("Failed to record projection history", "projection", h.ProjectionID, "error", err)
			continue
		}
		if inserted {
			res.Recorded++
			historyRecorded.Inc()
		}
	}
	return res
}

// Current returns every current projection ordered by ID.
func (s *ProjectionStore) Current() []models.Projection {
	return s.filter(func(models.Projection) bool { return true })
}

// ByLeague returns projections whose league matches, ignoring case.
func (s *ProjectionStore) ByLeague(league string) []models.Projection {
	return s.filter(func(p models.Projection) bool {
		return strings.EqualFold(p.League, league)
	})
}

// ByPlayer returns projections whose player name contains name, ignoring case.
func (s *ProjectionStore) ByPlayer(name string) []models.Projection {
	needle := strings.ToLower(name)
	return s.filter(func(p models.Projection) bool {
		return strings.Contains(strings.ToLower(p.PlayerName), needle)
	})
}

func (s *ProjectionStore) filter(keep func(models.Projection) bool) []models.Projection {
	s.mu.RLock()
	out := make([]models.Projection, 0, len(s.current))
	for _, p := range s.current {
		if keep(p) {
			out = append(out, p)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *ProjectionStore) Get(id string) (models.Projection, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.current[id]
	return p, ok
}

// TrendPoints returns the buffered line observations for key, oldest first.
func (s *ProjectionStore) TrendPoints(key string) []models.TrendPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tr, ok := s.trends[key]
	if !ok {
		return nil
	}
	return tr.slice()
}

// History returns the in-memory history buffer, oldest first.
func (s *ProjectionStore) History() []models.HistoricalProjection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history.slice()
}

func (s *ProjectionStore) HistoryLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history.len()
}

func (s *ProjectionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.current)
}

// Tracked counts the distinct leagues and players in current state.
func (s *ProjectionStore) Tracked() (leagues, players int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ls := make(map[string]struct{})
	ps := make(map[string]struct{})
	for _, p := range s.current {
		ls[p.League] = struct{}{}
		ps[p.PlayerID] = struct{}{}
	}
	return len(ls), len(ps)
}
