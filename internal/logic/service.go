package logic

import (
	"math"
	"time"

	"github.com/a1betting/prop-engine/internal/models"
)

// ProjectionQuerier is the read API of the projection store
type ProjectionQuerier interface {
	ProjectionReader
	ByLeague(league string) []models.Projection
	ByPlayer(name string) []models.Projection
	Len() int
	HistoryLen() int
	Tracked() (leagues, players int)
}

// IngestStatter reports ingestion counters
type IngestStatter interface {
	Stats() models.IngestStats
	Interval() time.Duration
}

// AccuracySource reports historical accuracy per (player, stat)
type AccuracySource interface {
	Accuracy(key string) (float64, bool)
}

// Service is the read facade collaborators such as the HTTP layer use.
// Every read serves the last good in-memory state.
type Service struct {
	projections ProjectionQuerier
	ingest      IngestStatter
	cache       *AnalysisCache
	detector    *Detector
	accuracy    AccuracySource
}

func NewService(projections ProjectionQuerier, ingest IngestStatter, cache *AnalysisCache, detector *Detector, accuracy AccuracySource) *Service {
	return &Service{
		projections: projections,
		ingest:      ingest,
		cache:       cache,
		detector:    detector,
		accuracy:    accuracy,
	}
}

func (s *Service) GetCurrentProjections() []models.Projection {
	return s.enrich(s.projections.Current())
}

func (s *Service) GetProjectionsByLeague(league string) []models.Projection {
	return s.enrich(s.projections.ByLeague(league))
}

func (s *Service) GetProjectionsByPlayer(name string) []models.Projection {
	return s.enrich(s.projections.ByPlayer(name))
}

// GetProjection returns one enriched projection.
func (s *Service) GetProjection(id string) (models.Projection, bool) {
	p, ok := s.projections.Get(id)
	if !ok {
		return p, false
	}
	return s.enrich([]models.Projection{p})[0], true
}

// GetAnalysis returns the live analysis for a current projection.
func (s *Service) GetAnalysis(id string) (models.ProjectionAnalysis, bool) {
	p, ok := s.projections.Get(id)
	if !ok {
		return models.ProjectionAnalysis{}, false
	}
	return s.cache.Lookup(id, p.LineScore)
}

// GetHighValueOpportunities ranks live analyses by |value score|.
func (s *Service) GetHighValueOpportunities(minValue, minConfidence float64) []models.Opportunity {
	opps := s.detector.HighValue(minValue, minConfidence)
	for i := range opps {
		opps[i].Projection = s.enrich([]models.Projection{opps[i].Projection})[0]
	}
	return opps
}

// GetLatestOpportunities returns the detector's last scan.
func (s *Service) GetLatestOpportunities() []models.Opportunity {
	return s.detector.Latest()
}

func (s *Service) GetServiceStats() models.ServiceStats {
	ing := s.ingest.Stats()
	leagues, players := s.projections.Tracked()

	st := models.ServiceStats{
		TotalProjections:       s.projections.Len(),
		FetchCount:             ing.FetchCount,
		ErrorCount:             ing.ErrorCount,
		ParseErrors:            ing.ParseErrors,
		CacheSize:              s.cache.Len(),
		HistorySize:            s.projections.HistoryLen(),
		LeaguesTracked:         leagues,
		PlayersTracked:         players,
		OpportunityCount:       len(s.detector.Latest()),
		IngestState:            ing.State,
		UpdateFrequencyMinutes: s.ingest.Interval().Minutes(),
		ErrorRate:              float64(ing.ErrorCount) / float64(max(ing.FetchCount, 1)),
	}
	if !ing.LastUpdate.IsZero() {
		last := ing.LastUpdate
		st.LastUpdate = &last
	}
	return st
}

// enrich fills derived fields on copies; the store is never mutated.
func (s *Service) enrich(projections []models.Projection) []models.Projection {
	out := make([]models.Projection, len(projections))
	for i, p := range projections {
		if a, ok := s.cache.Lookup(p.ID, p.LineScore); ok {
			p.Confidence = a.Confidence
			p.ValueScore = a.ValueBetScore
			p.MarketEfficiency = marketEfficiency(a)
		}
		if s.accuracy != nil {
			if acc, ok := s.accuracy.Accuracy(p.TrendKey()); ok {
				p.HistoricalAccuracy = acc
			}
		}
		out[i] = p
	}
	return out
}

// marketEfficiency is 1 when the line matches the prediction and falls
// toward 0 as the relative edge grows.
func marketEfficiency(a models.ProjectionAnalysis) float64 {
	return math.Max(0, 1-math.Abs(a.ValueBetScore))
}
