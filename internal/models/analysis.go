package models

import "time"

// Recommendation is the betting call attached to an analysis
type Recommendation string

const (
	StrongOver             Recommendation = "STRONG_OVER"
	LeanOver               Recommendation = "LEAN_OVER"
	StrongUnder            Recommendation = "STRONG_UNDER"
	LeanUnder              Recommendation = "LEAN_UNDER"
	NoValue                Recommendation = "NO_VALUE"
	InsufficientConfidence Recommendation = "INSUFFICIENT_CONFIDENCE"
	InsufficientData       Recommendation = "INSUFFICIENT_DATA"
)

// IsOver reports whether the recommendation leans to the over.
func (r Recommendation) IsOver() bool {
	return r == StrongOver || r == LeanOver
}

// IsUnder reports whether the recommendation leans to the under.
func (r Recommendation) IsUnder() bool {
	return r == StrongUnder || r == LeanUnder
}

// RiskLevel buckets a risk score
type RiskLevel string

const (
	LowRisk      RiskLevel = "LOW_RISK"
	ModerateRisk RiskLevel = "MODERATE_RISK"
	HighRisk     RiskLevel = "HIGH_RISK"
)

// RiskAssessment scores external factors that may undermine an analysis
type RiskAssessment struct {
	Score   float64   `json:"risk_score"`
	Factors []string  `json:"risk_factors"`
	Level   RiskLevel `json:"level"`
}

// TrendSummary describes how a player's line has moved across ingestions
type TrendSummary struct {
	Trend         string  `json:"trend"` // "increasing", "decreasing", "stable", "insufficient_data"
	DataPoints    int     `json:"data_points"`
	RecentAverage float64 `json:"recent_average"`
	Volatility    float64 `json:"volatility"`
}

// ProjectionAnalysis is the engine's verdict on one projection. Line records
// the line the analysis was computed against.
type ProjectionAnalysis struct {
	ProjectionID     string             `json:"projection_id"`
	Line             float64            `json:"line"`
	PredictedValue   float64            `json:"predicted_value"`
	Confidence       float64            `json:"confidence"`
	ValueBetScore    float64            `json:"value_bet_score"`
	MarketComparison map[string]float64 `json:"market_comparison"`
	TrendAnalysis    TrendSummary       `json:"trend_analysis"`
	RiskAssessment   RiskAssessment     `json:"risk_assessment"`
	Recommendation   Recommendation     `json:"recommendation"`
	Reasoning        []string           `json:"reasoning"`
	Degraded         bool               `json:"degraded"`
	CreatedAt        time.Time          `json:"created_at"`
}

// Opportunity pairs a projection with an analysis that cleared the value thresholds
type Opportunity struct {
	ID         string             `json:"id"`
	Projection Projection         `json:"projection"`
	Analysis   ProjectionAnalysis `json:"analysis"`
	ValueScore float64            `json:"value_score"`
	Confidence float64            `json:"confidence"`
	DetectedAt time.Time          `json:"detected_at"`
}

// AnalysisSnapshot is the flattened row written to the analytics warehouse
type AnalysisSnapshot struct {
	ProjectionID   string
	PlayerID       string
	PlayerName     string
	League         string
	StatType       string
	Line           float64
	PredictedValue float64
	Confidence     float64
	ValueBetScore  float64
	Recommendation string
	RiskScore      float64
	RiskLevel      string
	Degraded       bool
	CreatedAt      time.Time
}

// NewAnalysisSnapshot flattens an analysis together with its projection.
func NewAnalysisSnapshot(p Projection, a ProjectionAnalysis) AnalysisSnapshot {
	return AnalysisSnapshot{
		ProjectionID:   p.ID,
		PlayerID:       p.PlayerID,
		PlayerName:     p.PlayerName,
		League:         p.League,
		StatType:       p.StatType,
		Line:           a.Line,
		PredictedValue: a.PredictedValue,
		Confidence:     a.Confidence,
		ValueBetScore:  a.ValueBetScore,
		Recommendation: string(a.Recommendation),
		RiskScore:      a.RiskAssessment.Score,
		RiskLevel:      string(a.RiskAssessment.Level),
		Degraded:       a.Degraded,
		CreatedAt:      a.CreatedAt,
	}
}
