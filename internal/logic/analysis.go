package logic

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"github.com/a1betting/prop-engine/internal/models"
)

const (
	// PerformanceLimit is how many records feed one analysis
	PerformanceLimit = 50

	predictionWindow = 10
	trendWindow      = 5
	recencyWindow    = 30 * 24 * time.Hour

	// |predicted - line| below this is noise
	minEdge = 0.5
)

// DefaultHighQualityLeagues have the most predictable stat lines
var DefaultHighQualityLeagues = []string{"NBA", "NFL", "MLB"}

// AnalysisInput is everything one analysis needs
type AnalysisInput struct {
	Projection  models.Projection
	History     []models.PerformanceRecord
	TrendPoints []models.TrendPoint
	Now         time.Time
}

// Analyzer scores projections against a player's performance history
type Analyzer struct {
	highQuality map[string]struct{}
}

func NewAnalyzer(highQualityLeagues []string) *Analyzer {
	if len(highQualityLeagues) == 0 {
		highQualityLeagues = DefaultHighQualityLeagues
	}
	hq := make(map[string]struct{}, len(highQualityLeagues))
	for _, l := range highQualityLeagues {
		hq[strings.ToUpper(l)] = struct{}{}
	}
	return &Analyzer{highQuality: hq}
}

// Analyze computes a full analysis. It is pure: the same input always
// yields the same output.
func (a *Analyzer) Analyze(in AnalysisInput) models.ProjectionAnalysis {
	p := in.Projection
	history := newestFirst(in.History)

	predicted := PredictedValue(history, p.LineScore)
	confidence := a.Confidence(history, p.League, in.Now)

	return models.ProjectionAnalysis{
		ProjectionID:     p.ID,
		Line:             p.LineScore,
		PredictedValue:   predicted,
		Confidence:       confidence,
		ValueBetScore:    ValueScore(predicted, p.LineScore),
		MarketComparison: map[string]float64{},
		TrendAnalysis:    SummarizeTrend(in.TrendPoints),
		RiskAssessment:   AssessRisk(p, confidence, len(in.TrendPoints), in.Now),
		Recommendation:   Recommend(predicted, p.LineScore, confidence),
		Reasoning:        Reasoning(history, predicted, p.LineScore, confidence),
		CreatedAt:        in.Now,
	}
}

// DegradedAnalysis is served when a projection could not be analyzed.
func DegradedAnalysis(p models.Projection, now time.Time) models.ProjectionAnalysis {
	return models.ProjectionAnalysis{
		ProjectionID:     p.ID,
		Line:             p.LineScore,
		PredictedValue:   p.LineScore,
		Confidence:       0.5,
		MarketComparison: map[string]float64{},
		TrendAnalysis:    models.TrendSummary{Trend: "insufficient_data"},
		RiskAssessment:   models.RiskAssessment{Factors: []string{}, Level: models.LowRisk},
		Recommendation:   models.InsufficientData,
		Reasoning:        []string{"Insufficient data for analysis"},
		Degraded:         true,
		CreatedAt:        now,
	}
}

// PredictedValue is a recency-weighted average of the last 10 results
// (weight 1/(rank+1), rank 0 newest) nudged by 0.1x the slope of the last
// 5. history must be newest first. Without history it is the line itself.
func PredictedValue(history []models.PerformanceRecord, line float64) float64 {
	if len(history) == 0 {
		return line
	}

	recent := history[:min(len(history), predictionWindow)]
	var weighted, total float64
	for i, r := range recent {
		w := 1.0 / float64(i+1)
		weighted += r.ActualValue * w
		total += w
	}
	predicted := weighted / total

	if len(recent) >= trendWindow {
		predicted += trendSlope(recent[:trendWindow]) * 0.1
	}
	return round(predicted, 1)
}

// Confidence is 0.5 plus bonuses for sample size, consistency, recency and
// league quality, capped at 0.95.
func (a *Analyzer) Confidence(history []models.PerformanceRecord, league string, now time.Time) float64 {
	const base = 0.5
	if len(history) == 0 {
		return base
	}

	n := float64(len(history))
	sampleSize := math.Min(n/20, 1) * 0.2

	consistency := 0.0
	if len(history) > 1 {
		consistency = math.Max(0, 0.2-stat.PopVariance(actualValues(history), nil)/100)
	}

	recentCount := 0
	for _, r := range history {
		if now.Sub(r.GameDate) <= recencyWindow {
			recentCount++
		}
	}
	recency := math.Min(float64(recentCount)/10, 1) * 0.1

	leagueFactor := 0.05
	if a.IsHighQuality(league) {
		leagueFactor = 0.1
	}

	c := base + sampleSize + consistency + recency + leagueFactor
	if math.IsNaN(c) {
		return base
	}
	return math.Max(0, math.Min(c, 0.95))
}

// IsHighQuality reports whether league is in the high-quality set.
func (a *Analyzer) IsHighQuality(league string) bool {
	_, ok := a.highQuality[strings.ToUpper(league)]
	return ok
}

// ValueScore is the relative edge (predicted-line)/line to 3 decimals, or 0
// when the edge is under half a unit.
func ValueScore(predicted, line float64) float64 {
	diff := predicted - line
	if math.Abs(diff) < minEdge || line <= 0 {
		return 0
	}
	return round(diff/line, 3)
}

func Recommend(predicted, line, confidence float64) models.Recommendation {
	diff := predicted - line
	switch {
	case confidence < 0.6:
		return models.InsufficientConfidence
	case math.Abs(diff) < minEdge:
		return models.NoValue
	case diff > 0.5 && confidence > 0.7:
		return models.StrongOver
	case diff > 0.2:
		return models.LeanOver
	case diff < -0.5 && confidence > 0.7:
		return models.StrongUnder
	case diff < -0.2:
		return models.LeanUnder
	default:
		return models.NoValue
	}
}

// AssessRisk scores timing, promotion, confidence and data sparsity.
func AssessRisk(p models.Projection, confidence float64, trendPoints int, now time.Time) models.RiskAssessment {
	factors := []string{}
	score := 0.0

	if p.StartTime.Sub(now) < 2*time.Hour {
		factors = append(factors, "Game starting soon - lineup changes possible")
		score += 0.1
	}
	if p.IsPromo {
		factors = append(factors, "Promotional prop - potentially boosted line")
		score += 0.2
	}
	if confidence < 0.6 {
		factors = append(factors, "Low prediction confidence")
		score += 0.3
	}
	if trendPoints < 5 {
		factors = append(factors, "Limited historical data for player")
		score += 0.2
	}

	score = round(math.Min(score, 1), 2)
	level := models.HighRisk
	switch {
	case score <= 0.2:
		level = models.LowRisk
	case score <= 0.5:
		level = models.ModerateRisk
	}
	return models.RiskAssessment{Score: score, Factors: factors, Level: level}
}

// SummarizeTrend classifies how the line moved over the last 10 observations.
func SummarizeTrend(points []models.TrendPoint) models.TrendSummary {
	if len(points) < 3 {
		return models.TrendSummary{Trend: "insufficient_data", DataPoints: len(points)}
	}

	recent := points[max(0, len(points)-predictionWindow):]
	lines := make([]float64, len(recent))
	for i, tp := range recent {
		lines[i] = tp.Line
	}

	trend := "stable"
	switch s := slope(lines); {
	case s > 0.1:
		trend = "increasing"
	case s < -0.1:
		trend = "decreasing"
	}

	return models.TrendSummary{
		Trend:         trend,
		DataPoints:    len(points),
		RecentAverage: stat.Mean(lines, nil),
		Volatility:    math.Sqrt(stat.PopVariance(lines, nil)),
	}
}

// Reasoning explains an analysis in plain sentences. history must be newest first.
func Reasoning(history []models.PerformanceRecord, predicted, line, confidence float64) []string {
	if len(history) == 0 {
		return []string{"Limited historical data available"}
	}

	reasons := []string{fmt.Sprintf("Based on %d historical games", len(history))}

	recent := history[:min(len(history), trendWindow)]
	reasons = append(reasons, fmt.Sprintf("Recent %d-game average: %.1f", trendWindow, stat.Mean(actualValues(recent), nil)))

	if len(recent) >= 3 {
		switch s := trendSlope(recent); {
		case s > 0.2:
			reasons = append(reasons, "Player showing upward trend")
		case s < -0.2:
			reasons = append(reasons, "Player showing downward trend")
		}
	}

	switch {
	case confidence > 0.8:
		reasons = append(reasons, "High confidence due to consistent performance")
	case confidence < 0.6:
		reasons = append(reasons, "Lower confidence due to limited or inconsistent data")
	}

	if diff := predicted - line; math.Abs(diff) > minEdge {
		reasons = append(reasons, fmt.Sprintf("Significant value detected: %+.1f vs line", diff))
	}
	return reasons
}

// trendSlope fits a line through newest-first records in chronological order.
func trendSlope(newest []models.PerformanceRecord) float64 {
	if len(newest) < 3 {
		return 0
	}
	values := actualValues(newest)
	for i, j := 0, len(values)-1; i < j; i, j = i+1, j-1 {
		values[i], values[j] = values[j], values[i]
	}
	return slope(values)
}

// slope is the least-squares slope of ys against 0..n-1.
func slope(ys []float64) float64 {
	if len(ys) < 2 {
		return 0
	}
	xs := make([]float64, len(ys))
	for i := range xs {
		xs[i] = float64(i)
	}
	_, beta := stat.LinearRegression(xs, ys, nil, false)
	if math.IsNaN(beta) {
		return 0
	}
	return beta
}

func actualValues(records []models.PerformanceRecord) []float64 {
	out := make([]float64, len(records))
	for i, r := range records {
		out[i] = r.ActualValue
	}
	return out
}

func newestFirst(records []models.PerformanceRecord) []models.PerformanceRecord {
	out := make([]models.PerformanceRecord, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool { return out[i].GameDate.After(out[j].GameDate) })
	return out
}

func round(v float64, places int32) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}
