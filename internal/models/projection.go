package models

import "time"

// Default American odds applied when the upstream omits them.
const DefaultOdds = -110

// League is a league listed by the projections API
type League struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Sport string `json:"sport"`
}

// Projection is a single prop line as normalized from the upstream payload.
// The derived fields at the bottom are filled in on reads, never by ingestion.
type Projection struct {
	ID             string    `json:"id" validate:"required"`
	PlayerID       string    `json:"player_id" validate:"required"`
	PlayerName     string    `json:"player_name" validate:"required"`
	Team           string    `json:"team"`
	Position       string    `json:"position"`
	League         string    `json:"league" validate:"required"`
	Sport          string    `json:"sport"`
	StatType       string    `json:"stat_type" validate:"required"`
	LineScore      float64   `json:"line_score" validate:"gt=0"`
	OverOdds       float64   `json:"over_odds"`
	UnderOdds      float64   `json:"under_odds"`
	StartTime      time.Time `json:"start_time"`
	Status         string    `json:"status"`
	Description    string    `json:"description,omitempty"`
	OddsType       string    `json:"odds_type,omitempty"`
	ProjectionType string    `json:"projection_type,omitempty"`
	Rank           int       `json:"rank"`
	IsPromo        bool      `json:"is_promo"`
	Source         string    `json:"source"`
	UpdatedAt      time.Time `json:"updated_at"`

	// Derived
	Confidence         float64 `json:"confidence"`
	MarketEfficiency   float64 `json:"market_efficiency"`
	ValueScore         float64 `json:"value_score"`
	HistoricalAccuracy float64 `json:"historical_accuracy"`
}

// TrendKey identifies the (player, stat) pair a projection belongs to.
func (p Projection) TrendKey() string {
	return TrendKey(p.PlayerID, p.StatType)
}

// TrendKey builds the (player, stat) key used by trend buffers and accuracy tracking.
func TrendKey(playerID, statType string) string {
	return playerID + "_" + statType
}

// TrendPoint is one observation of a line for a (player, stat) pair
type TrendPoint struct {
	Line      float64   `json:"line"`
	League    string    `json:"league"`
	Timestamp time.Time `json:"timestamp"`
}
