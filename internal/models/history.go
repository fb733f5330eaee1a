package models

import "time"

// HistoricalProjection is the durable, append-only copy of a projection
// as it looked the first time it was ingested.
type HistoricalProjection struct {
	ProjectionID  string    `json:"projection_id"`
	PlayerID      string    `json:"player_id"`
	PlayerName    string    `json:"player_name"`
	Team          string    `json:"team"`
	League        string    `json:"league"`
	StatType      string    `json:"stat_type"`
	LineScore     float64   `json:"line_score"`
	StartTime     time.Time `json:"start_time"`
	FetchedAt     time.Time `json:"fetched_at"`
	Status        string    `json:"status"`
	ActualResult  *float64  `json:"actual_result,omitempty"`
	HitOver       *bool     `json:"hit_over,omitempty"`
	AccuracyScore *float64  `json:"accuracy_score,omitempty"`
}

// NewHistoricalProjection snapshots p at fetchedAt.
func NewHistoricalProjection(p Projection, fetchedAt time.Time) HistoricalProjection {
	return HistoricalProjection{
		ProjectionID: p.ID,
		PlayerID:     p.PlayerID,
		PlayerName:   p.PlayerName,
		Team:         p.Team,
		League:       p.League,
		StatType:     p.StatType,
		LineScore:    p.LineScore,
		StartTime:    p.StartTime,
		FetchedAt:    fetchedAt,
		Status:       p.Status,
	}
}

// PerformanceRecord is a completed game's actual stat value for a player.
// Rows are written by the results feed; the engine only reads them.
type PerformanceRecord struct {
	PlayerID        string    `json:"player_id"`
	StatType        string    `json:"stat_type"`
	GameDate        time.Time `json:"game_date"`
	ActualValue     float64   `json:"actual_value"`
	ProjectedValue  *float64  `json:"projected_value,omitempty"`
	Difference      *float64  `json:"difference,omitempty"`
	OverUnderResult string    `json:"over_under_result,omitempty"`
}

// ResolvedResult is the outcome written back onto a historical projection
type ResolvedResult struct {
	ProjectionID  string  `json:"projection_id"`
	ActualResult  float64 `json:"actual_result"`
	HitOver       bool    `json:"hit_over"`
	AccuracyScore float64 `json:"accuracy_score"`
}
