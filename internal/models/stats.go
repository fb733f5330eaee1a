package models

import "time"

// IngestStats is the scheduler's running tally
type IngestStats struct {
	FetchCount  int64     `json:"fetch_count"`
	ErrorCount  int64     `json:"error_count"`
	ParseErrors int64     `json:"parse_errors"`
	LastUpdate  time.Time `json:"last_update"`
	State       string    `json:"state"`
}

// ServiceStats summarizes the engine for operators
type ServiceStats struct {
	TotalProjections       int        `json:"total_projections"`
	FetchCount             int64      `json:"fetch_count"`
	ErrorCount             int64      `json:"error_count"`
	ParseErrors            int64      `json:"parse_errors"`
	LastUpdate             *time.Time `json:"last_update"`
	CacheSize              int        `json:"analysis_cache_size"`
	HistorySize            int        `json:"history_size"`
	LeaguesTracked         int        `json:"leagues_tracked"`
	PlayersTracked         int        `json:"players_tracked"`
	OpportunityCount       int        `json:"opportunity_count"`
	IngestState            string     `json:"ingest_state"`
	UpdateFrequencyMinutes float64    `json:"update_frequency_minutes"`
	ErrorRate              float64    `json:"error_rate"`
}
