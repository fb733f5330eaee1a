package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

type Config struct {
	// Server
	Port int
	Env  string

	// CORS
	AllowedOrigins []string

	// Database URLs. Empty selects the no-op implementation.
	PostgresURL   string
	ClickHouseURL string
	RedisURL      string

	// Upstream API
	PrizePicksBaseURL   string
	PrizePicksAPIKey    string
	RequestTimeout      time.Duration
	RateLimitGap        time.Duration
	MaxRetries          int
	RetryBaseDelay      time.Duration
	ProjectionsPerPage  int
	ProjectionsMaxPages int
	ResponseCacheTTL    time.Duration
	ResponseCacheSize   int
	BreakerFailureRatio float64
	BreakerOpenTimeout  time.Duration

	// Loops
	IngestInterval      time.Duration
	IngestCooldown      time.Duration
	AnalysisInterval    time.Duration
	AnalysisCooldown    time.Duration
	OpportunityInterval time.Duration
	AccuracySchedule    string
	AccuracyLookback    time.Duration

	// ResultsTimezone names the zone whose calendar date keys
	// player_performance.game_date.
	ResultsTimezone string

	// Projection store
	HistorySize int
	TrendSize   int

	// Analysis
	HighQualityLeagues       []string
	OpportunityMinValue      float64
	OpportunityMinConfidence float64
	OpportunityMaxRisk       float64

	// Analysis snapshot sink
	SinkWorkerCount   int
	SinkQueueSize     int
	SinkBatchSize     int
	SinkFlushInterval time.Duration
}

// Load loads configuration from environment variables and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		Port: getEnvInt("PORT", 8080),
		Env:  getEnv("ENV", "development"),

		AllowedOrigins: getEnvList("ALLOWED_ORIGINS", "http://localhost:3000"),

		PostgresURL:   os.Getenv("POSTGRES_URL"),
		ClickHouseURL: os.Getenv("CLICKHOUSE_URL"),
		RedisURL:      os.Getenv("REDIS_URL"),

		PrizePicksBaseURL:   getEnv("PRIZEPICKS_BASE_URL", "https://api.prizepicks.com"),
		PrizePicksAPIKey:    os.Getenv("PRIZEPICKS_API_KEY"),
		RequestTimeout:      getEnvDuration("REQUEST_TIMEOUT", 30*time.Second),
		RateLimitGap:        getEnvDuration("RATE_LIMIT_GAP", 2*time.Second),
		MaxRetries:          getEnvInt("MAX_RETRIES", 3),
		RetryBaseDelay:      getEnvDuration("RETRY_BASE_DELAY", 10*time.Second),
		ProjectionsPerPage:  getEnvInt("PROJECTIONS_PER_PAGE", 250),
		ProjectionsMaxPages: getEnvInt("PROJECTIONS_MAX_PAGES", 20),
		ResponseCacheTTL:    getEnvDuration("RESPONSE_CACHE_TTL", 60*time.Second),
		ResponseCacheSize:   getEnvInt("RESPONSE_CACHE_SIZE", 256),
		BreakerFailureRatio: getEnvFloat("BREAKER_FAILURE_RATIO", 0.6),
		BreakerOpenTimeout:  getEnvDuration("BREAKER_OPEN_TIMEOUT", 2*time.Minute),

		IngestInterval:      getEnvDuration("INGEST_INTERVAL", 5*time.Minute),
		IngestCooldown:      getEnvDuration("INGEST_COOLDOWN", time.Minute),
		AnalysisInterval:    getEnvDuration("ANALYSIS_INTERVAL", 60*time.Second),
		AnalysisCooldown:    getEnvDuration("ANALYSIS_COOLDOWN", 30*time.Second),
		OpportunityInterval: getEnvDuration("OPPORTUNITY_INTERVAL", 5*time.Minute),
		AccuracySchedule:    getEnv("ACCURACY_SCHEDULE", "@every 1h"),
		AccuracyLookback:    getEnvDuration("ACCURACY_LOOKBACK", 14*24*time.Hour),

		ResultsTimezone: getEnv("RESULTS_TIMEZONE", "America/New_York"),

		HistorySize: getEnvInt("HISTORY_SIZE", 10000),
		TrendSize:   getEnvInt("TREND_SIZE", 100),

		HighQualityLeagues:       getEnvList("HIGH_QUALITY_LEAGUES", "NBA,NFL,MLB"),
		OpportunityMinValue:      getEnvFloat("OPPORTUNITY_MIN_VALUE", 0.05),
		OpportunityMinConfidence: getEnvFloat("OPPORTUNITY_MIN_CONFIDENCE", 0.7),
		OpportunityMaxRisk:       getEnvFloat("OPPORTUNITY_MAX_RISK", 0.3),

		SinkWorkerCount:   getEnvInt("SINK_WORKER_COUNT", 2),
		SinkQueueSize:     getEnvInt("SINK_QUEUE_SIZE", 5000),
		SinkBatchSize:     getEnvInt("SINK_BATCH_SIZE", 500),
		SinkFlushInterval: getEnvDuration("SINK_FLUSH_INTERVAL", 5*time.Second),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the loops cannot run with.
func (c *Config) Validate() error {
	positive := []struct {
		name string
		ok   bool
	}{
		{"PORT", c.Port > 0},
		{"INGEST_INTERVAL", c.IngestInterval > 0},
		{"INGEST_COOLDOWN", c.IngestCooldown > 0},
		{"ANALYSIS_INTERVAL", c.AnalysisInterval > 0},
		{"ANALYSIS_COOLDOWN", c.AnalysisCooldown > 0},
		{"OPPORTUNITY_INTERVAL", c.OpportunityInterval > 0},
		{"MAX_RETRIES", c.MaxRetries > 0},
		{"HISTORY_SIZE", c.HistorySize > 0},
		{"TREND_SIZE", c.TrendSize > 0},
		{"PROJECTIONS_PER_PAGE", c.ProjectionsPerPage > 0},
		{"PROJECTIONS_MAX_PAGES", c.ProjectionsMaxPages > 0},
		{"SINK_WORKER_COUNT", c.SinkWorkerCount > 0},
		{"SINK_QUEUE_SIZE", c.SinkQueueSize > 0},
		{"SINK_BATCH_SIZE", c.SinkBatchSize > 0},
		{"ACCURACY_LOOKBACK", c.AccuracyLookback > 0},
	}
	for _, p := range positive {
		if !p.ok {
			return fmt.Errorf("invalid configuration: %s must be positive", p.name)
		}
	}
	if c.RateLimitGap < 0 || c.RetryBaseDelay < 0 {
		return fmt.Errorf("invalid configuration: RATE_LIMIT_GAP and RETRY_BASE_DELAY must not be negative")
	}
	if c.BreakerFailureRatio <= 0 || c.BreakerFailureRatio > 1 {
		return fmt.Errorf("invalid configuration: BREAKER_FAILURE_RATIO must be in (0, 1], got %v", c.BreakerFailureRatio)
	}
	if c.OpportunityMinConfidence < 0 || c.OpportunityMinConfidence > 1 {
		return fmt.Errorf("invalid configuration: OPPORTUNITY_MIN_CONFIDENCE must be in [0, 1], got %v", c.OpportunityMinConfidence)
	}
	if strings.TrimSpace(c.AccuracySchedule) == "" {
		return fmt.Errorf("invalid configuration: ACCURACY_SCHEDULE is empty")
	}
	if _, err := time.LoadLocation(c.ResultsTimezone); err != nil {
		return fmt.Errorf("invalid configuration: RESULTS_TIMEZONE: %w", err)
	}
	return nil
}

// ResultsLocation returns the zone named by ResultsTimezone, or UTC when it
// cannot be loaded.
func (c *Config) ResultsLocation() *time.Location {
	loc, err := time.LoadLocation(c.ResultsTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// IsProduction reports whether ENV selects production logging.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvList(key, fallback string) []string {
	var out []string
	for _, item := range strings.Split(getEnv(key, fallback), ",") {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
