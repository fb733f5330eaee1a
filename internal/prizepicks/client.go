// Package prizepicks talks to the public projections API. Every request goes
// through a minimum inter-request gap, a circuit breaker and the retry
// policy; successful bodies are memoized in a short-lived TTL cache.
package prizepicks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/a1betting/prop-engine/internal/cache"
	"github.com/a1betting/prop-engine/internal/retry"
)

const (
	// DefaultBaseURL is the public projections API
	DefaultBaseURL = "https://api.prizepicks.com"

	// DefaultTimeout is the per-request HTTP timeout
	DefaultTimeout = 30 * time.Second

	userAgent = "prop-engine/1.0"
	includes  = "new_player,league,stat_type"
)

// ErrForbidden means the API refused our credentials or origin. It is never retried.
var ErrForbidden = errors.New("prizepicks: forbidden (check API key / access)")

// StatusError is a non-200 response from the API
type StatusError struct {
	StatusCode int
	RetryAfter time.Duration
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("prizepicks: status %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether the status is worth retrying.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "propengine_upstream_requests_total",
		Help: "Upstream API requests by HTTP status (0 = transport error)",
	}, []string{"status"})

	requestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "propengine_upstream_request_duration_seconds",
		Help:    "Duration of upstream API requests",
		Buckets: prometheus.DefBuckets,
	})

	rateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "propengine_upstream_rate_limited_total",
		Help: "Upstream 429 responses",
	})
)

// Config configures the API client
type Config struct {
	BaseURL        string
	APIKey         string
	Timeout        time.Duration
	MinInterval    time.Duration
	MaxRetries     int
	RetryBaseDelay time.Duration
	PerPage        int
	MaxPages       int

	CacheTTL  time.Duration
	CacheSize int

	BreakerFailureRatio float64
	BreakerOpenTimeout  time.Duration

	HTTPClient *http.Client
	Logger     *zap.Logger
	// Sleep replaces the context-aware sleep used between retries.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Client is a rate-limited projections API client. It is safe for concurrent
// use; requests are spaced by at least MinInterval.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.SugaredLogger

	limiter *rate.Limiter

	retryBaseDelay time.Duration
	perPage        int
	maxPages       int

	responses *retry.Cached[[]byte]
	breaker   *gobreaker.CircuitBreaker
}

// NewClient creates a client, filling zero config values with defaults.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.PerPage <= 0 {
		cfg.PerPage = 250
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 20
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 256
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Minute
	}
	if cfg.BreakerFailureRatio <= 0 {
		cfg.BreakerFailureRatio = 0.6
	}
	if cfg.BreakerOpenTimeout <= 0 {
		cfg.BreakerOpenTimeout = 2 * time.Minute
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Sleep == nil {
		cfg.Sleep = retry.SleepContext
	}

	logger := cfg.Logger.Sugar()
	c := &Client{
		baseURL:        cfg.BaseURL,
		apiKey:         cfg.APIKey,
		httpClient:     cfg.HTTPClient,
		logger:         logger,
		limiter:        newLimiter(cfg.MinInterval),
		retryBaseDelay: cfg.RetryBaseDelay,
		perPage:        cfg.PerPage,
		maxPages:       cfg.MaxPages,
	}

	c.responses = retry.NewCached(
		cache.NewTTL[[]byte](cfg.CacheSize, cfg.CacheTTL),
		retry.Policy{MaxRetries: cfg.MaxRetries, BaseDelay: cfg.RetryBaseDelay, Sleep: cfg.Sleep},
	)

	ratio := cfg.BreakerFailureRatio
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "prizepicks",
		Timeout: cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= ratio
		},
		// Only transport errors and 5xx say anything about upstream health.
		IsSuccessful: func(err error) bool {
			var se *StatusError
			if errors.As(err, &se) {
				return se.StatusCode < 500
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warnw("Circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return c
}

// CachedResponses returns how many response bodies are currently memoized.
func (c *Client) CachedResponses() int {
	return c.responses.Len()
}

// Leagues lists every league the API offers.
func (c *Client) Leagues(ctx context.Context) ([]Resource, error) {
	body, err := c.get(ctx, "/leagues", nil)
	if err != nil {
		return nil, err
	}
	doc, err := decodeDocument(body)
	if err != nil {
		return nil, err
	}
	return doc.Data, nil
}

// ProjectionPages fetches every page of projections for leagueID, with
// player, league and stat type records sideloaded. Pages fetched before a
// failure are returned together with the error.
func (c *Client) ProjectionPages(ctx context.Context, leagueID string) ([]Document, error) {
	var pages []Document
	for page := 1; page <= c.maxPages; page++ {
		params := url.Values{}
		params.Set("include", includes)
		params.Set("per_page", strconv.Itoa(c.perPage))
		params.Set("single_stat", "true")
		params.Set("page", strconv.Itoa(page))
		if leagueID != "" {
			params.Set("league_id", leagueID)
		}

		body, err := c.get(ctx, "/projections", params)
		if err != nil {
			return pages, fmt.Errorf("league %s page %d: %w", leagueID, page, err)
		}
		doc, err := decodeDocument(body)
		if err != nil {
			return pages, fmt.Errorf("league %s page %d: %w", leagueID, page, err)
		}
		pages = append(pages, doc)

		if len(doc.Data) == 0 || !doc.hasMore(page, c.perPage) {
			break
		}
	}
	return pages, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	attempt := 0
	return c.responses.Call(ctx, "GET "+path, func(ctx context.Context) ([]byte, error) {
		attempt++
		return c.attempt(ctx, u, attempt)
	}, params.Encode())
}

// attempt performs one throttled request and classifies its failure for the
// retry policy.
func (c *Client) attempt(ctx context.Context, u string, n int) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, retry.Permanent(err)
	}

	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.do(ctx, u)
	})
	if err == nil {
		return out.([]byte), nil
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, retry.Permanent(fmt.Errorf("prizepicks: circuit open: %w", err))
	}

	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case se.StatusCode == http.StatusTooManyRequests:
			rateLimited.Inc()
			delay := se.RetryAfter
			if delay <= 0 {
				delay = c.retryBaseDelay * time.Duration(n)
			}
			c.logger.Warnw("Rate limited by upstream", "url", u, "attempt", n, "retryAfter", delay)
			return nil, retry.After(delay, err)
		case se.StatusCode == http.StatusForbidden:
			c.logger.Errorw("Upstream refused access", "url", u)
			return nil, retry.Permanent(fmt.Errorf("%w: %v", ErrForbidden, err))
		case se.StatusCode >= 500:
			c.logger.Warnw("Upstream server error", "url", u, "status", se.StatusCode, "attempt", n)
			return nil, err
		default:
			return nil, retry.Permanent(err)
		}
	}

	if ctx.Err() != nil {
		return nil, retry.Permanent(ctx.Err())
	}
	c.logger.Warnw("Upstream request failed", "url", u, "attempt", n, "error", err)
	return nil, err
}

// newLimiter allows one request per gap with no burst. A zero gap disables
// throttling.
func newLimiter(gap time.Duration) *rate.Limiter {
	if gap <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(gap), 1)
}

func (c *Client) do(ctx context.Context, u string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	requestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		requestsTotal.WithLabelValues("0").Inc()
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()
	requestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		snippet := string(body)
		if len(snippet) > 256 {
			snippet = snippet[:256]
		}
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
			Body:       snippet,
		}
	}
	return body, nil
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
