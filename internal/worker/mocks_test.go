package worker

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/a1betting/prop-engine/internal/models"
	"github.com/a1betting/prop-engine/internal/prizepicks"
	"github.com/a1betting/prop-engine/internal/store"
)

// MockSource serves canned league and projection pages
type MockSource struct {
	LeaguesFunc func(ctx context.Context) ([]prizepicks.Resource, error)
	Pages       map[string][]prizepicks.Document
	Errors      map[string]error

	mu        sync.Mutex
	Requested []string
}

func (m *MockSource) Leagues(ctx context.Context) ([]prizepicks.Resource, error) {
	if m.LeaguesFunc != nil {
		return m.LeaguesFunc(ctx)
	}
	return nil, errors.New("leagues unavailable")
}

func (m *MockSource) ProjectionPages(ctx context.Context, leagueID string) ([]prizepicks.Document, error) {
	m.mu.Lock()
	m.Requested = append(m.Requested, leagueID)
	m.mu.Unlock()
	return m.Pages[leagueID], m.Errors[leagueID]
}

// MockSink records every batch handed to it
type MockSink struct {
	mu      sync.Mutex
	Batches [][]models.Projection
}

func (m *MockSink) UpsertBatch(ctx context.Context, projections []models.Projection) store.UpsertResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Batches = append(m.Batches, projections)
	return store.UpsertResult{Stored: len(projections)}
}

// MockHistory is an in-memory store.HistoryStore. PendingResults behaves
// like the SQL query: unresolved rows in the window, keyset ordered, limited.
type MockHistory struct {
	store.NopHistory
	Pending  []models.HistoricalProjection
	Results  map[string]models.PerformanceRecord
	Resolved []models.ResolvedResult

	Filters   []store.PendingFilter
	GameDates []time.Time
}

func (m *MockHistory) PendingResults(ctx context.Context, f store.PendingFilter) ([]models.HistoricalProjection, error) {
	m.Filters = append(m.Filters, f)

	resolved := make(map[string]bool, len(m.Resolved))
	for _, r := range m.Resolved {
		resolved[r.ProjectionID] = true
	}

	var out []models.HistoricalProjection
	for _, h := range m.Pending {
		if resolved[h.ProjectionID] || h.StartTime.Before(f.Since) || !h.StartTime.Before(f.Before) {
			continue
		}
		if h.StartTime.Before(f.AfterStart) || (h.StartTime.Equal(f.AfterStart) && h.ProjectionID <= f.AfterID) {
			continue
		}
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].ProjectionID < out[j].ProjectionID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *MockHistory) FindResult(ctx context.Context, playerID, statType string, gameDate time.Time) (*models.PerformanceRecord, error) {
	m.GameDates = append(m.GameDates, gameDate)
	rec, ok := m.Results[models.TrendKey(playerID, statType)]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *MockHistory) ResolveResult(ctx context.Context, r models.ResolvedResult) error {
	m.Resolved = append(m.Resolved, r)
	return nil
}

// MockClickHouseConn records every batch sent
type MockClickHouseConn struct {
	mu      sync.Mutex
	Sent    [][][]any
	SendErr error
}

func (m *MockClickHouseConn) PrepareBatch(ctx context.Context, query string, opts ...driver.PrepareBatchOption) (driver.Batch, error) {
	return &MockBatch{conn: m}, nil
}

func (m *MockClickHouseConn) rows() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.Sent {
		n += len(b)
	}
	return n
}

type MockBatch struct {
	conn *MockClickHouseConn
	rows [][]any
	sent bool
}

func (m *MockBatch) IsSent() bool                   { return m.sent }
func (m *MockBatch) Rows() int                      { return len(m.rows) }
func (m *MockBatch) AppendStruct(v interface{}) error { return nil }
func (m *MockBatch) Column(int) driver.BatchColumn  { return nil }
func (m *MockBatch) Flush() error                   { return nil }
func (m *MockBatch) Abort() error                   { return nil }

func (m *MockBatch) Append(v ...interface{}) error {
	m.rows = append(m.rows, v)
	return nil
}

func (m *MockBatch) Send() error {
	m.conn.mu.Lock()
	defer m.conn.mu.Unlock()
	if m.conn.SendErr != nil {
		return m.conn.SendErr
	}
	m.sent = true
	m.conn.Sent = append(m.conn.Sent, m.rows)
	return nil
}
