package handlers

import (
	"context"
	"strings"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/a1betting/prop-engine/internal/models"
)

// MockService serves fixed projections and analyses
type MockService struct {
	Projections   []models.Projection
	Analyses      map[string]models.ProjectionAnalysis
	Opportunities []models.Opportunity
	Latest        []models.Opportunity
	ServiceStats  models.ServiceStats

	GotMinValue      float64
	GotMinConfidence float64
}

func (m *MockService) GetCurrentProjections() []models.Projection { return m.Projections }

func (m *MockService) GetProjectionsByLeague(league string) []models.Projection {
	var out []models.Projection
	for _, p := range m.Projections {
		if strings.EqualFold(p.League, league) {
			out = append(out, p)
		}
	}
	return out
}

func (m *MockService) GetProjectionsByPlayer(name string) []models.Projection {
	var out []models.Projection
	for _, p := range m.Projections {
		if strings.Contains(strings.ToLower(p.PlayerName), strings.ToLower(name)) {
			out = append(out, p)
		}
	}
	return out
}

func (m *MockService) GetProjection(id string) (models.Projection, bool) {
	for _, p := range m.Projections {
		if p.ID == id {
			return p, true
		}
	}
	return models.Projection{}, false
}

func (m *MockService) GetAnalysis(id string) (models.ProjectionAnalysis, bool) {
	a, ok := m.Analyses[id]
	return a, ok
}

func (m *MockService) GetHighValueOpportunities(minValue, minConfidence float64) []models.Opportunity {
	m.GotMinValue = minValue
	m.GotMinConfidence = minConfidence
	return m.Opportunities
}

func (m *MockService) GetLatestOpportunities() []models.Opportunity { return m.Latest }

func (m *MockService) GetServiceStats() models.ServiceStats { return m.ServiceStats }

// MockDB records executed SQL
type MockDB struct {
	PingErr error
	ExecErr error
	Execs   []string
}

func (m *MockDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	m.Execs = append(m.Execs, sql)
	return pgconn.CommandTag{}, m.ExecErr
}

func (m *MockDB) Ping(ctx context.Context) error { return m.PingErr }

// MockClickHouseConn implements the two driver.Conn methods handlers use
type MockClickHouseConn struct {
	driver.Conn
	PingErr error
	ExecErr error
	Execs   []string
}

func (m *MockClickHouseConn) Ping(ctx context.Context) error { return m.PingErr }

func (m *MockClickHouseConn) Exec(ctx context.Context, query string, args ...any) error {
	m.Execs = append(m.Execs, query)
	return m.ExecErr
}

type MockPinger struct {
	Err error
}

func (m *MockPinger) Ping(ctx context.Context) error { return m.Err }

type MockQueue struct {
	Depth int
}

func (m *MockQueue) QueueDepth() int { return m.Depth }
