package logic

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/a1betting/prop-engine/internal/models"
)

// MockProjections is an in-memory ProjectionQuerier
type MockProjections struct {
	Items  map[string]models.Projection
	Trends map[string][]models.TrendPoint
}

func NewMockProjections(ps ...models.Projection) *MockProjections {
	m := &MockProjections{Items: make(map[string]models.Projection), Trends: make(map[string][]models.TrendPoint)}
	for _, p := range ps {
		m.Items[p.ID] = p
	}
	return m
}

func (m *MockProjections) Current() []models.Projection {
	out := make([]models.Projection, 0, len(m.Items))
	for _, p := range m.Items {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *MockProjections) Get(id string) (models.Projection, bool) {
	p, ok := m.Items[id]
	return p, ok
}

func (m *MockProjections) TrendPoints(key string) []models.TrendPoint { return m.Trends[key] }

func (m *MockProjections) ByLeague(league string) []models.Projection {
	var out []models.Projection
	for _, p := range m.Current() {
		if strings.EqualFold(p.League, league) {
			out = append(out, p)
		}
	}
	return out
}

func (m *MockProjections) ByPlayer(name string) []models.Projection {
	var out []models.Projection
	for _, p := range m.Current() {
		if strings.Contains(strings.ToLower(p.PlayerName), strings.ToLower(name)) {
			out = append(out, p)
		}
	}
	return out
}

func (m *MockProjections) Len() int        { return len(m.Items) }
func (m *MockProjections) HistoryLen() int { return len(m.Items) }
func (m *MockProjections) Tracked() (int, int) {
	ls, ps := map[string]bool{}, map[string]bool{}
	for _, p := range m.Items {
		ls[p.League], ps[p.PlayerID] = true, true
	}
	return len(ls), len(ps)
}

// MockPerformance serves canned history per (player, stat)
type MockPerformance struct {
	mu      sync.Mutex
	Records map[string][]models.PerformanceRecord
	Err     error
	Calls   int
}

func (m *MockPerformance) PlayerPerformance(ctx context.Context, playerID, statType string, limit int) ([]models.PerformanceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Records[models.TrendKey(playerID, statType)], nil
}

// MockIngest reports fixed scheduler stats
type MockIngest struct {
	Stat models.IngestStats
}

func (m *MockIngest) Stats() models.IngestStats  { return m.Stat }
func (m *MockIngest) Interval() time.Duration    { return 5 * time.Minute }

// MockRedis records stream writes
type MockRedis struct {
	Streams map[string][]map[string]interface{}
	Keys    map[string]interface{}
}

func NewMockRedis() *MockRedis {
	return &MockRedis{Streams: map[string][]map[string]interface{}{}, Keys: map[string]interface{}{}}
}

func (m *MockRedis) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	m.Streams[a.Stream] = append(m.Streams[a.Stream], a.Values.(map[string]interface{}))
	return redis.NewStringResult("1-0", nil)
}

func (m *MockRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	m.Keys[key] = value
	return redis.NewStatusResult("OK", nil)
}

func (m *MockRedis) Ping(ctx context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

// MockPublisher records published batches
type MockPublisher struct {
	Batches [][]models.Opportunity
}

func (m *MockPublisher) Publish(ctx context.Context, opps []models.Opportunity) error {
	m.Batches = append(m.Batches, opps)
	return nil
}

func (m *MockPublisher) Ping(ctx context.Context) error { return nil }

// MockSnapshots counts enqueued snapshots
type MockSnapshots struct {
	Snaps []models.AnalysisSnapshot
}

func (m *MockSnapshots) Enqueue(s models.AnalysisSnapshot) bool {
	m.Snaps = append(m.Snaps, s)
	return true
}
