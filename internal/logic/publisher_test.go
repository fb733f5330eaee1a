package logic

import (
	"context"
	"testing"
	"time"

	"github.com/a1betting/prop-engine/internal/models"
)

func TestRedisPublisher_Publish(t *testing.T) {
	rdb := NewMockRedis()
	p := NewRedisPublisher(rdb, time.Minute)

	opps := []models.Opportunity{
		{ID: "1", Projection: models.Projection{ID: "a", League: "NBA"}},
		{ID: "2", Projection: models.Projection{ID: "b", League: "NFL"}},
	}
	if err := p.Publish(context.Background(), opps); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	if n := len(rdb.Streams[OpportunityStream]); n != 2 {
		t.Errorf("global stream has %d entries, want 2", n)
	}
	if n := len(rdb.Streams["opportunities.detected.nba"]); n != 1 {
		t.Errorf("nba stream has %d entries, want 1", n)
	}
	if _, ok := rdb.Streams[OpportunityStream][0]["opportunity"]; !ok {
		t.Errorf("stream entry missing opportunity field")
	}
	if _, ok := rdb.Keys[latestOpportunitiesKey]; !ok {
		t.Errorf("latest snapshot not stored")
	}
	if err := p.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}
