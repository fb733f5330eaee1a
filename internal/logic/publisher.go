package logic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/a1betting/prop-engine/internal/models"
)

const (
	// OpportunityStream receives every detected opportunity
	OpportunityStream = "opportunities.detected"

	latestOpportunitiesKey = "opportunities:latest"
	streamMaxLen           = 10000
)

// Publisher announces detected opportunities to downstream consumers
type Publisher interface {
	Publish(ctx context.Context, opportunities []models.Opportunity) error
	Ping(ctx context.Context) error
}

// NopPublisher is selected when no Redis is configured
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, []models.Opportunity) error { return nil }
func (NopPublisher) Ping(context.Context) error                          { return nil }

// RedisPublisher writes opportunities to the global stream and a
// per-league stream, and keeps the latest ranked list under one key.
type RedisPublisher struct {
	client    RedisClient
	latestTTL time.Duration
}

func NewRedisPublisher(client RedisClient, latestTTL time.Duration) *RedisPublisher {
	return &RedisPublisher{client: client, latestTTL: latestTTL}
}

func (p *RedisPublisher) Publish(ctx context.Context, opportunities []models.Opportunity) error {
	for _, opp := range opportunities {
		payload, err := json.Marshal(opp)
		if err != nil {
			return fmt.Errorf("failed to marshal opportunity: %w", err)
		}
		for _, stream := range []string{OpportunityStream, LeagueStream(opp.Projection.League)} {
			err := p.client.XAdd(ctx, &redis.XAddArgs{
				Stream: stream,
				MaxLen: streamMaxLen,
				Approx: true,
				Values: map[string]interface{}{
					"opportunity": string(payload),
				},
			}).Err()
			if err != nil {
				return fmt.Errorf("failed to publish to stream %s: %w", stream, err)
			}
		}
	}

	latest, err := json.Marshal(opportunities)
	if err != nil {
		return fmt.Errorf("failed to marshal latest opportunities: %w", err)
	}
	if err := p.client.Set(ctx, latestOpportunitiesKey, latest, p.latestTTL).Err(); err != nil {
		return fmt.Errorf("failed to store latest opportunities: %w", err)
	}
	return nil
}

func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// LeagueStream is the per-league opportunity stream key.
func LeagueStream(league string) string {
	return OpportunityStream + "." + strings.ToLower(league)
}
