// Package events publishes pipeline lifecycle events on Redis pub/sub.
//
// Each event is published on the channel named after its type, as a JSON
// object:
//
//	{"type":"EVENT_PROMOTIONS_PARSED","runId":"…","at":"…","counts":{"nforn":12,…}}
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	PromotionsParsed = "EVENT_PROMOTIONS_PARSED"
	HarvestCompleted = "EVENT_HARVEST_COMPLETED"
)

// Event is the payload sent to subscribers.
type Event struct {
	Type   string         `json:"type"`
	RunID  string         `json:"runId,omitempty"`
	At     time.Time      `json:"at"`
	Counts map[string]int `json:"counts"`
}

// Publisher sends events to whoever is listening.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// redisPublisher is the subset of *redis.Client used here.
type redisPublisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisPublisher publishes events with PUBLISH.
type RedisPublisher struct {
	rdb redisPublisher
}

// NewRedisPublisher returns a publisher backed by rdb.
func NewRedisPublisher(rdb redisPublisher) *RedisPublisher {
	return &RedisPublisher{rdb: rdb}
}

func (p *RedisPublisher) Publish(ctx context.Context, e Event) error {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", e.Type, err)
	}
	if err := p.rdb.Publish(ctx, e.Type, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", e.Type, err)
	}
	return nil
}
