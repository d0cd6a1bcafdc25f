// Package realtime announces membership changes so connected clients can
// re-query. Delivery is best-effort.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Event kinds
const (
	EventJoined    = "participant.joined"
	EventRequested = "participant.requested"
	EventApproved  = "participant.approved"
	EventRejected  = "participant.rejected"
	EventLeft      = "participant.left"
	EventInvited   = "invite.created"
	EventResponded = "invite.responded"
)

// historySize is how many recent events are kept per radar.
const historySize = 50

// Event is the payload published for a radar.
type Event struct {
	Type    string    `json:"type"`
	RadarID string    `json:"radar_id"`
	UserID  string    `json:"user_id,omitempty"`
	Status  string    `json:"status,omitempty"`
	At      time.Time `json:"at"`
}

// Publisher sends radar events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Channel returns the pub/sub channel for radarID.
func Channel(radarID string) string {
	return "radar:" + radarID
}

// RedisPublisher publishes events on Redis pub/sub and keeps a short history
// list per radar for clients that reconnect.
type RedisPublisher struct {
	client *redis.Client
}

// NewRedisPublisher connects to redisURL
func NewRedisPublisher(redisURL string) (*RedisPublisher, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisPublisher{client: client}, nil
}

// NewRedisPublisherWithClient creates a publisher from an existing client
func NewRedisPublisherWithClient(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

// Publish implements Publisher
func (p *RedisPublisher) Publish(ctx context.Context, e Event) error {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	channel := Channel(e.RadarID)
	_, err = p.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Publish(ctx, channel, data)
		pipe.LPush(ctx, channel+":history", data)
		pipe.LTrim(ctx, channel+":history", 0, historySize-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}

// Recent returns up to n of the latest events for radarID, newest first.
func (p *RedisPublisher) Recent(ctx context.Context, radarID string, n int) ([]Event, error) {
	raw, err := p.client.LRange(ctx, Channel(radarID)+":history", 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	events := make([]Event, 0, len(raw))
	for _, item := range raw {
		var e Event
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			continue
		}
		events = append(events, e)
	}
	return events, nil
}

// Close closes the Redis connection
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

// Nop discards every event.
type Nop struct{}

// Publish implements Publisher
func (Nop) Publish(context.Context, Event) error { return nil }

// Notify publishes e on p and logs a failure instead of returning it.
func Notify(ctx context.Context, p Publisher, e Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, e); err != nil {
		log.Printf("realtime: %s for radar %s dropped: %v", e.Type, e.RadarID, err)
	}
}
