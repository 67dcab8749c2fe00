// Package notify fans committed notifications out to push subscribers.
//
// The notification ledger in the database is the source of truth and clients
// poll it; a Publisher only offers a best-effort hint that something new is
// waiting. Publish is always called after the owning transaction commits, so
// a subscriber never sees an event that was later rolled back.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tbourn/go-community-messaging/internal/domain"
)

// DefaultChannelPrefix is prepended to the recipient id to form the channel.
const DefaultChannelPrefix = "notifications:"

// Publisher delivers a committed notification to live subscribers.
type Publisher interface {
	Publish(ctx context.Context, n domain.Notification) error
}

// Noop discards every notification. It is used when no broker is configured.
type Noop struct{}

// Publish implements Publisher.
func (Noop) Publish(context.Context, domain.Notification) error { return nil }

// Event is the JSON payload published for each notification.
type Event struct {
	ID                 string    `json:"id"`
	UserID             string    `json:"user_id"`
	Message            string    `json:"message"`
	RelatedContentType string    `json:"related_content_type"`
	RelatedContentID   string    `json:"related_content_id"`
	Timestamp          time.Time `json:"timestamp"`
}

// RedisPublisher publishes notifications on "<prefix><user_id>" channels.
type RedisPublisher struct {
	client *redis.Client
	prefix string
}

// NewRedisPublisher wraps client. An empty prefix selects DefaultChannelPrefix.
func NewRedisPublisher(client *redis.Client, prefix string) *RedisPublisher {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return &RedisPublisher{client: client, prefix: prefix}
}

// Channel returns the channel notifications for userID are published on.
func (p *RedisPublisher) Channel(userID string) string { return p.prefix + userID }

// Publish implements Publisher.
func (p *RedisPublisher) Publish(ctx context.Context, n domain.Notification) error {
	payload, err := json.Marshal(Event{
		ID:                 n.ID,
		UserID:             n.UserID,
		Message:            n.Message,
		RelatedContentType: string(n.RelatedContentType),
		RelatedContentID:   n.RelatedContentID,
		Timestamp:          n.Timestamp,
	})
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, p.Channel(n.UserID), payload).Err()
}

// Ping checks broker connectivity; used at startup.
func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (p *RedisPublisher) Close() error { return p.client.Close() }
