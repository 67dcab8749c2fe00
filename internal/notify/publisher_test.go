package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/go-community-messaging/internal/domain"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestNoop_Publish(t *testing.T) {
	var p Publisher = Noop{}
	assert.NoError(t, p.Publish(context.Background(), domain.Notification{ID: "n1"}))
}

func TestRedisPublisher_DefaultPrefix(t *testing.T) {
	_, client := newRedis(t)
	p := NewRedisPublisher(client, "")
	assert.Equal(t, "notifications:u1", p.Channel("u1"))
	assert.Equal(t, "feed.u1", NewRedisPublisher(client, "feed.").Channel("u1"))
}

func TestRedisPublisher_PublishesToRecipientChannel(t *testing.T) {
	ctx := context.Background()
	_, client := newRedis(t)
	p := NewRedisPublisher(client, "")
	require.NoError(t, p.Ping(ctx))

	sub := client.Subscribe(ctx, p.Channel("receiver"))
	defer sub.Close()
	// Wait for the subscription confirmation before publishing.
	_, err := sub.Receive(ctx)
	require.NoError(t, err)
	ch := sub.Channel()

	at := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	n := domain.Notification{
		ID:                 "n1",
		UserID:             "receiver",
		Message:            "new message request",
		RelatedContentType: domain.ContentMessage,
		RelatedContentID:   "req-1",
		Timestamp:          at,
	}
	require.NoError(t, p.Publish(ctx, n))

	select {
	case msg := <-ch:
		assert.Equal(t, "notifications:receiver", msg.Channel)
		var ev Event
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &ev))
		assert.Equal(t, "n1", ev.ID)
		assert.Equal(t, "message", ev.RelatedContentType)
		assert.Equal(t, "req-1", ev.RelatedContentID)
		assert.True(t, ev.Timestamp.Equal(at))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published notification")
	}
}

func TestRedisPublisher_BrokerDown(t *testing.T) {
	mr, client := newRedis(t)
	p := NewRedisPublisher(client, "")
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.Error(t, p.Publish(ctx, domain.Notification{ID: "n1", UserID: "u"}))
}
