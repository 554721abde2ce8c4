package main

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoisonQueue(t *testing.T) {
	if os.Getenv("REDIS_ADDR") == "" {
		t.Skip("REDIS_ADDR is required")
	}

	ctx := context.Background()
	logger := watermill.NopLogger{}

	rdb := redis.NewClient(&redis.Options{Addr: os.Getenv("REDIS_ADDR")})
	defer rdb.Close()

	stream := "PoisonQueue-" + uuid.NewString()
	originalTopic := "events." + uuid.NewString()

	pub, err := redisstream.NewPublisher(redisstream.PublisherConfig{Client: rdb}, logger)
	require.NoError(t, err)

	sub, err := redisstream.NewSubscriber(redisstream.SubscriberConfig{
		Client:        rdb,
		ConsumerGroup: "poison-queue-cli-test",
	}, logger)
	require.NoError(t, err)

	originalMessages, err := sub.Subscribe(ctx, originalTopic)
	require.NoError(t, err)

	var uuids []string
	for i := 0; i < 5; i++ {
		msg := message.NewMessage(watermill.NewUUID(), []byte("{}"))
		msg.Metadata.Set(middleware.ReasonForPoisonedKey, "network down")
		msg.Metadata.Set(middleware.PoisonedTopicKey, originalTopic)
		require.NoError(t, pub.Publish(stream, msg))
		uuids = append(uuids, msg.UUID)
	}

	h, err := NewHandler(rdb, stream)
	require.NoError(t, err)

	assertMessages(t, h, uuids)

	// preview doesn't consume
	assertMessages(t, h, uuids)

	require.NoError(t, h.Remove(ctx, uuids[0]))
	require.NoError(t, h.Requeue(ctx, uuids[3]))
	assert.ErrorIs(t, h.Requeue(ctx, uuid.NewString()), ErrMessageNotFound)

	assertMessages(t, h, []string{uuids[1], uuids[2], uuids[4]})

	select {
	case msg := <-originalMessages:
		assert.Equal(t, uuids[3], msg.UUID)
		msg.Ack()
	case <-time.After(5 * time.Second):
		t.Fatal("requeued message not received")
	}
}

func assertMessages(t *testing.T, h *Handler, expectedUUIDs []string) {
	t.Helper()

	messages, err := h.Preview(context.Background())
	require.NoError(t, err)
	require.Len(t, messages, len(expectedUUIDs))

	for i, msg := range messages {
		assert.Equal(t, expectedUUIDs[i], msg.ID)
		assert.Equal(t, "network down", msg.Reason)
	}
}
