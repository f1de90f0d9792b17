package broker

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPubSub(t *testing.T, namespace string) (*RedisPubSub, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisPubSub(client, namespace), mr
}

func TestRedisPubSub_PublishUsesNamespacedChannel(t *testing.T) {
	ps, mr := newTestPubSub(t, "")
	sub := mr.NewSubscriber()
	defer sub.Close()
	sub.Subscribe("seguir.activity.added")

	// The subscriber delivers on an unbuffered channel, so drain it before
	// publishing or Publish blocks.
	got := make(chan miniredis.PubsubMessage, 1)
	go func() {
		if msg, ok := <-sub.Messages(); ok {
			got <- msg
		}
	}()

	require.NoError(t, ps.Publish(context.Background(), "activity.added", map[string]string{"item": "i1"}))

	select {
	case msg := <-got:
		assert.Equal(t, "seguir.activity.added", msg.Channel)
		assert.JSONEq(t, `{"item":"i1"}`, msg.Message)
	case <-time.After(time.Second):
		t.Fatal("no message published")
	}
}

func TestRedisPubSub_SubscribeDeliversPayload(t *testing.T) {
	ps, _ := newTestPubSub(t, "feedtest")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan []byte, 1)
	require.NoError(t, ps.Subscribe(ctx, "activity.removed", func(_ context.Context, payload []byte) {
		got <- payload
	}))

	require.NoError(t, ps.Publish(ctx, "activity.removed", map[string]string{"item": "i9"}))

	select {
	case payload := <-got:
		assert.JSONEq(t, `{"item":"i9"}`, string(payload))
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive message")
	}
}

func TestNopPubSub(t *testing.T) {
	var p NopPubSub
	assert.NoError(t, p.Publish(context.Background(), "x", nil))
	assert.NoError(t, p.Subscribe(context.Background(), "x", nil))
}
