package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const defaultNamespace = "seguir"

// RedisPubSub publishes notifications for downstream systems on
// "<namespace>.<topic>" channels.
type RedisPubSub struct {
	client    redis.UniversalClient
	namespace string
}

func NewRedisPubSub(client redis.UniversalClient, namespace string) *RedisPubSub {
	if namespace == "" {
		namespace = defaultNamespace
	}
	return &RedisPubSub{client: client, namespace: namespace}
}

// NewRedisClient connects to a single node or a cluster, depending on how
// many comma-separated addresses are given.
func NewRedisClient(addrs []string, password string, db int) redis.UniversalClient {
	return redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    addrs,
		Password: password,
		DB:       db,
	})
}

func (p *RedisPubSub) channel(topic string) string {
	return p.namespace + "." + topic
}

func (p *RedisPubSub) Publish(ctx context.Context, topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s notification: %w", topic, err)
	}
	return p.client.Publish(ctx, p.channel(topic), data).Err()
}

// Subscribe confirms the subscription, then delivers every message on topic
// to handler until ctx is done.
func (p *RedisPubSub) Subscribe(ctx context.Context, topic string, handler func(ctx context.Context, payload []byte)) error {
	sub := p.client.Subscribe(ctx, p.channel(topic))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				handler(ctx, []byte(msg.Payload))
			}
		}
	}()
	return nil
}

func (p *RedisPubSub) Close() error {
	return p.client.Close()
}

// NopPubSub drops every notification; used when no Redis is configured.
type NopPubSub struct{}

func (NopPubSub) Publish(context.Context, string, any) error { return nil }

func (NopPubSub) Subscribe(context.Context, string, func(context.Context, []byte)) error {
	return nil
}
