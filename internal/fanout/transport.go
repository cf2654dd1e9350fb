package fanout

import (
	"context"
	"fmt"

	"github.com/mbeoliero/kit/log"
	"github.com/redis/go-redis/v9"

	"github.com/mbeoliero/parley/pkg/constant"
)

// Transport publishes a serialized envelope on a topic
type Transport interface {
	Publish(ctx context.Context, topic string, frame []byte) error
}

// Source delivers every frame published on any topic until ctx ends
type Source interface {
	Run(ctx context.Context, handle func(topic string, frame []byte)) error
}

// Channel maps a topic to its Redis channel
func Channel(topic string) string {
	return constant.TopicChannel(topic)
}

// TopicOf maps a Redis channel back to its topic
func TopicOf(channel string) (string, bool) {
	return constant.TopicFromChannel(channel)
}

// RedisTransport is the Redis pub/sub transport
type RedisTransport struct {
	rdb *redis.Client
}

// NewRedisTransport creates a new RedisTransport
func NewRedisTransport(rdb *redis.Client) *RedisTransport {
	return &RedisTransport{rdb: rdb}
}

// Publish publishes frame on topic's channel
func (t *RedisTransport) Publish(ctx context.Context, topic string, frame []byte) error {
	return t.rdb.Publish(ctx, Channel(topic), frame).Err()
}

// Run pattern-subscribes to every topic channel.
// go-redis reconnects the subscription on its own after network errors.
func (t *RedisTransport) Run(ctx context.Context, handle func(topic string, frame []byte)) error {
	sub := t.rdb.PSubscribe(ctx, constant.TopicPattern())
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe topics: %w", err)
	}
	log.Info("fanout subscriber started: pattern=%s", constant.TopicPattern())

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			topic, ok := TopicOf(msg.Channel)
			if !ok {
				log.Warn("fanout subscriber: unexpected channel %s", msg.Channel)
				continue
			}
			handle(topic, []byte(msg.Payload))
		}
	}
}
