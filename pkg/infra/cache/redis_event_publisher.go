package cache

import (
	"context"
	"encoding/json"

	"github.com/eventwish/fraudguard/pkg/infra/cache/event"
	"github.com/go-redis/redis/v8"
)

type redisEventPublisher struct {
	rdb     *redis.Client
	channel Channel
}

func NewRedisEventPublisher(rdb *redis.Client, channel Channel) EventPublisher {
	return &redisEventPublisher{
		rdb:     rdb,
		channel: channel,
	}
}

func (p *redisEventPublisher) Publish(ctx context.Context, ev event.Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	envelope := RedisMessage{
		Type:  ev.Type(),
		Event: b,
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	return p.rdb.Publish(ctx, string(p.channel), string(data)).Err()
}
