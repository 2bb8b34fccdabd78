package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/eventwish/fraudguard/pkg/infra/cache/event"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

const reconnectDelay = time.Second

type redisEventListener struct {
	logger   *logrus.Logger
	rdb      *redis.Client
	mu       sync.RWMutex
	handlers map[reflect.Type][]func(ctx context.Context, ev any) error
	registry map[string]reflect.Type
}

func NewRedisEventListener(
	logger *logrus.Logger,
	rdb *redis.Client,
	registry map[string]reflect.Type,
) EventListener {
	return &redisEventListener{
		logger:   logger,
		rdb:      rdb,
		handlers: make(map[reflect.Type][]func(ctx context.Context, ev any) error),
		registry: registry,
	}
}

// RegisterEventSubscriber binds subscriber to the events of type T.
func RegisterEventSubscriber[T event.Event](l EventListener, subscriber EventSubscriber[T]) {
	var evt T
	l.Register(reflect.TypeOf(evt), func(ctx context.Context, ev any) error {
		typed, ok := ev.(T)
		if !ok {
			return fmt.Errorf("unexpected event %T", ev)
		}
		return subscriber.OnEvent(ctx, typed)
	})
}

func (r *redisEventListener) Register(eventType reflect.Type, handler func(ctx context.Context, ev any) error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[eventType] = append(r.handlers[eventType], handler)
}

func (r *redisEventListener) Listen(ctx context.Context, channels ...Channel) {
	channelNames := make([]string, 0, len(channels))
	for _, ch := range channels {
		channelNames = append(channelNames, string(ch))
	}

	for {
		if ctx.Err() != nil {
			r.logger.Info("redis pubsub listener shutting down")
			return
		}

		r.listenOnce(ctx, channelNames)

		if ctx.Err() != nil {
			return
		}

		r.logger.Warn("redis pubsub disconnected, reconnecting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (r *redisEventListener) listenOnce(ctx context.Context, channelNames []string) {
	pubSub := r.rdb.Subscribe(ctx, channelNames...)
	defer func() { _ = pubSub.Close() }()

	r.logger.WithField("channels", channelNames).Debug("redis pubsub connected")

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = pubSub.Close()
		case <-stop:
		}
	}()

	for msg := range pubSub.Channel() {
		if ctx.Err() != nil {
			return
		}
		r.HandleMessage(ctx, msg.Payload)
	}
}

// HandleMessage decodes one envelope and dispatches it to the registered subscribers.
func (r *redisEventListener) HandleMessage(ctx context.Context, payload string) {
	var envelope RedisMessage
	if err := json.Unmarshal([]byte(payload), &envelope); err != nil {
		r.logger.WithError(err).Error("error decoding redis message")
		return
	}

	concreteType, ok := r.registry[envelope.Type]
	if !ok {
		r.logger.WithField("type", envelope.Type).Error("unknown cache event type")
		return
	}

	eventPtr := reflect.New(concreteType)
	if err := json.Unmarshal(envelope.Event, eventPtr.Interface()); err != nil {
		r.logger.WithError(err).Error("error unmarshalling event data into concrete type")
		return
	}

	r.mu.RLock()
	handlers := r.handlers[concreteType]
	r.mu.RUnlock()

	concrete := eventPtr.Elem().Interface()
	for _, h := range handlers {
		if err := h(ctx, concrete); err != nil {
			r.logger.WithError(err).WithField("type", envelope.Type).Error("error executing cache event subscriber")
		}
	}
}
