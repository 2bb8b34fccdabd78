package subscriber

import (
	"context"

	infraCache "github.com/eventwish/fraudguard/pkg/infra/cache"
	"github.com/eventwish/fraudguard/pkg/infra/cache/event"
	"github.com/sirupsen/logrus"
)

type InvalidateKeyEventSubscriber struct {
	logger *logrus.Logger
	cache  infraCache.Client
}

func NewInvalidateKeyEventSubscriber(
	logger *logrus.Logger,
	c infraCache.Client,
) infraCache.EventSubscriber[event.InvalidateKeyEvent] {
	return &InvalidateKeyEventSubscriber{
		logger: logger,
		cache:  c,
	}
}

func (s InvalidateKeyEventSubscriber) OnEvent(_ context.Context, evt event.InvalidateKeyEvent) error {
	if evt.Origin == s.cache.InstanceID() {
		return nil
	}
	s.logger.WithFields(logrus.Fields{
		"namespace": evt.Namespace,
		"key":       evt.Key,
	}).Debug("invalidating local cache entry")
	s.cache.Evict(evt.Namespace, evt.Key)
	return nil
}
