package subscriber

import (
	"context"

	infraCache "github.com/eventwish/fraudguard/pkg/infra/cache"
	"github.com/eventwish/fraudguard/pkg/infra/cache/event"
	"github.com/sirupsen/logrus"
)

type FlushNamespaceEventSubscriber struct {
	logger *logrus.Logger
	cache  infraCache.Client
}

func NewFlushNamespaceEventSubscriber(
	logger *logrus.Logger,
	c infraCache.Client,
) infraCache.EventSubscriber[event.FlushNamespaceEvent] {
	return &FlushNamespaceEventSubscriber{
		logger: logger,
		cache:  c,
	}
}

func (s FlushNamespaceEventSubscriber) OnEvent(_ context.Context, evt event.FlushNamespaceEvent) error {
	if evt.Origin == s.cache.InstanceID() {
		return nil
	}
	s.logger.WithField("namespace", evt.Namespace).Debug("flushing local cache namespace")
	s.cache.EvictAll(evt.Namespace)
	return nil
}
