package ipintel

import (
	"context"
	"time"

	"github.com/eventwish/fraudguard/pkg/infra/cache"
	"github.com/sirupsen/logrus"
)

type cachedProvider struct {
	next   Provider
	ns     cache.Namespace
	ttl    time.Duration
	logger *logrus.Logger
}

// NewCachedProvider remembers successful lookups in ns for ttl. Failures are
// never cached.
func NewCachedProvider(next Provider, ns cache.Namespace, ttl time.Duration, logger *logrus.Logger) Provider {
	return &cachedProvider{next: next, ns: ns, ttl: ttl, logger: logger}
}

func (p *cachedProvider) Lookup(ctx context.Context, ip string) (Info, error) {
	info, found, err := cache.GetJSON[Info](ctx, p.ns, ip)
	if err != nil {
		p.logger.WithError(err).WithField("ip", ip).Warn("ip intel cache read failed")
	}
	if found {
		return info, nil
	}

	info, err = p.next.Lookup(ctx, ip)
	if err != nil {
		return Info{}, err
	}
	if err := cache.SetJSON(ctx, p.ns, ip, info, p.ttl); err != nil {
		p.logger.WithError(err).WithField("ip", ip).Warn("ip intel cache write failed")
	}
	return info, nil
}
