package fingerprint

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

const DefaultProbeTimeout = 500 * time.Millisecond

type Record struct {
	Signals     map[string]string `json:"signals"`
	Order       []string          `json:"-"`
	Fingerprint string            `json:"fingerprint"`
	Strategy    string            `json:"strategy"`
}

type Option func(*Collector)

func WithProbeTimeout(d time.Duration) Option {
	return func(c *Collector) { c.probeTimeout = d }
}

func WithStrategies(strategies ...Strategy) Option {
	return func(c *Collector) { c.strategy = SelectStrategy(strategies...) }
}

type Collector struct {
	sources      []Source
	strategy     Strategy
	probeTimeout time.Duration
}

func NewCollector(sources []Source, opts ...Option) *Collector {
	c := &Collector{
		sources:      sources,
		strategy:     SelectStrategy(DefaultStrategies...),
		probeTimeout: DefaultProbeTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Collector) Strategy() Strategy {
	return c.strategy
}

// Collect resolves every source and digests the result. A probe that fails or
// times out contributes its "-not-supported" sentinel instead of aborting.
func (c *Collector) Collect(ctx context.Context) (Record, error) {
	values := make([]string, len(c.sources))
	order := make([]string, len(c.sources))

	var g errgroup.Group
	for i, src := range c.sources {
		order[i] = src.Name
		if src.Async {
			g.Go(func() error {
				values[i] = c.runBounded(ctx, src)
				return nil
			})
			continue
		}
		values[i] = runProbe(ctx, src)
	}
	_ = g.Wait()

	signals := make(map[string]string, len(c.sources))
	for i, name := range order {
		signals[name] = values[i]
	}

	data, err := Serialize(signals)
	if err != nil {
		return Record{}, err
	}
	return Record{
		Signals:     signals,
		Order:       order,
		Fingerprint: c.strategy.Sum(data),
		Strategy:    c.strategy.Name(),
	}, nil
}

// Serialize encodes signals as JSON with sorted keys.
func Serialize(signals map[string]string) ([]byte, error) {
	data, err := json.Marshal(signals)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize signals: %w", err)
	}
	return data, nil
}

func (c *Collector) runBounded(ctx context.Context, src Source) string {
	ctx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	result := make(chan string, 1)
	go func() {
		result <- runProbe(ctx, src)
	}()

	select {
	case v := <-result:
		return v
	case <-ctx.Done():
		return Unsupported(src.Name)
	}
}

func runProbe(ctx context.Context, src Source) (value string) {
	if src.Probe == nil {
		return Unsupported(src.Name)
	}
	defer func() {
		if r := recover(); r != nil {
			value = Unsupported(src.Name)
		}
	}()
	v, err := src.Probe(ctx)
	if err != nil || v == "" {
		return Unsupported(src.Name)
	}
	return v
}
