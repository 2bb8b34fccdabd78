package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	domain "github.com/eventwish/fraudguard/pkg/domain/errors"
	"github.com/eventwish/fraudguard/pkg/domain/event"
	"github.com/shopspring/decimal"
)

type memoryEventRepository struct {
	mu          sync.RWMutex
	events      []event.AnalyticsEvent
	idempotency map[string]event.AnalyticsEvent
}

// NewMemoryEventRepository keeps events in process memory, ordered by timestamp.
func NewMemoryEventRepository() event.Repository {
	return &memoryEventRepository{
		idempotency: make(map[string]event.AnalyticsEvent),
	}
}

func (r *memoryEventRepository) Append(_ context.Context, evt *event.AnalyticsEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if evt.IdempotencyKey != nil {
		if _, ok := r.idempotency[*evt.IdempotencyKey]; ok {
			return fmt.Errorf("%w: %s", domain.ErrIdempotencyKeyProcessed, *evt.IdempotencyKey)
		}
	}
	stored := *evt
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	stored.Reasons = append(stored.Reasons[:0:0], evt.Reasons...)

	pos := sort.Search(len(r.events), func(i int) bool {
		return r.events[i].Timestamp.After(stored.Timestamp)
	})
	r.events = append(r.events, event.AnalyticsEvent{})
	copy(r.events[pos+1:], r.events[pos:])
	r.events[pos] = stored

	if stored.IdempotencyKey != nil {
		r.idempotency[*stored.IdempotencyKey] = stored
	}
	return nil
}

func (r *memoryEventRepository) QueryByTimeRange(
	_ context.Context,
	start, end time.Time,
	filter event.Filter,
) ([]event.AnalyticsEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	from := sort.Search(len(r.events), func(i int) bool {
		return !r.events[i].Timestamp.Before(start)
	})
	out := make([]event.AnalyticsEvent, 0)
	for i := from; i < len(r.events) && r.events[i].Timestamp.Before(end); i++ {
		if !filter.Matches(&r.events[i]) {
			continue
		}
		out = append(out, r.events[i])
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func (r *memoryEventRepository) FindByIdempotencyKey(_ context.Context, key string) (*event.AnalyticsEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	evt, ok := r.idempotency[key]
	if !ok {
		return nil, nil
	}
	return &evt, nil
}

func (r *memoryEventRepository) Summarize(_ context.Context, start, end time.Time) (event.Summary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sum := event.Summary{Revenue: decimal.Zero}
	from := sort.Search(len(r.events), func(i int) bool {
		return !r.events[i].Timestamp.Before(start)
	})
	for i := from; i < len(r.events) && r.events[i].Timestamp.Before(end); i++ {
		evt := &r.events[i]
		sum.Total++
		switch {
		case evt.Failed():
			sum.Failed++
		case evt.IsFraudulent:
			sum.Fraudulent++
			sum.Revenue = sum.Revenue.Add(evt.Revenue)
		}
	}
	return sum, nil
}
