package repository

import (
	"context"
	"sync"
	"time"

	"github.com/eventwish/fraudguard/pkg/domain/reputation"
)

type memoryReputationRepository struct {
	mu       sync.Mutex
	entities map[reputation.Key]reputation.Entity
}

func NewMemoryReputationRepository() reputation.Repository {
	return &memoryReputationRepository{
		entities: make(map[reputation.Key]reputation.Entity),
	}
}

func (r *memoryReputationRepository) Find(_ context.Context, key reputation.Key) (*reputation.Entity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entities[key]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (r *memoryReputationRepository) FindMany(_ context.Context, keys []reputation.Key) (map[reputation.Key]reputation.Entity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[reputation.Key]reputation.Entity, len(keys))
	for _, k := range keys {
		if e, ok := r.entities[k]; ok {
			out[k] = e
		}
	}
	return out, nil
}

// Transact runs fn on copies and commits them only when fn succeeds.
func (r *memoryReputationRepository) Transact(ctx context.Context, keys []reputation.Key, fn reputation.TransactFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	current := make(map[reputation.Key]*reputation.Entity, len(keys))
	for _, k := range keys {
		if e, ok := r.entities[k]; ok {
			c := e
			current[k] = &c
		}
	}
	if err := fn(current); err != nil {
		return err
	}

	now := time.Now()
	for k, e := range current {
		if e.CreatedAt.IsZero() {
			e.CreatedAt = now
		}
		e.UpdatedAt = now
		r.entities[k] = *e
	}
	return nil
}
