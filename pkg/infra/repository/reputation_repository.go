package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/eventwish/fraudguard/pkg/domain/reputation"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type reputationRepository struct {
	db          *gorm.DB
	lockTimeout time.Duration
}

// NewReputationRepository stores entities in postgres. Transact locks rows
// with SELECT ... FOR UPDATE in primary-key order.
func NewReputationRepository(db *gorm.DB, lockTimeout time.Duration) reputation.Repository {
	return &reputationRepository{
		db:          db,
		lockTimeout: lockTimeout,
	}
}

func (r *reputationRepository) Find(ctx context.Context, key reputation.Key) (*reputation.Entity, error) {
	entity := new(reputation.Entity)
	err := r.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ? AND activity_count > 0", key.Type, key.ID).
		First(entity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find reputation %s: %w", key, err)
	}
	return entity, nil
}

func (r *reputationRepository) FindMany(ctx context.Context, keys []reputation.Key) (map[reputation.Key]reputation.Entity, error) {
	out := make(map[reputation.Key]reputation.Entity, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	var rows []reputation.Entity
	if err := r.db.WithContext(ctx).
		Where("(entity_type, entity_id) IN ? AND activity_count > 0", keyTuples(keys)).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load reputations: %w", err)
	}
	for _, e := range rows {
		out[e.Key()] = e
	}
	return out, nil
}

func (r *reputationRepository) Transact(ctx context.Context, keys []reputation.Key, fn reputation.TransactFunc) error {
	sorted := sortKeys(keys)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if r.lockTimeout > 0 {
			if err := tx.Exec(fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds())).Error; err != nil {
				return err
			}
		}

		// Placeholder rows give concurrent first writers a row to lock on.
		placeholders := make([]reputation.Entity, 0, len(sorted))
		for _, k := range sorted {
			placeholders = append(placeholders, reputation.Entity{EntityType: k.Type, EntityID: k.ID})
		}
		if len(placeholders) > 0 {
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&placeholders).Error; err != nil {
				return err
			}
		}

		var rows []reputation.Entity
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("(entity_type, entity_id) IN ?", keyTuples(sorted)).
			Order("entity_type, entity_id").
			Find(&rows).Error; err != nil {
			return err
		}

		current := make(map[reputation.Key]*reputation.Entity, len(rows))
		for i := range rows {
			if rows[i].ActivityCount == 0 {
				continue
			}
			current[rows[i].Key()] = &rows[i]
		}

		if err := fn(current); err != nil {
			return err
		}

		for _, k := range sortKeys(mapKeys(current)) {
			if err := tx.Save(current[k]).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return mapContention(err)
	}
	return nil
}

func keyTuples(keys []reputation.Key) [][]interface{} {
	out := make([][]interface{}, 0, len(keys))
	for _, k := range keys {
		out = append(out, []interface{}{string(k.Type), k.ID})
	}
	return out
}

func mapKeys(m map[reputation.Key]*reputation.Entity) []reputation.Key {
	out := make([]reputation.Key, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func sortKeys(keys []reputation.Key) []reputation.Key {
	out := append([]reputation.Key(nil), keys...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].ID < out[j].ID
	})
	return out
}
