package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/eventwish/fraudguard/pkg/domain/errors"
	"github.com/eventwish/fraudguard/pkg/domain/event"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type eventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) event.Repository {
	return &eventRepository{
		db: db,
	}
}

func (r *eventRepository) Append(ctx context.Context, evt *event.AnalyticsEvent) error {
	if err := r.db.WithContext(ctx).Create(evt).Error; err != nil {
		if pgCode(err) == pgUniqueViolation {
			return fmt.Errorf("%w: %v", domain.ErrIdempotencyKeyProcessed, err)
		}
		return fmt.Errorf("failed to append event %s: %w", evt.ID, err)
	}
	return nil
}

func (r *eventRepository) QueryByTimeRange(
	ctx context.Context,
	start, end time.Time,
	filter event.Filter,
) ([]event.AnalyticsEvent, error) {
	q := r.db.WithContext(ctx).
		Where("timestamp >= ? AND timestamp < ?", start, end)

	if len(filter.EventTypes) > 0 {
		q = q.Where("event_type IN ?", filter.EventTypes)
	}
	if filter.UserID != "" {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if filter.DeviceID != "" {
		q = q.Where("device_id = ?", filter.DeviceID)
	}
	if filter.IP != "" {
		q = q.Where("ip = ?", filter.IP)
	}
	if filter.MinFraudScore != nil {
		q = q.Where("fraud_score >= ?", *filter.MinFraudScore)
	}
	if filter.OnlyFraud {
		q = q.Where("is_fraudulent")
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var events []event.AnalyticsEvent
	if err := q.Order("timestamp ASC, id ASC").Find(&events).Error; err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	return events, nil
}

func (r *eventRepository) FindByIdempotencyKey(ctx context.Context, key string) (*event.AnalyticsEvent, error) {
	evt := new(event.AnalyticsEvent)
	err := r.db.WithContext(ctx).Where("idempotency_key = ?", key).First(evt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find event by idempotency key: %w", err)
	}
	return evt, nil
}

type summaryRow struct {
	IsFraudulent bool
	Failed       bool
	Events       int
	Revenue      decimal.Decimal
}

// Summarize lets postgres do the counting; only one row per outcome comes back.
func (r *eventRepository) Summarize(ctx context.Context, start, end time.Time) (event.Summary, error) {
	var rows []summaryRow
	err := r.summaryQuery(r.db.WithContext(ctx), start, end).Find(&rows).Error
	if err != nil {
		return event.Summary{}, fmt.Errorf("failed to summarize events: %w", err)
	}

	sum := event.Summary{Revenue: decimal.Zero}
	for _, row := range rows {
		sum.Total += row.Events
		switch {
		case row.Failed:
			sum.Failed += row.Events
		case row.IsFraudulent:
			sum.Fraudulent += row.Events
			sum.Revenue = sum.Revenue.Add(row.Revenue)
		}
	}
	return sum, nil
}

func (r *eventRepository) summaryQuery(db *gorm.DB, start, end time.Time) *gorm.DB {
	failed := fmt.Sprintf("(fraud_score = %d OR COALESCE((metadata->>'scoringFailed')::boolean, false))", event.FailedScore)
	return db.Model(&event.AnalyticsEvent{}).
		Select("is_fraudulent, "+failed+" AS failed, COUNT(*) AS events, COALESCE(SUM(revenue), 0) AS revenue").
		Where("timestamp >= ? AND timestamp < ?", start, end).
		Group("is_fraudulent, " + failed)
}
