package event

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type Filter struct {
	EventTypes    []Type
	UserID        string
	DeviceID      string
	IP            string
	MinFraudScore *int
	OnlyFraud     bool
	Limit         int
}

// Summary tallies a time range without loading it. Revenue is the revenue of
// the fraudulent events only.
type Summary struct {
	Total      int
	Fraudulent int
	Failed     int
	Revenue    decimal.Decimal
}

//go:generate mockery --name=Repository --dir=. --output=./mocks --filename=event_repository_mock.go --case=underscore --with-expecter
type Repository interface {
	Append(ctx context.Context, evt *AnalyticsEvent) error
	QueryByTimeRange(ctx context.Context, start, end time.Time, filter Filter) ([]AnalyticsEvent, error)
	FindByIdempotencyKey(ctx context.Context, key string) (*AnalyticsEvent, error)
	Summarize(ctx context.Context, start, end time.Time) (Summary, error)
}

// Matches applies the non-time parts of the filter to a single event.
func (f Filter) Matches(evt *AnalyticsEvent) bool {
	if len(f.EventTypes) > 0 {
		found := false
		for _, t := range f.EventTypes {
			if evt.EventType == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.UserID != "" && evt.UserID != f.UserID {
		return false
	}
	if f.DeviceID != "" && evt.DeviceID != f.DeviceID {
		return false
	}
	if f.IP != "" && evt.IP != f.IP {
		return false
	}
	if f.MinFraudScore != nil && evt.FraudScore < *f.MinFraudScore {
		return false
	}
	if f.OnlyFraud && !evt.IsFraudulent {
		return false
	}
	return true
}
