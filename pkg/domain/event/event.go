package event

import (
	"fmt"
	"time"

	domain "github.com/eventwish/fraudguard/pkg/domain/errors"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type Type string

const (
	Impression Type = "impression"
	Click      Type = "click"
	Conversion Type = "conversion"
)

// FailedScore marks an event whose scoring could not complete.
const FailedScore = -1

func TypeFromString(value string) (Type, error) {
	switch Type(value) {
	case Impression, Click, Conversion:
		return Type(value), nil
	default:
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidEventKind, value)
	}
}

// AnalyticsEvent is one impression, click or conversion. It is immutable once
// appended to the repository.
type AnalyticsEvent struct {
	ID                uuid.UUID       `json:"id" gorm:"type:uuid;primaryKey"`
	AdID              string          `json:"adId" gorm:"not null;index"`
	EventType         Type            `json:"eventType" gorm:"not null;index"`
	UserID            string          `json:"userId,omitempty" gorm:"index"`
	DeviceID          string          `json:"deviceId,omitempty" gorm:"index"`
	IP                string          `json:"ip" gorm:"index"`
	Timestamp         time.Time       `json:"timestamp" gorm:"not null;index"`
	Revenue           decimal.Decimal `json:"revenue" gorm:"type:numeric(20,6);not null;default:0"`
	DeviceFingerprint string          `json:"deviceFingerprint,omitempty" gorm:"index"`
	IPFingerprint     string          `json:"ipFingerprint,omitempty" gorm:"index"`
	FraudScore        int             `json:"fraudScore" gorm:"not null;default:0;index"`
	IsFraudulent      bool            `json:"isFraudulent" gorm:"not null;default:false"`
	Reasons           pq.StringArray  `json:"reasons" gorm:"type:text[]"`
	IdempotencyKey    *string         `json:"idempotencyKey,omitempty" gorm:"uniqueIndex"`
	Context           Context         `json:"context" gorm:"type:jsonb"`
	Metadata          Metadata        `json:"metadata" gorm:"type:jsonb"`
	CreatedAt         time.Time       `json:"createdAt"`
}

func (AnalyticsEvent) TableName() string {
	return "public.analytics_events"
}

func (e *AnalyticsEvent) Validate() error {
	if e.AdID == "" {
		return fmt.Errorf("%w: adId is required", domain.ErrInvalidEvent)
	}
	if _, err := TypeFromString(string(e.EventType)); err != nil {
		return err
	}
	return nil
}

// Failed reports whether the event was logged with the scoring-failure sentinel.
func (e *AnalyticsEvent) Failed() bool {
	return e.FraudScore == FailedScore || e.Metadata.ScoringFailed
}
