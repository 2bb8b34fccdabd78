package reputation

import (
	"fmt"
	"time"

	domain "github.com/eventwish/fraudguard/pkg/domain/errors"
)

type EntityType string

const (
	User   EntityType = "user"
	Device EntityType = "device"
	IP     EntityType = "ip"
)

func EntityTypeFromString(value string) (EntityType, error) {
	switch EntityType(value) {
	case User, Device, IP:
		return EntityType(value), nil
	default:
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidEntityType, value)
	}
}

type Key struct {
	Type EntityType `json:"entityType"`
	ID   string     `json:"entityId"`
}

func (k Key) String() string {
	return string(k.Type) + ":" + k.ID
}

// Entity is the rolling reputation of a user, device or IP. Higher scores are
// more trustworthy.
type Entity struct {
	EntityType      EntityType `json:"entityType" gorm:"primaryKey;type:text"`
	EntityID        string     `json:"entityId" gorm:"primaryKey;type:text"`
	ActivityCount   int64      `json:"activityCount" gorm:"not null;default:0"`
	FraudCount      int64      `json:"fraudCount" gorm:"not null;default:0"`
	ReputationScore float64    `json:"reputationScore" gorm:"not null"`
	LastFingerprint string     `json:"lastFingerprint,omitempty"`
	LastSeen        time.Time  `json:"lastSeen"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

func (Entity) TableName() string {
	return "public.reputation_entities"
}

func (e Entity) Key() Key {
	return Key{Type: e.EntityType, ID: e.EntityID}
}

func NewEntity(key Key, neutral float64) Entity {
	return Entity{
		EntityType:      key.Type,
		EntityID:        key.ID,
		ReputationScore: neutral,
	}
}
