package activity

import (
	"fmt"
	"time"

	domain "github.com/eventwish/fraudguard/pkg/domain/errors"
	"github.com/eventwish/fraudguard/pkg/domain/event"
	"github.com/eventwish/fraudguard/pkg/domain/reputation"
	"github.com/google/uuid"
)

type Type string

const (
	ClickFraud        Type = "click_fraud"
	ImpressionFraud   Type = "impression_fraud"
	AbnormalTraffic   Type = "abnormal_traffic"
	ProxyUsage        Type = "proxy_usage"
	VPNUsage          Type = "vpn_usage"
	DatacenterUsage   Type = "datacenter_usage"
	SuspiciousDevice  Type = "suspicious_device"
	SuspiciousIP      Type = "suspicious_ip"
	SuspiciousUser    Type = "suspicious_user"
	SuspiciousPattern Type = "suspicious_pattern"
)

// Types lists the whole taxonomy in display order.
var Types = []Type{
	ClickFraud, ImpressionFraud, AbnormalTraffic, ProxyUsage, VPNUsage,
	DatacenterUsage, SuspiciousDevice, SuspiciousIP, SuspiciousUser, SuspiciousPattern,
}

func TypeFromString(value string) (Type, error) {
	for _, t := range Types {
		if string(t) == value {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: unknown activity type %q", domain.ErrInvalidActivityFilter, value)
}

type Severity string

const (
	Low      Severity = "low"
	Medium   Severity = "medium"
	High     Severity = "high"
	Critical Severity = "critical"
)

var Severities = []Severity{Low, Medium, High, Critical}

func SeverityFromString(value string) (Severity, error) {
	for _, s := range Severities {
		if string(s) == value {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: unknown severity %q", domain.ErrInvalidActivityFilter, value)
}

func SeverityForScore(score int) Severity {
	switch {
	case score >= 90:
		return Critical
	case score >= 70:
		return High
	case score >= 50:
		return Medium
	default:
		return Low
	}
}

// Record is a classified suspicious event as shown on dashboards.
type Record struct {
	EventID    uuid.UUID             `json:"eventId"`
	Type       Type                  `json:"type"`
	Severity   Severity              `json:"severity"`
	EntityType reputation.EntityType `json:"entityType"`
	EntityID   string                `json:"entityId"`
	AdID       string                `json:"adId"`
	UserID     string                `json:"userId,omitempty"`
	DeviceID   string                `json:"deviceId,omitempty"`
	IP         string                `json:"ip,omitempty"`
	FraudScore int                   `json:"fraudScore"`
	Reasons    []string              `json:"reasons,omitempty"`
	Timestamp  time.Time             `json:"timestamp"`
}

func (r Record) String() string {
	return fmt.Sprintf("%s/%s %s:%s score=%d", r.Type, r.Severity, r.EntityType, r.EntityID, r.FraudScore)
}

// Classify turns a scored event into a suspicious activity record. Events
// below minScore, and events whose scoring failed, are not suspicious.
func Classify(evt *event.AnalyticsEvent, minScore int) (Record, bool) {
	if evt.Failed() || evt.FraudScore < minScore {
		return Record{}, false
	}
	typ, entity := classifyType(evt)
	rec := Record{
		EventID:    evt.ID,
		Type:       typ,
		Severity:   SeverityForScore(evt.FraudScore),
		EntityType: entity,
		EntityID:   entityID(evt, entity),
		AdID:       evt.AdID,
		UserID:     evt.UserID,
		DeviceID:   evt.DeviceID,
		IP:         evt.IP,
		FraudScore: evt.FraudScore,
		Reasons:    append([]string(nil), evt.Reasons...),
		Timestamp:  evt.Timestamp,
	}
	return rec, true
}

func classifyType(evt *event.AnalyticsEvent) (Type, reputation.EntityType) {
	md := evt.Metadata
	if n := md.Network; n != nil && md.HasSignal(event.SignalNetwork) {
		switch {
		case n.Datacenter:
			return DatacenterUsage, reputation.IP
		case n.VPN:
			return VPNUsage, reputation.IP
		case n.Proxy:
			return ProxyUsage, reputation.IP
		}
	}
	if md.HasSignal(event.SignalVelocity) {
		return AbnormalTraffic, primaryEntity(evt)
	}
	if md.HasSignal(event.SignalBehavior) || md.HasSignal(event.SignalPattern) {
		return SuspiciousPattern, primaryEntity(evt)
	}
	if md.HasSignal(event.SignalFingerprint) {
		return SuspiciousDevice, reputation.Device
	}
	if md.HasSignal(event.SignalFrequency) || md.HasSignal(event.SignalCTR) {
		return ClickFraud, reputation.User
	}
	if s, ok := md.Signal(event.SignalReputation); ok && s.Contribution > 0 {
		switch reputation.EntityType(s.Detail) {
		case reputation.Device:
			return SuspiciousDevice, reputation.Device
		case reputation.IP:
			return SuspiciousIP, reputation.IP
		case reputation.User:
			return SuspiciousUser, reputation.User
		}
	}
	if evt.EventType == event.Click {
		return ClickFraud, primaryEntity(evt)
	}
	return ImpressionFraud, primaryEntity(evt)
}

// primaryEntity prefers the most specific identifier the event carries.
func primaryEntity(evt *event.AnalyticsEvent) reputation.EntityType {
	switch {
	case evt.DeviceID != "":
		return reputation.Device
	case evt.UserID != "":
		return reputation.User
	default:
		return reputation.IP
	}
}

func entityID(evt *event.AnalyticsEvent, t reputation.EntityType) string {
	switch t {
	case reputation.Device:
		if evt.DeviceID != "" {
			return evt.DeviceID
		}
		return evt.DeviceFingerprint
	case reputation.User:
		return evt.UserID
	default:
		return evt.IP
	}
}
