package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/eventwish/fraudguard/pkg/app/scoring"
	domain "github.com/eventwish/fraudguard/pkg/domain/errors"
	"github.com/eventwish/fraudguard/pkg/domain/event"
	"github.com/eventwish/fraudguard/pkg/infra/fingerprint"
	"github.com/eventwish/fraudguard/pkg/infra/prometheus"
	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type Request struct {
	AdID           string          `json:"adId"`
	EventType      string          `json:"eventType"`
	UserID         string          `json:"userId,omitempty"`
	DeviceID       string          `json:"deviceId,omitempty"`
	IP             string          `json:"ip"`
	Fingerprint    string          `json:"fingerprint,omitempty"`
	UserAgent      string          `json:"userAgent,omitempty"`
	Revenue        decimal.Decimal `json:"revenue"`
	Timestamp      *time.Time      `json:"timestamp,omitempty"`
	IdempotencyKey string          `json:"idempotencyKey,omitempty"`
	Context        map[string]any  `json:"context,omitempty"`
}

//go:generate mockery --name=Service --dir=. --output=./mocks --filename=service_mock.go --case=underscore --with-expecter
type Service interface {
	// Ingest normalizes the request and scores it synchronously. Invalid input
	// is rejected; any other failure still yields an allowing decision.
	Ingest(ctx context.Context, req Request) (scoring.Decision, error)
}

const DefaultMaxClockSkew = 5 * time.Minute

type service struct {
	engine  scoring.Engine
	tracker fingerprint.Tracker
	logger  *logrus.Logger
	now     func() time.Time
	skew    time.Duration
}

type Option func(*service)

func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

// WithMaxClockSkew bounds how far past the server clock a client timestamp
// may point. Later timestamps are replaced with the server time.
func WithMaxClockSkew(d time.Duration) Option {
	return func(s *service) { s.skew = d }
}

func NewService(engine scoring.Engine, tracker fingerprint.Tracker, logger *logrus.Logger, opts ...Option) Service {
	s := &service{
		engine:  engine,
		tracker: tracker,
		logger:  logger,
		now:     time.Now,
		skew:    DefaultMaxClockSkew,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) Ingest(ctx context.Context, req Request) (scoring.Decision, error) {
	evt, err := s.normalize(req)
	if err != nil {
		reason := "invalid_event"
		if errors.Is(err, domain.ErrInvalidEventKind) {
			reason = "event_kind"
		}
		prometheus.InvalidEventsTotal.WithLabelValues(reason).Inc()
		return scoring.Decision{}, err
	}

	decision, err := s.engine.Process(ctx, evt)
	if err == nil {
		return decision, nil
	}
	if errors.Is(err, domain.ErrInvalidEventKind) || errors.Is(err, domain.ErrInvalidEvent) {
		return scoring.Decision{}, err
	}

	s.logger.WithError(err).WithFields(logrus.Fields{
		"eventID":   evt.ID,
		"adID":      evt.AdID,
		"eventType": evt.EventType,
	}).Error("scoring did not complete, allowing event")

	decision.EventID = evt.ID
	decision.Allowed = true
	if decision.Reasons == nil {
		decision.Reasons = []string{}
	}
	return decision, nil
}

func (s *service) normalize(req Request) (*event.AnalyticsEvent, error) {
	typ, err := event.TypeFromString(req.EventType)
	if err != nil {
		return nil, err
	}
	if req.AdID == "" {
		return nil, fmt.Errorf("%w: adId is required", domain.ErrInvalidEvent)
	}

	evtCtx, err := decodeContext(req.Context)
	if err != nil {
		return nil, err
	}
	if evtCtx.UserAgent == "" {
		evtCtx.UserAgent = req.UserAgent
	}

	deviceFingerprint := req.Fingerprint
	if deviceFingerprint == "" && (req.DeviceID != "" || evtCtx.UserAgent != "") {
		device := s.tracker.Derive(req.DeviceID, evtCtx.UserAgent, evtCtx.Platform, evtCtx.ScreenSize)
		deviceFingerprint = device.ID()
		if evtCtx.DeviceType == "" {
			evtCtx.DeviceType = device.DeviceType
		}
	}

	ip, err := normalizeIP(req.IP)
	if err != nil {
		return nil, err
	}

	at := s.now()
	if req.Timestamp != nil && !req.Timestamp.IsZero() && !req.Timestamp.After(at.Add(s.skew)) {
		at = *req.Timestamp
	}

	evt := &event.AnalyticsEvent{
		ID:                uuid.New(),
		AdID:              req.AdID,
		EventType:         typ,
		UserID:            req.UserID,
		DeviceID:          req.DeviceID,
		IP:                ip,
		Timestamp:         at.UTC(),
		Revenue:           req.Revenue,
		DeviceFingerprint: deviceFingerprint,
		IPFingerprint:     fingerprint.IPFingerprint(ip),
		Context:           evtCtx,
	}
	if req.IdempotencyKey != "" {
		key := req.IdempotencyKey
		evt.IdempotencyKey = &key
	}
	return evt, nil
}

// normalizeIP returns the canonical text form of the address, so that every
// spelling of one address shares reputation and velocity keys.
func normalizeIP(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	addr, err := netip.ParseAddr(raw)
	if err != nil {
		return "", fmt.Errorf("%w: malformed ip %q", domain.ErrInvalidEvent, raw)
	}
	return addr.Unmap().WithZone("").String(), nil
}

func decodeContext(raw map[string]any) (event.Context, error) {
	var out event.Context
	if len(raw) == 0 {
		return out, nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &out,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return out, err
	}
	if err := decoder.Decode(raw); err != nil {
		return out, fmt.Errorf("%w: malformed context: %w", domain.ErrInvalidEvent, err)
	}
	return out, nil
}
