package scoring

import (
	"context"
	"errors"
	"time"

	appReputation "github.com/eventwish/fraudguard/pkg/app/reputation"
	"github.com/eventwish/fraudguard/pkg/domain/activity"
	domain "github.com/eventwish/fraudguard/pkg/domain/errors"
	"github.com/eventwish/fraudguard/pkg/domain/event"
	"github.com/eventwish/fraudguard/pkg/domain/reputation"
	"github.com/eventwish/fraudguard/pkg/infra/cache"
	"github.com/eventwish/fraudguard/pkg/infra/prometheus"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

func (e *engine) Process(ctx context.Context, evt *event.AnalyticsEvent) (Decision, error) {
	if err := evt.Validate(); err != nil {
		return Decision{}, err
	}
	if evt.ID == uuid.Nil {
		evt.ID = uuid.New()
	}
	if evt.IdempotencyKey == nil || *evt.IdempotencyKey == "" {
		evt.IdempotencyKey = nil
		return e.process(ctx, evt)
	}

	key := *evt.IdempotencyKey
	v, err, _ := e.flights.Do(key, func() (interface{}, error) {
		if prior, ok := e.processed(ctx, key); ok {
			return prior, nil
		}
		return e.process(ctx, evt)
	})
	decision, _ := v.(Decision)
	if decision.EventID != evt.ID {
		// Another call with the same key did the work.
		decision.Duplicate = true
	}
	return decision, err
}

func (e *engine) process(ctx context.Context, evt *event.AnalyticsEvent) (Decision, error) {
	start := time.Now()
	res := e.Score(ctx, evt)
	res.ApplyTo(evt)

	// Nothing below may be abandoned halfway by a caller that gave up.
	ctx = context.WithoutCancel(ctx)

	_, err := e.store.Apply(ctx, appReputation.Outcome{
		Keys:          reputation.KeysFor(evt),
		Fingerprint:   evt.DeviceFingerprint,
		WasFraudulent: evt.IsFraudulent,
		FraudScore:    evt.FraudScore,
		At:            evt.Timestamp,
	})
	if err != nil {
		return e.fail(ctx, evt, "reputation", err)
	}

	if err := e.events.Append(ctx, evt); err != nil {
		if errors.Is(err, domain.ErrIdempotencyKeyProcessed) && evt.IdempotencyKey != nil {
			if prior, ok := e.processed(ctx, *evt.IdempotencyKey); ok {
				return prior, nil
			}
		}
		prometheus.ScoringFailuresTotal.WithLabelValues("persist").Inc()
		e.logger.WithError(err).WithField("eventID", evt.ID).Error("failed to persist scored event")
		return DecisionFor(evt), domain.NewScoringError(evt.ID.String(), "persist", err)
	}

	decision := DecisionFor(evt)
	e.remember(ctx, evt, decision)
	e.raise(evt)

	outcome := "allowed"
	if evt.IsFraudulent {
		outcome = "blocked"
	}
	prometheus.EventsScoredTotal.WithLabelValues(string(evt.EventType), outcome).Inc()
	prometheus.FraudScore.WithLabelValues(string(evt.EventType)).Observe(float64(evt.FraudScore))
	if prometheus.Config.EnableLatency {
		prometheus.ScoringLatency.WithLabelValues("process").Observe(float64(time.Since(start).Milliseconds()))
	}
	return decision, nil
}

// fail logs the event with the failure sentinel so the attempt stays auditable.
func (e *engine) fail(ctx context.Context, evt *event.AnalyticsEvent, stage string, cause error) (Decision, error) {
	scoringErr := domain.NewScoringError(evt.ID.String(), stage, cause)
	prometheus.ScoringFailuresTotal.WithLabelValues(stage).Inc()
	prometheus.EventsScoredTotal.WithLabelValues(string(evt.EventType), "failed").Inc()

	evt.FraudScore = event.FailedScore
	evt.IsFraudulent = false
	evt.Metadata.ScoringFailed = true
	evt.Metadata.FailureReason = cause.Error()

	log := e.logger.WithError(cause).WithFields(logrus.Fields{
		"eventID": evt.ID,
		"stage":   stage,
	})
	if err := e.events.Append(ctx, evt); err != nil {
		log.WithField("appendError", err.Error()).Error("failed to persist scoring failure")
	} else {
		log.Error("scoring failed")
	}

	decision := DecisionFor(evt)
	decision.Allowed = true
	return decision, scoringErr
}

func (e *engine) processed(ctx context.Context, key string) (Decision, bool) {
	if e.idempotency != nil {
		prior, found, err := cache.GetJSON[Decision](ctx, e.idempotency, key)
		if err != nil {
			e.logger.WithError(err).Warn("failed to read idempotency cache")
		}
		if found {
			prior.Duplicate = true
			return prior, true
		}
	}
	stored, err := e.events.FindByIdempotencyKey(ctx, key)
	if err != nil {
		e.logger.WithError(err).WithField("idempotencyKey", key).Warn("failed to look up idempotency key")
		return Decision{}, false
	}
	if stored == nil {
		return Decision{}, false
	}
	prior := DecisionFor(stored)
	if stored.Failed() {
		prior.Allowed = true
	}
	prior.Duplicate = true
	return prior, true
}

func (e *engine) remember(ctx context.Context, evt *event.AnalyticsEvent, decision Decision) {
	if e.idempotency == nil || evt.IdempotencyKey == nil {
		return
	}
	if err := cache.SetJSON(ctx, e.idempotency, *evt.IdempotencyKey, decision, e.cfg.IdempotencyTTL); err != nil {
		e.logger.WithError(err).WithField("eventID", evt.ID).Warn("failed to cache idempotency key")
	}
}

func (e *engine) raise(evt *event.AnalyticsEvent) {
	rec, ok := activity.Classify(evt, e.cfg.MinActivityScore)
	if !ok {
		return
	}
	prometheus.SuspiciousActivitiesTotal.WithLabelValues(string(rec.Type), string(rec.Severity)).Inc()
	if e.alerts == nil || (rec.Severity != activity.High && rec.Severity != activity.Critical) {
		return
	}
	if !e.alerts.Enqueue(rec) {
		e.logger.WithField("eventID", evt.ID).Warn("alert queue full, dropping alert")
	}
}
