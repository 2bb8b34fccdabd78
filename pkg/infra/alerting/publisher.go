package alerting

import (
	"context"

	"github.com/eventwish/fraudguard/pkg/domain/activity"
	"github.com/sirupsen/logrus"
)

//go:generate mockery --name=Publisher --dir=. --output=./mocks --filename=publisher_mock.go --case=underscore --with-expecter
type Publisher interface {
	Name() string
	Publish(ctx context.Context, rec activity.Record) error
	Close()
}

type logPublisher struct {
	logger *logrus.Logger
}

// NewLogPublisher writes alerts to the service log.
func NewLogPublisher(logger *logrus.Logger) Publisher {
	return &logPublisher{logger: logger}
}

func (p *logPublisher) Name() string {
	return "log"
}

func (p *logPublisher) Publish(_ context.Context, rec activity.Record) error {
	p.logger.WithFields(logrus.Fields{
		"alert":      rec.Type,
		"severity":   rec.Severity,
		"entityType": rec.EntityType,
		"entityID":   rec.EntityID,
		"eventID":    rec.EventID,
		"adID":       rec.AdID,
		"fraudScore": rec.FraudScore,
		"reasons":    rec.Reasons,
	}).Warn("suspicious activity alert")
	return nil
}

func (p *logPublisher) Close() {}
