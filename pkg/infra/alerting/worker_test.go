package alerting_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/eventwish/fraudguard/pkg/domain/activity"
	"github.com/eventwish/fraudguard/pkg/infra/alerting"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	got    []activity.Record
	err    error
	closed bool
}

func (p *recordingPublisher) Name() string { return "recording" }

func (p *recordingPublisher) Publish(_ context.Context, rec activity.Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.got = append(p.got, rec)
	return p.err
}

func (p *recordingPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

func record() activity.Record {
	return activity.Record{EventID: uuid.New(), Type: activity.ClickFraud, Severity: activity.High, FraudScore: 80}
}

func TestWorker_PublishesToEveryPublisher(t *testing.T) {
	a, b := &recordingPublisher{}, &recordingPublisher{err: errors.New("broker down")}
	w := alerting.NewWorker(logrus.New(), 10, a, b)
	w.StartWorkers(2)

	for i := 0; i < 5; i++ {
		assert.True(t, w.Enqueue(record()))
	}
	w.Shutdown()

	assert.Len(t, a.got, 5)
	assert.Len(t, b.got, 5)
	assert.True(t, a.closed)
	assert.True(t, b.closed)
}

func TestWorker_DropsWhenQueueIsFull(t *testing.T) {
	p := &recordingPublisher{}
	w := alerting.NewWorker(logrus.New(), 2, p)

	assert.True(t, w.Enqueue(record()))
	assert.True(t, w.Enqueue(record()))
	assert.False(t, w.Enqueue(record()))

	w.StartWorkers(1)
	w.Shutdown()
	assert.Len(t, p.got, 2)
}

func TestWorker_EnqueueAfterShutdown(t *testing.T) {
	w := alerting.NewWorker(logrus.New(), 1)
	w.StartWorkers(1)
	w.Shutdown()
	w.Shutdown()
	assert.False(t, w.Enqueue(record()))
}

func TestLogPublisher(t *testing.T) {
	logger, hook := test.NewNullLogger()
	p := alerting.NewLogPublisher(logger)

	rec := record()
	require.NoError(t, p.Publish(context.Background(), rec))
	require.Len(t, hook.Entries, 1)
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, rec.EventID, hook.LastEntry().Data["eventID"])
	assert.Equal(t, "log", p.Name())
}
