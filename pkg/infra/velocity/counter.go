package velocity

import (
	"context"
	"time"
)

// RecentIntervals bounds how many trailing gaps an Observation carries.
const RecentIntervals = 32

// Observation is the state of a sliding window right after an event was recorded.
type Observation struct {
	// Count includes the event just recorded.
	Count int64
	// SincePrevious is the gap to the latest earlier event in the window.
	SincePrevious time.Duration
	HasPrevious   bool
	// Intervals are the gaps between the most recent events in the window,
	// oldest first. The last one equals SincePrevious.
	Intervals []time.Duration
}

//go:generate mockery --name=Counter --dir=. --output=./mocks --filename=counter_mock.go --case=underscore --with-expecter
type Counter interface {
	Record(ctx context.Context, key string, at time.Time, window time.Duration) (Observation, error)
	// Count reads the number of events in the window ending at at without
	// recording one.
	Count(ctx context.Context, key string, at time.Time, window time.Duration) (int64, error)
}

func intervalsFrom(prior []int64, now int64) []time.Duration {
	if len(prior) == 0 {
		return nil
	}
	out := make([]time.Duration, 0, len(prior))
	for i := 1; i < len(prior); i++ {
		out = append(out, time.Duration(prior[i]-prior[i-1])*time.Millisecond)
	}
	return append(out, time.Duration(now-prior[len(prior)-1])*time.Millisecond)
}
