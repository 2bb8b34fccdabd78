package scoring

import "time"

type ReputationWeights struct {
	Weight  float64
	Neutral float64
}

type VelocityWeights struct {
	Window  time.Duration
	Ceiling int64
	Weight  float64
}

type BehaviorWeights struct {
	Weight      float64
	MinInterval time.Duration
}

// PatternWeights flag metronomic timing: many gaps that are both short and
// nearly identical.
type PatternWeights struct {
	Weight       float64
	MinIntervals int
	MaxStdDev    time.Duration
	MaxMean      time.Duration
}

// EngagementWeights score one user's clicks on one ad over Window.
type EngagementWeights struct {
	Window          time.Duration
	MaxClicks       int64
	FrequencyWeight float64
	// CTRThreshold is a percentage of impressions.
	CTRThreshold float64
	CTRWeight    float64
}

type NetworkWeights struct {
	Datacenter float64
	VPN        float64
	Proxy      float64
}

type Config struct {
	Threshold         int
	Reputation        ReputationWeights
	Velocity          VelocityWeights
	Behavior          BehaviorWeights
	Pattern           PatternWeights
	Engagement        EngagementWeights
	Network           NetworkWeights
	FingerprintWeight float64
	IPLookupTimeout   time.Duration
	// MinActivityScore is the lowest score classified as suspicious activity.
	MinActivityScore int
	IdempotencyTTL   time.Duration
}

func DefaultConfig() Config {
	return Config{
		Threshold: 70,
		Reputation: ReputationWeights{
			Weight:  35,
			Neutral: 50,
		},
		Velocity: VelocityWeights{
			Window:  time.Minute,
			Ceiling: 20,
			Weight:  45,
		},
		Behavior: BehaviorWeights{
			Weight:      25,
			MinInterval: 500 * time.Millisecond,
		},
		Pattern: PatternWeights{
			Weight:       15,
			MinIntervals: 2,
			MaxStdDev:    200 * time.Millisecond,
			MaxMean:      2 * time.Second,
		},
		Engagement: EngagementWeights{
			Window:          24 * time.Hour,
			MaxClicks:       5,
			FrequencyWeight: 20,
			CTRThreshold:    20,
			CTRWeight:       20,
		},
		Network: NetworkWeights{
			Datacenter: 30,
			VPN:        25,
			Proxy:      20,
		},
		FingerprintWeight: 25,
		IPLookupTimeout:   150 * time.Millisecond,
		MinActivityScore:  30,
		IdempotencyTTL:    24 * time.Hour,
	}
}
