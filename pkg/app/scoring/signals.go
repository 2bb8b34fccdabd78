package scoring

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/eventwish/fraudguard/pkg/domain/event"
	"github.com/eventwish/fraudguard/pkg/domain/reputation"
	"github.com/eventwish/fraudguard/pkg/infra/ipintel"
	"github.com/eventwish/fraudguard/pkg/infra/velocity"
)

// Inputs is everything the scoring rules read. Gathering inputs may block on
// I/O, evaluating them never does.
type Inputs struct {
	Reputation map[reputation.Key]reputation.Entity
	Velocity   velocity.Observation
	Engagement *Engagement
	Network    *ipintel.Info
	Degraded   []string
}

// Engagement is one user's activity on one ad over the engagement window.
// Clicks includes the click being scored.
type Engagement struct {
	Clicks      int64
	Impressions int64
}

type Result struct {
	FraudScore   int
	IsFraudulent bool
	Reasons      []string
	Metadata     event.Metadata
}

// ApplyTo stamps the result onto the event.
func (r Result) ApplyTo(evt *event.AnalyticsEvent) {
	evt.FraudScore = r.FraudScore
	evt.IsFraudulent = r.IsFraudulent
	evt.Reasons = append([]string(nil), r.Reasons...)
	extra := evt.Metadata.Extra
	evt.Metadata = r.Metadata
	evt.Metadata.Extra = extra
}

// Evaluate combines the weighted signals into a clamped score. It is a pure
// function of its arguments.
func Evaluate(cfg Config, evt *event.AnalyticsEvent, in Inputs) Result {
	var (
		signals []event.Signal
		reasons []string
		total   float64
	)
	fire := func(s event.Signal, reason string) {
		signals = append(signals, s)
		if s.Contribution > 0 {
			total += s.Contribution
			reasons = append(reasons, s.Name+": "+reason)
		}
	}

	degraded := make(map[string]bool, len(in.Degraded))
	for _, name := range in.Degraded {
		degraded[name] = true
	}

	if !degraded[event.SignalReputation] {
		s, reason := reputationSignal(cfg.Reputation, evt, in.Reputation)
		fire(s, reason)
	}
	if !degraded[event.SignalVelocity] {
		s, reason := velocitySignal(cfg.Velocity, in.Velocity)
		fire(s, reason)
	}
	if !degraded[event.SignalBehavior] {
		s, reason := behaviorSignal(cfg.Behavior, in.Velocity)
		fire(s, reason)
	}
	if !degraded[event.SignalPattern] {
		s, reason := patternSignal(cfg.Pattern, in.Velocity)
		fire(s, reason)
	}
	if in.Engagement != nil && !degraded[event.SignalFrequency] {
		s, reason := frequencySignal(cfg.Engagement, in.Engagement)
		fire(s, reason)
	}
	if in.Engagement != nil && !degraded[event.SignalCTR] {
		s, reason := ctrSignal(cfg.Engagement, in.Engagement)
		fire(s, reason)
	}
	var network *event.Network
	if in.Network != nil && !degraded[event.SignalNetwork] {
		network = &event.Network{
			Datacenter: in.Network.IsDatacenter,
			Proxy:      in.Network.IsProxy,
			VPN:        in.Network.IsVPN,
			Org:        in.Network.Org,
		}
		s, reason := networkSignal(cfg.Network, in.Network)
		fire(s, reason)
	}
	if !degraded[event.SignalReputation] {
		s, reason := fingerprintSignal(cfg.FingerprintWeight, evt, in.Reputation)
		fire(s, reason)
	}

	for _, name := range in.Degraded {
		reasons = append(reasons, name+": degraded")
	}

	score := int(math.Max(0, math.Min(100, math.Round(total))))
	return Result{
		FraudScore:   score,
		IsFraudulent: score >= cfg.Threshold,
		Reasons:      reasons,
		Metadata: event.Metadata{
			Threshold:       cfg.Threshold,
			Signals:         signals,
			DegradedSignals: append([]string(nil), in.Degraded...),
			Network:         network,
		},
	}
}

// reputationSignal scores the worst reputation deficit among the touched
// entities. Unknown entities count as neutral.
func reputationSignal(cfg ReputationWeights, evt *event.AnalyticsEvent, reps map[reputation.Key]reputation.Entity) (event.Signal, string) {
	s := event.Signal{Name: event.SignalReputation}
	if cfg.Neutral <= 0 {
		return s, ""
	}
	var (
		worst    float64
		worstKey reputation.Key
		found    bool
	)
	for _, key := range reputation.KeysFor(evt) {
		e, ok := reps[key]
		if !ok {
			continue
		}
		deficit := math.Max(0, cfg.Neutral-e.ReputationScore) / cfg.Neutral
		if deficit > worst {
			worst, worstKey, found = deficit, key, true
		}
	}
	if !found {
		return s, ""
	}
	s.Contribution = cfg.Weight * worst
	s.Detail = string(worstKey.Type)
	return s, fmt.Sprintf("low %s reputation (%.1f)", worstKey.Type, reps[worstKey].ReputationScore)
}

func velocitySignal(cfg VelocityWeights, obs velocity.Observation) (event.Signal, string) {
	s := event.Signal{Name: event.SignalVelocity, Detail: fmt.Sprintf("count=%d", obs.Count)}
	if cfg.Ceiling <= 0 || obs.Count <= cfg.Ceiling {
		return s, ""
	}
	over := float64(obs.Count-cfg.Ceiling) / float64(2*cfg.Ceiling)
	s.Contribution = cfg.Weight * math.Min(1, 0.5+over)
	return s, fmt.Sprintf("%d events within %s", obs.Count, cfg.Window)
}

func behaviorSignal(cfg BehaviorWeights, obs velocity.Observation) (event.Signal, string) {
	s := event.Signal{Name: event.SignalBehavior}
	if !obs.HasPrevious {
		return s, ""
	}
	s.Detail = obs.SincePrevious.String()
	if obs.SincePrevious >= cfg.MinInterval {
		return s, ""
	}
	s.Contribution = cfg.Weight
	return s, fmt.Sprintf("%s since previous event", obs.SincePrevious.Round(time.Millisecond))
}

// patternSignal fires on short gaps of near constant length, which people
// rarely produce.
func patternSignal(cfg PatternWeights, obs velocity.Observation) (event.Signal, string) {
	s := event.Signal{Name: event.SignalPattern}
	if len(obs.Intervals) == 0 || len(obs.Intervals) < cfg.MinIntervals {
		return s, ""
	}
	mean, sd := intervalStats(obs.Intervals)
	s.Detail = fmt.Sprintf("mean=%s stddev=%s", mean, sd)
	if sd >= cfg.MaxStdDev || mean >= cfg.MaxMean {
		return s, ""
	}
	strength := 1.0
	if sd > 0 {
		strength = math.Min(1, 0.5*float64(cfg.MaxStdDev)/float64(sd))
	}
	s.Contribution = cfg.Weight * strength
	return s, fmt.Sprintf("regular %s intervals (stddev %s)", mean.Round(time.Millisecond), sd.Round(time.Millisecond))
}

func intervalStats(intervals []time.Duration) (mean, sd time.Duration) {
	var sum float64
	for _, d := range intervals {
		sum += float64(d)
	}
	m := sum / float64(len(intervals))
	var variance float64
	for _, d := range intervals {
		variance += (float64(d) - m) * (float64(d) - m)
	}
	return time.Duration(m), time.Duration(math.Sqrt(variance / float64(len(intervals))))
}

func frequencySignal(cfg EngagementWeights, eng *Engagement) (event.Signal, string) {
	s := event.Signal{Name: event.SignalFrequency, Detail: fmt.Sprintf("clicks=%d", eng.Clicks)}
	if cfg.MaxClicks <= 0 || eng.Clicks <= cfg.MaxClicks {
		return s, ""
	}
	over := float64(eng.Clicks-cfg.MaxClicks) / float64(2*cfg.MaxClicks)
	s.Contribution = cfg.FrequencyWeight * math.Min(1, 0.5+over)
	return s, fmt.Sprintf("%d clicks on ad within %s", eng.Clicks, cfg.Window)
}

// ctrSignal compares the user's clicks on the ad with the impressions they
// were served. Nothing fires until both are non-zero.
func ctrSignal(cfg EngagementWeights, eng *Engagement) (event.Signal, string) {
	s := event.Signal{Name: event.SignalCTR}
	if eng.Clicks == 0 || eng.Impressions == 0 {
		return s, ""
	}
	ctr := 100 * float64(eng.Clicks) / float64(eng.Impressions)
	s.Detail = fmt.Sprintf("ctr=%.1f", ctr)
	if cfg.CTRThreshold <= 0 || ctr <= cfg.CTRThreshold {
		return s, ""
	}
	s.Contribution = cfg.CTRWeight
	return s, fmt.Sprintf("click-through rate %.1f%% over %d impressions", ctr, eng.Impressions)
}

func networkSignal(cfg NetworkWeights, info *ipintel.Info) (event.Signal, string) {
	s := event.Signal{Name: event.SignalNetwork}
	var categories []string
	if info.IsDatacenter {
		s.Contribution += cfg.Datacenter
		categories = append(categories, "datacenter")
	}
	if info.IsVPN {
		s.Contribution += cfg.VPN
		categories = append(categories, "vpn")
	}
	if info.IsProxy {
		s.Contribution += cfg.Proxy
		categories = append(categories, "proxy")
	}
	s.Detail = strings.Join(categories, ",")
	return s, s.Detail
}

// fingerprintSignal fires when a stated device id shows up with a different
// fingerprint than the one last recorded for it.
func fingerprintSignal(weight float64, evt *event.AnalyticsEvent, reps map[reputation.Key]reputation.Entity) (event.Signal, string) {
	s := event.Signal{Name: event.SignalFingerprint}
	if evt.DeviceID == "" || evt.DeviceFingerprint == "" {
		return s, ""
	}
	device, ok := reps[reputation.Key{Type: reputation.Device, ID: evt.DeviceID}]
	if !ok || device.LastFingerprint == "" || device.LastFingerprint == evt.DeviceFingerprint {
		return s, ""
	}
	s.Contribution = weight
	s.Detail = "mismatch"
	return s, "device fingerprint changed"
}
