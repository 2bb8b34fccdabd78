package reputation

import (
	"math"
	"time"
)

const (
	MinScore = 0.0
	MaxScore = 100.0
)

// Policy controls how reputation decays and reacts to scored events.
type Policy struct {
	NeutralScore    float64
	StalenessWindow time.Duration
	HalfLife        time.Duration
	PenaltyRate     float64
	CleanReward     float64
}

func DefaultPolicy() Policy {
	return Policy{
		NeutralScore:    50,
		StalenessWindow: 24 * time.Hour,
		HalfLife:        7 * 24 * time.Hour,
		PenaltyRate:     0.2,
		CleanReward:     1,
	}
}

// Decay pulls the score toward neutral when the entity has been unseen for
// longer than the staleness window. The pull is exponential in elapsed time.
func (p Policy) Decay(e Entity, now time.Time) Entity {
	if e.LastSeen.IsZero() || p.HalfLife <= 0 {
		return e
	}
	elapsed := now.Sub(e.LastSeen)
	if elapsed <= p.StalenessWindow {
		return e
	}
	factor := math.Pow(0.5, float64(elapsed)/float64(p.HalfLife))
	e.ReputationScore = clamp(p.NeutralScore + (e.ReputationScore-p.NeutralScore)*factor)
	return e
}

// Apply runs decay-then-adjust for one scored event.
func (p Policy) Apply(e Entity, wasFraudulent bool, fraudScore int, at time.Time) Entity {
	e = p.Decay(e, at)
	e.ActivityCount++
	if wasFraudulent {
		e.FraudCount++
		e.ReputationScore = clamp(e.ReputationScore - p.Penalty(fraudScore))
	} else {
		e.ReputationScore = clamp(e.ReputationScore + p.CleanReward)
	}
	if at.After(e.LastSeen) {
		e.LastSeen = at
	}
	return e
}

// Penalty is the reputation loss for one fraudulent event with the given score.
func (p Policy) Penalty(fraudScore int) float64 {
	if fraudScore < 0 {
		return 0
	}
	return p.PenaltyRate * float64(fraudScore)
}

func clamp(v float64) float64 {
	return math.Max(MinScore, math.Min(MaxScore, v))
}
