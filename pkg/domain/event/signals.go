package event

const (
	SignalReputation  = "reputation"
	SignalVelocity    = "velocity"
	SignalBehavior    = "behavior"
	SignalNetwork     = "network"
	SignalFingerprint = "fingerprint"
	SignalPattern     = "pattern"
	SignalFrequency   = "frequency"
	SignalCTR         = "ctr"
)

func (m Metadata) Signal(name string) (Signal, bool) {
	for _, s := range m.Signals {
		if s.Name == name {
			return s, true
		}
	}
	return Signal{}, false
}
