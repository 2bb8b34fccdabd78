package event

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Context is the typed view of the auxiliary signals sent with an event.
// Keys without a dedicated field land in Extra.
type Context struct {
	ScreenSize     string         `json:"screenSize,omitempty" mapstructure:"screenSize"`
	ConnectionType string         `json:"connectionType,omitempty" mapstructure:"connectionType"`
	Referrer       string         `json:"referrer,omitempty" mapstructure:"referrer"`
	Locale         string         `json:"locale,omitempty" mapstructure:"locale"`
	UserAgent      string         `json:"userAgent,omitempty" mapstructure:"userAgent"`
	Platform       string         `json:"platform,omitempty" mapstructure:"platform"`
	DeviceType     string         `json:"deviceType,omitempty" mapstructure:"deviceType"`
	History        []string       `json:"history,omitempty" mapstructure:"history"`
	Extra          map[string]any `json:"extra,omitempty" mapstructure:",remain"`
}

func (c Context) Value() (driver.Value, error) {
	return json.Marshal(c)
}

func (c *Context) Scan(value interface{}) error {
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("could not convert value %v to []byte", value)
	}
	return json.Unmarshal(bytes, c)
}

// Signal is one scoring contribution recorded on the event.
type Signal struct {
	Name         string  `json:"name"`
	Contribution float64 `json:"contribution"`
	Detail       string  `json:"detail,omitempty"`
}

// Network mirrors what the IP-intelligence lookup reported at scoring time.
type Network struct {
	Datacenter bool   `json:"datacenter,omitempty"`
	Proxy      bool   `json:"proxy,omitempty"`
	VPN        bool   `json:"vpn,omitempty"`
	Org        string `json:"org,omitempty"`
}

// Metadata holds engine annotations. It is written once, by the scoring engine.
type Metadata struct {
	Threshold       int            `json:"threshold"`
	Signals         []Signal       `json:"signals,omitempty"`
	DegradedSignals []string       `json:"degradedSignals,omitempty"`
	Network         *Network       `json:"network,omitempty"`
	ScoringFailed   bool           `json:"scoringFailed,omitempty"`
	FailureReason   string         `json:"failureReason,omitempty"`
	Extra           map[string]any `json:"extra,omitempty"`
}

func (m Metadata) Value() (driver.Value, error) {
	return json.Marshal(m)
}

func (m *Metadata) Scan(value interface{}) error {
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("could not convert value %v to []byte", value)
	}
	return json.Unmarshal(bytes, m)
}

func (m Metadata) HasSignal(name string) bool {
	for _, s := range m.Signals {
		if s.Name == name && s.Contribution > 0 {
			return true
		}
	}
	return false
}
