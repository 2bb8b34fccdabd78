package fingerprint

import "context"

// Probe reads one signal. A nil Probe means the signal is unsupported.
type Probe func(ctx context.Context) (string, error)

type Source struct {
	Name  string
	Probe Probe
	// Async probes run concurrently under the collector's probe timeout.
	Async bool
}

const (
	SignalUserAgent           = "userAgent"
	SignalLanguage            = "language"
	SignalPlatform            = "platform"
	SignalScreenWidth         = "screenWidth"
	SignalScreenHeight        = "screenHeight"
	SignalScreenDepth         = "screenDepth"
	SignalTimezone            = "timezone"
	SignalTimezoneOffset      = "timezoneOffset"
	SignalHardwareConcurrency = "hardwareConcurrency"
	SignalDeviceMemory        = "deviceMemory"
	SignalPlugins             = "plugins"
	SignalCanvas              = "canvas"
	SignalWebGL               = "webgl"
	SignalFonts               = "fonts"
	SignalAudio               = "audio"
)

// SignalNames is the canonical signal order.
var SignalNames = []string{
	SignalUserAgent,
	SignalLanguage,
	SignalPlatform,
	SignalScreenWidth,
	SignalScreenHeight,
	SignalScreenDepth,
	SignalTimezone,
	SignalTimezoneOffset,
	SignalHardwareConcurrency,
	SignalDeviceMemory,
	SignalPlugins,
	SignalCanvas,
	SignalWebGL,
	SignalFonts,
	SignalAudio,
}

var asyncSignals = map[string]bool{
	SignalFonts: true,
	SignalAudio: true,
}

// Sources builds the built-in source list from the probes a platform offers.
// Names missing from probes are reported as unsupported.
func Sources(probes map[string]Probe) []Source {
	out := make([]Source, 0, len(SignalNames))
	for _, name := range SignalNames {
		out = append(out, Source{Name: name, Probe: probes[name], Async: asyncSignals[name]})
	}
	return out
}

// Static returns a probe that always yields v.
func Static(v string) Probe {
	return func(context.Context) (string, error) { return v, nil }
}

// Unsupported is the value recorded for a signal that could not be read.
func Unsupported(name string) string {
	return name + "-not-supported"
}
