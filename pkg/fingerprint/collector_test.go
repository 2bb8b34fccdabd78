package fingerprint_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/eventwish/fraudguard/pkg/fingerprint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type unavailable struct{}

func (unavailable) Name() string           { return "unavailable" }
func (unavailable) Available() bool        { return false }
func (unavailable) Sum(data []byte) string { return "" }

func TestStrategies(t *testing.T) {
	assert.Equal(t, "61", fingerprint.Rolling32{}.Sum([]byte("a")))
	assert.Equal(t, "c21", fingerprint.Rolling32{}.Sum([]byte("ab")))
	assert.Equal(t, "c3", fingerprint.CharSum{}.Sum([]byte("ab")))
	assert.Len(t, fingerprint.SHA256{}.Sum([]byte("ab")), 64)

	for _, s := range fingerprint.DefaultStrategies {
		assert.NotEmpty(t, s.Sum(nil), s.Name())
	}
}

func TestStrategies_HashUTF16CodeUnits(t *testing.T) {
	// U+1F600 is the surrogate pair D83D DE00.
	assert.Equal(t, "1b0d63", fingerprint.Rolling32{}.Sum([]byte("😀")))
	assert.Equal(t, "1b63d", fingerprint.CharSum{}.Sum([]byte("😀")))
	assert.Equal(t, "e9", fingerprint.CharSum{}.Sum([]byte("é")))
}

func TestSelectStrategy(t *testing.T) {
	assert.Equal(t, "sha256", fingerprint.SelectStrategy(fingerprint.DefaultStrategies...).Name())
	assert.Equal(t, "rolling32", fingerprint.SelectStrategy(unavailable{}, fingerprint.Rolling32{}).Name())
	assert.Equal(t, "charsum", fingerprint.SelectStrategy(unavailable{}).Name())
}

func TestCollector_Deterministic(t *testing.T) {
	sources := []fingerprint.Source{
		{Name: "b", Probe: fingerprint.Static("2")},
		{Name: "a", Probe: fingerprint.Static("1")},
	}
	c := fingerprint.NewCollector(sources)

	first, err := c.Collect(context.Background())
	require.NoError(t, err)
	second, err := c.Collect(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first.Fingerprint, second.Fingerprint)
	assert.Equal(t, "21f76dfbfe6dfe21f762080ef484112cf2952974cef30741fd1931e1c6d92112", first.Fingerprint)
	assert.Equal(t, []string{"b", "a"}, first.Order)
	assert.Equal(t, "sha256", first.Strategy)
}

func TestCollector_UnsupportedSignals(t *testing.T) {
	c := fingerprint.NewCollector(fingerprint.Sources(map[string]fingerprint.Probe{
		fingerprint.SignalUserAgent: fingerprint.Static("Mozilla/5.0"),
		fingerprint.SignalLanguage: func(context.Context) (string, error) {
			return "", errors.New("denied")
		},
		fingerprint.SignalCanvas: func(context.Context) (string, error) {
			panic("no canvas")
		},
	}))

	rec, err := c.Collect(context.Background())
	require.NoError(t, err)

	assert.Len(t, rec.Signals, len(fingerprint.SignalNames))
	assert.Equal(t, "Mozilla/5.0", rec.Signals[fingerprint.SignalUserAgent])
	assert.Equal(t, "language-not-supported", rec.Signals[fingerprint.SignalLanguage])
	assert.Equal(t, "canvas-not-supported", rec.Signals[fingerprint.SignalCanvas])
	assert.Equal(t, "webgl-not-supported", rec.Signals[fingerprint.SignalWebGL])
	assert.NotEmpty(t, rec.Fingerprint)
}

func TestCollector_AsyncProbeTimeout(t *testing.T) {
	slow := func(ctx context.Context) (string, error) {
		select {
		case <-time.After(time.Second):
			return "late", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	c := fingerprint.NewCollector([]fingerprint.Source{
		{Name: fingerprint.SignalFonts, Probe: slow, Async: true},
		{Name: fingerprint.SignalAudio, Probe: fingerprint.Static("124.04"), Async: true},
	}, fingerprint.WithProbeTimeout(20*time.Millisecond))

	start := time.Now()
	rec, err := c.Collect(context.Background())
	require.NoError(t, err)

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, "fonts-not-supported", rec.Signals[fingerprint.SignalFonts])
	assert.Equal(t, "124.04", rec.Signals[fingerprint.SignalAudio])
}

func TestCollector_FallbackStrategy(t *testing.T) {
	c := fingerprint.NewCollector(
		[]fingerprint.Source{{Name: "a", Probe: fingerprint.Static("1")}},
		fingerprint.WithStrategies(unavailable{}, fingerprint.Rolling32{}),
	)

	rec, err := c.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "rolling32", rec.Strategy)

	data, err := fingerprint.Serialize(rec.Signals)
	require.NoError(t, err)
	assert.Equal(t, fingerprint.Rolling32{}.Sum(data), rec.Fingerprint)
}
