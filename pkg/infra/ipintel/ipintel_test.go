package ipintel_test

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/eventwish/fraudguard/pkg/domain/errors"
	"github.com/eventwish/fraudguard/pkg/infra/cache"
	"github.com/eventwish/fraudguard/pkg/infra/ipintel"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubHTTPClient struct {
	status int
	body   string
	err    error
	calls  int
	url    string
}

func (s *stubHTTPClient) Get(_ context.Context, url string, _ map[string]string) (int, []byte, error) {
	s.calls++
	s.url = url
	return s.status, []byte(s.body), s.err
}

func TestClassifyOrg(t *testing.T) {
	tests := []struct {
		org  string
		want ipintel.Info
	}{
		{org: "Amazon.com, Inc.", want: ipintel.Info{IsDatacenter: true, Org: "Amazon.com, Inc."}},
		{org: "NordVPN S.A.", want: ipintel.Info{IsVPN: true, IsProxy: true, Org: "NordVPN S.A."}},
		{org: "Acme Hosting", want: ipintel.Info{IsProxy: true, Org: "Acme Hosting"}},
		{org: "Comcast Cable", want: ipintel.Info{Org: "Comcast Cable"}},
		{org: "", want: ipintel.Info{}},
	}
	for _, tt := range tests {
		t.Run(tt.org, func(t *testing.T) {
			assert.Equal(t, tt.want, ipintel.ClassifyOrg(tt.org))
		})
	}
}

func TestHTTPProvider_ParsesTopLevelFlags(t *testing.T) {
	client := &stubHTTPClient{status: 200, body: `{"org":"Example ISP","hosting":true,"proxy":false}`}
	p := ipintel.NewHTTPProvider(ipintel.HTTPConfig{URL: "http://intel.local/json/{ip}"}, client, logrus.New())

	info, err := p.Lookup(context.Background(), "203.0.113.7")
	require.NoError(t, err)
	assert.True(t, info.IsDatacenter)
	assert.False(t, info.IsProxy)
	assert.Equal(t, "Example ISP", info.Org)
	assert.Equal(t, "http://intel.local/json/203.0.113.7", client.url)
}

func TestHTTPProvider_EscapesAddressInPath(t *testing.T) {
	tests := []struct {
		name string
		url  string
		ip   string
		want string
	}{
		{name: "traversal", url: "http://intel.local/json/{ip}", ip: "1.2.3.4/../admin?", want: "http://intel.local/json/1.2.3.4%2F..%2Fadmin%3F"},
		{name: "appended", url: "http://intel.local/lookup/", ip: "1.2.3.4/x", want: "http://intel.local/lookup/1.2.3.4%2Fx"},
		{name: "ipv6", url: "http://intel.local/json/{ip}", ip: "2001:db8::1", want: "http://intel.local/json/2001:db8::1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &stubHTTPClient{status: 200, body: `{"org":"Example ISP"}`}
			p := ipintel.NewHTTPProvider(ipintel.HTTPConfig{URL: tt.url}, client, logrus.New())

			_, err := p.Lookup(context.Background(), tt.ip)
			require.NoError(t, err)
			assert.Equal(t, tt.want, client.url)
		})
	}
}

func TestHTTPProvider_ParsesPrivacyObject(t *testing.T) {
	client := &stubHTTPClient{status: 200, body: `{"org":"AS1 Example","privacy":{"vpn":true,"proxy":true,"hosting":false}}`}
	p := ipintel.NewHTTPProvider(ipintel.HTTPConfig{URL: "http://intel.local"}, client, logrus.New())

	info, err := p.Lookup(context.Background(), "198.51.100.1")
	require.NoError(t, err)
	assert.True(t, info.IsVPN)
	assert.True(t, info.IsProxy)
	assert.False(t, info.IsDatacenter)
	assert.Equal(t, "http://intel.local/198.51.100.1", client.url)
}

func TestHTTPProvider_FallsBackToOrgHeuristics(t *testing.T) {
	client := &stubHTTPClient{status: 200, body: `{"isp":"DigitalOcean, LLC"}`}
	p := ipintel.NewHTTPProvider(ipintel.HTTPConfig{URL: "http://intel.local"}, client, logrus.New())

	info, err := p.Lookup(context.Background(), "198.51.100.1")
	require.NoError(t, err)
	assert.True(t, info.IsDatacenter)
}

func TestHTTPProvider_FailuresAreSignalUnavailable(t *testing.T) {
	tests := []struct {
		name   string
		client *stubHTTPClient
	}{
		{name: "transport error", client: &stubHTTPClient{err: errors.New("dial timeout")}},
		{name: "bad status", client: &stubHTTPClient{status: 503}},
		{name: "bad body", client: &stubHTTPClient{status: 200, body: "not json"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := ipintel.NewHTTPProvider(ipintel.HTTPConfig{URL: "http://intel.local"}, tt.client, logrus.New())
			_, err := p.Lookup(context.Background(), "198.51.100.1")
			assert.ErrorIs(t, err, domain.ErrSignalUnavailable)
		})
	}
}

func TestHTTPProvider_BreakerOpensAfterFailures(t *testing.T) {
	client := &stubHTTPClient{err: errors.New("down")}
	p := ipintel.NewHTTPProvider(ipintel.HTTPConfig{URL: "http://intel.local", MaxFailures: 2}, client, logrus.New())

	for i := 0; i < 4; i++ {
		_, err := p.Lookup(context.Background(), "198.51.100.1")
		assert.ErrorIs(t, err, domain.ErrSignalUnavailable)
	}
	assert.Equal(t, 2, client.calls)
}

func TestStaticProvider(t *testing.T) {
	p, err := ipintel.NewStaticProvider(ipintel.StaticConfig{
		DatacenterRanges: []string{"203.0.113.0/24"},
		VPNRanges:        []string{"198.51.100.7"},
		Orgs:             map[string]string{"192.0.2.0/24": "Example Proxy Co"},
	})
	require.NoError(t, err)

	info, err := p.Lookup(context.Background(), "203.0.113.50")
	require.NoError(t, err)
	assert.True(t, info.IsDatacenter)

	info, err = p.Lookup(context.Background(), "198.51.100.7")
	require.NoError(t, err)
	assert.True(t, info.IsVPN)
	assert.False(t, info.IsDatacenter)

	info, err = p.Lookup(context.Background(), "192.0.2.10")
	require.NoError(t, err)
	assert.True(t, info.IsProxy)
	assert.Equal(t, "Example Proxy Co", info.Org)

	_, err = p.Lookup(context.Background(), "not-an-ip")
	assert.ErrorIs(t, err, domain.ErrSignalUnavailable)
}

func TestStaticProvider_InvalidRange(t *testing.T) {
	_, err := ipintel.NewStaticProvider(ipintel.StaticConfig{DatacenterRanges: []string{"nope"}})
	assert.Error(t, err)
}

func TestCachedProvider(t *testing.T) {
	calls := 0
	next := ipintel.ProviderFunc(func(_ context.Context, ip string) (ipintel.Info, error) {
		calls++
		if ip == "bad" {
			return ipintel.Info{}, domain.NewSignalError("network", errors.New("down"))
		}
		return ipintel.Info{IsDatacenter: true}, nil
	})
	ns := cache.NewMemoryClient(logrus.New()).Namespace(cache.IPIntelNamespace)
	p := ipintel.NewCachedProvider(next, ns, time.Minute, logrus.New())

	for i := 0; i < 3; i++ {
		info, err := p.Lookup(context.Background(), "203.0.113.1")
		require.NoError(t, err)
		assert.True(t, info.IsDatacenter)
	}
	assert.Equal(t, 1, calls)

	for i := 0; i < 2; i++ {
		_, err := p.Lookup(context.Background(), "bad")
		assert.Error(t, err)
	}
	assert.Equal(t, 3, calls)
}
