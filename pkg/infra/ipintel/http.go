package ipintel

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	domain "github.com/eventwish/fraudguard/pkg/domain/errors"
	"github.com/eventwish/fraudguard/pkg/infra/httpx"
	"github.com/sirupsen/logrus"
	"github.com/valyala/fastjson"
)

const signalName = "network"

type HTTPConfig struct {
	// URL is the lookup endpoint; "{ip}" is replaced with the address,
	// otherwise the address is appended as a path segment.
	URL            string
	APIKey         string
	APIKeyHeader   string
	Timeout        time.Duration
	BreakerTimeout time.Duration
	MaxFailures    uint32
}

type httpProvider struct {
	cfg     HTTPConfig
	client  httpx.Client
	breaker httpx.CircuitBreaker
	parsers fastjson.ParserPool
	logger  *logrus.Logger
}

// NewHTTPProvider queries a remote IP-intelligence API behind a circuit breaker.
func NewHTTPProvider(cfg HTTPConfig, client httpx.Client, logger *logrus.Logger) Provider {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.BreakerTimeout == 0 {
		cfg.BreakerTimeout = 30 * time.Second
	}
	if cfg.APIKeyHeader == "" {
		cfg.APIKeyHeader = "Authorization"
	}
	if client == nil {
		client = httpx.NewFastHTTPClient(httpx.WithTimeout(cfg.Timeout), httpx.WithUserAgent("fraudguard"))
	}
	return &httpProvider{
		cfg:     cfg,
		client:  client,
		breaker: httpx.NewCircuitBreaker("ipintel", cfg.BreakerTimeout, cfg.MaxFailures, logger),
		logger:  logger,
	}
}

func (p *httpProvider) Lookup(ctx context.Context, ip string) (Info, error) {
	if ip == "" {
		return Info{}, domain.NewSignalError(signalName, errors.New("empty ip"))
	}
	var info Info
	err := p.breaker.Execute(func() error {
		var err error
		info, err = p.fetch(ctx, ip)
		return err
	})
	if err != nil {
		return Info{}, domain.NewSignalError(signalName, err)
	}
	return info, nil
}

func (p *httpProvider) fetch(ctx context.Context, ip string) (Info, error) {
	segment := url.PathEscape(ip)
	endpoint := p.cfg.URL
	if strings.Contains(endpoint, "{ip}") {
		endpoint = strings.ReplaceAll(endpoint, "{ip}", segment)
	} else {
		endpoint = strings.TrimRight(endpoint, "/") + "/" + segment
	}

	headers := map[string]string{"Accept": "application/json"}
	if p.cfg.APIKey != "" {
		headers[p.cfg.APIKeyHeader] = p.cfg.APIKey
	}

	status, body, err := p.client.Get(ctx, endpoint, headers)
	if err != nil {
		return Info{}, err
	}
	if status != http.StatusOK {
		return Info{}, fmt.Errorf("ip lookup returned status %d", status)
	}
	return p.parse(body)
}

// parse accepts the common shapes of IP-intelligence APIs: top-level
// hosting/proxy/vpn flags, a nested "privacy" object, or only an org name.
func (p *httpProvider) parse(body []byte) (Info, error) {
	parser := p.parsers.Get()
	defer p.parsers.Put(parser)

	v, err := parser.ParseBytes(body)
	if err != nil {
		return Info{}, fmt.Errorf("invalid ip lookup response: %w", err)
	}

	org := string(v.GetStringBytes("org"))
	if org == "" {
		org = string(v.GetStringBytes("isp"))
	}
	info := ClassifyOrg(org)

	flags := v
	if privacy := v.Get("privacy"); privacy != nil && privacy.Type() == fastjson.TypeObject {
		flags = privacy
	}
	if b, ok := boolField(flags, "hosting", "is_datacenter", "datacenter"); ok {
		info.IsDatacenter = b
	}
	if b, ok := boolField(flags, "proxy", "is_proxy"); ok {
		info.IsProxy = b
	}
	if b, ok := boolField(flags, "vpn", "is_vpn"); ok {
		info.IsVPN = b
	}
	return info, nil
}

func boolField(v *fastjson.Value, names ...string) (bool, bool) {
	for _, n := range names {
		f := v.Get(n)
		if f == nil {
			continue
		}
		switch f.Type() {
		case fastjson.TypeTrue:
			return true, true
		case fastjson.TypeFalse:
			return false, true
		}
	}
	return false, false
}
