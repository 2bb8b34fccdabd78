package ipintel

import (
	"context"
	"strings"
)

// Info is what the network signal needs to know about an address.
type Info struct {
	IsDatacenter bool   `json:"is_datacenter"`
	IsProxy      bool   `json:"is_proxy"`
	IsVPN        bool   `json:"is_vpn"`
	Org          string `json:"org,omitempty"`
}

// Provider looks up an IP address. Failures wrap domain.ErrSignalUnavailable.
//
//go:generate mockery --name=Provider --dir=. --output=./mocks --filename=provider_mock.go --case=underscore --with-expecter
type Provider interface {
	Lookup(ctx context.Context, ip string) (Info, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, ip string) (Info, error)

func (f ProviderFunc) Lookup(ctx context.Context, ip string) (Info, error) {
	return f(ctx, ip)
}

var (
	datacenterKeywords = []string{
		"amazon", "aws", "google", "microsoft", "azure", "digitalocean",
		"linode", "vultr", "ovh", "hetzner", "cloud",
	}
	vpnKeywords   = []string{"vpn", "private", "tunnel", "nord", "express", "cyber"}
	proxyKeywords = []string{"proxy", "vpn", "hosting", "cloud"}
)

// ClassifyOrg applies keyword heuristics to an organisation name.
func ClassifyOrg(org string) Info {
	lower := strings.ToLower(org)
	return Info{
		IsDatacenter: containsAny(lower, datacenterKeywords),
		IsVPN:        containsAny(lower, vpnKeywords),
		IsProxy:      containsAny(lower, proxyKeywords),
		Org:          org,
	}
}

func containsAny(s string, keywords []string) bool {
	if s == "" {
		return false
	}
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
