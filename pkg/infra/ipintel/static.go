package ipintel

import (
	"context"
	"errors"
	"fmt"
	"net/netip"

	domain "github.com/eventwish/fraudguard/pkg/domain/errors"
)

type StaticConfig struct {
	DatacenterRanges []string
	VPNRanges        []string
	ProxyRanges      []string
	// Orgs maps an address or CIDR to an organisation name run through ClassifyOrg.
	Orgs map[string]string
}

type staticProvider struct {
	datacenter []netip.Prefix
	vpn        []netip.Prefix
	proxy      []netip.Prefix
	orgs       []orgRange
}

type orgRange struct {
	prefix netip.Prefix
	org    string
}

// NewStaticProvider answers lookups from configured address ranges.
func NewStaticProvider(cfg StaticConfig) (Provider, error) {
	p := &staticProvider{}
	var err error
	if p.datacenter, err = parsePrefixes(cfg.DatacenterRanges); err != nil {
		return nil, err
	}
	if p.vpn, err = parsePrefixes(cfg.VPNRanges); err != nil {
		return nil, err
	}
	if p.proxy, err = parsePrefixes(cfg.ProxyRanges); err != nil {
		return nil, err
	}
	for r, org := range cfg.Orgs {
		prefix, err := parsePrefix(r)
		if err != nil {
			return nil, err
		}
		p.orgs = append(p.orgs, orgRange{prefix: prefix, org: org})
	}
	return p, nil
}

func (p *staticProvider) Lookup(_ context.Context, ip string) (Info, error) {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return Info{}, domain.NewSignalError(signalName, fmt.Errorf("invalid ip %q: %w", ip, err))
	}
	addr = addr.Unmap()

	var info Info
	for _, o := range p.orgs {
		if o.prefix.Contains(addr) {
			info = ClassifyOrg(o.org)
			break
		}
	}
	info.IsDatacenter = info.IsDatacenter || matchAny(p.datacenter, addr)
	info.IsVPN = info.IsVPN || matchAny(p.vpn, addr)
	info.IsProxy = info.IsProxy || matchAny(p.proxy, addr)
	return info, nil
}

func parsePrefixes(ranges []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(ranges))
	for _, r := range ranges {
		prefix, err := parsePrefix(r)
		if err != nil {
			return nil, err
		}
		out = append(out, prefix)
	}
	return out, nil
}

func parsePrefix(r string) (netip.Prefix, error) {
	if prefix, err := netip.ParsePrefix(r); err == nil {
		return prefix.Masked(), nil
	}
	addr, err := netip.ParseAddr(r)
	if err != nil {
		return netip.Prefix{}, errors.New("invalid ip range: " + r)
	}
	addr = addr.Unmap()
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

func matchAny(prefixes []netip.Prefix, addr netip.Addr) bool {
	for _, p := range prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
