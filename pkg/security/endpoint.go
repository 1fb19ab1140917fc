package security

import (
	"net/netip"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// EndpointPolicy configures which model backend endpoints are accepted.
type EndpointPolicy struct {
	// AllowLocal permits plain http together with loopback, private and
	// link-local targets. Used for local proxies and test servers.
	AllowLocal bool
}

// CheckEndpoint rejects backend URLs that are not https or that point at the
// local network, unless the policy allows it. IP literals are checked without
// DNS lookups.
func CheckEndpoint(raw string, p EndpointPolicy) error {
	u, err := url.Parse(raw)
	if err != nil {
		return errors.Wrapf(err, "invalid endpoint %q", raw)
	}

	switch u.Scheme {
	case "https":
	case "http":
		if !p.AllowLocal {
			return errors.Errorf("endpoint %q must use https", raw)
		}
	default:
		return errors.Errorf("unsupported endpoint scheme %q", u.Scheme)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return errors.Errorf("endpoint %q has no host", raw)
	}
	if p.AllowLocal {
		return nil
	}

	if host == "localhost" || strings.HasSuffix(host, ".localhost") || strings.HasSuffix(host, ".local") {
		return errors.Errorf("local endpoint host %q is not allowed", host)
	}

	addr, err := netip.ParseAddr(host)
	if err != nil {
		// not an IP literal
		return nil
	}
	if addr.Zone() != "" {
		return errors.Errorf("zoned endpoint address %q is not allowed", host)
	}
	addr = addr.Unmap()
	if addr.IsUnspecified() || addr.IsMulticast() {
		return errors.Errorf("endpoint address %q is not routable", host)
	}
	if addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast() {
		return errors.Errorf("local endpoint address %q is not allowed", host)
	}
	return nil
}
