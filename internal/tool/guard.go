package tool

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// egressGuard blocks outbound requests to private networks, loopback,
// link-local ranges and cloud metadata endpoints. Tool URLs are templated
// with model-controlled arguments, so a guarded tool cannot be steered at
// internal infrastructure.
type egressGuard struct {
	blockedHosts map[string]struct{}
}

func newEgressGuard() *egressGuard {
	return &egressGuard{
		blockedHosts: map[string]struct{}{
			"localhost":                {},
			"metadata.google.internal": {},
			"metadata.gce.internal":    {},
			"metadata.internal":        {},
		},
	}
}

// validate statically checks a URL. Hostname targets still get a dial-time
// IP check in transport, which covers DNS rebinding.
func (g *egressGuard) validate(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return fmt.Errorf("scheme %q not allowed", u.Scheme)
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("empty hostname")
	}
	if _, blocked := g.blockedHosts[strings.ToLower(host)]; blocked {
		return fmt.Errorf("host %q not allowed", host)
	}
	if ip := net.ParseIP(host); ip != nil {
		return g.checkIP(ip)
	}
	return nil
}

func (g *egressGuard) checkIP(ip net.IP) error {
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	switch {
	case ip.IsLoopback():
		return fmt.Errorf("loopback address %s not allowed", ip)
	case ip.IsPrivate():
		return fmt.Errorf("private address %s not allowed", ip)
	case ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast():
		return fmt.Errorf("link-local address %s not allowed", ip)
	case ip.IsUnspecified():
		return fmt.Errorf("unspecified address %s not allowed", ip)
	}
	return nil
}

// transport checks every resolved IP before dialing and connects to the
// first one it checked, so resolution and connection cannot disagree.
func (g *egressGuard) transport() *http.Transport {
	return &http.Transport{
		DialContext:         g.dial,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
}

func (g *egressGuard) dial(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		host, port = addr, ""
	}

	if ip := net.ParseIP(host); ip != nil {
		if err := g.checkIP(ip); err != nil {
			return nil, fmt.Errorf("egress blocked: %w", err)
		}
		return (&net.Dialer{}).DialContext(ctx, network, addr)
	}

	ips, err := net.DefaultResolver.LookupIP(ctx, "ip", host)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", host, err)
	}
	for _, ip := range ips {
		if err := g.checkIP(ip); err != nil {
			return nil, fmt.Errorf("egress blocked (%s resolves to %s): %w", host, ip, err)
		}
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("no addresses for %s", host)
	}

	target := ips[0].String()
	if port != "" {
		target = net.JoinHostPort(target, port)
	}
	return (&net.Dialer{}).DialContext(ctx, network, target)
}
