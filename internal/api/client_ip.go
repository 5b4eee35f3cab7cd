package api

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ClientIPResolver picks the address used for rate limiting and for the
// ip_address recorded on a session. Forwarding headers count only when the
// direct peer is a trusted proxy.
type ClientIPResolver struct {
	trusted []netip.Prefix
}

func NewClientIPResolver(trustedProxies []string) (*ClientIPResolver, error) {
	resolver := &ClientIPResolver{}

	for _, raw := range trustedProxies {
		value := strings.TrimSpace(raw)
		if value == "" {
			continue
		}

		if addr, err := netip.ParseAddr(value); err == nil {
			addr = addr.Unmap()
			resolver.trusted = append(resolver.trusted, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}

		prefix, err := netip.ParsePrefix(value)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", value, err)
		}
		resolver.trusted = append(resolver.trusted, prefix.Masked())
	}

	return resolver, nil
}

func (r *ClientIPResolver) Resolve(req *http.Request) string {
	peer, ok := addrFromRemote(req.RemoteAddr)
	if !ok {
		return "unknown"
	}

	if r.isTrusted(peer) {
		if addr, ok := r.forwardedFor(req.Header.Get("X-Forwarded-For")); ok {
			return addr.String()
		}
		if addr, ok := parseAddr(req.Header.Get("X-Real-IP")); ok {
			return addr.String()
		}
	}

	return peer.String()
}

// forwardedFor walks X-Forwarded-For from the right and returns the first hop
// that is not a trusted proxy. Entries left of it were written by the client
// and are ignored. An unparseable hop ends the walk.
func (r *ClientIPResolver) forwardedFor(header string) (netip.Addr, bool) {
	if header == "" {
		return netip.Addr{}, false
	}

	hops := strings.Split(header, ",")
	var nearest netip.Addr
	for i := len(hops) - 1; i >= 0; i-- {
		addr, ok := parseAddr(hops[i])
		if !ok {
			break
		}
		if !r.isTrusted(addr) {
			return addr, true
		}
		nearest = addr
	}
	return nearest, nearest.IsValid()
}

// KeyFunc adapts Resolve to httprate.
func (r *ClientIPResolver) KeyFunc(req *http.Request) (string, error) {
	return r.Resolve(req), nil
}

func (r *ClientIPResolver) isTrusted(addr netip.Addr) bool {
	for _, prefix := range r.trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

func addrFromRemote(remoteAddr string) (netip.Addr, bool) {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return parseAddr(host)
	}
	return parseAddr(remoteAddr)
}

func parseAddr(value string) (netip.Addr, bool) {
	value = strings.Trim(strings.TrimSpace(value), `"`)
	if value == "" {
		return netip.Addr{}, false
	}

	if addr, err := netip.ParseAddr(strings.Trim(value, "[]")); err == nil {
		return addr.Unmap(), true
	}
	if addrPort, err := netip.ParseAddrPort(value); err == nil {
		return addrPort.Addr().Unmap(), true
	}
	return netip.Addr{}, false
}
