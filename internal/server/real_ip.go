package server

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// RealIP returns the client address, preferring Forwarded, then
// X-Forwarded-For, then X-Real-IP over the socket peer.
func RealIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	for _, elem := range strings.Split(r.Header.Get("Forwarded"), ",") {
		for _, pair := range strings.Split(elem, ";") {
			key, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
			if ok && strings.EqualFold(key, "for") {
				if ip := parseIP(value); ip != "" {
					return ip
				}
			}
		}
	}
	for _, hop := range strings.Split(r.Header.Get("X-Forwarded-For"), ",") {
		if ip := parseIP(hop); ip != "" {
			return ip
		}
	}
	if ip := parseIP(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// parseIP accepts a bare address, a host:port pair or a bracketed IPv6
// literal, optionally quoted.
func parseIP(value string) string {
	value = strings.Trim(strings.TrimSpace(value), "\"")
	if value == "" {
		return ""
	}
	if ap, err := netip.ParseAddrPort(value); err == nil {
		return ap.Addr().String()
	}
	if addr, err := netip.ParseAddr(strings.Trim(value, "[]")); err == nil {
		return addr.String()
	}
	return ""
}
