package middleware

import (
	"net"
	"net/http"
	"strings"
)

const (
	headerForwardedFor = "X-Forwarded-For"
	unknownClient      = "unknown"
)

// ClientIP returns a best-effort client identity for admission control.
// First present wins: the trusted edge-proxy header (first value), the first
// entry of X-Forwarded-For, the transport remote address, then "unknown".
// It is a pure function of the headers and the remote address.
func ClientIP(h http.Header, remoteAddr, trustedHeader string) string {
	if trustedHeader != "" {
		if vals := h.Values(trustedHeader); len(vals) > 0 {
			if v := strings.TrimSpace(vals[0]); v != "" {
				return v
			}
		}
	}

	if xff := h.Get(headerForwardedFor); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if v := strings.TrimSpace(first); v != "" {
			return v
		}
	}

	if remoteAddr != "" {
		if host, _, err := net.SplitHostPort(remoteAddr); err == nil && host != "" {
			return host
		}
		return remoteAddr
	}

	return unknownClient
}
