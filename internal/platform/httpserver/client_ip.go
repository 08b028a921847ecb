package httpserver

import (
	"net"
	"net/http"
	"strings"
)

// proxyIPHeaders are checked in order when the service sits behind a
// trusted proxy.
var proxyIPHeaders = []string{
	"X-Forwarded-For",
	"Proxy-Client-IP",
	"WL-Proxy-Client-IP",
	"HTTP_CLIENT_IP",
	"HTTP_X_FORWARDED_FOR",
}

// resolveClientIP returns the guest voter identity. Forwarding headers are
// ignored unless trustProxy is set, since any client can forge them.
func resolveClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		for _, header := range proxyIPHeaders {
			value := strings.TrimSpace(r.Header.Get(header))
			if value == "" || strings.EqualFold(value, "unknown") {
				continue
			}
			first, _, _ := strings.Cut(value, ",")
			if first = strings.TrimSpace(first); first != "" {
				return first
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return host
}
