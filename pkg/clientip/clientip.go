package clientip

import (
	"net"
	"net/http"
	"strings"
)

// Resolver picks the client address of a request. With TrustProxy unset only
// r.RemoteAddr is used, so a client cannot pick its own rate limit bucket.
type Resolver struct {
	TrustProxy bool
}

// IP returns the client IP. Behind a trusted proxy the left-most
// X-Forwarded-For entry wins, then X-Real-IP.
func (res Resolver) IP(r *http.Request) string {
	if res.TrustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
				return ip.String()
			}
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip.String()
		}
	}
	return remoteHost(r)
}

// RealClientIP returns the client IP from r.RemoteAddr only.
func RealClientIP(r *http.Request) string {
	return remoteHost(r)
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return strings.TrimSpace(r.RemoteAddr)
	}
	return strings.TrimSpace(host)
}
