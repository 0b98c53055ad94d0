package clientip

import (
	"net"
	"net/http"
	"strings"
)

// RealClientIP returns the address rate limits and request logs key on.
// The gateway normally sits on localhost behind the UI's dev server, so
// X-Forwarded-For is honoured only when the peer itself is a loopback address.
func RealClientIP(r *http.Request) string {
	peer := hostOnly(r.RemoteAddr)
	if ip := net.ParseIP(peer); ip == nil || !ip.IsLoopback() {
		return peer
	}
	fwd := r.Header.Get("X-Forwarded-For")
	if fwd == "" {
		return peer
	}
	first, _, _ := strings.Cut(fwd, ",")
	if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
		return ip.String()
	}
	return peer
}

func hostOnly(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return strings.TrimSpace(addr)
	}
	return strings.TrimSpace(host)
}
