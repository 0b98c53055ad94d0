package clientip

import (
	"net/http/httptest"
	"testing"
)

func TestRealClientIP(t *testing.T) {
	tests := []struct {
		name   string
		remote string
		fwd    string
		want   string
	}{
		{"direct peer", "203.0.113.7:4312", "", "203.0.113.7"},
		{"forwarded header ignored from remote peer", "203.0.113.7:4312", "10.0.0.1", "203.0.113.7"},
		{"loopback proxy", "127.0.0.1:5173", "198.51.100.2, 127.0.0.1", "198.51.100.2"},
		{"loopback without header", "[::1]:5173", "", "::1"},
		{"garbage header", "127.0.0.1:5173", "not-an-ip", "127.0.0.1"},
		{"no port", "192.0.2.1", "", "192.0.2.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remote
			if tt.fwd != "" {
				r.Header.Set("X-Forwarded-For", tt.fwd)
			}
			if got := RealClientIP(r); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
