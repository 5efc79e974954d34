package api

import (
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestClientIP(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		realIP     string
		want       string
	}{
		{name: "remote addr only", remoteAddr: "203.0.113.9:52110", want: "203.0.113.9"},
		{name: "x-forwarded-for wins", remoteAddr: "10.0.0.1:80", xff: "198.51.100.7, 10.0.0.1", want: "198.51.100.7"},
		{name: "x-real-ip fallback", remoteAddr: "10.0.0.1:80", realIP: "198.51.100.8", want: "198.51.100.8"},
		{name: "remote addr without port", remoteAddr: "203.0.113.9", want: "203.0.113.9"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest("GET", "/v1/tokens", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			if got := clientIP(req); got != tt.want {
				t.Errorf("clientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIPLimiter_AllowPerIP(t *testing.T) {
	t.Parallel()

	l := &ipLimiter{
		entries: make(map[string]*ipLimiterEntry),
		rps:     rate.Limit(1),
		burst:   2,
		ttl:     time.Minute,
	}

	if !l.allow("1.1.1.1") || !l.allow("1.1.1.1") {
		t.Fatal("burst requests were rejected")
	}
	if l.allow("1.1.1.1") {
		t.Error("request over burst was allowed")
	}
	// Other clients have their own bucket.
	if !l.allow("2.2.2.2") {
		t.Error("fresh client was rejected")
	}
}
