package middleware_test

import (
	"guardpost/middleware"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRealIP(t *testing.T) {
	trusted := []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("192.0.2.1/32"),
	}
	var seen string
	h := middleware.RealIP(trusted)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.RemoteAddr
	}))

	cases := []struct {
		name   string
		remote string
		xff    string
		realIP string
		want   string
	}{
		{"untrusted peer keeps its address", "203.0.113.9:4000", "198.51.100.4", "198.51.100.5", "203.0.113.9:4000"},
		{"trusted peer with no headers", "10.1.2.3:4000", "", "", "10.1.2.3:4000"},
		{"rightmost untrusted hop wins", "10.1.2.3:4000", "198.51.100.66, 198.51.100.4, 10.9.9.9", "", "198.51.100.4:4000"},
		{"spoofed leftmost hop is skipped", "192.0.2.1:4000", "1.1.1.1,198.51.100.4", "", "198.51.100.4:4000"},
		{"real ip header from trusted peer", "10.1.2.3:4000", "", "198.51.100.5", "198.51.100.5:4000"},
		{"all hops trusted falls back to real ip", "10.1.2.3:4000", "10.2.2.2, 192.0.2.1", "198.51.100.5", "198.51.100.5:4000"},
		{"all hops trusted without real ip", "10.1.2.3:4000", "10.2.2.2", "", "10.1.2.3:4000"},
		{"unparsable hop is ignored", "10.1.2.3:4000", "198.51.100.4, unknown", "", "10.1.2.3:4000"},
		{"mapped addresses are unmapped", "[::ffff:10.1.2.3]:4000", "::ffff:198.51.100.4", "", "198.51.100.4:4000"},
		{"ipv6 client", "10.1.2.3:4000", "2001:db8::7", "", "[2001:db8::7]:4000"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tc.remote
			if tc.xff != "" {
				r.Header.Set("X-Forwarded-For", tc.xff)
			}
			if tc.realIP != "" {
				r.Header.Set("X-Real-IP", tc.realIP)
			}
			h.ServeHTTP(httptest.NewRecorder(), r)
			assert.Equal(t, tc.want, seen)
		})
	}
}

func TestRealIP_NoTrustedProxies(t *testing.T) {
	var seen string
	h := middleware.RealIP(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.RemoteAddr
	}))
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.1.2.3:4000"
	r.Header.Set("X-Forwarded-For", "198.51.100.4")
	h.ServeHTTP(httptest.NewRecorder(), r)
	assert.Equal(t, "10.1.2.3:4000", seen)
}
