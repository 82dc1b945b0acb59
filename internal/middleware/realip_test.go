package middleware

import (
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
)

func TestTrustedRealIP(t *testing.T) {
	trusted := []netip.Prefix{
		netip.MustParsePrefix("10.0.0.0/8"),
		netip.MustParsePrefix("192.0.2.10/32"),
	}

	cases := []struct {
		name   string
		remote string
		xff    string
		expect string
	}{
		{"trusted cidr", "10.1.2.3:443", "203.0.113.9, 10.1.2.3", "203.0.113.9"},
		{"trusted single ip", "192.0.2.10:80", "203.0.113.10", "203.0.113.10"},
		{"untrusted peer", "198.51.100.1:5555", "203.0.113.11", "198.51.100.1"},
		{"trusted but no header", "10.1.2.3:443", "", "10.1.2.3"},
		{"trusted but garbage header", "10.1.2.3:443", "not-an-ip", "10.1.2.3"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got string
			h := TrustedRealIP(trusted)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = clientIP(r)
			}))

			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tc.remote
			if tc.xff != "" {
				req.Header.Set("X-Forwarded-For", tc.xff)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)

			if got != tc.expect {
				t.Errorf("client ip: got %q, want %q", got, tc.expect)
			}
		})
	}
}

func TestTrustedRealIP_NoProxiesIsNoop(t *testing.T) {
	var got string
	h := TrustedRealIP(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.RemoteAddr
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "198.51.100.1:5555"
	req.Header.Set("X-Forwarded-For", "203.0.113.1")
	req.Header.Set("True-Client-IP", "203.0.113.2")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if got != "198.51.100.1:5555" {
		t.Errorf("RemoteAddr: got %q, want unchanged", got)
	}
}
