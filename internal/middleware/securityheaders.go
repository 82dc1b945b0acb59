package middleware

import (
	"maps"
	"net/http"
)

// apiHeaders go on every response. The API only returns JSON that carries credentials.
var apiHeaders = map[string]string{
	"X-Content-Type-Options":       "nosniff",
	"X-Frame-Options":              "DENY",
	"Content-Security-Policy":      "default-src 'none'; frame-ancestors 'none'",
	"Referrer-Policy":              "no-referrer",
	"Cross-Origin-Resource-Policy": "same-origin",
	"Cache-Control":                "no-store",
	"Pragma":                       "no-cache",
}

const hstsValue = "max-age=31536000; includeSubDomains"

// SecurityHeaders sets apiHeaders, plus Strict-Transport-Security when hsts is
// true (serving HTTPS). Handlers may still override any of them.
func SecurityHeaders(hsts bool) func(http.Handler) http.Handler {
	headers := maps.Clone(apiHeaders)
	if hsts {
		headers["Strict-Transport-Security"] = hstsValue
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for k, v := range headers {
				h.Set(k, v)
			}
			next.ServeHTTP(w, r)
		})
	}
}
