package service

import (
	"net/http"
	"strings"
)

// framingHeaders stop a target from being embedded or scripted across origins.
var framingHeaders = []string{
	"Content-Security-Policy",
	"Content-Security-Policy-Report-Only",
	"X-Frame-Options",
	"X-Content-Type-Options",
}

// SanitizeResponseHeader returns a copy of a target's response headers that
// lets the page load inside a frame on the gateway origin. The second return
// value is the number of Set-Cookie values rewritten.
func SanitizeResponseHeader(src http.Header) (http.Header, int) {
	dst := src.Clone()
	if dst == nil {
		dst = make(http.Header)
	}

	removeHopByHop(dst)
	for _, key := range framingHeaders {
		dst.Del(key)
	}
	dst.Set("Access-Control-Allow-Origin", "*")

	cookies := dst.Values("Set-Cookie")
	if len(cookies) == 0 {
		return dst, 0
	}
	dst.Del("Set-Cookie")
	for _, c := range cookies {
		dst.Add("Set-Cookie", RewriteSetCookie(c))
	}
	return dst, len(cookies)
}

// RewriteSetCookie rewrites a single Set-Cookie value so the browser stores
// it for the gateway origin and sends it on framed requests: Domain and
// Secure are dropped and SameSite Lax or Strict becomes None. The name=value
// pair and every other attribute are kept as written.
func RewriteSetCookie(value string) string {
	parts := strings.Split(value, ";")
	out := make([]string, 0, len(parts))

	for i, part := range parts {
		attr := strings.TrimSpace(part)
		if i == 0 {
			out = append(out, attr)
			continue
		}
		if attr == "" {
			continue
		}

		name, val, _ := strings.Cut(attr, "=")
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "domain", "secure":
			continue
		case "samesite":
			switch strings.ToLower(strings.TrimSpace(val)) {
			case "lax", "strict":
				attr = "SameSite=None"
			}
		}
		out = append(out, attr)
	}
	return strings.Join(out, "; ")
}
