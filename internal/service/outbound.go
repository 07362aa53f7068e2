package service

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"framegate/internal/model"
)

// fingerprintHeaders reveal that a request passed through an edge network
// or this gateway. They are never forwarded to a target.
var fingerprintHeaders = []string{
	"Cf-Visitor",
	"Cf-Connecting-Ip",
	"Cf-Ray",
	"Cf-Ipcountry",
	"Cdn-Loop",
	"True-Client-Ip",
	"X-Forwarded-For",
	"X-Forwarded-Host",
	"X-Forwarded-Proto",
	"X-Real-Ip",
	"Forwarded",
	"X-Request-Id",
}

// hopByHopHeaders apply to a single connection (RFC 9110 section 7.6.1).
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// NewOutboundRequest builds the request sent to pr.Target. Inbound headers
// are copied with every value, then identity headers are rewritten so the
// target sees a same-origin browser request.
func NewOutboundRequest(pr *model.ProxyRequest) (*http.Request, error) {
	var body io.ReadCloser = http.NoBody
	if hasBody(pr) {
		body = pr.Body
	}

	req, err := http.NewRequestWithContext(pr.Ctx, pr.Method, pr.Target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build outbound request: %w", err)
	}
	if body != http.NoBody {
		req.ContentLength = pr.ContentLength
	}

	req.Header = outboundHeader(pr.Header, pr.Target)
	req.Host = pr.Target.URL.Host
	return req, nil
}

func hasBody(pr *model.ProxyRequest) bool {
	if pr.Body == nil || pr.Body == http.NoBody {
		return false
	}
	if pr.Method == http.MethodGet || pr.Method == http.MethodHead {
		return false
	}
	return pr.ContentLength != 0
}

func outboundHeader(src http.Header, target *model.Target) http.Header {
	dst := src.Clone()
	if dst == nil {
		dst = make(http.Header)
	}

	removeHopByHop(dst)
	for _, key := range fingerprintHeaders {
		dst.Del(key)
	}
	// net/http sends req.Host; a Host entry in the map is ignored.
	dst.Del("Host")

	origin := target.Origin()
	dst.Set("Origin", origin)
	dst.Set("Referer", origin+"/")
	return dst
}

// removeHopByHop deletes hop-by-hop headers, including any extra headers
// the Connection header nominates.
func removeHopByHop(h http.Header) {
	for _, v := range h.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				h.Del(name)
			}
		}
	}
	for _, key := range hopByHopHeaders {
		h.Del(key)
	}
	for key := range h {
		if strings.HasPrefix(key, "Proxy-") {
			delete(h, key)
		}
	}
}
