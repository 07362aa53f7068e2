// Package model defines shared types for the gateway.
package model

import (
	"context"
	"io"
	"net/http"
	"net/url"
)

// Target is the remote site a request is forwarded to. URL is always
// absolute with an http or https scheme.
type Target struct {
	URL *url.URL
}

// Origin returns scheme://host[:port] of the target.
func (t *Target) Origin() string {
	return t.URL.Scheme + "://" + t.URL.Host
}

// String returns the full target URL.
func (t *Target) String() string {
	return t.URL.String()
}

// Redacted returns the target URL without its query string, for logs.
func (t *Target) Redacted() string {
	u := *t.URL
	if u.RawQuery != "" {
		u.RawQuery = "[REDACTED]"
	}
	u.Fragment = ""
	return u.String()
}

// ProxyRequest represents a client request to be forwarded to a target.
type ProxyRequest struct {
	Ctx    context.Context
	Method string
	Header http.Header
	Body   io.ReadCloser
	// ContentLength mirrors http.Request.ContentLength (-1 when unknown).
	ContentLength int64

	Target *Target
	// ProxyOrigin is scheme://host of the gateway as seen by the client.
	ProxyOrigin string
}

// ProxyResponse represents the target response to be streamed back.
type ProxyResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
}
