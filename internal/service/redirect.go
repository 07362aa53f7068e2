package service

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"framegate/internal/codec"
	"framegate/internal/model"
)

// ErrMalformedLocation is returned when a redirect's Location cannot be parsed.
var ErrMalformedLocation = errors.New("malformed redirect location")

var redirectStatuses = map[int]bool{
	http.StatusMovedPermanently:  true,
	http.StatusFound:             true,
	http.StatusTemporaryRedirect: true,
	http.StatusPermanentRedirect: true,
}

// RewriteRedirect points a target redirect back at the gateway. The Location
// is resolved against the target URL, encoded, and carried in param on
// proxyOrigin. It reports whether the header was rewritten; on
// ErrMalformedLocation the header is left as the target sent it.
func RewriteRedirect(status int, h http.Header, target *model.Target, proxyOrigin, param string) (bool, error) {
	if !redirectStatuses[status] {
		return false, nil
	}
	loc := h.Get("Location")
	if loc == "" {
		return false, nil
	}

	ref, err := url.Parse(loc)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrMalformedLocation, err)
	}
	abs := target.URL.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return false, fmt.Errorf("%w: unsupported scheme %q", ErrMalformedLocation, abs.Scheme)
	}

	h.Set("Location", proxyOrigin+"/?"+param+"="+codec.Encode(abs.String()))
	return true, nil
}
