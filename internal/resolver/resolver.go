// Package resolver determines which target a gateway request is for.
//
// Strategies run in a fixed order and each either yields a candidate URL or
// fails:
//
//  1. explicit: the designated query parameter on the request itself.
//  2. referer: the Referer carries the parameter, so the request is a relative
//     asset of a previously proxied page; its path and query are resolved
//     against the parent's origin.
//
// When both fail the result is ErrNoTarget, which callers answer with usage
// instructions rather than an error.
package resolver

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"framegate/internal/codec"
	"framegate/internal/model"
)

var (
	// ErrNoTarget is returned when no strategy produced a target.
	ErrNoTarget = errors.New("resolver: no target")
	// ErrResolution wraps the failure of a single strategy.
	ErrResolution = errors.New("resolver: strategy failed")
)

// Strategy names the step that produced a target.
type Strategy string

// Resolution strategies, in evaluation order.
const (
	StrategyExplicit Strategy = "explicit"
	StrategyReferer  Strategy = "referer"
	StrategyNone     Strategy = "none"
)

type strategy struct {
	name Strategy
	fn   func(*http.Request) (string, error)
}

// Resolver resolves targets using a designated query parameter.
type Resolver struct {
	param      string
	logger     *slog.Logger
	strategies []strategy
}

// New creates a Resolver reading the target from query parameter param.
func New(param string, logger *slog.Logger) *Resolver {
	r := &Resolver{
		param:  param,
		logger: logger.With("component", "resolver"),
	}
	r.strategies = []strategy{
		{StrategyExplicit, r.explicit},
		{StrategyReferer, r.fromReferer},
	}
	return r
}

// Param returns the designated query parameter name.
func (r *Resolver) Param() string {
	return r.param
}

// Resolve returns the target for req and the strategy that found it.
// Strategy failures are logged and never returned; the only error is
// ErrNoTarget.
func (r *Resolver) Resolve(req *http.Request) (*model.Target, Strategy, error) {
	for _, s := range r.strategies {
		raw, err := s.fn(req)
		if err != nil {
			r.logger.Debug("strategy skipped", "strategy", s.name, "err", err)
			continue
		}
		target, err := Normalize(raw)
		if err != nil {
			r.logger.Debug("strategy failed", "strategy", s.name, "err", err)
			continue
		}
		return target, s.name, nil
	}
	return nil, StrategyNone, ErrNoTarget
}

func (r *Resolver) explicit(req *http.Request) (string, error) {
	v := req.URL.Query().Get(r.param)
	if v == "" {
		return "", fmt.Errorf("%w: no %q parameter", ErrResolution, r.param)
	}
	return v, nil
}

func (r *Resolver) fromReferer(req *http.Request) (string, error) {
	ref := req.Header.Get("Referer")
	if ref == "" {
		return "", fmt.Errorf("%w: no referer", ErrResolution)
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("%w: parse referer: %v", ErrResolution, err)
	}
	raw := refURL.Query().Get(r.param)
	if raw == "" {
		return "", fmt.Errorf("%w: referer has no %q parameter", ErrResolution, r.param)
	}
	parentRaw, err := codec.Expand(raw)
	if err != nil {
		return "", fmt.Errorf("%w: referer target: %v", ErrResolution, err)
	}
	parent, err := Normalize(parentRaw)
	if err != nil {
		return "", err
	}
	return parent.Origin() + req.URL.RequestURI(), nil
}

// Normalize turns a literal URL, codec token or bare host into a target.
// Anything not starting with "http" is decoded when possible; a result still
// lacking a scheme gets "https://", so "httpbin.org" is a host, not a scheme.
func Normalize(raw string) (*model.Target, error) {
	candidate := strings.TrimSpace(raw)
	if candidate == "" {
		return nil, fmt.Errorf("%w: empty candidate", ErrResolution)
	}
	if !strings.HasPrefix(candidate, "http") {
		if decoded, err := codec.Decode(candidate); err == nil {
			candidate = decoded
		}
	}
	if !hasScheme(candidate) {
		candidate = "https://" + candidate
	}

	u, err := url.Parse(candidate)
	if err != nil {
		return nil, fmt.Errorf("%w: parse %q: %v", ErrResolution, candidate, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrResolution, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host in %q", ErrResolution, candidate)
	}
	return &model.Target{URL: u}, nil
}

func hasScheme(s string) bool {
	lower := strings.ToLower(s)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
