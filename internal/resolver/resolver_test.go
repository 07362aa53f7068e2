package resolver

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"framegate/internal/codec"
)

func newTestResolver() *Resolver {
	return New("url", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestResolve_Explicit(t *testing.T) {
	target := "https://example.com/app?x=1"

	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"encoded token", "url=" + codec.Encode(target), target},
		{"literal url", "url=" + url.QueryEscape(target), target},
		{"bare host", "url=example.com", "https://example.com"},
		{"host starting with http", "url=httpbin.org/get", "https://httpbin.org/get"},
		{"encoded bare host", "url=" + codec.Encode("example.org/p"), "https://example.org/p"},
	}

	r := newTestResolver()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/?"+tt.query, http.NoBody)

			got, strategy, err := r.Resolve(req)
			require.NoError(t, err)
			assert.Equal(t, StrategyExplicit, strategy)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestResolve_RefererDerived(t *testing.T) {
	parent := "https://example.com/games/index.html?level=2"
	req := httptest.NewRequest(http.MethodGet, "/asset.js?x=1", http.NoBody)
	req.Header.Set("Referer", "https://proxy.test/?url="+codec.Encode(parent))

	got, strategy, err := newTestResolver().Resolve(req)
	require.NoError(t, err)
	assert.Equal(t, StrategyReferer, strategy)
	assert.Equal(t, "https://example.com/asset.js?x=1", got.String())
}

func TestResolve_RefererWithLiteralURL(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/css/site.css", http.NoBody)
	req.Header.Set("Referer", "https://proxy.test/?url="+url.QueryEscape("http://example.com:8080/page"))

	got, strategy, err := newTestResolver().Resolve(req)
	require.NoError(t, err)
	assert.Equal(t, StrategyReferer, strategy)
	assert.Equal(t, "http://example.com:8080/css/site.css", got.String())
}

func TestResolve_ExplicitWinsOverReferer(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?url="+codec.Encode("https://a.example/"), http.NoBody)
	req.Header.Set("Referer", "https://proxy.test/?url="+codec.Encode("https://b.example/"))

	got, strategy, err := newTestResolver().Resolve(req)
	require.NoError(t, err)
	assert.Equal(t, StrategyExplicit, strategy)
	assert.Equal(t, "a.example", got.URL.Host)
}

func TestResolve_InvalidExplicitFallsThrough(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/img.png?url=https%3A%2F%2F", http.NoBody)
	req.Header.Set("Referer", "https://proxy.test/?url="+codec.Encode("https://example.com/"))

	got, strategy, err := newTestResolver().Resolve(req)
	require.NoError(t, err)
	assert.Equal(t, StrategyReferer, strategy)
	assert.Equal(t, "example.com", got.URL.Host)
	assert.Equal(t, "/img.png", got.URL.Path)
}

func TestResolve_NoTarget(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		referer string
	}{
		{"bare root", "/", ""},
		{"referer without param", "/style.css", "https://other.example/page"},
		{"referer with undecodable param", "/style.css", "https://proxy.test/?url=%25%25%25"},
		{"unparsable referer", "/style.css", "://bad referer"},
	}

	r := newTestResolver()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, http.NoBody)
			if tt.referer != "" {
				req.Header.Set("Referer", tt.referer)
			}

			got, strategy, err := r.Resolve(req)
			assert.ErrorIs(t, err, ErrNoTarget)
			assert.Nil(t, got)
			assert.Equal(t, StrategyNone, strategy)
		})
	}
}

func TestResolve_CustomParam(t *testing.T) {
	r := New("target", slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Equal(t, "target", r.Param())

	req := httptest.NewRequest(http.MethodGet, "/?target="+codec.Encode("https://example.com/x"), http.NoBody)
	got, _, err := r.Resolve(req)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/x", got.String())

	req = httptest.NewRequest(http.MethodGet, "/?url="+codec.Encode("https://example.com/x"), http.NoBody)
	_, _, err = r.Resolve(req)
	assert.ErrorIs(t, err, ErrNoTarget)
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{"absolute https", "https://example.com/a", "https://example.com/a", false},
		{"absolute http", "http://example.com", "http://example.com", false},
		{"uppercase scheme", "HTTPS://example.com/", "https://example.com/", false},
		{"bare host", "example.com", "https://example.com", false},
		{"host and port", "localhost:8080/x", "https://localhost:8080/x", false},
		{"token", codec.Encode("http://example.com/y"), "http://example.com/y", false},
		{"empty", "  ", "", true},
		{"no host", "https://", "", true},
		{"scheme only", "http://", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrResolution)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}
