// Package codec converts absolute target URLs to and from the compact token
// carried in the gateway's query parameter and in rewritten redirects.
package codec

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ErrDecode is returned when a token is not a valid encoded URL.
var ErrDecode = errors.New("codec: invalid token")

// Encode returns the unpadded URL-safe base64 form of rawURL. The alphabet
// (A-Z a-z 0-9 - _) needs no percent-escaping inside a query string.
func Encode(rawURL string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(rawURL))
}

// decoders are tried in order. Tokens minted elsewhere (browser btoa) use
// the standard alphabet, often with padding.
var decoders = []*base64.Encoding{
	base64.RawURLEncoding,
	base64.URLEncoding,
	base64.RawStdEncoding,
	base64.StdEncoding,
}

// Decode recovers the URL from a token produced by Encode or by a standard
// base64 encoder. A '+' that a form decoder turned into a space is restored.
func Decode(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", fmt.Errorf("%w: empty", ErrDecode)
	}
	token = strings.ReplaceAll(token, " ", "+")

	for _, enc := range decoders {
		b, err := enc.DecodeString(token)
		if err != nil {
			continue
		}
		if !printable(b) {
			return "", fmt.Errorf("%w: decoded bytes are not text", ErrDecode)
		}
		return string(b), nil
	}
	return "", fmt.Errorf("%w: not base64", ErrDecode)
}

// Expand treats a token containing "http" as an already absolute URL and
// decodes anything else.
func Expand(token string) (string, error) {
	if strings.Contains(token, "http") {
		return token, nil
	}
	return Decode(token)
}

func printable(b []byte) bool {
	if len(b) == 0 || !utf8.Valid(b) {
		return false
	}
	for _, r := range string(b) {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return false
		}
	}
	return true
}
