// Package inject patches the head of proxied HTML documents while streaming.
package inject

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"

	xhtml "golang.org/x/net/html"

	"framegate/internal/model"
)

// IsHTML reports whether the response headers declare an HTML body.
func IsHTML(h http.Header) bool {
	return strings.Contains(strings.ToLower(h.Get("Content-Type")), "text/html")
}

// locationOverride is the set of location fields reported as the target's.
type locationOverride struct {
	Origin   string `json:"origin"`
	Host     string `json:"host"`
	Hostname string `json:"hostname"`
	Protocol string `json:"protocol"`
	Port     string `json:"port"`
}

// locationScript shadows window.location and document.domain with an object
// that forwards everything to the real location except the origin fields.
const locationScript = `(function(){var t=%s,l=window.location,f={};` +
	`for(var k in l){(function(k){Object.defineProperty(f,k,{enumerable:true,get:function(){var v=l[k];return typeof v==="function"?v.bind(l):v}})})(k)}` +
	`Object.keys(t).forEach(function(k){Object.defineProperty(f,k,{enumerable:true,value:t[k]})});` +
	`try{Object.defineProperty(window,"location",{configurable:true,get:function(){return f}})}catch(e){}` +
	`try{Object.defineProperty(document,"domain",{configurable:true,get:function(){return t.hostname}})}catch(e){}` +
	`})();`

// Fragment returns the markup inserted right after the document's <head>
// tag: a <base> pointing at the target origin and the location override.
func Fragment(t *model.Target) []byte {
	override := locationOverride{
		Origin:   t.Origin(),
		Host:     t.URL.Host,
		Hostname: t.URL.Hostname(),
		Protocol: t.URL.Scheme + ":",
		Port:     t.URL.Port(),
	}
	// json.Marshal escapes <, > and & so the values cannot close the script.
	js, _ := json.Marshal(override)

	var b bytes.Buffer
	b.WriteString(`<base href="`)
	b.WriteString(html.EscapeString(t.Origin() + "/"))
	b.WriteString(`">`)
	b.WriteString("<script>")
	fmt.Fprintf(&b, locationScript, js)
	b.WriteString("</script>")
	return b.Bytes()
}

// headInjector is a pull-based reader: every Read advances the tokenizer by
// at most one token, so memory stays bounded by the largest single token and
// nothing is read from the source before the client asks for it.
type headInjector struct {
	src      io.ReadCloser
	z        *xhtml.Tokenizer
	fragment []byte

	buf     []byte
	pending []byte
	tail    io.Reader
	err     error
}

// NewReader returns a reader yielding src with fragment inserted once,
// immediately after the first <head> start tag. All other bytes are passed
// through unchanged and in order. Closing the reader closes src.
func NewReader(src io.ReadCloser, fragment []byte) io.ReadCloser {
	return &headInjector{
		src:      src,
		z:        xhtml.NewTokenizer(src),
		fragment: fragment,
	}
}

func (h *headInjector) Read(p []byte) (int, error) {
	for len(h.pending) == 0 {
		if h.tail != nil {
			return h.tail.Read(p)
		}
		if h.err != nil {
			return 0, h.err
		}
		h.advance()
	}
	n := copy(p, h.pending)
	h.pending = h.pending[n:]
	return n, nil
}

func (h *headInjector) advance() {
	tt := h.z.Next()
	// Copy before TagName, which lowercases the tokenizer buffer in place.
	h.buf = append(h.buf[:0], h.z.Raw()...)
	h.pending = h.buf

	switch tt {
	case xhtml.ErrorToken:
		h.err = h.z.Err()
	case xhtml.StartTagToken, xhtml.SelfClosingTagToken:
		name, _ := h.z.TagName()
		if string(name) != "head" {
			return
		}
		h.buf = append(h.buf, h.fragment...)
		h.pending = h.buf
		rest := bytes.Clone(h.z.Buffered())
		h.tail = io.MultiReader(bytes.NewReader(rest), h.src)
		h.z = nil
	}
}

func (h *headInjector) Close() error {
	return h.src.Close()
}
