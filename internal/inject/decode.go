package inject

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// ErrUnsupportedEncoding is returned by Decode for encodings it cannot undo.
var ErrUnsupportedEncoding = errors.New("inject: unsupported content encoding")

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

type decodedBody struct {
	io.Reader
	closers []func() error
}

func (d *decodedBody) Close() error {
	var errs []error
	for _, c := range d.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// Decode returns the identity form of a body sent with the given
// Content-Encoding. When the encoding is unknown or the stream lacks the
// expected magic bytes it returns an error together with a reader that still
// yields every original byte, so the caller can pass the body through.
func Decode(body io.ReadCloser, encoding string) (io.ReadCloser, error) {
	enc := strings.ToLower(strings.TrimSpace(encoding))
	if enc == "" || enc == "identity" {
		return body, nil
	}

	br := bufio.NewReader(body)
	passthrough := &decodedBody{Reader: br, closers: []func() error{body.Close}}

	head, err := br.Peek(4)
	if len(head) == 0 {
		if err == io.EOF {
			return passthrough, nil
		}
		return passthrough, fmt.Errorf("inject: peek body: %w", err)
	}

	switch enc {
	case "gzip", "x-gzip":
		if !bytes.HasPrefix(head, gzipMagic) {
			return passthrough, errors.New("inject: gzip body without gzip header")
		}
		zr, err := gzip.NewReader(br)
		if err != nil {
			return passthrough, fmt.Errorf("inject: gzip: %w", err)
		}
		return &decodedBody{Reader: zr, closers: []func() error{zr.Close, body.Close}}, nil

	case "deflate":
		// Servers disagree on whether "deflate" means zlib-wrapped or raw.
		if len(head) >= 2 && isZlibHeader(head[0], head[1]) {
			zr, err := zlib.NewReader(br)
			if err != nil {
				return passthrough, fmt.Errorf("inject: zlib: %w", err)
			}
			return &decodedBody{Reader: zr, closers: []func() error{zr.Close, body.Close}}, nil
		}
		fr := flate.NewReader(br)
		return &decodedBody{Reader: fr, closers: []func() error{fr.Close, body.Close}}, nil

	case "br":
		return &decodedBody{Reader: brotli.NewReader(br), closers: []func() error{body.Close}}, nil

	case "zstd":
		if !bytes.HasPrefix(head, zstdMagic) {
			return passthrough, errors.New("inject: zstd body without zstd frame header")
		}
		zr, err := zstd.NewReader(br)
		if err != nil {
			return passthrough, fmt.Errorf("inject: zstd: %w", err)
		}
		rc := zr.IOReadCloser()
		return &decodedBody{Reader: rc, closers: []func() error{rc.Close, body.Close}}, nil
	}

	return passthrough, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, encoding)
}

func isZlibHeader(cmf, flg byte) bool {
	return cmf&0x0f == 8 && (uint16(cmf)<<8|uint16(flg))%31 == 0
}
