package httpx

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/andybalholm/brotli"
)

// decompress undoes a Content-Encoding by hand. Some portals mislabel or
// double-encode bodies, so failing attempts fall through to the raw bytes.
func decompress(content []byte, encoding string) []byte {
	encoding = strings.ToLower(encoding)
	if encoding == "" {
		return content
	}
	if strings.Contains(encoding, "gzip") {
		if r, err := gzip.NewReader(bytes.NewReader(content)); err == nil {
			if out, err := io.ReadAll(r); err == nil {
				return out
			}
		}
	}
	if strings.Contains(encoding, "br") {
		if out, err := io.ReadAll(brotli.NewReader(bytes.NewReader(content))); err == nil && len(out) > 0 {
			return out
		}
	}
	if strings.Contains(encoding, "deflate") {
		// Most servers send zlib-wrapped deflate; a few send it raw.
		if r, err := zlib.NewReader(bytes.NewReader(content)); err == nil {
			if out, err := io.ReadAll(r); err == nil && len(out) > 0 {
				return out
			}
		}
		if out, err := io.ReadAll(flate.NewReader(bytes.NewReader(content))); err == nil && len(out) > 0 {
			return out
		}
	}
	return content
}

// decodeText converts body bytes to a string, honoring the declared charset
// when it is trustworthy and falling back to Latin-1, which accepts any byte
// sequence.
func decodeText(content []byte, charset string) string {
	switch strings.ToLower(charset) {
	case "", "utf-8", "utf8":
		if utf8.Valid(content) {
			return string(content)
		}
	case "latin1", "iso-8859-1", "cp1252":
		return decodeLatin1(content)
	default:
		if utf8.Valid(content) {
			return string(content)
		}
	}
	return decodeLatin1(content)
}

func decodeLatin1(content []byte) string {
	runes := make([]rune, len(content))
	for i, b := range content {
		runes[i] = rune(b)
	}
	return string(runes)
}

// extractCharset pulls the charset parameter out of a Content-Type header.
func extractCharset(contentType string) string {
	for _, part := range strings.Split(contentType, ";") {
		part = strings.TrimSpace(strings.ToLower(part))
		if value, ok := strings.CutPrefix(part, "charset="); ok {
			return strings.Trim(value, `"`)
		}
	}
	return ""
}
