package parser

import (
	"bytes"
	"io"
	"net/http"

	"golang.org/x/net/html/charset"
)

// decodeBody implements the §4.7 charset fallback chain: Content-Type
// header, then a <meta charset> sniff, then UTF-8. golang.org/x/net's
// charset.NewReader already implements this priority order against an
// http.Header, so decoding is a thin wrapper around it.
func decodeBody(body []byte, headers http.Header) (string, error) {
	contentType := headers.Get("Content-Type")
	reader, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return string(body), nil
	}
	decoded, err := io.ReadAll(reader)
	if err != nil {
		return string(body), nil
	}
	return string(decoded), nil
}
