// Package urlnorm implements the canonical URL normalization, hashing, and
// registered-domain extraction rules used before a URL is hashed, checked
// against the dedup bloom filter, or appended to a frontier file.
package urlnorm

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

// MaxURLLen is the default maximum normalized URL length; URLs longer than
// this are rejected.
const MaxURLLen = 2048

var (
	// ErrEmpty is returned when the input URL is empty.
	ErrEmpty = errors.New("urlnorm: empty url")
	// ErrMissingSchemeOrHost is returned when the URL lacks a scheme or host.
	ErrMissingSchemeOrHost = errors.New("urlnorm: missing scheme or host")
	// ErrUnsupportedScheme is returned for any scheme other than http/https.
	ErrUnsupportedScheme = errors.New("urlnorm: scheme must be http or https")
	// ErrTooLong is returned when the normalized URL exceeds MaxURLLen.
	ErrTooLong = errors.New("urlnorm: url exceeds maximum length")
)

// defaultPorts maps schemes to the port considered default for them.
var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
}

// Normalize applies the six canonical rules from the URL normalization
// section: lowercase scheme/host, drop default port, remove fragment,
// collapse duplicate path slashes while preserving path/query case,
// percent-encode non-ASCII in the host via IDNA (net/url already handles
// RFC 3986 percent-encoding of path/query), and reject non-http(s) schemes
// or URLs over maxLen bytes.
func Normalize(rawURL string, maxLen int) (string, error) {
	if rawURL == "" {
		return "", ErrEmpty
	}
	if maxLen <= 0 {
		maxLen = MaxURLLen
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("urlnorm: parse: %w", err)
	}

	if parsed.Scheme == "" || parsed.Host == "" {
		return "", ErrMissingSchemeOrHost
	}

	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", ErrUnsupportedScheme
	}
	parsed.Scheme = scheme

	host, hostErr := normalizeHost(parsed, scheme)
	if hostErr != nil {
		return "", fmt.Errorf("urlnorm: host: %w", hostErr)
	}
	parsed.Host = host

	parsed.Fragment = ""
	parsed.RawFragment = ""
	parsed.Path = collapseSlashes(parsed.Path)

	result := parsed.String()
	if len(result) > maxLen {
		return "", ErrTooLong
	}

	return result, nil
}

// Hash returns the SHA-256 hex digest of the normalized URL.
func Hash(rawURL string, maxLen int) (string, error) {
	normalized, err := Normalize(rawURL, maxLen)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:]), nil
}

// Hash16 returns the first 16 hex characters of Hash, matching the
// datastore's visited:<hash16> key schema.
func Hash16(rawURL string, maxLen int) (string, error) {
	full, err := Hash(rawURL, maxLen)
	if err != nil {
		return "", err
	}
	return full[:16], nil
}

// normalizeHost lowercases the hostname, IDNA-encodes non-ASCII labels, and
// drops the port when it matches the scheme's default.
func normalizeHost(u *url.URL, scheme string) (string, error) {
	hostname := strings.ToLower(u.Hostname())

	ascii, err := idna.Lookup.ToASCII(hostname)
	if err != nil {
		// Not all valid hostnames are valid IDNA labels (e.g. already-ASCII
		// hosts with underscores); fall back to the lowercased original.
		ascii = hostname
	}

	port := u.Port()
	if port == "" || port == defaultPorts[scheme] {
		return ascii, nil
	}
	return ascii + ":" + port, nil
}

// collapseSlashes collapses runs of '/' into a single '/' without otherwise
// altering the path's case or escaping.
func collapseSlashes(p string) string {
	if p == "" {
		return "/"
	}
	var b strings.Builder
	b.Grow(len(p))
	prevSlash := false
	for _, r := range p {
		if r == '/' {
			if prevSlash {
				continue
			}
			prevSlash = true
		} else {
			prevSlash = false
		}
		b.WriteRune(r)
	}
	return b.String()
}
