package urlnorm

import (
	"errors"
	"net/url"
	"strings"
)

// ErrEmptyHost is returned when no host can be extracted from a URL.
var ErrEmptyHost = errors.New("urlnorm: empty host")

// multiLabelSuffixes lists the second-level-domain suffixes treated as one
// label when grouping a host into its registered domain, e.g. "example.co.uk"
// groups under "example.co.uk", not "co.uk". This is a fixed, small list
// rather than a fetched Public Suffix List: see DESIGN.md's Open Question
// decision on why this spec does not perform a PSL download at startup.
var multiLabelSuffixes = map[string]struct{}{
	"co.uk":  {},
	"org.uk": {},
	"co.jp":  {},
	"com.au": {},
	"com.br": {},
	"co.in":  {},
	"co.nz":  {},
	"co.za":  {},
	"com.cn": {},
}

// Host extracts the lowercased hostname (without port) from a URL.
func Host(rawURL string) (string, error) {
	if rawURL == "" {
		return "", ErrEmptyHost
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return "", ErrEmptyHost
	}
	return host, nil
}

// RegisteredDomain groups a hostname into its registered (sharding and
// politeness) unit: the last two labels, except when those two labels are
// themselves a known multi-label public suffix, in which case the last
// three labels are used.
func RegisteredDomain(host string) string {
	labels := strings.Split(strings.TrimSuffix(host, "."), ".")
	if len(labels) <= 2 {
		return host
	}

	lastTwo := strings.Join(labels[len(labels)-2:], ".")
	if _, isMultiLabel := multiLabelSuffixes[lastTwo]; isMultiLabel && len(labels) >= 3 {
		return strings.Join(labels[len(labels)-3:], ".")
	}
	return lastTwo
}

// RegisteredDomainFromURL is a convenience wrapper combining Host and
// RegisteredDomain.
func RegisteredDomainFromURL(rawURL string) (string, error) {
	host, err := Host(rawURL)
	if err != nil {
		return "", err
	}
	return RegisteredDomain(host), nil
}
