package fetcherpool

import (
	"errors"
	"net/http"
)

// ErrTooManyRedirects is returned when the redirect hop limit is exceeded,
// carried from the teacher's redirect.go unchanged in spirit.
var ErrTooManyRedirects = errors.New("fetcherpool: too many redirects")

// redirectPolicy returns a CheckRedirect function that follows redirects
// until the number of hops reaches maxHops, then fails with
// ErrTooManyRedirects. maxHops <= 0 falls back to the stdlib http.Client
// default (10 hops).
func redirectPolicy(maxHops int) func(*http.Request, []*http.Request) error {
	if maxHops <= 0 {
		return nil
	}
	return func(_ *http.Request, via []*http.Request) error {
		if len(via) >= maxHops {
			return ErrTooManyRedirects
		}
		return nil
	}
}
