package urlnorm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/corecrawl/internal/urlnorm"
)

func TestNormalizeLowercasesSchemeAndHost(t *testing.T) {
	got, err := urlnorm.Normalize("HTTP://Example.COM/Path", 0)
	require.NoError(t, err)
	assert.Equal(t, "http://example.com/Path", got)
}

func TestNormalizeDropsDefaultPort(t *testing.T) {
	got, err := urlnorm.Normalize("http://example.com:80/a", 0)
	require.NoError(t, err)
	assert.Equal(t, "http://example.com/a", got)

	got, err = urlnorm.Normalize("https://example.com:443/a", 0)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a", got)
}

func TestNormalizeKeepsNonDefaultPort(t *testing.T) {
	got, err := urlnorm.Normalize("http://example.com:8080/a", 0)
	require.NoError(t, err)
	assert.Equal(t, "http://example.com:8080/a", got)
}

func TestNormalizeRemovesFragment(t *testing.T) {
	got, err := urlnorm.Normalize("http://example.com/a#section", 0)
	require.NoError(t, err)
	assert.Equal(t, "http://example.com/a", got)
}

func TestNormalizeCollapsesDuplicateSlashes(t *testing.T) {
	got, err := urlnorm.Normalize("http://example.com//a///b", 0)
	require.NoError(t, err)
	assert.Equal(t, "http://example.com/a/b", got)
}

func TestNormalizePreservesPathAndQueryCase(t *testing.T) {
	got, err := urlnorm.Normalize("http://example.com/Path?Foo=Bar", 0)
	require.NoError(t, err)
	assert.Equal(t, "http://example.com/Path?Foo=Bar", got)
}

func TestNormalizeRejectsNonHTTPScheme(t *testing.T) {
	_, err := urlnorm.Normalize("ftp://example.com/a", 0)
	assert.ErrorIs(t, err, urlnorm.ErrUnsupportedScheme)
}

func TestNormalizeRejectsMissingHost(t *testing.T) {
	_, err := urlnorm.Normalize("http:///a", 0)
	assert.ErrorIs(t, err, urlnorm.ErrMissingSchemeOrHost)
}

func TestNormalizeRejectsEmpty(t *testing.T) {
	_, err := urlnorm.Normalize("", 0)
	assert.ErrorIs(t, err, urlnorm.ErrEmpty)
}

func TestNormalizeRejectsTooLong(t *testing.T) {
	long := "http://example.com/" + stringsRepeat("a", 3000)
	_, err := urlnorm.Normalize(long, 2048)
	assert.ErrorIs(t, err, urlnorm.ErrTooLong)
}

func TestNormalizeIsIdempotent(t *testing.T) {
	once, err := urlnorm.Normalize("HTTP://Example.COM:80//a//b#frag", 0)
	require.NoError(t, err)
	twice, err := urlnorm.Normalize(once, 0)
	require.NoError(t, err)
	assert.Equal(t, once, twice)
}

func TestHash16IsSixteenHexChars(t *testing.T) {
	h, err := urlnorm.Hash16("http://example.com/a", 0)
	require.NoError(t, err)
	assert.Len(t, h, 16)
}

func TestHashStableAcrossEquivalentURLs(t *testing.T) {
	a, err := urlnorm.Hash("http://example.com:80/a", 0)
	require.NoError(t, err)
	b, err := urlnorm.Hash("HTTP://EXAMPLE.com/a", 0)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func stringsRepeat(s string, n int) string {
	out := make([]byte, 0, len(s)*n)
	for i := 0; i < n; i++ {
		out = append(out, s...)
	}
	return string(out)
}
