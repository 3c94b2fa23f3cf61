package frontier

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/corecrawl/internal/frontierfile"
)

func TestDecodeLineRoundTripsEncodeLine(t *testing.T) {
	addedAt := time.Unix(1700000000, 0)
	line := frontierfile.EncodeLine("https://example.com/a?x=1&y=2", 3, 0, addedAt)

	rawURL, depth, err := decodeLine(line)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a?x=1&y=2", rawURL)
	assert.Equal(t, 3, depth)
}

func TestDecodeLineEscapesDelimiterCharacters(t *testing.T) {
	// A URL containing the field delimiter must survive encoding: the escape
	// keeps '|' out of the on-disk line, so the decode splits cleanly.
	raw := "https://example.com/a|b?q=c|d"
	line := frontierfile.EncodeLine(raw, 1, 0, time.Unix(1700000000, 0))

	rawURL, depth, err := decodeLine(line)
	require.NoError(t, err)
	assert.Equal(t, raw, rawURL)
	assert.Equal(t, 1, depth)
}

func TestDecodeLineRejectsWrongFieldCount(t *testing.T) {
	_, _, err := decodeLine("https%3A%2F%2Fexample.com|0|0\n")
	assert.Error(t, err)

	_, _, err = decodeLine("garbage\n")
	assert.Error(t, err)

	_, _, err = decodeLine("a|b|c|d|e\n")
	assert.Error(t, err)
}

func TestDecodeLineRejectsNonNumericDepth(t *testing.T) {
	_, _, err := decodeLine("https%3A%2F%2Fexample.com|deep|0|1700000000\n")
	assert.Error(t, err)
}

func TestDecodeLineToleratesCRLF(t *testing.T) {
	rawURL, depth, err := decodeLine("https%3A%2F%2Fexample.com%2F|2|0|1700000000\r\n")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/", rawURL)
	assert.Equal(t, 2, depth)
}
