package frontier

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// decodeLine parses one frontier-file line of the form
// <url>|<depth>|<priority>|<added_at>\n back into its URL and depth. The
// priority and added_at fields are not currently consumed by the manager.
func decodeLine(line string) (rawURL string, depth int, err error) {
	trimmed := strings.TrimRight(line, "\r\n")
	parts := strings.Split(trimmed, "|")
	if len(parts) != 4 {
		return "", 0, fmt.Errorf("frontier: malformed line: %d fields", len(parts))
	}
	decodedURL, err := url.QueryUnescape(parts[0])
	if err != nil {
		return "", 0, fmt.Errorf("frontier: decode url field: %w", err)
	}
	d, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", 0, fmt.Errorf("frontier: decode depth field: %w", err)
	}
	return decodedURL, d, nil
}
