package parser

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// extracted is the result of parsing one fetched HTML page: the text used
// for content storage and every link discovered, resolved against the
// page's base URL but not yet normalized or deduped.
type extracted struct {
	Text  string
	Links []string
}

// nonContentSelectors lists elements stripped before extracting body text,
// generalized from the teacher's extractor.go.
const nonContentSelectors = "script, style, nav, header, footer"

// extract parses decoded HTML, pulls body text the same way the teacher's
// ContentExtractor does (prefer <article>, fall back to <body>), and
// additionally collects every <a href> link resolved against baseURL.
func extract(decoded string, baseURL *url.URL) (extracted, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(decoded))
	if err != nil {
		return extracted{}, fmt.Errorf("parser: parse html: %w", err)
	}

	text := extractBodyText(doc)
	links := extractLinks(doc, baseURL)
	return extracted{Text: text, Links: links}, nil
}

func extractBodyText(doc *goquery.Document) string {
	article := doc.Find("article").First()
	if article.Length() > 0 {
		article.Find(nonContentSelectors).Remove()
		return strings.TrimSpace(article.Text())
	}

	body := doc.Find("body").First()
	if body.Length() > 0 {
		body.Find(nonContentSelectors).Remove()
		return strings.TrimSpace(body.Text())
	}
	return ""
}

// extractLinks collects every anchor href, resolved against baseURL (the
// final URL after redirects, per §4.7 step 4). Hrefs that fail to parse or
// resolve are skipped.
func extractLinks(doc *goquery.Document, baseURL *url.URL) []string {
	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, exists := s.Attr("href")
		if !exists {
			return
		}
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		resolved := baseURL.ResolveReference(ref)
		links = append(links, resolved.String())
	})
	return links
}
