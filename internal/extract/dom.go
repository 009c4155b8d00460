package extract

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// parseDocument parses page text into a queryable document
func parseDocument(htmlText string) (*goquery.Document, error) {
	root, err := html.Parse(strings.NewReader(htmlText))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return goquery.NewDocumentFromNode(root), nil
}

// trimmedText returns the trimmed text of the first matched element.
// ok is false when nothing matched or the text is blank.
func trimmedText(sel *goquery.Selection) (string, bool) {
	if sel.Length() == 0 {
		return "", false
	}
	text := strings.TrimSpace(sel.First().Text())
	return text, text != ""
}

// trimmedAttr returns the trimmed attribute of the first matched element
func trimmedAttr(sel *goquery.Selection, name string) (string, bool) {
	if sel.Length() == 0 {
		return "", false
	}
	val, exists := sel.First().Attr(name)
	if !exists {
		return "", false
	}
	val = strings.TrimSpace(val)
	return val, val != ""
}

// Origin returns the scheme://host of rawURL
func Origin(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse URL: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("URL %q is not absolute", rawURL)
	}
	return parsed.Scheme + "://" + parsed.Host, nil
}
