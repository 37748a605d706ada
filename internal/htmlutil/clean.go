// Package htmlutil prepares raw page HTML for the oracle: scripts, styles
// and comments carry no navigational signal and burn the context budget, so
// they are dropped before the document is truncated to a byte cap.
package htmlutil

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

// DefaultMaxBytes caps cleaned HTML sent to the oracle.
const DefaultMaxBytes = 20000

const truncationMarker = "\n... [HTML truncated]"

// Clean strips script/style elements and comments and truncates the result
// to maxBytes. A maxBytes of zero or less uses DefaultMaxBytes. Input that
// does not parse as HTML is returned truncated as-is; the oracle can often
// still make sense of a fragment.
func Clean(rawHTML string, maxBytes int) string {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}

	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return truncate(rawHTML, maxBytes)
	}

	prune(doc)

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return truncate(rawHTML, maxBytes)
	}
	return truncate(buf.String(), maxBytes)
}

// prune removes script/style/noscript elements and comment nodes in place.
func prune(n *html.Node) {
	var next *html.Node
	for c := n.FirstChild; c != nil; c = next {
		next = c.NextSibling
		if shouldDrop(c) {
			n.RemoveChild(c)
			continue
		}
		prune(c)
	}
}

func shouldDrop(n *html.Node) bool {
	if n.Type == html.CommentNode {
		return true
	}
	if n.Type != html.ElementNode {
		return false
	}
	switch n.Data {
	case "script", "style", "noscript":
		return true
	}
	return false
}

func truncate(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	// Back up to a rune boundary so the cut never leaves invalid UTF-8.
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + truncationMarker
}
