package scraper

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
)

// WorkQueue is a FIFO of pending entity-page URLs. URLs are deduplicated by
// normalized form at enqueue time, so the same page discovered through two
// different link lists is visited once. One WorkQueue is created per scrape
// invocation; if entity pages are drained by parallel workers the mutex
// keeps the seen set consistent.
type WorkQueue struct {
	mu    sync.Mutex
	items []string
	seen  map[string]bool
}

// NewWorkQueue creates an empty queue.
func NewWorkQueue() *WorkQueue {
	return &WorkQueue{seen: make(map[string]bool)}
}

// Enqueue normalizes href against base and appends it unless that URL has
// already been queued or visited this run. It reports whether the URL was
// accepted.
func (q *WorkQueue) Enqueue(base, href string) bool {
	normalized, err := normalizeURL(base, href)
	if err != nil {
		return false
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.seen[normalized] {
		return false
	}
	q.seen[normalized] = true
	q.items = append(q.items, normalized)
	return true
}

// Next pops the next URL. The URL stays in the seen set, so it can never be
// re-enqueued within this run.
func (q *WorkQueue) Next() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return "", false
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, true
}

// Len returns the number of pending URLs.
func (q *WorkQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// normalizeURL resolves href against base and canonicalizes the result:
// lowercase scheme and host, no fragment. Only http(s) URLs are accepted.
func normalizeURL(base, href string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", err
	}

	resolved := b.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", resolved.Scheme)
	}
	if resolved.Host == "" {
		return "", fmt.Errorf("no host in %q", href)
	}
	resolved.Scheme = strings.ToLower(resolved.Scheme)
	resolved.Host = strings.ToLower(resolved.Host)
	resolved.Fragment = ""
	return resolved.String(), nil
}
