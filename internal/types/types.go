package types

// Page is an immutable snapshot of a rendered page. The URL reflects the
// browser's final location, which may differ from the requested one after
// redirects or click-triggered navigation.
type Page struct {
	URL  string
	HTML string
}

// EntityRecord is one extracted entity. The oracle decides the keys; the
// aggregator owns the provenance keys "source_url" and "retrieved_at" and
// overwrites them on ingest.
type EntityRecord map[string]any

// Result is the outcome of one scrape run.
type Result struct {
	Records    []EntityRecord `json:"records"`
	TotalFound int            `json:"total_found"`
}
