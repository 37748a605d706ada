package scraper

import (
	"sync"
	"time"

	"github.com/go-scripts/uniscrape/internal/types"
)

// Provenance keys stamped by the aggregator. Values supplied by the oracle
// under the same keys are overwritten: provenance is never trusted from
// extraction output.
const (
	SourceURLKey   = "source_url"
	RetrievedAtKey = "retrieved_at"
)

// Aggregator collects entity records in arrival order. Records are not
// deduplicated by content: the same entity reached through two listing
// pages yields two records.
type Aggregator struct {
	mu      sync.Mutex
	records []types.EntityRecord
	now     func() time.Time
}

// NewAggregator creates an empty Aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{now: time.Now}
}

// Ingest copies raw, stamps provenance, and appends the record. The stored
// record is a copy, so later mutation of raw cannot reach the aggregate.
func (a *Aggregator) Ingest(raw types.EntityRecord, sourceURL string) types.EntityRecord {
	rec := make(types.EntityRecord, len(raw)+2)
	for k, v := range raw {
		rec[k] = v
	}
	rec[SourceURLKey] = sourceURL
	rec[RetrievedAtKey] = a.now().UTC().Format(time.RFC3339)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.records = append(a.records, rec)
	return rec
}

// Count returns the number of accepted records.
func (a *Aggregator) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.records)
}

// Snapshot returns the accepted records and their count. TotalFound is
// recomputed from the slice, never cached.
func (a *Aggregator) Snapshot() types.Result {
	a.mu.Lock()
	defer a.mu.Unlock()

	records := make([]types.EntityRecord, len(a.records))
	copy(records, a.records)
	return types.Result{
		Records:    records,
		TotalFound: len(records),
	}
}
