// Package writer persists scrape results as a JSON snapshot.
package writer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/go-scripts/uniscrape/internal/types"
)

// Snapshot is the persisted output: the aggregated records plus run
// metadata.
type Snapshot struct {
	RunID       string               `json:"run_id"`
	StartURL    string               `json:"start_url"`
	GeneratedAt string               `json:"generated_at"`
	TotalFound  int                  `json:"total_found"`
	Records     []types.EntityRecord `json:"records"`
}

// FileWriter writes snapshots to a fixed output path.
type FileWriter struct {
	outputFile string
}

// New creates a FileWriter, creating the output directory if needed.
func New(outputFile string) (*FileWriter, error) {
	dir := filepath.Dir(outputFile)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("error creating output directory %s: %w", dir, err)
	}
	return &FileWriter{outputFile: outputFile}, nil
}

// WriteResult stamps run metadata onto the result and writes it as
// indented JSON. It returns the written path.
func (w *FileWriter) WriteResult(startURL string, result types.Result) (string, error) {
	snapshot := Snapshot{
		RunID:       uuid.NewString(),
		StartURL:    startURL,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		TotalFound:  result.TotalFound,
		Records:     result.Records,
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := os.WriteFile(w.outputFile, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", w.outputFile, err)
	}
	return w.outputFile, nil
}
