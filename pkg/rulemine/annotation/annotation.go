package annotation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"
)

// Record is one annotated item as supplied by the external annotation
// store. The engine only reads records; it never mutates or writes them.
type Record struct {
	ID          string    `json:"id"`
	Text        string    `json:"text"`
	Sentiment   string    `json:"sentiment"`
	Rating      *float64  `json:"rating,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	AnnotatorID string    `json:"annotator_id"`
	TaskID      string    `json:"task_id"`
	ProjectID   string    `json:"project_id"`
	Entities    []string  `json:"entities,omitempty"`
	Keywords    []string  `json:"keywords,omitempty"`
}

// Source abstracts the external annotation store.
type Source interface {
	// Records returns all records for a project, ordered by CreatedAt
	// then ID so snapshots are stable.
	Records(ctx context.Context, projectID string) ([]Record, error)
}

// SortRecords orders records by CreatedAt then ID. Analyzers rely on
// this ordering for deterministic output.
func SortRecords(records []Record) {
	sort.Slice(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.Before(records[j].CreatedAt)
		}
		return records[i].ID < records[j].ID
	})
}

// SnapshotHash fingerprints a record batch. Identical batches produce
// identical hashes regardless of input order.
func SnapshotHash(records []Record) string {
	sorted := make([]Record, len(records))
	copy(sorted, records)
	SortRecords(sorted)

	h := sha256.New()
	for _, r := range sorted {
		fmt.Fprintf(h, "%s|%s|%s|%d\n", r.ID, r.Sentiment, r.AnnotatorID, r.CreatedAt.UnixNano())
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Labels returns the distinct sentiment labels present in the batch,
// sorted lexicographically.
func Labels(records []Record) []string {
	set := make(map[string]struct{})
	for _, r := range records {
		if r.Sentiment != "" {
			set[r.Sentiment] = struct{}{}
		}
	}
	labels := make([]string, 0, len(set))
	for l := range set {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}

// Annotators returns the distinct annotator IDs, sorted.
func Annotators(records []Record) []string {
	set := make(map[string]struct{})
	for _, r := range records {
		if r.AnnotatorID != "" {
			set[r.AnnotatorID] = struct{}{}
		}
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
