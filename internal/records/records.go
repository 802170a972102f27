package records

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/cognicore/rulemine/pkg/rulemine/annotation"
)

// LoadFromJSONL loads annotation records from a JSONL file, skipping
// malformed lines with a warning.
func LoadFromJSONL(path string) ([]annotation.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file %s: %w", path, err)
	}

	var records []annotation.Record
	lines := strings.Split(string(data), "\n")

	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var rec annotation.Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			log.Printf("Warning: skipping malformed JSON at line %d in %s: %v", i+1, path, err)
			continue
		}
		records = append(records, rec)
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("no valid records found in %s", path)
	}

	return records, nil
}

// FileSource serves one JSONL file as an annotation.Source. Records
// without a project ID are attributed to the requested project, which
// keeps ad-hoc exports usable.
type FileSource struct {
	records []annotation.Record
}

// NewFileSource loads the file once and serves it read-only.
func NewFileSource(path string) (*FileSource, error) {
	recs, err := LoadFromJSONL(path)
	if err != nil {
		return nil, err
	}
	return &FileSource{records: recs}, nil
}

// Records implements annotation.Source.
func (s *FileSource) Records(ctx context.Context, projectID string) ([]annotation.Record, error) {
	var out []annotation.Record
	for _, r := range s.records {
		if r.ProjectID == projectID || r.ProjectID == "" {
			if r.ProjectID == "" {
				r.ProjectID = projectID
			}
			out = append(out, r)
		}
	}
	annotation.SortRecords(out)
	return out, nil
}
