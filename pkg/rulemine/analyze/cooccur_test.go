package analyze

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/cognicore/rulemine/pkg/rulemine/annotation"
	"github.com/cognicore/rulemine/pkg/rulemine/config"
	"github.com/cognicore/rulemine/pkg/rulemine/feature"
	"github.com/cognicore/rulemine/pkg/rulemine/internalerr"
)

// crashRecords pairs "crash" and "startup" in a minority of records so
// their PMI clears the threshold against the background noise.
func crashRecords() []annotation.Record {
	t0 := time.Date(2026, 2, 10, 8, 0, 0, 0, time.UTC)
	var records []annotation.Record
	add := func(text string) {
		records = append(records, annotation.Record{
			ID:        fmt.Sprintf("r%03d", len(records)),
			Text:      text,
			Sentiment: "negative",
			CreatedAt: t0.Add(time.Duration(len(records)) * time.Minute),
		})
	}
	for i := 0; i < 5; i++ {
		add("crash right after startup")
	}
	for i := 0; i < 15; i++ {
		add(fmt.Sprintf("unrelated feedback number%d entry%d", i, i))
	}
	return records
}

func TestCooccurrenceFindsPair(t *testing.T) {
	cfg := config.Default()
	snap := makeSnap(t, crashRecords(), cfg)

	out, err := (&CooccurrenceAnalyzer{}).Run(context.Background(), snap, cfg)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(out.Edges) == 0 {
		t.Fatal("expected at least one edge")
	}

	var found *Candidate
	for i, c := range out.Candidates {
		if c.Kind == CandidateKeywordPair &&
			c.Condition == "contains=crash" && c.Consequent == "contains=startup" {
			found = &out.Candidates[i]
			break
		}
	}
	if found == nil {
		t.Fatalf("crash/startup candidate missing from %+v", out.Candidates)
	}
	if found.Support != 5 {
		t.Errorf("support = %d, want 5", found.Support)
	}
	if found.Confidence != 1 {
		t.Errorf("confidence = %f, want 1 (pair always co-occurs)", found.Confidence)
	}
	if len(out.Communities) == 0 {
		t.Error("graph with edges should have at least one community")
	}
}

func TestCooccurrenceEmptyDocs(t *testing.T) {
	cfg := config.Default()
	snap := &feature.Snapshot{}
	_, err := (&CooccurrenceAnalyzer{}).Run(context.Background(), snap, cfg)
	if !errors.Is(err, internalerr.ErrInsufficientData) {
		t.Errorf("expected ErrInsufficientData, got %v", err)
	}
}

func TestCooccurrenceNoStrongPairs(t *testing.T) {
	// Every record identical: tokens co-occur everywhere, so PMI is low
	// and nothing clears the threshold.
	t0 := time.Now().UTC()
	var records []annotation.Record
	for i := 0; i < 10; i++ {
		records = append(records, annotation.Record{
			ID:        fmt.Sprintf("r%03d", i),
			Text:      "identical review text repeated",
			Sentiment: "neutral",
			CreatedAt: t0.Add(time.Duration(i) * time.Minute),
		})
	}
	cfg := config.Default()
	snap := makeSnap(t, records, cfg)

	out, err := (&CooccurrenceAnalyzer{}).Run(context.Background(), snap, cfg)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(out.Edges) != 0 {
		t.Errorf("ubiquitous pairs should not clear PMI threshold, got %d edges", len(out.Edges))
	}
	if len(out.Warnings) == 0 {
		t.Error("expected a warning about no strong pairs")
	}
}

func TestCooccurrenceDeterministic(t *testing.T) {
	cfg := config.Default()
	snap := makeSnap(t, crashRecords(), cfg)

	a, err := (&CooccurrenceAnalyzer{}).Run(context.Background(), snap, cfg)
	if err != nil {
		t.Fatal(err)
	}
	b, err := (&CooccurrenceAnalyzer{}).Run(context.Background(), snap, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if len(a.Candidates) != len(b.Candidates) {
		t.Fatal("candidate counts differ between identical runs")
	}
	for i := range a.Candidates {
		if a.Candidates[i].Condition != b.Candidates[i].Condition ||
			a.Candidates[i].Consequent != b.Candidates[i].Consequent {
			t.Errorf("candidate %d differs between runs", i)
		}
	}
}
