package analyze

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/cognicore/rulemine/pkg/rulemine/annotation"
	"github.com/cognicore/rulemine/pkg/rulemine/config"
	"github.com/cognicore/rulemine/pkg/rulemine/feature"
	"github.com/cognicore/rulemine/pkg/rulemine/internalerr"
	"github.com/cognicore/rulemine/pkg/rulemine/preprocess"
)

// makeSnap builds a feature snapshot the way the orchestrator does.
func makeSnap(t *testing.T, records []annotation.Record, cfg config.AnalysisConfig) *feature.Snapshot {
	t.Helper()
	annotation.SortRecords(records)
	pre := preprocess.NewPipeline(nil, nil).Process(records)
	snap, err := feature.NewExtractor(cfg).Extract(context.Background(), records, pre)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	return snap
}

// slowRecords builds a batch where "slow" strongly predicts negative
// sentiment: 55 of the 60 records containing it are negative.
func slowRecords() []annotation.Record {
	t0 := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	var records []annotation.Record
	add := func(text, sentiment string) {
		records = append(records, annotation.Record{
			ID:          fmt.Sprintf("r%03d", len(records)),
			Text:        text,
			Sentiment:   sentiment,
			AnnotatorID: "u1",
			CreatedAt:   t0.Add(time.Duration(len(records)) * time.Minute),
		})
	}
	for i := 0; i < 55; i++ {
		add("the response is slow today", "negative")
	}
	for i := 0; i < 5; i++ {
		add("slow but fine overall", "positive")
	}
	for i := 0; i < 40; i++ {
		add("great product experience", "positive")
	}
	return records
}

func TestSentimentAssociation(t *testing.T) {
	cfg := config.Default()
	snap := makeSnap(t, slowRecords(), cfg)

	out, err := (&SentimentAnalyzer{}).Run(context.Background(), snap, cfg)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	var found *Candidate
	for i, c := range out.Candidates {
		if c.Condition == "contains=slow" && c.Consequent == "sentiment=negative" {
			found = &out.Candidates[i]
			break
		}
	}
	if found == nil {
		t.Fatalf("slow -> negative association missing from %d candidates", len(out.Candidates))
	}
	if found.Support != 55 {
		t.Errorf("support = %d, want 55", found.Support)
	}
	if math.Abs(found.Confidence-55.0/60.0) > 1e-9 {
		t.Errorf("confidence = %f, want %f", found.Confidence, 55.0/60.0)
	}
	if found.Evidence["p_value"] == "" || found.Evidence["pmi"] == "" {
		t.Errorf("evidence incomplete: %v", found.Evidence)
	}
}

func TestSentimentInsufficientData(t *testing.T) {
	cfg := config.Default()
	records := slowRecords()[:30]
	snap := makeSnap(t, records, cfg)

	_, err := (&SentimentAnalyzer{}).Run(context.Background(), snap, cfg)
	if !errors.Is(err, internalerr.ErrInsufficientData) {
		t.Errorf("expected ErrInsufficientData, got %v", err)
	}
}

func TestSentimentIgnoresUnlabeledRecords(t *testing.T) {
	// Unlabeled records sharing a token with labeled ones must not
	// enter the contingency table: every labeled "render" record is
	// positive, so P(positive | render) is exactly 1 regardless of how
	// many unlabeled records also mention "render".
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	var records []annotation.Record
	add := func(text, sentiment string) {
		records = append(records, annotation.Record{
			ID:        fmt.Sprintf("r%03d", len(records)),
			Text:      text,
			Sentiment: sentiment,
			CreatedAt: t0.Add(time.Duration(len(records)) * time.Minute),
		})
	}
	for i := 0; i < 30; i++ {
		add("the render pipeline works nicely", "positive")
	}
	for i := 0; i < 70; i++ {
		add("checkout keeps failing badly", "negative")
	}
	for i := 0; i < 50; i++ {
		add("render preview still pending review", "")
	}

	cfg := config.Default()
	snap := makeSnap(t, records, cfg)
	out, err := (&SentimentAnalyzer{}).Run(context.Background(), snap, cfg)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	var found *Candidate
	for i, c := range out.Candidates {
		if c.Condition == "contains=render" && c.Consequent == "sentiment=positive" {
			found = &out.Candidates[i]
			break
		}
	}
	if found == nil {
		t.Fatalf("render -> positive association missing from %d candidates", len(out.Candidates))
	}
	if found.Support != 30 {
		t.Errorf("support = %d, want 30 labeled occurrences", found.Support)
	}
	if math.Abs(found.Confidence-1.0) > 1e-9 {
		t.Errorf("confidence = %f, want 1.0", found.Confidence)
	}
}

func TestSentimentRejectsWeakAssociations(t *testing.T) {
	// Balanced labels: no feature should clear the chi-square test for
	// the evenly split token.
	t0 := time.Now().UTC()
	var records []annotation.Record
	for i := 0; i < 60; i++ {
		sentiment := "positive"
		if i%2 == 0 {
			sentiment = "negative"
		}
		records = append(records, annotation.Record{
			ID:        fmt.Sprintf("r%03d", i),
			Text:      "checkout flow review",
			Sentiment: sentiment,
			CreatedAt: t0.Add(time.Duration(i) * time.Minute),
		})
	}

	cfg := config.Default()
	snap := makeSnap(t, records, cfg)
	out, err := (&SentimentAnalyzer{}).Run(context.Background(), snap, cfg)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, c := range out.Candidates {
		if c.Condition == "contains=checkout" {
			t.Errorf("evenly split feature should be rejected: %+v", c)
		}
	}
}

func TestSentimentPartialOnCancel(t *testing.T) {
	cfg := config.Default()
	snap := makeSnap(t, slowRecords(), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out, err := (&SentimentAnalyzer{}).Run(ctx, snap, cfg)
	if err != nil {
		t.Fatalf("cancellation should not be an error: %v", err)
	}
	if !out.Partial {
		t.Error("cancelled run should be marked partial")
	}
}

func TestSortCandidatesDeterministic(t *testing.T) {
	cands := []Candidate{
		{Condition: "b", Consequent: "x", Confidence: 0.5},
		{Condition: "a", Consequent: "x", Confidence: 0.5},
		{Condition: "c", Consequent: "x", Confidence: 0.9},
	}
	sortCandidates(cands)
	if cands[0].Condition != "c" || cands[1].Condition != "a" || cands[2].Condition != "b" {
		t.Errorf("unexpected order: %+v", cands)
	}
}
