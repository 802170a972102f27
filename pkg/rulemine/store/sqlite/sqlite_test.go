package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/cognicore/rulemine/pkg/rulemine/internalerr"
	"github.com/cognicore/rulemine/pkg/rulemine/rules"
	"github.com/cognicore/rulemine/pkg/rulemine/store"
)

func openTest(t *testing.T) store.Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "rules.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRule(id string, confidence float64) rules.BusinessRule {
	return rules.BusinessRule{
		ID:         id,
		Condition:  "contains=slow",
		Consequent: "sentiment=negative",
		Support:    5,
		Confidence: confidence,
		Lift:       1.4,
		RuleType:   rules.TypeSentiment,
		IsActive:   true,
		CreatedAt:  time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestSQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	r := sampleRule("rule-1", 0.8)
	lin := store.Lineage{CandidateKind: rules.TypeSentiment, Evidence: `{"pmi":"1.2"}`}
	if _, err := s.UpsertRule(ctx, "proj", r, lin); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := s.GetRule(ctx, "rule-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Condition != r.Condition || got.Confidence != r.Confidence || !got.IsActive {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if !got.CreatedAt.Equal(r.CreatedAt) {
		t.Errorf("created_at = %v, want %v", got.CreatedAt, r.CreatedAt)
	}

	rows, err := s.Lineage(ctx, "rule-1")
	if err != nil {
		t.Fatalf("lineage: %v", err)
	}
	if len(rows) != 1 || rows[0].Evidence != lin.Evidence {
		t.Errorf("lineage = %+v", rows)
	}
}

func TestSQLiteSupersede(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	if _, err := s.UpsertRule(ctx, "proj", sampleRule("low", 0.7), store.Lineage{CandidateKind: "x"}); err != nil {
		t.Fatal(err)
	}
	kept, err := s.UpsertRule(ctx, "proj", sampleRule("high", 0.9), store.Lineage{CandidateKind: "x"})
	if err != nil {
		t.Fatal(err)
	}
	if kept.ID != "high" {
		t.Errorf("kept = %q, want high", kept.ID)
	}

	old, err := s.GetRule(ctx, "low")
	if err != nil {
		t.Fatal(err)
	}
	if old.IsActive {
		t.Error("superseded rule should be deactivated")
	}

	active, err := s.ActiveRules(ctx, "proj")
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 1 || active[0].ID != "high" {
		t.Errorf("active = %+v", active)
	}
	all, err := s.AllRules(ctx, "proj")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Errorf("audit trail should keep both, got %d", len(all))
	}
}

func TestSQLiteKeepsExistingOnTie(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	s.UpsertRule(ctx, "proj", sampleRule("first", 0.8), store.Lineage{})
	kept, err := s.UpsertRule(ctx, "proj", sampleRule("second", 0.8), store.Lineage{})
	if err != nil {
		t.Fatal(err)
	}
	if kept.ID != "first" {
		t.Errorf("equal confidence should keep existing, kept %q", kept.ID)
	}
	if _, err := s.GetRule(ctx, "second"); !errors.Is(err, internalerr.ErrNotFound) {
		t.Error("losing rule should not be stored")
	}
}

func TestSQLiteDeactivateAndValidation(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	s.UpsertRule(ctx, "proj", sampleRule("rule-1", 0.8), store.Lineage{})

	if err := s.SetValidation(ctx, "rule-1", 0.42, false); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetRule(ctx, "rule-1")
	if got.IsActive {
		t.Error("failed validation should deactivate")
	}
	if got.ValidationScore == nil || *got.ValidationScore != 0.42 {
		t.Errorf("validation score = %v", got.ValidationScore)
	}

	if err := s.DeactivateRule(ctx, "missing"); !errors.Is(err, internalerr.ErrNotFound) {
		t.Errorf("missing rule: %v", err)
	}
}

func TestSQLiteValidationResults(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	s.UpsertRule(ctx, "proj", sampleRule("rule-1", 0.8), store.Lineage{})

	res := rules.ValidationResult{RuleID: "rule-1", Precision: 0.9, Recall: 0.8, F1: 0.85,
		Support: 12, Timestamp: time.Now().UTC()}
	if err := s.PutValidationResult(ctx, res); err != nil {
		t.Fatal(err)
	}
	res.F1 = 0.6
	if err := s.PutValidationResult(ctx, res); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetValidationResult(ctx, "rule-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.F1 != 0.6 {
		t.Errorf("F1 = %f, want superseding 0.6", got.F1)
	}
}

func TestSQLiteRuns(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	run := store.Run{ID: "run-1", ProjectID: "proj", Fingerprint: "fp", Status: "partial",
		Warnings: []string{"a", "b"}, StartedAt: time.Now().UTC(), FinishedAt: time.Now().UTC()}
	if err := s.PutRun(ctx, run); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != "partial" || len(got.Warnings) != 2 {
		t.Errorf("run = %+v", got)
	}
}
