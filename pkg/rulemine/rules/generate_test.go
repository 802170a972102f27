package rules

import (
	"testing"
	"time"

	"github.com/cognicore/rulemine/pkg/rulemine/analyze"
	"github.com/cognicore/rulemine/pkg/rulemine/annotation"
	"github.com/cognicore/rulemine/pkg/rulemine/config"
	"github.com/cognicore/rulemine/pkg/rulemine/feature"
)

var genTime = time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

// snapOf builds an aligned records/vectors snapshot from compact specs.
type rowSpec struct {
	sentiment string
	terms     []string
	cats      map[string]string
}

func snapOf(rows []rowSpec) *feature.Snapshot {
	snap := &feature.Snapshot{}
	for i, row := range rows {
		id := string(rune('a' + i%26)) + string(rune('0'+i/26))
		snap.Records = append(snap.Records, annotation.Record{
			ID: id, Sentiment: row.sentiment,
		})
		terms := make(map[string]float64)
		for _, term := range row.terms {
			terms[term] = 1
		}
		cats := map[string]string{}
		if row.sentiment != "" {
			cats["sentiment"] = row.sentiment
		}
		for k, v := range row.cats {
			cats[k] = v
		}
		snap.Vectors = append(snap.Vectors, feature.Vector{
			RecordID: id, Terms: terms, Cats: cats,
		})
	}
	return snap
}

func TestGenerateSupportBoundary(t *testing.T) {
	cfg := config.Default() // MinSupport 3, RuleMinConfidence 0.6
	gen := NewGenerator(cfg)
	snap := snapOf([]rowSpec{
		{sentiment: "negative", terms: []string{"slow"}},
		{sentiment: "negative", terms: []string{"slow"}},
		{sentiment: "negative", terms: []string{"slow"}},
	})

	atBoundary := []analyze.Candidate{{
		Kind: TypeSentiment, Condition: "contains=slow",
		Consequent: "sentiment=negative", Support: 3, Confidence: 0.92,
	}}
	out, _ := gen.Generate(snap, atBoundary, map[string]bool{TypeSentiment: true}, genTime)
	if len(out) != 1 {
		t.Fatalf("support exactly at minimum should pass, got %d rules", len(out))
	}

	below := []analyze.Candidate{{
		Kind: TypeSentiment, Condition: "contains=slow",
		Consequent: "sentiment=negative", Support: 2, Confidence: 0.92,
	}}
	out, _ = gen.Generate(snap, below, map[string]bool{TypeSentiment: true}, genTime)
	if len(out) != 0 {
		t.Fatalf("support below minimum should be excluded, got %d rules", len(out))
	}
}

func TestGenerateConfidenceBoundary(t *testing.T) {
	cfg := config.Default()
	gen := NewGenerator(cfg)
	snap := snapOf([]rowSpec{
		{sentiment: "negative", terms: []string{"slow"}},
		{sentiment: "negative", terms: []string{"slow"}},
		{sentiment: "negative", terms: []string{"slow"}},
	})

	weak := []analyze.Candidate{{
		Kind: TypeSentiment, Condition: "contains=slow",
		Consequent: "sentiment=negative", Support: 5, Confidence: 0.59,
	}}
	out, _ := gen.Generate(snap, weak, map[string]bool{TypeSentiment: true}, genTime)
	if len(out) != 0 {
		t.Errorf("confidence below rule_min_confidence should be excluded, got %d rules", len(out))
	}

	// The generator gate sits below the report filter, so a candidate
	// the report view would hide still becomes a rule.
	mid := []analyze.Candidate{{
		Kind: TypeSentiment, Condition: "contains=slow",
		Consequent: "sentiment=negative", Support: 5, Confidence: 0.65,
	}}
	out, _ = gen.Generate(snap, mid, map[string]bool{TypeSentiment: true}, genTime)
	if len(out) != 1 {
		t.Errorf("confidence 0.65 should be admitted, got %d rules", len(out))
	}
}

func TestGenerateLift(t *testing.T) {
	cfg := config.Default()
	gen := NewGenerator(cfg)
	// 4 records, 2 negative: P(negative) = 0.5.
	snap := snapOf([]rowSpec{
		{sentiment: "negative", terms: []string{"slow"}},
		{sentiment: "negative", terms: []string{"slow"}},
		{sentiment: "positive", terms: []string{"fast"}},
		{sentiment: "positive", terms: []string{"fast"}},
	})

	cands := []analyze.Candidate{{
		Kind: TypeSentiment, Condition: "contains=slow",
		Consequent: "sentiment=negative", Support: 3, Confidence: 0.9,
	}}
	out, _ := gen.Generate(snap, cands, map[string]bool{TypeSentiment: true}, genTime)
	if len(out) != 1 {
		t.Fatal("expected one rule")
	}
	r := out[0]
	if r.LiftUndefined {
		t.Fatal("lift should be defined when the consequent occurs")
	}
	if r.Lift < 1.79 || r.Lift > 1.81 { // 0.9 / 0.5
		t.Errorf("lift = %f, want 1.8", r.Lift)
	}
}

func TestGenerateLiftUndefined(t *testing.T) {
	cfg := config.Default()
	gen := NewGenerator(cfg)
	snap := snapOf([]rowSpec{
		{sentiment: "negative", terms: []string{"slow"}},
		{sentiment: "negative", terms: []string{"slow"}},
	})

	cands := []analyze.Candidate{{
		Kind: TypeSentiment, Condition: "contains=slow",
		Consequent: "sentiment=neutral", Support: 3, Confidence: 0.9,
	}}
	out, _ := gen.Generate(snap, cands, map[string]bool{TypeSentiment: true}, genTime)
	if len(out) != 1 {
		t.Fatal("expected one rule")
	}
	if !out[0].LiftUndefined {
		t.Error("absent consequent should mark lift undefined")
	}
	if out[0].Lift != 0 {
		t.Errorf("undefined lift value = %f, want 0", out[0].Lift)
	}
}

func TestGenerateRuleTypeFilter(t *testing.T) {
	cfg := config.Default()
	gen := NewGenerator(cfg)
	snap := snapOf([]rowSpec{
		{sentiment: "negative", terms: []string{"slow"}},
	})

	cands := []analyze.Candidate{{
		Kind: TypeKeywordPair, Condition: "contains=crash",
		Consequent: "contains=startup", Support: 5, Confidence: 0.9,
	}}
	out, _ := gen.Generate(snap, cands, map[string]bool{TypeSentiment: true}, genTime)
	for _, r := range out {
		if r.RuleType == TypeKeywordPair {
			t.Error("filtered rule type leaked through")
		}
	}
}

func TestMineAssociations(t *testing.T) {
	cfg := config.Default()
	gen := NewGenerator(cfg)

	var rows []rowSpec
	for i := 0; i < 8; i++ {
		rows = append(rows, rowSpec{
			sentiment: "negative",
			cats:      map[string]string{"rating": "low"},
		})
	}
	for i := 0; i < 8; i++ {
		rows = append(rows, rowSpec{
			sentiment: "positive",
			cats:      map[string]string{"rating": "high"},
		})
	}
	snap := snapOf(rows)

	out, _ := gen.Generate(snap, nil, map[string]bool{TypeAssociation: true}, genTime)

	var found *BusinessRule
	for i, r := range out {
		if r.Condition == "rating=low" && r.Consequent == "sentiment=negative" {
			found = &out[i]
		}
	}
	if found == nil {
		t.Fatalf("rating=low -> sentiment=negative missing from %+v", out)
	}
	if found.Support != 8 {
		t.Errorf("support = %d, want 8", found.Support)
	}
	if found.Confidence != 1 {
		t.Errorf("confidence = %f, want 1", found.Confidence)
	}
	if found.Lift < 1.99 || found.Lift > 2.01 { // 1 / 0.5
		t.Errorf("lift = %f, want 2", found.Lift)
	}
}

func TestGenerateResolvesConflicts(t *testing.T) {
	cfg := config.Default()
	gen := NewGenerator(cfg)
	snap := snapOf([]rowSpec{
		{sentiment: "negative", terms: []string{"slow"}},
	})

	cands := []analyze.Candidate{
		{Kind: TypeSentiment, Condition: "contains=slow",
			Consequent: "sentiment=negative", Support: 5, Confidence: 0.8},
		{Kind: TypeSentiment, Condition: "contains=slow",
			Consequent: "sentiment=negative", Support: 9, Confidence: 0.95},
	}
	out, dropped := gen.Generate(snap, cands, map[string]bool{TypeSentiment: true}, genTime)
	if len(out) != 1 {
		t.Fatalf("duplicate (condition, consequent) should collapse, got %d", len(out))
	}
	if dropped != 1 {
		t.Errorf("dropped = %d, want 1", dropped)
	}
	if out[0].Confidence != 0.95 {
		t.Errorf("higher confidence should win, got %f", out[0].Confidence)
	}
}
