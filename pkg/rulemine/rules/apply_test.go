package rules

import (
	"testing"

	"github.com/cognicore/rulemine/pkg/rulemine/feature"
)

func applyVectors() []feature.Vector {
	return []feature.Vector{
		{RecordID: "r1", Terms: map[string]float64{"slow": 1}, Cats: map[string]string{"sentiment": "negative"}},
		{RecordID: "r2", Terms: map[string]float64{"slow": 1}, Cats: map[string]string{"sentiment": "positive"}},
		{RecordID: "r3", Terms: map[string]float64{"fast": 1}, Cats: map[string]string{"sentiment": "positive"}},
	}
}

func TestApplyCountsMatchesAndApplied(t *testing.T) {
	rules := []BusinessRule{{
		ID: "rule-1", Condition: "contains=slow",
		Consequent: "sentiment=negative", IsActive: true,
	}}

	result, matches, err := Apply(rules, applyVectors())
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if result.Matched != 2 {
		t.Errorf("matched = %d, want 2 (r1, r2)", result.Matched)
	}
	if result.Applied != 1 {
		t.Errorf("applied = %d, want 1 (only r1's consequent holds)", result.Applied)
	}
	if len(matches) != 2 {
		t.Fatalf("matches = %d, want 2", len(matches))
	}
	for _, m := range matches {
		held := m.RecordID == "r1"
		if m.ConsequentHeld != held {
			t.Errorf("match %s: ConsequentHeld = %v", m.RecordID, m.ConsequentHeld)
		}
	}
}

func TestApplySkipsInactiveRules(t *testing.T) {
	rules := []BusinessRule{
		{ID: "off", Condition: "contains=slow", Consequent: "sentiment=negative", IsActive: false},
	}
	if _, _, err := Apply(rules, applyVectors()); err == nil {
		t.Error("only inactive rules means no applicable rules")
	}
}

func TestApplySkipsMalformedRules(t *testing.T) {
	rules := []BusinessRule{
		{ID: "bad", Condition: "???", Consequent: "sentiment=negative", IsActive: true},
		{ID: "ok", Condition: "contains=fast", Consequent: "sentiment=positive", IsActive: true},
	}
	result, matches, err := Apply(rules, applyVectors())
	if err != nil {
		t.Fatalf("one good rule should carry the batch: %v", err)
	}
	if result.Matched != 1 || len(matches) != 1 || matches[0].RuleID != "ok" {
		t.Errorf("unexpected result: %+v %+v", result, matches)
	}
}

func TestApplyNoRules(t *testing.T) {
	if _, _, err := Apply(nil, applyVectors()); err == nil {
		t.Error("empty rule set should error")
	}
}
