// Package rules turns pattern candidates and feature snapshots into
// explicit, auditable business rules, validates them against held-out
// data, and applies them to new records.
package rules

import (
	"crypto/sha256"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"
)

// Rule types.
const (
	TypeSentiment    = "sentiment_correlation"
	TypeKeywordPair  = "keyword_pair"
	TypeTrend        = "trend"
	TypeBehavior     = "behavior_cluster"
	TypeAssociation  = "association"
	TypeDecisionTree = "decision_tree"
)

// BusinessRule is a persisted condition -> consequent statement with
// its supporting statistics. Rules are soft-deleted only: IsActive is
// flipped, rows are never removed, so the audit trail survives.
type BusinessRule struct {
	ID              string    `json:"id"`
	Condition       string    `json:"condition"`
	Consequent      string    `json:"consequent"`
	Support         int       `json:"support"`
	Confidence      float64   `json:"confidence"`
	Lift            float64   `json:"lift"`
	LiftUndefined   bool      `json:"lift_undefined"`
	RuleType        string    `json:"rule_type"`
	IsActive        bool      `json:"is_active"`
	ValidationScore *float64  `json:"validation_score,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// RuleSet is an ordered set of rules from one extraction run.
type RuleSet struct {
	ProjectID    string         `json:"project_id"`
	Rules        []BusinessRule `json:"rules"`
	TotalRecords int            `json:"total_records"`
}

// ValidationResult scores one rule against held-out data. A later
// validation supersedes the earlier result; results are never
// averaged together.
type ValidationResult struct {
	RuleID    string    `json:"rule_id"`
	Precision float64   `json:"precision"`
	Recall    float64   `json:"recall"`
	F1        float64   `json:"f1"`
	Support   int       `json:"support"`
	Timestamp time.Time `json:"timestamp"`
}

// NewRuleID derives a ULID for a rule. The entropy bytes come from the
// rule's identity, so extracting the same rule from the same snapshot
// twice yields the same ID; the time component is fixed per snapshot.
func NewRuleID(createdAt time.Time, condition, consequent, ruleType string) string {
	sum := sha256.Sum256([]byte(condition + "\x00" + consequent + "\x00" + ruleType))
	var entropy [10]byte
	copy(entropy[:], sum[:10])
	id := ulid.MustNew(ulid.Timestamp(createdAt), constReader(entropy[:]))
	return id.String()
}

type constReader []byte

func (r constReader) Read(p []byte) (int, error) {
	n := copy(p, r)
	return n, nil
}

// SortRules orders rules deterministically: confidence descending,
// then support descending, then (condition, consequent) ascending.
func SortRules(rules []BusinessRule) {
	sort.Slice(rules, func(i, j int) bool {
		if rules[i].Confidence != rules[j].Confidence {
			return rules[i].Confidence > rules[j].Confidence
		}
		if rules[i].Support != rules[j].Support {
			return rules[i].Support > rules[j].Support
		}
		if rules[i].Condition != rules[j].Condition {
			return rules[i].Condition < rules[j].Condition
		}
		return rules[i].Consequent < rules[j].Consequent
	})
}

// ResolveConflicts enforces the uniqueness invariant inside one batch:
// no two rules share (condition, consequent). The higher-confidence
// rule wins; the loser is dropped, not stored. Returns winners plus
// how many were dropped.
func ResolveConflicts(rules []BusinessRule) ([]BusinessRule, int) {
	type key struct{ cond, cons string }
	best := make(map[key]BusinessRule, len(rules))
	dropped := 0
	for _, r := range rules {
		k := key{r.Condition, r.Consequent}
		cur, ok := best[k]
		if !ok {
			best[k] = r
			continue
		}
		dropped++
		if r.Confidence > cur.Confidence {
			best[k] = r
		}
	}
	out := make([]BusinessRule, 0, len(best))
	for _, r := range best {
		out = append(out, r)
	}
	SortRules(out)
	return out, dropped
}
