package rules

import (
	"sort"
	"time"

	"github.com/cognicore/rulemine/pkg/rulemine/analyze"
	"github.com/cognicore/rulemine/pkg/rulemine/config"
	"github.com/cognicore/rulemine/pkg/rulemine/feature"
)

// Generator compiles pattern candidates and feature snapshots into
// business rules, gated by min_support and rule_min_confidence.
// Support exactly equal to min_support passes; one below does not.
type Generator struct {
	cfg config.AnalysisConfig
}

// NewGenerator creates a generator for one run's config.
func NewGenerator(cfg config.AnalysisConfig) *Generator {
	return &Generator{cfg: cfg}
}

// Generate produces the deduplicated rule batch: promoted analyzer
// candidates, mined association rules, and decision-tree leaf rules.
// dropped counts rules lost to (condition, consequent) conflicts.
func (g *Generator) Generate(snap *feature.Snapshot, candidates []analyze.Candidate, ruleTypes map[string]bool, createdAt time.Time) (out []BusinessRule, dropped int) {
	var batch []BusinessRule
	if ruleTypes == nil || ruleTypes[TypeSentiment] || ruleTypes[TypeKeywordPair] || ruleTypes[TypeTrend] || ruleTypes[TypeBehavior] {
		batch = append(batch, g.fromCandidates(snap, candidates, ruleTypes, createdAt)...)
	}
	if ruleTypes == nil || ruleTypes[TypeAssociation] {
		batch = append(batch, g.mineAssociations(snap, createdAt)...)
	}
	if ruleTypes == nil || ruleTypes[TypeDecisionTree] {
		batch = append(batch, g.treeRules(snap, createdAt)...)
	}
	return ResolveConflicts(batch)
}

// fromCandidates promotes analyzer candidates that clear both
// thresholds.
func (g *Generator) fromCandidates(snap *feature.Snapshot, candidates []analyze.Candidate, ruleTypes map[string]bool, createdAt time.Time) []BusinessRule {
	var out []BusinessRule
	for _, c := range candidates {
		if ruleTypes != nil && !ruleTypes[c.Kind] {
			continue
		}
		if c.Support < g.cfg.MinSupport || c.Confidence < g.cfg.RuleMinConfidence {
			continue
		}
		rule := BusinessRule{
			ID:         NewRuleID(createdAt, c.Condition, c.Consequent, c.Kind),
			Condition:  c.Condition,
			Consequent: c.Consequent,
			Support:    c.Support,
			Confidence: c.Confidence,
			RuleType:   c.Kind,
			IsActive:   true,
			CreatedAt:  createdAt,
		}
		rule.Lift, rule.LiftUndefined = g.lift(snap, c.Consequent, c.Confidence)
		out = append(out, rule)
	}
	return out
}

// lift computes confidence / P(consequent). When the consequent never
// occurs in the snapshot its expected probability is zero and lift is
// explicitly undefined, never silently zero.
func (g *Generator) lift(snap *feature.Snapshot, consequent string, confidence float64) (float64, bool) {
	expr, err := ParseExpr(consequent)
	if err != nil || len(snap.Vectors) == 0 {
		return 0, true
	}
	matched := 0
	for _, v := range snap.Vectors {
		if expr.Matches(v) {
			matched++
		}
	}
	if matched == 0 {
		return 0, true
	}
	expected := float64(matched) / float64(len(snap.Vectors))
	return confidence / expected, false
}

// mineAssociations scans every (condition field, target field) pair of
// categorical features, emitting condition-value -> target-value rules
// that clear both thresholds, with lift against the target marginal.
func (g *Generator) mineAssociations(snap *feature.Snapshot, createdAt time.Time) []BusinessRule {
	n := len(snap.Vectors)
	if n == 0 {
		return nil
	}

	fields := categoricalFields(snap)
	// value counts per field, and joint counts per field pair
	valueCounts := make(map[string]map[string]int, len(fields))
	for _, f := range fields {
		valueCounts[f] = make(map[string]int)
	}
	for _, v := range snap.Vectors {
		for _, f := range fields {
			if val, ok := v.Cats[f]; ok && val != "" {
				valueCounts[f][val]++
			}
		}
	}

	var out []BusinessRule
	for _, condField := range fields {
		for _, targetField := range fields {
			if condField == targetField {
				continue
			}
			joint := make(map[[2]string]int)
			for _, v := range snap.Vectors {
				cv, okC := v.Cats[condField]
				tv, okT := v.Cats[targetField]
				if !okC || !okT || cv == "" || tv == "" {
					continue
				}
				joint[[2]string{cv, tv}]++
			}
			for pair, support := range joint {
				if support < g.cfg.MinSupport {
					continue
				}
				condTotal := valueCounts[condField][pair[0]]
				if condTotal == 0 {
					continue
				}
				confidence := float64(support) / float64(condTotal)
				if confidence < g.cfg.RuleMinConfidence {
					continue
				}
				targetTotal := valueCounts[targetField][pair[1]]
				rule := BusinessRule{
					Condition:  feature.CatKey(condField, pair[0]),
					Consequent: feature.CatKey(targetField, pair[1]),
					Support:    support,
					Confidence: confidence,
					RuleType:   TypeAssociation,
					IsActive:   true,
					CreatedAt:  createdAt,
				}
				if targetTotal == 0 {
					rule.LiftUndefined = true
				} else {
					rule.Lift = confidence / (float64(targetTotal) / float64(n))
				}
				rule.ID = NewRuleID(createdAt, rule.Condition, rule.Consequent, rule.RuleType)
				out = append(out, rule)
			}
		}
	}
	return out
}

// categoricalFields returns the sorted set of categorical field names
// present in the snapshot, excluding per-record entity markers.
func categoricalFields(snap *feature.Snapshot) []string {
	set := make(map[string]struct{})
	for _, v := range snap.Vectors {
		for f := range v.Cats {
			if len(f) >= 7 && f[:7] == "entity:" {
				continue
			}
			set[f] = struct{}{}
		}
	}
	fields := make([]string, 0, len(set))
	for f := range set {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}
