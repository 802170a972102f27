package rules

import (
	"fmt"

	"github.com/cognicore/rulemine/pkg/rulemine/feature"
)

// ApplyResult summarizes applying a rule set to a target project's
// records.
type ApplyResult struct {
	Matched int `json:"matched_count"` // records matching at least one condition
	Applied int `json:"applied_count"` // matches where the consequent also held
}

// RuleMatch is one rule firing on one record.
type RuleMatch struct {
	RuleID     string `json:"rule_id"`
	RecordID   string `json:"record_id"`
	Consequent string `json:"consequent"`
	// ConsequentHeld reports whether the target record already
	// satisfies the rule's consequent.
	ConsequentHeld bool `json:"consequent_held"`
}

// Apply evaluates every active rule against the target vectors and
// returns the matches plus aggregate counts. Rules whose expressions
// fail to parse are skipped; a malformed rule must not fail the batch.
func Apply(ruleSet []BusinessRule, vectors []feature.Vector) (ApplyResult, []RuleMatch, error) {
	type compiled struct {
		rule       BusinessRule
		condition  Expr
		consequent Expr
	}
	var active []compiled
	for _, r := range ruleSet {
		if !r.IsActive {
			continue
		}
		cond, err := ParseExpr(r.Condition)
		if err != nil {
			continue
		}
		cons, err := ParseExpr(r.Consequent)
		if err != nil {
			continue
		}
		active = append(active, compiled{rule: r, condition: cond, consequent: cons})
	}
	if len(active) == 0 {
		return ApplyResult{}, nil, fmt.Errorf("no applicable rules")
	}

	var result ApplyResult
	var matches []RuleMatch
	for _, vec := range vectors {
		matchedRecord := false
		for _, c := range active {
			if !c.condition.Matches(vec) {
				continue
			}
			matchedRecord = true
			held := c.consequent.Matches(vec)
			if held {
				result.Applied++
			}
			matches = append(matches, RuleMatch{
				RuleID:         c.rule.ID,
				RecordID:       vec.RecordID,
				Consequent:     c.rule.Consequent,
				ConsequentHeld: held,
			})
		}
		if matchedRecord {
			result.Matched++
		}
	}
	return result, matches, nil
}
