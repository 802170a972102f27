package rules

import (
	"fmt"
	"time"

	"github.com/cognicore/rulemine/pkg/rulemine/config"
	"github.com/cognicore/rulemine/pkg/rulemine/feature"
)

// Validator scores rules as classifiers over held-out data with
// k-fold cross validation.
type Validator struct {
	cfg config.AnalysisConfig
}

// NewValidator creates a validator for one run's config.
func NewValidator(cfg config.AnalysisConfig) *Validator {
	return &Validator{cfg: cfg}
}

// Validate applies the rule to each fold and reports mean
// precision/recall/F1. Fold assignment is index mod k over the
// snapshot order, so repeated validation of the same data is stable.
// The boolean result reports whether the rule survives the F1 floor;
// callers deactivate failing rules rather than deleting them.
func (v *Validator) Validate(rule BusinessRule, vectors []feature.Vector, now time.Time) (ValidationResult, bool, error) {
	res := ValidationResult{RuleID: rule.ID, Timestamp: now}

	condition, err := ParseExpr(rule.Condition)
	if err != nil {
		return res, false, fmt.Errorf("parse condition %q: %w", rule.Condition, err)
	}
	consequent, err := ParseExpr(rule.Consequent)
	if err != nil {
		return res, false, fmt.Errorf("parse consequent %q: %w", rule.Consequent, err)
	}

	k := v.cfg.KFolds
	if k < 2 {
		k = 2
	}
	if k > len(vectors) {
		k = len(vectors)
	}
	if k < 2 {
		return res, false, fmt.Errorf("too few records to validate: %d", len(vectors))
	}

	var sumP, sumR, sumF float64
	folds := 0
	for fold := 0; fold < k; fold++ {
		var tp, fp, fn int
		for i, vec := range vectors {
			if i%k != fold {
				continue
			}
			predicted := condition.Matches(vec)
			actual := consequent.Matches(vec)
			switch {
			case predicted && actual:
				tp++
				res.Support++
			case predicted && !actual:
				fp++
			case !predicted && actual:
				fn++
			}
		}
		p, r := safeDiv(tp, tp+fp), safeDiv(tp, tp+fn)
		f1 := 0.0
		if p+r > 0 {
			f1 = 2 * p * r / (p + r)
		}
		sumP += p
		sumR += r
		sumF += f1
		folds++
	}

	res.Precision = sumP / float64(folds)
	res.Recall = sumR / float64(folds)
	res.F1 = sumF / float64(folds)
	return res, res.F1 >= v.cfg.ValidationFloor, nil
}

func safeDiv(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
