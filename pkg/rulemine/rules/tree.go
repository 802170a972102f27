package rules

import (
	"fmt"
	"sort"
	"time"

	"github.com/cognicore/rulemine/pkg/rulemine/feature"
)

// maxNumericFeatures bounds how many term weights the tree considers
// as numeric split candidates.
const maxNumericFeatures = 20

// treeRules fits a bounded-depth decision tree against the sentiment
// label and walks it to leaves, emitting one rule per leaf path whose
// support and purity clear the thresholds. Failing paths are pruned,
// not emitted.
func (g *Generator) treeRules(snap *feature.Snapshot, createdAt time.Time) []BusinessRule {
	var samples []int
	for i, r := range snap.Records {
		if r.Sentiment != "" {
			samples = append(samples, i)
		}
	}
	if len(samples) < g.cfg.MinSupport*2 {
		return nil
	}

	splits := buildSplits(snap)
	var out []BusinessRule
	g.growTree(snap, samples, splits, "", 0, createdAt, &out)
	return out
}

// split is one candidate binary test.
type split struct {
	// categorical: field=value vs field!=value
	field string
	value string
	// numeric: tfidf(term)>threshold vs <=
	term      string
	threshold float64
	numeric   bool
}

func (s split) yes() string {
	if s.numeric {
		return fmt.Sprintf("tfidf(%s)>%.6f", s.term, s.threshold)
	}
	return s.field + "=" + s.value
}

func (s split) no() string {
	if s.numeric {
		return fmt.Sprintf("tfidf(%s)<=%.6f", s.term, s.threshold)
	}
	return s.field + "!=" + s.value
}

func (s split) test(v feature.Vector) bool {
	if s.numeric {
		return v.Terms[s.term] > s.threshold
	}
	return v.Cats[s.field] == s.value
}

// buildSplits enumerates candidate tests in a deterministic order:
// every observed categorical (field, value) except the target, plus
// presence tests for the top vocabulary terms.
func buildSplits(snap *feature.Snapshot) []split {
	catValues := make(map[string]map[string]struct{})
	for _, v := range snap.Vectors {
		for f, val := range v.Cats {
			if f == "sentiment" || val == "" {
				continue
			}
			if len(f) >= 7 && f[:7] == "entity:" {
				continue
			}
			if catValues[f] == nil {
				catValues[f] = make(map[string]struct{})
			}
			catValues[f][val] = struct{}{}
		}
	}

	var splits []split
	fields := make([]string, 0, len(catValues))
	for f := range catValues {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		values := make([]string, 0, len(catValues[f]))
		for v := range catValues[f] {
			values = append(values, v)
		}
		sort.Strings(values)
		for _, v := range values {
			splits = append(splits, split{field: f, value: v})
		}
	}

	limit := maxNumericFeatures
	if len(snap.Vocab) < limit {
		limit = len(snap.Vocab)
	}
	for _, term := range snap.Vocab[:limit] {
		splits = append(splits, split{term: term, threshold: 0, numeric: true})
	}
	return splits
}

// growTree recursively partitions samples, emitting a rule at each
// leaf that clears min_support (leaf sample count) and
// rule_min_confidence (majority purity).
func (g *Generator) growTree(snap *feature.Snapshot, samples []int, splits []split, path string, depth int, createdAt time.Time, out *[]BusinessRule) {
	label, purity := majorityLabel(snap, samples)

	stop := depth >= g.cfg.MaxTreeDepth || purity >= 0.999 || len(samples) < g.cfg.MinSupport*2
	if !stop {
		if best, ok := g.bestSplit(snap, samples, splits); ok {
			var yes, no []int
			for _, i := range samples {
				if best.test(snap.Vectors[i]) {
					yes = append(yes, i)
				} else {
					no = append(no, i)
				}
			}
			if len(yes) > 0 && len(no) > 0 {
				g.growTree(snap, yes, splits, AndExpr(path, best.yes()), depth+1, createdAt, out)
				g.growTree(snap, no, splits, AndExpr(path, best.no()), depth+1, createdAt, out)
				return
			}
		}
	}

	// Leaf: emit if the path is non-trivial and both thresholds pass.
	if path == "" || label == "" {
		return
	}
	majorityCount := int(purity*float64(len(samples)) + 0.5)
	if len(samples) < g.cfg.MinSupport || purity < g.cfg.RuleMinConfidence {
		return // pruned
	}
	consequent := feature.CatKey("sentiment", label)
	rule := BusinessRule{
		ID:         NewRuleID(createdAt, path, consequent, TypeDecisionTree),
		Condition:  path,
		Consequent: consequent,
		Support:    majorityCount,
		Confidence: purity,
		RuleType:   TypeDecisionTree,
		IsActive:   true,
		CreatedAt:  createdAt,
	}
	rule.Lift, rule.LiftUndefined = g.lift(snap, consequent, purity)
	*out = append(*out, rule)
}

// bestSplit picks the split with maximum Gini gain, requiring a
// strictly positive improvement. Ties keep the earlier (deterministic)
// split.
func (g *Generator) bestSplit(snap *feature.Snapshot, samples []int, splits []split) (split, bool) {
	parent := gini(snap, samples)
	bestGain := 1e-9
	var best split
	found := false
	for _, s := range splits {
		var yes, no []int
		for _, i := range samples {
			if s.test(snap.Vectors[i]) {
				yes = append(yes, i)
			} else {
				no = append(no, i)
			}
		}
		if len(yes) == 0 || len(no) == 0 {
			continue
		}
		n := float64(len(samples))
		gain := parent - float64(len(yes))/n*gini(snap, yes) - float64(len(no))/n*gini(snap, no)
		if gain > bestGain {
			bestGain = gain
			best = s
			found = true
		}
	}
	return best, found
}

func gini(snap *feature.Snapshot, samples []int) float64 {
	counts := make(map[string]int)
	for _, i := range samples {
		counts[snap.Records[i].Sentiment]++
	}
	n := float64(len(samples))
	if n == 0 {
		return 0
	}
	impurity := 1.0
	for _, c := range counts {
		p := float64(c) / n
		impurity -= p * p
	}
	return impurity
}

func majorityLabel(snap *feature.Snapshot, samples []int) (string, float64) {
	counts := make(map[string]int)
	for _, i := range samples {
		counts[snap.Records[i].Sentiment]++
	}
	labels := make([]string, 0, len(counts))
	for l := range counts {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	best, bestCount := "", -1
	for _, l := range labels {
		if counts[l] > bestCount {
			best, bestCount = l, counts[l]
		}
	}
	if len(samples) == 0 {
		return "", 0
	}
	return best, float64(bestCount) / float64(len(samples))
}
