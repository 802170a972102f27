package analyze

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/cognicore/rulemine/pkg/rulemine/annotation"
	"github.com/cognicore/rulemine/pkg/rulemine/config"
	"github.com/cognicore/rulemine/pkg/rulemine/feature"
	"github.com/cognicore/rulemine/pkg/rulemine/internalerr"
	"github.com/cognicore/rulemine/pkg/rulemine/pmi"
	"github.com/cognicore/rulemine/pkg/rulemine/stats"
)

// minLabeledRecords is the statistical floor below which sentiment
// associations are too noisy to report.
const minLabeledRecords = 50

// SentimentAnalyzer correlates sentiment labels with lexical and
// entity features: PMI weighted by log frequency, then a chi-square
// test on the 2x2 contingency table. Associations with p >= 0.05 are
// rejected.
type SentimentAnalyzer struct{}

func (a *SentimentAnalyzer) Kind() Kind { return KindSentimentAssociation }

func (a *SentimentAnalyzer) Run(ctx context.Context, snap *feature.Snapshot, cfg config.AnalysisConfig) (Output, error) {
	labeled := 0
	for _, r := range snap.Records {
		if r.Sentiment != "" {
			labeled++
		}
	}
	if labeled < minLabeledRecords {
		return Output{}, fmt.Errorf("%w: %d labeled records, need %d", internalerr.ErrInsufficientData, labeled, minLabeledRecords)
	}

	labels := annotation.Labels(snap.Records)
	features := a.featureUniverse(snap)

	// Presence sets per feature and per label, over labeled records
	// only. Mixing unlabeled records into the feature margins would
	// corrupt the contingency table (cells derived from `total` go
	// negative) and turn confidence into something other than
	// P(sentiment | feature).
	featDocs := make(map[string]map[int]struct{}, len(features))
	for i, v := range snap.Vectors {
		if snap.Records[i].Sentiment == "" {
			continue
		}
		for term := range v.Terms {
			if featDocs[term] == nil {
				featDocs[term] = make(map[int]struct{})
			}
			featDocs[term][i] = struct{}{}
		}
		for cat, val := range v.Cats {
			if cat == "sentiment" {
				continue
			}
			key := feature.CatKey(cat, val)
			if featDocs[key] == nil {
				featDocs[key] = make(map[int]struct{})
			}
			featDocs[key][i] = struct{}{}
		}
	}
	labelDocs := make(map[string]map[int]struct{}, len(labels))
	for i, r := range snap.Records {
		if r.Sentiment == "" {
			continue
		}
		if labelDocs[r.Sentiment] == nil {
			labelDocs[r.Sentiment] = make(map[int]struct{})
		}
		labelDocs[r.Sentiment][i] = struct{}{}
	}

	calc := pmi.NewCalculator(1.0)
	total := float64(labeled)
	out := Output{}
	rejected := 0

	for fi, feat := range features {
		if fi%cfg.ChunkSize == 0 && ctx.Err() != nil {
			out.Partial = true
			out.Warnings = append(out.Warnings, fmt.Sprintf("%v: returning accumulated findings", internalerr.ErrResourceExhausted))
			return out, nil
		}
		fDocs := featDocs[feat]
		// Low-count features produce spurious high-PMI noise.
		if len(fDocs) < cfg.MinSupport {
			continue
		}
		for _, label := range labels {
			lDocs := labelDocs[label]
			both := intersect(fDocs, lDocs)
			if both < cfg.MinSupport {
				continue
			}

			nF := float64(len(fDocs))
			nL := float64(len(lDocs))
			nFL := float64(both)

			chi2, p := stats.ChiSquare2x2(nFL, nF-nFL, nL-nFL, total-nF-nL+nFL)
			if p >= 0.05 {
				rejected++
				continue
			}
			score := calc.WeightedPMI(nFL, nF, nL, total)
			if score <= 0 {
				continue
			}
			confidence := nFL / nF // P(sentiment | feature)

			out.Candidates = append(out.Candidates, Candidate{
				Kind:       CandidateSentiment,
				Condition:  conditionFor(feat),
				Consequent: feature.CatKey("sentiment", label),
				Support:    both,
				Confidence: confidence,
				Evidence: map[string]string{
					"pmi":        fmt.Sprintf("%.4f", calc.PMI(nFL, nF, nL, total)),
					"chi_square": fmt.Sprintf("%.4f", chi2),
					"p_value":    fmt.Sprintf("%.6f", p),
				},
			})
		}
	}

	if rejected > 0 {
		out.Warnings = append(out.Warnings, fmt.Sprintf("%d associations dropped, %v (p >= 0.05)", rejected, internalerr.ErrNotSignificant))
	}
	sortCandidates(out.Candidates)
	return out, nil
}

// featureUniverse returns the deterministic set of features to test:
// vocabulary terms plus every categorical key observed.
func (a *SentimentAnalyzer) featureUniverse(snap *feature.Snapshot) []string {
	set := make(map[string]struct{}, len(snap.Vocab))
	for _, term := range snap.Vocab {
		set[term] = struct{}{}
	}
	for _, v := range snap.Vectors {
		for term := range v.Terms {
			set[term] = struct{}{}
		}
		for cat, val := range v.Cats {
			if cat != "sentiment" {
				set[feature.CatKey(cat, val)] = struct{}{}
			}
		}
	}
	features := make([]string, 0, len(set))
	for f := range set {
		features = append(features, f)
	}
	sort.Strings(features)
	return features
}

func conditionFor(feat string) string {
	// Categorical keys are already field=value; bare terms become a
	// containment condition.
	for i := 0; i < len(feat); i++ {
		if feat[i] == '=' {
			return feat
		}
	}
	return "contains=" + feat
}

func intersect(a, b map[int]struct{}) int {
	if len(a) > len(b) {
		a, b = b, a
	}
	n := 0
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}

// sortCandidates orders candidates by confidence descending with
// lexicographic tie-breaks so identical inputs yield identical output.
func sortCandidates(cands []Candidate) {
	sort.Slice(cands, func(i, j int) bool {
		if math.Abs(cands[i].Confidence-cands[j].Confidence) > 1e-12 {
			return cands[i].Confidence > cands[j].Confidence
		}
		if cands[i].Condition != cands[j].Condition {
			return cands[i].Condition < cands[j].Condition
		}
		return cands[i].Consequent < cands[j].Consequent
	})
}
