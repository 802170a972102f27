package analyze

import (
	"context"
	"fmt"

	"github.com/cognicore/rulemine/pkg/rulemine/config"
	"github.com/cognicore/rulemine/pkg/rulemine/feature"
	"github.com/cognicore/rulemine/pkg/rulemine/internalerr"
	"github.com/cognicore/rulemine/pkg/rulemine/pmi"
)

// CooccurrenceAnalyzer builds a sliding-window weighted co-occurrence
// network over the capped vocabulary, keeps pairs whose PMI clears the
// threshold, and reports centrality plus community groupings.
type CooccurrenceAnalyzer struct{}

func (a *CooccurrenceAnalyzer) Kind() Kind { return KindCooccurrence }

func (a *CooccurrenceAnalyzer) Run(ctx context.Context, snap *feature.Snapshot, cfg config.AnalysisConfig) (Output, error) {
	if len(snap.Docs) == 0 {
		return Output{}, fmt.Errorf("%w: no documents", internalerr.ErrInsufficientData)
	}
	if len(snap.Vocab) == 0 {
		return Output{}, fmt.Errorf("%w: empty vocabulary", internalerr.ErrInsufficientData)
	}

	vocabSet := make(map[string]struct{}, len(snap.Vocab))
	for _, term := range snap.Vocab {
		vocabSet[term] = struct{}{}
	}

	counter := pmi.NewWindowCounter(cfg.WindowSize, vocabSet)
	out := Output{}
	for i, doc := range snap.Docs {
		if i%cfg.ChunkSize == 0 && ctx.Err() != nil {
			out.Partial = true
			out.Warnings = append(out.Warnings, fmt.Sprintf("%v: scoring the records counted so far", internalerr.ErrResourceExhausted))
			break
		}
		counter.AddSequence(doc.Tokens)
	}

	calc := pmi.NewCalculator(1.0)
	edges := counter.Edges(calc, cfg.PMIThreshold, cfg.MinSupport)
	out.Edges = edges
	if len(edges) == 0 {
		out.Warnings = append(out.Warnings, "no strong co-occurrence pairs above PMI threshold")
		return out, nil
	}

	g := newGraph(edges)
	out.Communities = g.communities()
	central := g.centrality()

	// Community membership for evidence annotations.
	communityOf := make(map[string]int)
	for ci, members := range out.Communities {
		for _, m := range members {
			communityOf[m] = ci
		}
	}
	centralityOf := make(map[string]float64, len(central))
	for _, c := range central {
		centralityOf[c.Node] = c.Combined
	}

	records := counter.Records()
	for _, e := range edges {
		// Confidence of seeing word2 given a record with word1,
		// using the stronger direction.
		df1, df2 := counter.DF(e.Word1), counter.DF(e.Word2)
		minDF := df1
		if df2 < minDF {
			minDF = df2
		}
		if minDF == 0 {
			continue
		}
		confidence := float64(e.Support) / float64(minDF)
		if confidence > 1 {
			confidence = 1
		}
		out.Candidates = append(out.Candidates, Candidate{
			Kind:       CandidateKeywordPair,
			Condition:  "contains=" + e.Word1,
			Consequent: "contains=" + e.Word2,
			Support:    e.Support,
			Confidence: confidence,
			Evidence: map[string]string{
				"pmi":             fmt.Sprintf("%.4f", e.Weight),
				"weighted_count":  fmt.Sprintf("%.4f", e.Count),
				"records":         fmt.Sprintf("%d", records),
				"community":       fmt.Sprintf("%d", communityOf[e.Word1]),
				"centrality_w1":   fmt.Sprintf("%.4f", centralityOf[e.Word1]),
				"centrality_w2":   fmt.Sprintf("%.4f", centralityOf[e.Word2]),
			},
		})
	}
	sortCandidates(out.Candidates)
	return out, nil
}
