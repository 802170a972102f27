// Package analyze contains the four pattern analyzers that mine an
// immutable feature snapshot for statistically grounded findings.
package analyze

import (
	"context"

	"github.com/cognicore/rulemine/pkg/rulemine/config"
	"github.com/cognicore/rulemine/pkg/rulemine/feature"
	"github.com/cognicore/rulemine/pkg/rulemine/pmi"
)

// Kind enumerates the analyzers. The orchestrator iterates this closed
// set rather than dispatching on strings.
type Kind int

const (
	KindSentimentAssociation Kind = iota
	KindCooccurrence
	KindTrend
	KindBehaviorCluster
)

// AllKinds returns every analyzer kind in fixed order.
func AllKinds() []Kind {
	return []Kind{KindSentimentAssociation, KindCooccurrence, KindTrend, KindBehaviorCluster}
}

func (k Kind) String() string {
	switch k {
	case KindSentimentAssociation:
		return "sentiment_association"
	case KindCooccurrence:
		return "cooccurrence"
	case KindTrend:
		return "trend"
	case KindBehaviorCluster:
		return "behavior_cluster"
	default:
		return "unknown"
	}
}

// Candidate is an ephemeral pattern candidate produced by an analyzer.
// Candidates that clear the support and confidence thresholds are
// promoted to business rules by the rule generator.
type Candidate struct {
	Kind       string            `json:"kind"` // sentiment_correlation, keyword_pair, trend, behavior_cluster
	Condition  string            `json:"condition"`
	Consequent string            `json:"consequent"`
	Support    int               `json:"support"`
	Confidence float64           `json:"confidence"`
	Evidence   map[string]string `json:"evidence,omitempty"`
}

// Candidate kind values.
const (
	CandidateSentiment   = "sentiment_correlation"
	CandidateKeywordPair = "keyword_pair"
	CandidateTrend       = "trend"
	CandidateBehavior    = "behavior_cluster"
)

// Output is one analyzer's result. Warnings record degraded or skipped
// stages; Partial marks a timeout or cancellation that cut the
// analysis short with findings already accumulated. The typed extras
// are filled only by the analyzer they belong to.
type Output struct {
	Candidates []Candidate
	Warnings   []string
	Partial    bool

	Edges          []pmi.Edge          `json:"edges,omitempty"`           // cooccurrence
	Communities    [][]string          `json:"communities,omitempty"`     // cooccurrence
	Trend          *TrendSummary       `json:"trend,omitempty"`           // trend
	Profiles       []BehaviorProfile   `json:"profiles,omitempty"`        // behavior
	NearDuplicates []NearDuplicatePair `json:"near_duplicates,omitempty"` // behavior
	Agreement      *TaskAgreement      `json:"agreement,omitempty"`       // behavior
}

// Analyzer is the common capability every analyzer implements. Run
// must treat the snapshot as read-only; analyzers share it without
// locking.
type Analyzer interface {
	Kind() Kind
	Run(ctx context.Context, snap *feature.Snapshot, cfg config.AnalysisConfig) (Output, error)
}

// ForKind constructs the analyzer for a kind.
func ForKind(k Kind) Analyzer {
	switch k {
	case KindSentimentAssociation:
		return &SentimentAnalyzer{}
	case KindCooccurrence:
		return &CooccurrenceAnalyzer{}
	case KindTrend:
		return &TrendAnalyzer{}
	case KindBehaviorCluster:
		return &BehaviorAnalyzer{}
	default:
		return nil
	}
}
