// Package feature derives per-record feature vectors from preprocessed
// token sequences: TF-IDF weighted terms over a capped vocabulary,
// frequent bigrams, and bucketed categorical features.
package feature

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/cognicore/rulemine/pkg/rulemine/annotation"
	"github.com/cognicore/rulemine/pkg/rulemine/config"
	"github.com/cognicore/rulemine/pkg/rulemine/preprocess"
)

// Vector is the ephemeral per-record feature mapping for one analysis
// run. Terms carry TF-IDF weights; Cats carry bucketed categoricals.
type Vector struct {
	RecordID string
	Terms    map[string]float64
	Cats     map[string]string
}

// Snapshot is the immutable output of extraction, shared read-only by
// every analyzer in a run.
type Snapshot struct {
	Records  []annotation.Record
	Docs     []preprocess.Doc
	Vectors  []Vector
	Vocab    []string // sorted by (DF desc, term asc); capped
	DF       map[string]int
	Degraded bool
}

// Extractor builds snapshots under a fixed config.
type Extractor struct {
	cfg config.AnalysisConfig
}

// NewExtractor creates an extractor for one run's config.
func NewExtractor(cfg config.AnalysisConfig) *Extractor {
	return &Extractor{cfg: cfg}
}

// Extract produces the run snapshot. Identical input yields identical
// vectors and vocabulary ordering. Chunk boundaries double as
// cancellation checkpoints.
func (e *Extractor) Extract(ctx context.Context, records []annotation.Record, pre preprocess.Result) (*Snapshot, error) {
	df := make(map[string]int)
	for _, doc := range pre.Docs {
		seen := make(map[string]struct{})
		for _, tok := range doc.Tokens {
			if _, ok := seen[tok]; !ok {
				seen[tok] = struct{}{}
				df[tok]++
			}
		}
	}

	vocab := buildVocab(df, e.cfg.VocabCap, e.cfg.MinDocFreq)
	vocabSet := make(map[string]struct{}, len(vocab))
	for _, term := range vocab {
		vocabSet[term] = struct{}{}
	}
	bigramDF := countBigrams(pre.Docs, vocabSet, e.cfg.MinDocFreq)

	n := len(records)
	vectors := make([]Vector, 0, n)
	chunk := e.cfg.ChunkSize
	if chunk < 1 {
		chunk = 1000
	}
	for start := 0; start < n; start += chunk {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := start + chunk
		if end > n {
			end = n
		}
		for i := start; i < end; i++ {
			vectors = append(vectors, e.vectorize(records[i], pre.Docs[i], vocabSet, bigramDF, df, n))
		}
	}

	return &Snapshot{
		Records:  records,
		Docs:     pre.Docs,
		Vectors:  vectors,
		Vocab:    vocab,
		DF:       df,
		Degraded: pre.Degraded,
	}, nil
}

func (e *Extractor) vectorize(rec annotation.Record, doc preprocess.Doc, vocab map[string]struct{}, bigramDF map[string]int, df map[string]int, total int) Vector {
	v := Vector{
		RecordID: rec.ID,
		Terms:    make(map[string]float64),
		Cats:     make(map[string]string),
	}

	tf := make(map[string]int)
	for _, tok := range doc.Tokens {
		if _, ok := vocab[tok]; ok {
			tf[tok]++
		}
	}
	for term, count := range tf {
		idf := math.Log(float64(total) / (1 + float64(df[term])))
		v.Terms[term] = float64(count) * idf
	}
	for i := 0; i+1 < len(doc.Tokens); i++ {
		key := doc.Tokens[i] + "_" + doc.Tokens[i+1]
		if bdf, ok := bigramDF[key]; ok {
			v.Terms[key] = math.Log(float64(total) / (1 + float64(bdf)))
		}
	}

	v.Cats["sentiment"] = rec.Sentiment
	v.Cats["text_length"] = lengthBucket(len(rec.Text))
	v.Cats["hour_of_day"] = hourBucket(rec.CreatedAt.Hour())
	if rec.Rating != nil {
		v.Cats["rating"] = ratingBucket(*rec.Rating)
	}
	for _, ent := range doc.Entities {
		v.Cats["entity:"+ent.Value] = ent.Type
	}
	return v
}

// buildVocab caps the vocabulary at the top terms by document
// frequency, dropping terms below the minimum DF. Ordering is stable:
// DF descending, then term ascending.
func buildVocab(df map[string]int, cap, minDF int) []string {
	terms := make([]string, 0, len(df))
	for term, count := range df {
		if count >= minDF {
			terms = append(terms, term)
		}
	}
	sort.Slice(terms, func(i, j int) bool {
		if df[terms[i]] != df[terms[j]] {
			return df[terms[i]] > df[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if cap > 0 && len(terms) > cap {
		terms = terms[:cap]
	}
	return terms
}

// countBigrams finds adjacent pairs of vocabulary terms frequent
// enough to act as features, capped to keep vectors bounded.
func countBigrams(docs []preprocess.Doc, vocab map[string]struct{}, minDF int) map[string]int {
	counts := make(map[string]int)
	for _, doc := range docs {
		seen := make(map[string]struct{})
		for i := 0; i+1 < len(doc.Tokens); i++ {
			a, b := doc.Tokens[i], doc.Tokens[i+1]
			if _, ok := vocab[a]; !ok {
				continue
			}
			if _, ok := vocab[b]; !ok {
				continue
			}
			key := a + "_" + b
			if _, dup := seen[key]; !dup {
				seen[key] = struct{}{}
				counts[key]++
			}
		}
	}
	keys := make([]string, 0, len(counts))
	for k, c := range counts {
		if c >= minDF {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	const bigramCap = 50
	if len(keys) > bigramCap {
		keys = keys[:bigramCap]
	}
	out := make(map[string]int, len(keys))
	for _, k := range keys {
		out[k] = counts[k]
	}
	return out
}

func lengthBucket(n int) string {
	switch {
	case n <= 50:
		return "short"
	case n <= 200:
		return "medium"
	default:
		return "long"
	}
}

func hourBucket(h int) string {
	switch {
	case h < 6:
		return "night"
	case h < 12:
		return "morning"
	case h < 18:
		return "afternoon"
	default:
		return "evening"
	}
}

func ratingBucket(r float64) string {
	switch {
	case r < 2.5:
		return "low"
	case r < 4:
		return "mid"
	default:
		return "high"
	}
}

// SortedTermNames returns a vector's term names in lexicographic order
// for deterministic iteration.
func (v Vector) SortedTermNames() []string {
	names := make([]string, 0, len(v.Terms))
	for name := range v.Terms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CatKey renders a categorical feature as "field=value".
func CatKey(field, value string) string {
	return fmt.Sprintf("%s=%s", field, value)
}
