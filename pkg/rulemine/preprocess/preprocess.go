// Package preprocess turns raw annotation text into normalized token
// sequences: HTML stripping, tokenization, stopword removal,
// lemmatization, and lexicon-based entity tagging.
package preprocess

import (
	"github.com/cognicore/rulemine/pkg/rulemine/annotation"
)

// Doc is one record after preprocessing.
type Doc struct {
	RecordID string
	Tokens   []string
	Entities []Entity
}

// Result is the preprocessed batch plus run metadata.
type Result struct {
	Docs []Doc
	// Degraded is true when entity tagging ran in fallback mode
	// because no lexicon was configured.
	Degraded bool
}

// Pipeline orchestrates the preprocessing flow:
// text → strip markup → tokenize → entity tagging
type Pipeline struct {
	tokenizer *Tokenizer
	tagger    *EntityTagger
}

// NewPipeline creates a preprocessing pipeline. tagger may be nil,
// which degrades entity tagging rather than failing.
func NewPipeline(tokenizer *Tokenizer, tagger *EntityTagger) *Pipeline {
	if tokenizer == nil {
		tokenizer = NewTokenizer(nil)
	}
	return &Pipeline{tokenizer: tokenizer, tagger: tagger}
}

// Process runs a record batch through the pipeline. It is a pure
// function over the batch; records are never mutated.
func (p *Pipeline) Process(records []annotation.Record) Result {
	res := Result{
		Docs:     make([]Doc, 0, len(records)),
		Degraded: p.tagger == nil,
	}
	for _, r := range records {
		tokens := p.tokenizer.Tokenize(StripHTML(r.Text))
		doc := Doc{
			RecordID: r.ID,
			Tokens:   tokens,
			Entities: p.tagger.Tag(tokens),
		}
		// Pre-extracted entities from the annotation store count too.
		for _, e := range r.Entities {
			doc.Entities = append(doc.Entities, Entity{Type: "annotation", Value: e})
		}
		res.Docs = append(res.Docs, doc)
	}
	return res
}
