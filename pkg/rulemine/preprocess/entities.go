package preprocess

import "strings"

// Entity is a tagged span of meaning found in record text.
type Entity struct {
	Type  string
	Value string
}

// EntityTagger recognizes entities by lexicon lookup. It is the
// optional NLP stage of the pipeline: when no lexicon is configured
// the pipeline runs without it and flags the run as degraded.
type EntityTagger struct {
	keywords map[string]string // lowercase keyword -> entity type
}

// NewEntityTagger builds a tagger from a type -> keywords lexicon.
// Returns nil when the lexicon is empty, signalling the degraded path.
func NewEntityTagger(lexicon map[string][]string) *EntityTagger {
	if len(lexicon) == 0 {
		return nil
	}
	kw := make(map[string]string)
	for entType, words := range lexicon {
		for _, w := range words {
			kw[strings.ToLower(w)] = entType
		}
	}
	return &EntityTagger{keywords: kw}
}

// Tag returns the entities present in a token sequence, deduplicated,
// in first-appearance order.
func (t *EntityTagger) Tag(tokens []string) []Entity {
	if t == nil {
		return nil
	}
	var out []Entity
	seen := make(map[string]struct{})
	for _, tok := range tokens {
		entType, ok := t.keywords[tok]
		if !ok {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, Entity{Type: entType, Value: tok})
	}
	return out
}
