package pmi

import "sort"

// Pair is a canonically ordered token pair (A < B).
type Pair struct {
	A, B string
}

// NewPair returns the canonical ordering of two tokens.
func NewPair(a, b string) Pair {
	if a > b {
		a, b = b, a
	}
	return Pair{A: a, B: b}
}

// Edge is one co-occurrence relation surviving the significance floor.
type Edge struct {
	Word1   string  `json:"word1"`
	Word2   string  `json:"word2"`
	Weight  float64 `json:"weight"`  // PMI-derived score
	Count   float64 `json:"count"`   // distance-weighted co-occurrence count
	Support int     `json:"support"` // number of records the pair appears in
}

// WindowCounter accumulates sliding-window co-occurrence counts with
// 1/distance weighting, restricted to an allowed vocabulary.
type WindowCounter struct {
	n          int                 // records processed
	df         map[string]int      // record frequency per token
	pairDocs   map[Pair]int        // records containing the pair within a window
	pairWeight map[Pair]float64    // sum of 1/distance over all window hits
	vocab      map[string]struct{} // allowed tokens; nil means unrestricted
	window     int
}

// NewWindowCounter creates a counter with the given window size. The
// vocabulary restricts counting to known terms; pass nil to count all.
func NewWindowCounter(window int, vocab map[string]struct{}) *WindowCounter {
	if window < 2 {
		window = 2
	}
	return &WindowCounter{
		df:         make(map[string]int),
		pairDocs:   make(map[Pair]int),
		pairWeight: make(map[Pair]float64),
		vocab:      vocab,
		window:     window,
	}
}

// AddSequence consumes one record's token sequence.
func (c *WindowCounter) AddSequence(tokens []string) {
	c.n++

	seen := make(map[string]struct{})
	for _, tok := range tokens {
		if !c.allowed(tok) {
			continue
		}
		if _, ok := seen[tok]; !ok {
			seen[tok] = struct{}{}
			c.df[tok]++
		}
	}

	// Window pass: each in-window pair contributes 1/distance to the
	// weight, but a pair counts toward pair support once per record.
	pairSeen := make(map[Pair]struct{})
	for i := 0; i < len(tokens); i++ {
		if !c.allowed(tokens[i]) {
			continue
		}
		for j := i + 1; j < len(tokens) && j <= i+c.window-1; j++ {
			if !c.allowed(tokens[j]) || tokens[j] == tokens[i] {
				continue
			}
			p := NewPair(tokens[i], tokens[j])
			c.pairWeight[p] += 1.0 / float64(j-i)
			if _, ok := pairSeen[p]; !ok {
				pairSeen[p] = struct{}{}
				c.pairDocs[p]++
			}
		}
	}
}

func (c *WindowCounter) allowed(tok string) bool {
	if tok == "" {
		return false
	}
	if c.vocab == nil {
		return true
	}
	_, ok := c.vocab[tok]
	return ok
}

// Records returns the number of sequences processed.
func (c *WindowCounter) Records() int { return c.n }

// DF returns the record frequency of a token.
func (c *WindowCounter) DF(tok string) int { return c.df[tok] }

// Edges computes PMI per pair and returns the edges whose PMI clears
// the threshold and whose record support clears minSupport, sorted by
// weight descending with lexicographic tie-breaks.
func (c *WindowCounter) Edges(calc *Calculator, pmiThreshold float64, minSupport int) []Edge {
	if c.n == 0 {
		return nil
	}
	var edges []Edge
	for p, docs := range c.pairDocs {
		if docs < minSupport {
			continue
		}
		weight := calc.PMI(float64(docs), float64(c.df[p.A]), float64(c.df[p.B]), float64(c.n))
		if weight < pmiThreshold {
			continue
		}
		edges = append(edges, Edge{
			Word1:   p.A,
			Word2:   p.B,
			Weight:  weight,
			Count:   c.pairWeight[p],
			Support: docs,
		})
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Weight != edges[j].Weight {
			return edges[i].Weight > edges[j].Weight
		}
		if edges[i].Word1 != edges[j].Word1 {
			return edges[i].Word1 < edges[j].Word1
		}
		return edges[i].Word2 < edges[j].Word2
	})
	return edges
}
