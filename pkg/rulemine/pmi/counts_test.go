package pmi

import (
	"reflect"
	"testing"
)

func TestNewPairCanonical(t *testing.T) {
	if p := NewPair("b", "a"); p.A != "a" || p.B != "b" {
		t.Errorf("pair not canonical: %+v", p)
	}
	if NewPair("a", "b") != NewPair("b", "a") {
		t.Error("pair ordering should not matter")
	}
}

func TestWindowCounterEdges(t *testing.T) {
	counter := NewWindowCounter(5, nil)

	// "crash" and "startup" always together; "other" alone.
	for i := 0; i < 5; i++ {
		counter.AddSequence([]string{"crash", "during", "startup"})
	}
	for i := 0; i < 5; i++ {
		counter.AddSequence([]string{"other", "tokens", "here"})
	}

	calc := NewCalculator(1.0)
	edges := counter.Edges(calc, 0.1, 3)
	if len(edges) == 0 {
		t.Fatal("expected at least one edge")
	}

	found := false
	for _, e := range edges {
		if e.Word1 == "crash" && e.Word2 == "startup" {
			found = true
			if e.Support != 5 {
				t.Errorf("support = %d, want 5", e.Support)
			}
			// Distance 2 within the window, one hit per record.
			if e.Count < 2.4 || e.Count > 2.6 {
				t.Errorf("weighted count = %f, want 2.5", e.Count)
			}
		}
	}
	if !found {
		t.Error("crash/startup edge missing")
	}
}

func TestWindowCounterMinSupport(t *testing.T) {
	counter := NewWindowCounter(5, nil)
	counter.AddSequence([]string{"a", "b"})
	counter.AddSequence([]string{"a", "b"})

	edges := counter.Edges(NewCalculator(1.0), -10, 3)
	if len(edges) != 0 {
		t.Errorf("pairs below min support should be dropped, got %d edges", len(edges))
	}
}

func TestWindowCounterVocabRestriction(t *testing.T) {
	vocab := map[string]struct{}{"a": {}, "b": {}}
	counter := NewWindowCounter(5, vocab)
	for i := 0; i < 3; i++ {
		counter.AddSequence([]string{"a", "junk", "b"})
	}

	edges := counter.Edges(NewCalculator(1.0), -10, 1)
	for _, e := range edges {
		if e.Word1 == "junk" || e.Word2 == "junk" {
			t.Errorf("out-of-vocab token leaked into edges: %+v", e)
		}
	}
	if counter.DF("junk") != 0 {
		t.Error("out-of-vocab token counted in DF")
	}
}

func TestWindowCounterDeterministic(t *testing.T) {
	build := func() []Edge {
		c := NewWindowCounter(5, nil)
		c.AddSequence([]string{"x", "y", "z", "x"})
		c.AddSequence([]string{"y", "z", "x"})
		c.AddSequence([]string{"z", "x", "y"})
		return c.Edges(NewCalculator(1.0), -10, 1)
	}

	if !reflect.DeepEqual(build(), build()) {
		t.Error("identical input should produce identical edge lists")
	}
}

func TestWindowRespected(t *testing.T) {
	counter := NewWindowCounter(2, nil)
	counter.AddSequence([]string{"a", "gap", "b"})
	counter.AddSequence([]string{"a", "gap", "b"})
	counter.AddSequence([]string{"a", "gap", "b"})

	edges := counter.Edges(NewCalculator(1.0), -10, 1)
	for _, e := range edges {
		if e.Word1 == "a" && e.Word2 == "b" {
			t.Error("a and b are outside the window, should not pair")
		}
	}
}
