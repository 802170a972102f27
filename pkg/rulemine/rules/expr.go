package rules

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cognicore/rulemine/pkg/rulemine/feature"
)

// Condition expressions are conjunctions of terms joined by " AND ".
// Term forms:
//
//	contains=<token>        record's feature vector has the term
//	<field>=<value>         categorical equality (sentiment, rating, ...)
//	<field>!=<value>        categorical inequality (tree no-branches)
//	tfidf(<token>)><v>      numeric threshold on a term weight
//	tfidf(<token>)<=<v>
type term struct {
	field string
	op    string // "=", "!=", ">", "<="
	value string
	num   float64
}

// Expr is a parsed condition or consequent expression.
type Expr struct {
	terms []term
	raw   string
}

// ParseExpr parses an expression. An empty string yields an expression
// matching nothing.
func ParseExpr(raw string) (Expr, error) {
	e := Expr{raw: raw}
	if strings.TrimSpace(raw) == "" {
		return e, fmt.Errorf("empty expression")
	}
	for _, part := range strings.Split(raw, " AND ") {
		part = strings.TrimSpace(part)
		t, err := parseTerm(part)
		if err != nil {
			return e, err
		}
		e.terms = append(e.terms, t)
	}
	return e, nil
}

func parseTerm(s string) (term, error) {
	if strings.HasPrefix(s, "tfidf(") {
		rest := s[len("tfidf("):]
		close := strings.IndexByte(rest, ')')
		if close < 0 {
			return term{}, fmt.Errorf("malformed term %q", s)
		}
		tok := rest[:close]
		opval := rest[close+1:]
		var op, val string
		switch {
		case strings.HasPrefix(opval, "<="):
			op, val = "<=", opval[2:]
		case strings.HasPrefix(opval, ">"):
			op, val = ">", opval[1:]
		default:
			return term{}, fmt.Errorf("malformed operator in %q", s)
		}
		num, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return term{}, fmt.Errorf("malformed number in %q: %w", s, err)
		}
		return term{field: tok, op: op, num: num}, nil
	}

	if ne := strings.Index(s, "!="); ne > 0 {
		return term{field: s[:ne], op: "!=", value: s[ne+2:]}, nil
	}
	eq := strings.IndexByte(s, '=')
	if eq <= 0 {
		return term{}, fmt.Errorf("malformed term %q", s)
	}
	return term{field: s[:eq], op: "=", value: s[eq+1:]}, nil
}

// String returns the canonical text form.
func (e Expr) String() string { return e.raw }

// Matches evaluates the expression against one feature vector.
func (e Expr) Matches(v feature.Vector) bool {
	if len(e.terms) == 0 {
		return false
	}
	for _, t := range e.terms {
		if !t.matches(v) {
			return false
		}
	}
	return true
}

func (t term) matches(v feature.Vector) bool {
	switch t.op {
	case ">":
		return v.Terms[t.field] > t.num
	case "<=":
		return v.Terms[t.field] <= t.num
	case "!=":
		return v.Cats[t.field] != t.value
	}
	// Equality terms.
	switch t.field {
	case "contains":
		_, ok := v.Terms[t.value]
		return ok
	default:
		return v.Cats[t.field] == t.value
	}
}

// AndExpr joins two expression strings into a conjunction.
func AndExpr(a, b string) string {
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	return a + " AND " + b
}
