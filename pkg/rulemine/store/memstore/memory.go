// Package memstore is an in-memory store.Store for tests and the
// batch CLI.
package memstore

import (
	"context"
	"sync"

	"github.com/cognicore/rulemine/pkg/rulemine/internalerr"
	"github.com/cognicore/rulemine/pkg/rulemine/rules"
	"github.com/cognicore/rulemine/pkg/rulemine/store"
)

// Store is an in-memory implementation of store.Store.
type Store struct {
	mu          sync.RWMutex
	rules       map[string]rules.BusinessRule // by rule ID
	projectOf   map[string]string             // rule ID -> project
	lineage     map[string][]store.Lineage
	validations map[string]rules.ValidationResult
	runs        map[string]store.Run
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		rules:       make(map[string]rules.BusinessRule),
		projectOf:   make(map[string]string),
		lineage:     make(map[string][]store.Lineage),
		validations: make(map[string]rules.ValidationResult),
		runs:        make(map[string]store.Run),
	}
}

// Close implements store.Store.
func (s *Store) Close() error { return nil }

// UpsertRule implements the supersede-on-conflict invariant.
func (s *Store) UpsertRule(ctx context.Context, projectID string, r rules.BusinessRule, lin store.Lineage) (rules.BusinessRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, existing := range s.rules {
		if s.projectOf[id] != projectID || !existing.IsActive {
			continue
		}
		if existing.Condition != r.Condition || existing.Consequent != r.Consequent {
			continue
		}
		if r.Confidence > existing.Confidence {
			existing.IsActive = false
			s.rules[id] = existing
			break
		}
		// Existing rule wins; incoming rule is dropped, not stored.
		return existing, nil
	}

	s.rules[r.ID] = r
	s.projectOf[r.ID] = projectID
	lin.RuleID = r.ID
	s.lineage[r.ID] = append(s.lineage[r.ID], lin)
	return r, nil
}

// GetRule returns a rule by ID.
func (s *Store) GetRule(ctx context.Context, ruleID string) (rules.BusinessRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rules[ruleID]
	if !ok {
		return rules.BusinessRule{}, internalerr.ErrNotFound
	}
	return r, nil
}

// ActiveRules returns the active rules of a project, sorted.
func (s *Store) ActiveRules(ctx context.Context, projectID string) ([]rules.BusinessRule, error) {
	return s.list(projectID, true)
}

// AllRules returns every rule of a project, sorted.
func (s *Store) AllRules(ctx context.Context, projectID string) ([]rules.BusinessRule, error) {
	return s.list(projectID, false)
}

func (s *Store) list(projectID string, activeOnly bool) ([]rules.BusinessRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []rules.BusinessRule
	for id, r := range s.rules {
		if s.projectOf[id] != projectID {
			continue
		}
		if activeOnly && !r.IsActive {
			continue
		}
		out = append(out, r)
	}
	rules.SortRules(out)
	return out, nil
}

// DeactivateRule flips IsActive off.
func (s *Store) DeactivateRule(ctx context.Context, ruleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[ruleID]
	if !ok {
		return internalerr.ErrNotFound
	}
	r.IsActive = false
	s.rules[ruleID] = r
	return nil
}

// SetValidation attaches a validation score.
func (s *Store) SetValidation(ctx context.Context, ruleID string, score float64, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rules[ruleID]
	if !ok {
		return internalerr.ErrNotFound
	}
	r.ValidationScore = &score
	r.IsActive = active
	s.rules[ruleID] = r
	return nil
}

// Lineage returns a rule's lineage rows.
func (s *Store) Lineage(ctx context.Context, ruleID string) ([]store.Lineage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, ok := s.lineage[ruleID]
	if !ok {
		return nil, internalerr.ErrNotFound
	}
	out := make([]store.Lineage, len(rows))
	copy(out, rows)
	return out, nil
}

// PutValidationResult supersedes the previous result for the rule.
func (s *Store) PutValidationResult(ctx context.Context, res rules.ValidationResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.validations[res.RuleID] = res
	return nil
}

// GetValidationResult returns the latest validation for a rule.
func (s *Store) GetValidationResult(ctx context.Context, ruleID string) (rules.ValidationResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res, ok := s.validations[ruleID]
	if !ok {
		return rules.ValidationResult{}, internalerr.ErrNotFound
	}
	return res, nil
}

// PutRun stores a run record.
func (s *Store) PutRun(ctx context.Context, run store.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.ID] = run
	return nil
}

// GetRun returns a run by ID.
func (s *Store) GetRun(ctx context.Context, runID string) (store.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return store.Run{}, internalerr.ErrNotFound
	}
	return run, nil
}
