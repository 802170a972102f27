// Package store defines persistence for business rules, their pattern
// lineage, validation results, and analysis run history.
package store

import (
	"context"
	"time"

	"github.com/cognicore/rulemine/pkg/rulemine/rules"
)

// Store is the engine's persistence interface.
type Store interface {
	Close() error

	// UpsertRule enforces the uniqueness invariant: at most one
	// active rule per (condition, consequent) within a project. A new
	// rule with strictly higher confidence deactivates the existing
	// one; otherwise the existing rule is kept and the incoming rule
	// is discarded. Returns the surviving rule.
	UpsertRule(ctx context.Context, projectID string, r rules.BusinessRule, lineage Lineage) (rules.BusinessRule, error)

	GetRule(ctx context.Context, ruleID string) (rules.BusinessRule, error)
	// ActiveRules returns active rules for a project in
	// rules.SortRules order.
	ActiveRules(ctx context.Context, projectID string) ([]rules.BusinessRule, error)
	// AllRules includes inactive rules, preserving the audit trail.
	AllRules(ctx context.Context, projectID string) ([]rules.BusinessRule, error)
	// DeactivateRule soft-deletes a rule. Never removes the row.
	DeactivateRule(ctx context.Context, ruleID string) error
	// SetValidation attaches a validation score to a rule and flips
	// IsActive when the rule fails the floor.
	SetValidation(ctx context.Context, ruleID string, score float64, active bool) error

	// Lineage returns the pattern lineage rows for a rule. Every
	// persisted rule has at least one.
	Lineage(ctx context.Context, ruleID string) ([]Lineage, error)

	// PutValidationResult records a validation run, superseding any
	// previous result for the rule.
	PutValidationResult(ctx context.Context, res rules.ValidationResult) error
	GetValidationResult(ctx context.Context, ruleID string) (rules.ValidationResult, error)

	// PutRun records an analysis run's outcome.
	PutRun(ctx context.Context, run Run) error
	GetRun(ctx context.Context, runID string) (Run, error)
}

// Lineage links a rule back to the pattern candidate it came from.
type Lineage struct {
	RuleID        string `json:"rule_id"`
	CandidateKind string `json:"candidate_kind"`
	Evidence      string `json:"evidence"` // JSON-encoded candidate evidence
}

// Run is one orchestrated analysis run.
type Run struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	Fingerprint string    `json:"fingerprint"`
	Status      string    `json:"status"` // pending, running, completed, partial, failed
	Warnings    []string  `json:"warnings"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}
