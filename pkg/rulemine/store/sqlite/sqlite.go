// Package sqlite implements store.Store on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cognicore/rulemine/pkg/rulemine/internalerr"
	"github.com/cognicore/rulemine/pkg/rulemine/rules"
	"github.com/cognicore/rulemine/pkg/rulemine/store"
)

// sqliteStore implements the Store interface using SQLite
type sqliteStore struct {
	db *sql.DB
}

// Open opens a SQLite database with WAL mode enabled and initializes
// the schema.
func Open(ctx context.Context, path string) (store.Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, err
	}
	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &sqliteStore{db: db}, nil
}

// Close closes the database connection
func (s *sqliteStore) Close() error {
	return s.db.Close()
}

func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS rules (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL,
	condition TEXT NOT NULL,
	consequent TEXT NOT NULL,
	support INTEGER NOT NULL,
	confidence REAL NOT NULL,
	lift REAL NOT NULL,
	lift_undefined INTEGER NOT NULL DEFAULT 0,
	rule_type TEXT NOT NULL,
	is_active INTEGER NOT NULL DEFAULT 1,
	validation_score REAL,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_rules_project ON rules(project_id, is_active);

CREATE TABLE IF NOT EXISTS rule_lineage (
	rule_id TEXT NOT NULL,
	candidate_kind TEXT NOT NULL,
	evidence TEXT,
	FOREIGN KEY(rule_id) REFERENCES rules(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS rule_validations (
	rule_id TEXT PRIMARY KEY,
	precision REAL NOT NULL,
	recall REAL NOT NULL,
	f1 REAL NOT NULL,
	support INTEGER NOT NULL,
	validated_at TEXT NOT NULL,
	FOREIGN KEY(rule_id) REFERENCES rules(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS analysis_runs (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL,
	fingerprint TEXT NOT NULL,
	status TEXT NOT NULL,
	warnings TEXT,
	started_at TEXT NOT NULL,
	finished_at TEXT NOT NULL
);
`
	_, err := db.ExecContext(ctx, schema)
	return err
}

// UpsertRule enforces one active rule per (condition, consequent):
// strictly higher confidence supersedes, anything else is discarded.
func (s *sqliteStore) UpsertRule(ctx context.Context, projectID string, r rules.BusinessRule, lin store.Lineage) (rules.BusinessRule, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return rules.BusinessRule{}, err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT id, support, confidence, lift, lift_undefined, rule_type, validation_score, created_at
		 FROM rules WHERE project_id=? AND condition=? AND consequent=? AND is_active=1`,
		projectID, r.Condition, r.Consequent)
	var existing rules.BusinessRule
	var createdAt string
	var valScore sql.NullFloat64
	err = row.Scan(&existing.ID, &existing.Support, &existing.Confidence, &existing.Lift,
		&existing.LiftUndefined, &existing.RuleType, &valScore, &createdAt)
	switch {
	case err == nil:
		if r.Confidence <= existing.Confidence {
			existing.Condition = r.Condition
			existing.Consequent = r.Consequent
			existing.IsActive = true
			if valScore.Valid {
				existing.ValidationScore = &valScore.Float64
			}
			existing.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
			return existing, tx.Commit()
		}
		if _, err := tx.ExecContext(ctx, `UPDATE rules SET is_active=0 WHERE id=?`, existing.ID); err != nil {
			return rules.BusinessRule{}, err
		}
	case errors.Is(err, sql.ErrNoRows):
		// no conflict
	default:
		return rules.BusinessRule{}, err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO rules
		 (id, project_id, condition, consequent, support, confidence, lift, lift_undefined, rule_type, is_active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?)`,
		r.ID, projectID, r.Condition, r.Consequent, r.Support, r.Confidence, r.Lift,
		boolToInt(r.LiftUndefined), r.RuleType, r.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return rules.BusinessRule{}, err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO rule_lineage (rule_id, candidate_kind, evidence) VALUES (?, ?, ?)`,
		r.ID, lin.CandidateKind, lin.Evidence)
	if err != nil {
		return rules.BusinessRule{}, err
	}
	return r, tx.Commit()
}

// GetRule returns a rule by ID.
func (s *sqliteStore) GetRule(ctx context.Context, ruleID string) (rules.BusinessRule, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, condition, consequent, support, confidence, lift, lift_undefined, rule_type, is_active, validation_score, created_at
		 FROM rules WHERE id=?`, ruleID)
	r, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return rules.BusinessRule{}, internalerr.ErrNotFound
	}
	return r, err
}

// ActiveRules returns active rules for a project, sorted.
func (s *sqliteStore) ActiveRules(ctx context.Context, projectID string) ([]rules.BusinessRule, error) {
	return s.listRules(ctx, projectID, true)
}

// AllRules returns every rule for a project, sorted.
func (s *sqliteStore) AllRules(ctx context.Context, projectID string) ([]rules.BusinessRule, error) {
	return s.listRules(ctx, projectID, false)
}

func (s *sqliteStore) listRules(ctx context.Context, projectID string, activeOnly bool) ([]rules.BusinessRule, error) {
	q := `SELECT id, condition, consequent, support, confidence, lift, lift_undefined, rule_type, is_active, validation_score, created_at
	      FROM rules WHERE project_id=?`
	if activeOnly {
		q += ` AND is_active=1`
	}
	rows, err := s.db.QueryContext(ctx, q, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []rules.BusinessRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rules.SortRules(out)
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRule(row scanner) (rules.BusinessRule, error) {
	var r rules.BusinessRule
	var liftUndef, active int
	var valScore sql.NullFloat64
	var createdAt string
	err := row.Scan(&r.ID, &r.Condition, &r.Consequent, &r.Support, &r.Confidence,
		&r.Lift, &liftUndef, &r.RuleType, &active, &valScore, &createdAt)
	if err != nil {
		return r, err
	}
	r.LiftUndefined = liftUndef != 0
	r.IsActive = active != 0
	if valScore.Valid {
		r.ValidationScore = &valScore.Float64
	}
	r.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return r, nil
}

// DeactivateRule soft-deletes a rule.
func (s *sqliteStore) DeactivateRule(ctx context.Context, ruleID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE rules SET is_active=0 WHERE id=?`, ruleID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return internalerr.ErrNotFound
	}
	return nil
}

// SetValidation attaches a validation score and activity flag.
func (s *sqliteStore) SetValidation(ctx context.Context, ruleID string, score float64, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE rules SET validation_score=?, is_active=? WHERE id=?`,
		score, boolToInt(active), ruleID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return internalerr.ErrNotFound
	}
	return nil
}

// Lineage returns the lineage rows for a rule.
func (s *sqliteStore) Lineage(ctx context.Context, ruleID string) ([]store.Lineage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT rule_id, candidate_kind, evidence FROM rule_lineage WHERE rule_id=?`, ruleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Lineage
	for rows.Next() {
		var lin store.Lineage
		var evidence sql.NullString
		if err := rows.Scan(&lin.RuleID, &lin.CandidateKind, &evidence); err != nil {
			return nil, err
		}
		lin.Evidence = evidence.String
		out = append(out, lin)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, internalerr.ErrNotFound
	}
	return out, nil
}

// PutValidationResult supersedes the previous result for the rule.
func (s *sqliteStore) PutValidationResult(ctx context.Context, res rules.ValidationResult) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rule_validations (rule_id, precision, recall, f1, support, validated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(rule_id) DO UPDATE SET
		   precision=excluded.precision, recall=excluded.recall, f1=excluded.f1,
		   support=excluded.support, validated_at=excluded.validated_at`,
		res.RuleID, res.Precision, res.Recall, res.F1, res.Support,
		res.Timestamp.UTC().Format(time.RFC3339Nano))
	return err
}

// GetValidationResult returns the latest validation for a rule.
func (s *sqliteStore) GetValidationResult(ctx context.Context, ruleID string) (rules.ValidationResult, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT rule_id, precision, recall, f1, support, validated_at FROM rule_validations WHERE rule_id=?`, ruleID)
	var res rules.ValidationResult
	var ts string
	err := row.Scan(&res.RuleID, &res.Precision, &res.Recall, &res.F1, &res.Support, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return res, internalerr.ErrNotFound
	}
	if err != nil {
		return res, err
	}
	res.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
	return res, nil
}

// PutRun stores one analysis run record.
func (s *sqliteStore) PutRun(ctx context.Context, run store.Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO analysis_runs (id, project_id, fingerprint, status, warnings, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.ProjectID, run.Fingerprint, run.Status, strings.Join(run.Warnings, "\n"),
		run.StartedAt.UTC().Format(time.RFC3339Nano), run.FinishedAt.UTC().Format(time.RFC3339Nano))
	return err
}

// GetRun returns a run by ID.
func (s *sqliteStore) GetRun(ctx context.Context, runID string) (store.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, project_id, fingerprint, status, warnings, started_at, finished_at FROM analysis_runs WHERE id=?`, runID)
	var run store.Run
	var warnings, started, finished string
	err := row.Scan(&run.ID, &run.ProjectID, &run.Fingerprint, &run.Status, &warnings, &started, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return run, internalerr.ErrNotFound
	}
	if err != nil {
		return run, err
	}
	if warnings != "" {
		run.Warnings = strings.Split(warnings, "\n")
	}
	run.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
	run.FinishedAt, _ = time.Parse(time.RFC3339Nano, finished)
	return run, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
