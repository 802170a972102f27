// Package rulemine is the business rule extraction engine facade. It
// orchestrates preprocessing, feature extraction, the pattern
// analyzers, rule generation, validation, export and application over
// an injected annotation source and rule store.
package rulemine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cognicore/rulemine/pkg/rulemine/analyze"
	"github.com/cognicore/rulemine/pkg/rulemine/annotation"
	"github.com/cognicore/rulemine/pkg/rulemine/cache"
	"github.com/cognicore/rulemine/pkg/rulemine/config"
	"github.com/cognicore/rulemine/pkg/rulemine/export"
	"github.com/cognicore/rulemine/pkg/rulemine/feature"
	"github.com/cognicore/rulemine/pkg/rulemine/internalerr"
	"github.com/cognicore/rulemine/pkg/rulemine/preprocess"
	"github.com/cognicore/rulemine/pkg/rulemine/rules"
	"github.com/cognicore/rulemine/pkg/rulemine/store"
)

// Run statuses.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusPartial   = "partial"
	StatusFailed    = "failed"
)

// Engine is the main facade.
type Engine struct {
	source   annotation.Source
	store    store.Store
	cache    cache.Cache
	pipeline *preprocess.Pipeline
	cfg      config.AnalysisConfig
	log      *zap.Logger
	wait     bool

	mu     sync.Mutex
	leases map[string]*sync.Mutex
}

// Options configures an Engine instance.
type Options struct {
	Source annotation.Source
	Store  store.Store
	// Cache is optional; nil disables result caching.
	Cache cache.Cache
	// Pipeline is optional; nil builds a default tokenizer pipeline
	// without an entity lexicon (degraded entity tagging).
	Pipeline *preprocess.Pipeline
	Config   config.AnalysisConfig
	Logger   *zap.Logger
	// WaitForRun makes a call against a project with a run already in
	// flight block until that run's lease frees, instead of failing
	// fast with ErrRunInProgress.
	WaitForRun bool
}

// New creates an Engine with the given dependencies.
func New(opts Options) (*Engine, error) {
	if opts.Source == nil {
		return nil, fmt.Errorf("%w: nil annotation source", internalerr.ErrInvalidConfig)
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("%w: nil store", internalerr.ErrInvalidConfig)
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}
	if opts.Cache == nil {
		opts.Cache = cache.Noop{}
	}
	if opts.Pipeline == nil {
		opts.Pipeline = preprocess.NewPipeline(nil, nil)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Engine{
		source:   opts.Source,
		store:    opts.Store,
		cache:    opts.Cache,
		pipeline: opts.Pipeline,
		cfg:      opts.Config,
		log:      opts.Logger,
		wait:     opts.WaitForRun,
		leases:   make(map[string]*sync.Mutex),
	}, nil
}

// Close shuts the engine down.
func (e *Engine) Close() error {
	return e.store.Close()
}

// AnalyzerStatus is one analyzer's outcome within a run.
type AnalyzerStatus struct {
	Status   string   `json:"status"` // completed, partial, failed
	Error    string   `json:"error,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// AnalysisReport is the aggregate result of one analysis run.
type AnalysisReport struct {
	RunID       string                    `json:"run_id"`
	ProjectID   string                    `json:"project_id"`
	Status      string                    `json:"status"`
	Fingerprint string                    `json:"fingerprint"`
	Records     int                       `json:"records"`
	Analyzers   map[string]AnalyzerStatus `json:"analyzers"`
	Candidates  []analyze.Candidate       `json:"candidates"`
	Warnings    []string                  `json:"warnings,omitempty"`

	Communities    [][]string                  `json:"communities,omitempty"`
	Trend          *analyze.TrendSummary       `json:"trend,omitempty"`
	Profiles       []analyze.BehaviorProfile   `json:"profiles,omitempty"`
	NearDuplicates []analyze.NearDuplicatePair `json:"near_duplicates,omitempty"`
	Agreement      *analyze.TaskAgreement      `json:"agreement,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	FromCache  bool      `json:"-"`
}

// lease returns the per-project mutex, creating it on first use.
func (e *Engine) lease(projectID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.leases[projectID]
	if !ok {
		l = &sync.Mutex{}
		e.leases[projectID] = l
	}
	return l
}

// fingerprint keys the cache on project, record snapshot, config and
// the analyzer selection, so a subset run never shadows a full run.
func (e *Engine) fingerprint(projectID string, records []annotation.Record, kinds []analyze.Kind) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s", projectID, annotation.SnapshotHash(records), e.cfg.Fingerprint())
	for _, k := range kinds {
		fmt.Fprintf(h, "|%s", k)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// selectKinds canonicalizes an analyzer selection: empty means all,
// duplicates collapse, order follows the enum.
func selectKinds(kinds []analyze.Kind) []analyze.Kind {
	if len(kinds) == 0 {
		return analyze.AllKinds()
	}
	want := make(map[analyze.Kind]bool, len(kinds))
	for _, k := range kinds {
		want[k] = true
	}
	var out []analyze.Kind
	for _, k := range analyze.AllKinds() {
		if want[k] {
			out = append(out, k)
		}
	}
	return out
}

// snapshot fetches a project's records and builds the immutable
// feature snapshot for one run.
func (e *Engine) snapshot(ctx context.Context, projectID string) ([]annotation.Record, *feature.Snapshot, error) {
	records, err := e.source.Records(ctx, projectID)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch records for %s: %w", projectID, err)
	}
	annotation.SortRecords(records)
	pre := e.pipeline.Process(records)
	snap, err := feature.NewExtractor(e.cfg).Extract(ctx, records, pre)
	if err != nil {
		return nil, nil, err
	}
	return records, snap, nil
}

// Analyze runs the analyzers over the project's current records. With
// no kinds given every analyzer runs; otherwise only the named subset.
// One analyzer failing never aborts the others; its failure is recorded
// in the per-analyzer status map. At most one analysis runs per project
// at a time; a concurrent call fails fast with ErrRunInProgress, or
// blocks until the lease frees when the engine was built with
// Options.WaitForRun.
//
// The returned report presents candidates at the MinConfidence
// threshold; rule extraction reads the full candidate set with the
// generator's own lower gate.
func (e *Engine) Analyze(ctx context.Context, projectID string, kinds ...analyze.Kind) (*AnalysisReport, error) {
	report, err := e.analyzeFull(ctx, projectID, kinds...)
	if err != nil {
		return nil, err
	}
	var kept []analyze.Candidate
	for _, c := range report.Candidates {
		if c.Confidence >= e.cfg.MinConfidence {
			kept = append(kept, c)
		}
	}
	report.Candidates = kept
	return report, nil
}

// analyzeFull is Analyze without the report-level confidence filter.
// The cache always holds the unfiltered report.
func (e *Engine) analyzeFull(ctx context.Context, projectID string, kinds ...analyze.Kind) (*AnalysisReport, error) {
	l := e.lease(projectID)
	if e.wait {
		l.Lock()
	} else if !l.TryLock() {
		return nil, fmt.Errorf("project %s: %w", projectID, internalerr.ErrRunInProgress)
	}
	defer l.Unlock()

	started := time.Now().UTC()
	runID := uuid.NewString()
	log := e.log.With(zap.String("project_id", projectID), zap.String("run_id", runID))

	records, snap, err := e.snapshot(ctx, projectID)
	if err != nil {
		return nil, err
	}

	selected := selectKinds(kinds)
	fp := e.fingerprint(projectID, records, selected)
	if payload, ok := e.cache.Get(fp); ok {
		var cached AnalysisReport
		if err := json.Unmarshal(payload, &cached); err == nil {
			cached.FromCache = true
			log.Info("analysis served from cache", zap.String("fingerprint", fp))
			return &cached, nil
		}
		// A corrupt cache entry is ignored, never fatal.
	}

	report := &AnalysisReport{
		RunID:       runID,
		ProjectID:   projectID,
		Status:      StatusRunning,
		Fingerprint: fp,
		Records:     len(records),
		Analyzers:   make(map[string]AnalyzerStatus, len(selected)),
		StartedAt:   started,
	}
	if snap.Degraded {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("entity tagging %v: no lexicon configured, heuristic tokens only", internalerr.ErrDegraded))
	}
	log.Info("analysis run started", zap.Int("records", len(records)))

	type result struct {
		kind analyze.Kind
		out  analyze.Output
		err  error
	}
	results := make([]result, len(selected))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, kind := range selected {
		i, kind := i, kind
		g.Go(func() error {
			actx := gctx
			cancel := context.CancelFunc(func() {})
			if e.cfg.AnalyzerTimeout > 0 {
				actx, cancel = context.WithTimeout(gctx, e.cfg.AnalyzerTimeout)
			}
			defer cancel()
			out, err := analyze.ForKind(kind).Run(actx, snap, e.cfg)
			results[i] = result{kind: kind, out: out, err: err}
			// Analyzer failures are isolated, never propagated to the group.
			return nil
		})
	}
	g.Wait()

	failed := 0
	partial := 0
	for _, res := range results {
		name := res.kind.String()
		st := AnalyzerStatus{Status: StatusCompleted, Warnings: res.out.Warnings}
		switch {
		case res.err != nil:
			st.Status = StatusFailed
			st.Error = res.err.Error()
			failed++
			log.Warn("analyzer failed", zap.String("analyzer", name), zap.Error(res.err))
		case res.out.Partial:
			st.Status = StatusPartial
			partial++
			log.Warn("analyzer returned partial results", zap.String("analyzer", name))
		}
		report.Analyzers[name] = st
		report.Candidates = append(report.Candidates, res.out.Candidates...)
		if len(res.out.Communities) > 0 {
			report.Communities = res.out.Communities
		}
		if res.out.Trend != nil {
			report.Trend = res.out.Trend
		}
		if len(res.out.Profiles) > 0 {
			report.Profiles = res.out.Profiles
		}
		if len(res.out.NearDuplicates) > 0 {
			report.NearDuplicates = res.out.NearDuplicates
		}
		if res.out.Agreement != nil {
			report.Agreement = res.out.Agreement
		}
	}

	switch {
	case failed == len(results):
		report.Status = StatusFailed
	case failed > 0 || partial > 0:
		report.Status = StatusPartial
	default:
		report.Status = StatusCompleted
	}
	report.FinishedAt = time.Now().UTC()

	run := store.Run{
		ID:          runID,
		ProjectID:   projectID,
		Fingerprint: fp,
		Status:      report.Status,
		Warnings:    report.Warnings,
		StartedAt:   report.StartedAt,
		FinishedAt:  report.FinishedAt,
	}
	if err := e.store.PutRun(ctx, run); err != nil {
		return nil, fmt.Errorf("record run: %w", err)
	}

	if report.Status == StatusCompleted {
		if payload, err := json.Marshal(report); err == nil {
			e.cache.Put(fp, payload)
		}
	}
	log.Info("analysis run finished",
		zap.String("status", report.Status),
		zap.Int("candidates", len(report.Candidates)))
	return report, nil
}

// ExtractRules runs a full analysis and compiles the surviving
// candidates, mined associations, and decision-tree leaves into
// persisted business rules. ruleTypes nil means every type; otherwise
// only the named types are generated. The returned set reflects what
// the store kept after conflict resolution.
func (e *Engine) ExtractRules(ctx context.Context, projectID string, ruleTypes map[string]bool) (rules.RuleSet, error) {
	report, err := e.analyzeFull(ctx, projectID)
	if err != nil {
		return rules.RuleSet{}, err
	}
	if report.Status == StatusFailed {
		return rules.RuleSet{}, fmt.Errorf("analysis failed for %s: %w", projectID, internalerr.ErrInsufficientData)
	}

	_, snap, err := e.snapshot(ctx, projectID)
	if err != nil {
		return rules.RuleSet{}, err
	}

	// Re-extraction over an unchanged snapshot produces rules with
	// identical (condition, consequent, confidence); the store keeps
	// the existing rule on ties, so repeated extraction is idempotent.
	createdAt := report.StartedAt.Truncate(time.Second)
	gen := rules.NewGenerator(e.cfg)
	batch, dropped := gen.Generate(snap, report.Candidates, ruleTypes, createdAt)
	if dropped > 0 {
		e.log.Info("conflicting rules dropped",
			zap.String("project_id", projectID), zap.Int("dropped", dropped))
	}

	evidence := indexEvidence(report.Candidates)
	for _, r := range batch {
		lin := store.Lineage{CandidateKind: r.RuleType}
		if ev, ok := evidence[r.Condition+"\x00"+r.Consequent]; ok {
			lin.Evidence = ev
		}
		if _, err := e.store.UpsertRule(ctx, projectID, r, lin); err != nil {
			return rules.RuleSet{}, fmt.Errorf("persist rule %s: %w", r.ID, err)
		}
	}

	active, err := e.store.ActiveRules(ctx, projectID)
	if err != nil {
		return rules.RuleSet{}, err
	}
	return rules.RuleSet{
		ProjectID:    projectID,
		Rules:        active,
		TotalRecords: len(snap.Records),
	}, nil
}

func indexEvidence(candidates []analyze.Candidate) map[string]string {
	out := make(map[string]string, len(candidates))
	for _, c := range candidates {
		if len(c.Evidence) == 0 {
			continue
		}
		payload, err := json.Marshal(c.Evidence)
		if err != nil {
			continue
		}
		out[c.Condition+"\x00"+c.Consequent] = string(payload)
	}
	return out
}

// ValidateRules cross-validates the project's active rules against its
// current records. With no ruleIDs given every active rule is scored;
// otherwise only the named rules, and naming an inactive or unknown
// rule is an error. Rules falling below the F1 floor are deactivated,
// not deleted. Each result supersedes the rule's previous one.
func (e *Engine) ValidateRules(ctx context.Context, projectID string, ruleIDs ...string) ([]rules.ValidationResult, error) {
	active, err := e.store.ActiveRules(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if len(ruleIDs) > 0 {
		byID := make(map[string]rules.BusinessRule, len(active))
		for _, r := range active {
			byID[r.ID] = r
		}
		picked := make([]rules.BusinessRule, 0, len(ruleIDs))
		for _, id := range ruleIDs {
			r, ok := byID[id]
			if !ok {
				return nil, fmt.Errorf("rule %s is not an active rule of %s: %w", id, projectID, internalerr.ErrNotFound)
			}
			picked = append(picked, r)
		}
		active = picked
	}
	if len(active) == 0 {
		return nil, fmt.Errorf("project %s has no active rules: %w", projectID, internalerr.ErrNotFound)
	}

	_, snap, err := e.snapshot(ctx, projectID)
	if err != nil {
		return nil, err
	}

	validator := rules.NewValidator(e.cfg)
	now := time.Now().UTC()
	var results []rules.ValidationResult
	for _, r := range active {
		res, passed, err := validator.Validate(r, snap.Vectors, now)
		if err != nil {
			e.log.Warn("rule validation skipped",
				zap.String("rule_id", r.ID), zap.Error(err))
			continue
		}
		if err := e.store.PutValidationResult(ctx, res); err != nil {
			return nil, err
		}
		if err := e.store.SetValidation(ctx, r.ID, res.F1, passed); err != nil {
			return nil, err
		}
		if !passed {
			e.log.Info("rule deactivated by validation",
				zap.String("rule_id", r.ID), zap.Float64("f1", res.F1))
		}
		results = append(results, res)
	}
	return results, nil
}

// Export renders the project's active rules in the requested format.
func (e *Engine) Export(ctx context.Context, projectID, format string) ([]byte, error) {
	active, err := e.store.ActiveRules(ctx, projectID)
	if err != nil {
		return nil, err
	}
	rs := rules.RuleSet{ProjectID: projectID, Rules: active}
	return export.Marshal(rs, format)
}

// ImportRules loads a JSON rule set previously produced by Export into
// the project, subject to the usual conflict resolution. Returns how
// many rules survived as active.
func (e *Engine) ImportRules(ctx context.Context, projectID string, data []byte) (int, error) {
	rs, err := export.UnmarshalJSON(data)
	if err != nil {
		return 0, err
	}
	imported := 0
	for _, r := range rs.Rules {
		if r.ID == "" {
			r.ID = rules.NewRuleID(r.CreatedAt, r.Condition, r.Consequent, r.RuleType)
		}
		kept, err := e.store.UpsertRule(ctx, projectID, r, store.Lineage{CandidateKind: "imported"})
		if err != nil {
			return imported, fmt.Errorf("import rule %s: %w", r.ID, err)
		}
		if kept.ID == r.ID {
			imported++
		}
	}
	e.log.Info("rules imported",
		zap.String("project_id", projectID),
		zap.Int("offered", len(rs.Rules)), zap.Int("kept", imported))
	return imported, nil
}

// ApplyRules evaluates the source project's active rules against the
// target project's current records.
func (e *Engine) ApplyRules(ctx context.Context, sourceProjectID, targetProjectID string) (rules.ApplyResult, []rules.RuleMatch, error) {
	active, err := e.store.ActiveRules(ctx, sourceProjectID)
	if err != nil {
		return rules.ApplyResult{}, nil, err
	}
	_, snap, err := e.snapshot(ctx, targetProjectID)
	if err != nil {
		return rules.ApplyResult{}, nil, err
	}
	return rules.Apply(active, snap.Vectors)
}

// DeactivateRule soft-deletes a rule by ID.
func (e *Engine) DeactivateRule(ctx context.Context, ruleID string) error {
	err := e.store.DeactivateRule(ctx, ruleID)
	if errors.Is(err, internalerr.ErrNotFound) {
		return fmt.Errorf("rule %s: %w", ruleID, internalerr.ErrNotFound)
	}
	return err
}

// Rule returns one rule with its lineage.
func (e *Engine) Rule(ctx context.Context, ruleID string) (rules.BusinessRule, []store.Lineage, error) {
	r, err := e.store.GetRule(ctx, ruleID)
	if err != nil {
		return rules.BusinessRule{}, nil, err
	}
	lin, err := e.store.Lineage(ctx, ruleID)
	if err != nil && !errors.Is(err, internalerr.ErrNotFound) {
		return rules.BusinessRule{}, nil, err
	}
	return r, lin, nil
}

// Run returns a recorded analysis run.
func (e *Engine) Run(ctx context.Context, runID string) (store.Run, error) {
	return e.store.GetRun(ctx, runID)
}
