package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cognicore/rulemine/pkg/rulemine/internalerr"
)

// AnalysisConfig holds every tunable the engine recognizes. It is
// constructed once per run and passed by value through the pipeline;
// components never read configuration from globals.
type AnalysisConfig struct {
	// MinConfidence filters which pattern candidates an analysis
	// report presents.
	MinConfidence float64 `yaml:"min_confidence"`
	// RuleMinConfidence is the rule generator's confidence gate. It
	// sits below MinConfidence so extraction can admit patterns the
	// report view leaves out.
	RuleMinConfidence float64 `yaml:"rule_min_confidence"`
	// MinSupport is the minimum record count for a candidate. A
	// candidate with support exactly equal to MinSupport is included.
	MinSupport int `yaml:"min_support"`
	// WindowSize is the co-occurrence window in tokens.
	WindowSize int `yaml:"window_size"`
	// SimilarityThreshold gates behavior-cluster similarity checks.
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	// ChunkSize bounds per-chunk memory and sets the cooperative
	// cancellation checkpoint interval.
	ChunkSize int `yaml:"chunk_size"`
	// CacheTTL is how long cached run results stay valid.
	CacheTTL time.Duration `yaml:"cache_ttl"`
	// KFolds is the number of validation folds.
	KFolds int `yaml:"k_folds"`

	// VocabCap bounds the feature vocabulary (top terms by frequency).
	VocabCap int `yaml:"vocab_cap"`
	// MinDocFreq is the minimum document frequency for a vocabulary term.
	MinDocFreq int `yaml:"min_doc_freq"`
	// PMIThreshold is the floor for strong co-occurrence pairs.
	PMIThreshold float64 `yaml:"pmi_threshold"`
	// MaxTreeDepth bounds decision-tree rule extraction.
	MaxTreeDepth int `yaml:"max_tree_depth"`
	// ValidationFloor deactivates rules whose cross-validated F1 falls below it.
	ValidationFloor float64 `yaml:"validation_floor"`
	// AnalyzerTimeout bounds each analyzer; zero means no timeout.
	AnalyzerTimeout time.Duration `yaml:"analyzer_timeout"`
	// Seed fixes k-means initialization for reproducible clustering.
	Seed int64 `yaml:"seed"`
}

// Default returns the engine defaults.
func Default() AnalysisConfig {
	return AnalysisConfig{
		MinConfidence:       0.7,
		RuleMinConfidence:   0.6,
		MinSupport:          3,
		WindowSize:          5,
		SimilarityThreshold: 0.85,
		ChunkSize:           1000,
		CacheTTL:            time.Hour,
		KFolds:              5,
		VocabCap:            150,
		MinDocFreq:          3,
		PMIThreshold:        1.0,
		MaxTreeDepth:        5,
		ValidationFloor:     0.5,
		AnalyzerTimeout:     0,
		Seed:                42,
	}
}

// Validate checks ranges and returns ErrInvalidConfig on violation.
func (c AnalysisConfig) Validate() error {
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("%w: min_confidence %.3f outside [0,1]", internalerr.ErrInvalidConfig, c.MinConfidence)
	}
	if c.RuleMinConfidence < 0 || c.RuleMinConfidence > 1 {
		return fmt.Errorf("%w: rule_min_confidence %.3f outside [0,1]", internalerr.ErrInvalidConfig, c.RuleMinConfidence)
	}
	if c.MinSupport < 1 {
		return fmt.Errorf("%w: min_support %d below 1", internalerr.ErrInvalidConfig, c.MinSupport)
	}
	if c.WindowSize < 2 {
		return fmt.Errorf("%w: window_size %d below 2", internalerr.ErrInvalidConfig, c.WindowSize)
	}
	if c.ChunkSize < 1 {
		return fmt.Errorf("%w: chunk_size %d below 1", internalerr.ErrInvalidConfig, c.ChunkSize)
	}
	if c.KFolds < 2 {
		return fmt.Errorf("%w: k_folds %d below 2", internalerr.ErrInvalidConfig, c.KFolds)
	}
	if c.VocabCap < 1 {
		return fmt.Errorf("%w: vocab_cap %d below 1", internalerr.ErrInvalidConfig, c.VocabCap)
	}
	if c.MaxTreeDepth < 1 {
		return fmt.Errorf("%w: max_tree_depth %d below 1", internalerr.ErrInvalidConfig, c.MaxTreeDepth)
	}
	return nil
}

// Fingerprint renders the config into a stable string for cache keys.
func (c AnalysisConfig) Fingerprint() string {
	return fmt.Sprintf("mc=%.4f|rc=%.4f|ms=%d|w=%d|sim=%.4f|ch=%d|k=%d|v=%d|df=%d|pmi=%.4f|d=%d|vf=%.4f|seed=%d",
		c.MinConfidence, c.RuleMinConfidence, c.MinSupport, c.WindowSize, c.SimilarityThreshold,
		c.ChunkSize, c.KFolds, c.VocabCap, c.MinDocFreq, c.PMIThreshold,
		c.MaxTreeDepth, c.ValidationFloor, c.Seed)
}

// Load reads an AnalysisConfig from a YAML file, applying defaults for
// fields the file omits.
func Load(path string) (AnalysisConfig, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Stopwords represents a stopword list file.
type Stopwords struct {
	Terms []string `yaml:"terms"`
}

// LoadStopwords loads a stopword list from a YAML file.
func LoadStopwords(path string) (*Stopwords, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read stopwords %s: %w", path, err)
	}
	var sw Stopwords
	if err := yaml.Unmarshal(data, &sw); err != nil {
		return nil, fmt.Errorf("parse stopwords %s: %w", path, err)
	}
	return &sw, nil
}

// Lexicon maps entity types to keyword lists for the entity tagger.
type Lexicon struct {
	Entities map[string][]string `yaml:"entities"`
}

// LoadLexicon loads an entity lexicon from a YAML file.
func LoadLexicon(path string) (*Lexicon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lexicon %s: %w", path, err)
	}
	var lex Lexicon
	if err := yaml.Unmarshal(data, &lex); err != nil {
		return nil, fmt.Errorf("parse lexicon %s: %w", path, err)
	}
	return &lex, nil
}
