package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/cognicore/rulemine/internal/records"
	"github.com/cognicore/rulemine/pkg/rulemine"
	"github.com/cognicore/rulemine/pkg/rulemine/cache"
	"github.com/cognicore/rulemine/pkg/rulemine/config"
	"github.com/cognicore/rulemine/pkg/rulemine/preprocess"
	"github.com/cognicore/rulemine/pkg/rulemine/store"
	"github.com/cognicore/rulemine/pkg/rulemine/store/memstore"
	"github.com/cognicore/rulemine/pkg/rulemine/store/sqlite"
)

func main() {
	var (
		input     = flag.String("input", "", "Path to JSONL annotation export (required)")
		project   = flag.String("project", "default", "Project ID to analyze")
		dbPath    = flag.String("db", "", "Optional: SQLite rule store path (in-memory store if empty)")
		cfgPath   = flag.String("config", "", "Optional: analysis config YAML")
		stopPath  = flag.String("stopwords", "", "Optional: stopword list YAML")
		lexPath   = flag.String("lexicon", "", "Optional: entity lexicon YAML")
		op        = flag.String("op", "extract", "Operation: analyze, extract, validate, export, apply")
		format    = flag.String("format", "json", "Export format: json, csv, xlsx, pdf")
		outPath   = flag.String("out", "", "Optional: write export output to file instead of stdout")
		target    = flag.String("target", "", "Target project ID for apply")
		ruleTypes = flag.String("rule-types", "", "Optional: comma-separated rule types to generate")
		verbose   = flag.Bool("v", false, "Verbose logging")
	)
	flag.Parse()

	if *input == "" {
		log.Fatal("--input required")
	}

	ctx := context.Background()

	logger := zap.NewNop()
	if *verbose {
		var err error
		logger, err = zap.NewDevelopment()
		if err != nil {
			log.Fatalf("init logger: %v", err)
		}
	}
	defer logger.Sync()

	cfg := config.Default()
	if *cfgPath != "" {
		var err error
		cfg, err = config.Load(*cfgPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
	}

	source, err := records.NewFileSource(*input)
	if err != nil {
		log.Fatalf("load records: %v", err)
	}

	var st store.Store
	if *dbPath != "" {
		st, err = sqlite.Open(ctx, *dbPath)
		if err != nil {
			log.Fatalf("open store: %v", err)
		}
	} else {
		st = memstore.New()
	}

	engine, err := rulemine.New(rulemine.Options{
		Source:   source,
		Store:    st,
		Cache:    cache.NewLRU(64, cfg.CacheTTL),
		Pipeline: buildPipeline(*stopPath, *lexPath),
		Config:   cfg,
		Logger:   logger,
	})
	if err != nil {
		log.Fatalf("init engine: %v", err)
	}
	defer engine.Close()

	switch *op {
	case "analyze":
		report, err := engine.Analyze(ctx, *project)
		if err != nil {
			log.Fatalf("analyze: %v", err)
		}
		printJSON(report)
	case "extract":
		ruleSet, err := engine.ExtractRules(ctx, *project, parseRuleTypes(*ruleTypes))
		if err != nil {
			log.Fatalf("extract rules: %v", err)
		}
		printJSON(ruleSet)
	case "validate":
		if _, err := engine.ExtractRules(ctx, *project, parseRuleTypes(*ruleTypes)); err != nil {
			log.Fatalf("extract rules: %v", err)
		}
		results, err := engine.ValidateRules(ctx, *project)
		if err != nil {
			log.Fatalf("validate rules: %v", err)
		}
		printJSON(results)
	case "export":
		if _, err := engine.ExtractRules(ctx, *project, parseRuleTypes(*ruleTypes)); err != nil {
			log.Fatalf("extract rules: %v", err)
		}
		payload, err := engine.Export(ctx, *project, *format)
		if err != nil {
			log.Fatalf("export: %v", err)
		}
		if *outPath != "" {
			if err := os.WriteFile(*outPath, payload, 0o644); err != nil {
				log.Fatalf("write %s: %v", *outPath, err)
			}
		} else {
			os.Stdout.Write(payload)
		}
	case "apply":
		if *target == "" {
			log.Fatal("--target required for apply")
		}
		if _, err := engine.ExtractRules(ctx, *project, parseRuleTypes(*ruleTypes)); err != nil {
			log.Fatalf("extract rules: %v", err)
		}
		result, matches, err := engine.ApplyRules(ctx, *project, *target)
		if err != nil {
			log.Fatalf("apply rules: %v", err)
		}
		printJSON(struct {
			Result  any `json:"result"`
			Matches any `json:"matches"`
		}{result, matches})
	default:
		log.Fatalf("unknown op %q", *op)
	}
}

func buildPipeline(stopPath, lexPath string) *preprocess.Pipeline {
	stopwords := preprocess.DefaultStopwords()
	if stopPath != "" {
		sw, err := config.LoadStopwords(stopPath)
		if err != nil {
			log.Fatalf("load stopwords: %v", err)
		}
		stopwords = sw.Terms
	}

	var tagger *preprocess.EntityTagger
	if lexPath != "" {
		lex, err := config.LoadLexicon(lexPath)
		if err != nil {
			log.Fatalf("load lexicon: %v", err)
		}
		tagger = preprocess.NewEntityTagger(lex.Entities)
	}

	return preprocess.NewPipeline(preprocess.NewTokenizer(stopwords), tagger)
}

func parseRuleTypes(csv string) map[string]bool {
	if csv == "" {
		return nil
	}
	out := make(map[string]bool)
	for _, t := range strings.Split(csv, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			out[t] = true
		}
	}
	return out
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("marshal output: %v", err)
	}
	fmt.Println(string(out))
}
