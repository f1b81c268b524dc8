package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/bkyoung/build-sensor/internal/adapter/cli"
	gitadapter "github.com/bkyoung/build-sensor/internal/adapter/git"
	"github.com/bkyoung/build-sensor/internal/adapter/observability"
	"github.com/bkyoung/build-sensor/internal/adapter/output/json"
	"github.com/bkyoung/build-sensor/internal/adapter/output/markdown"
	"github.com/bkyoung/build-sensor/internal/adapter/store/sqlite"
	"github.com/bkyoung/build-sensor/internal/analyzer/bindiff"
	"github.com/bkyoung/build-sensor/internal/analyzer/binary"
	"github.com/bkyoung/build-sensor/internal/analyzer/logs"
	"github.com/bkyoung/build-sensor/internal/analyzer/source"
	"github.com/bkyoung/build-sensor/internal/config"
	"github.com/bkyoung/build-sensor/internal/determinism"
	"github.com/bkyoung/build-sensor/internal/evidence"
	"github.com/bkyoung/build-sensor/internal/redaction"
	"github.com/bkyoung/build-sensor/internal/scoring"
	"github.com/bkyoung/build-sensor/internal/store"
	"github.com/bkyoung/build-sensor/internal/usecase/triage"
	"github.com/bkyoung/build-sensor/internal/version"
)

func main() {
	if err := run(); err != nil {
		log.Println(err)
		os.Exit(1)
	}
}

func run() error {
	// Cancellable context with signal handling for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(config.LoaderOptions{
		ConfigPaths: defaultConfigPaths(),
		FileName:    "sensor",
		EnvPrefix:   "SENSOR",
	})
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}

	configHash, err := store.CalculateConfigHash(cfg)
	if err != nil {
		return fmt.Errorf("config hash failed: %w", err)
	}

	// Timestamp function for output file naming
	nowFunc := func() string {
		return time.Now().UTC().Format("20060102T150405Z")
	}

	var logger triage.Logger
	if cfg.Observability.Logging.Enabled {
		logger = observability.NewDefaultLogger(
			observability.ParseLevel(cfg.Observability.Logging.Level),
			observability.ParseFormat(cfg.Observability.Logging.Format),
		)
	}

	var redactor triage.Redactor
	if cfg.Redaction.Enabled {
		redactor = redaction.NewEngine()
	}

	var triageStore triage.Store
	var queueStore cli.QueueStore
	if cfg.Store.Enabled {
		storeDir := filepath.Dir(cfg.Store.Path)
		if err := os.MkdirAll(storeDir, 0o755); err != nil {
			log.Printf("warning: failed to create store directory: %v", err)
		} else {
			sqliteStore, err := sqlite.NewStore(cfg.Store.Path)
			if err != nil {
				log.Printf("warning: failed to initialize store: %v", err)
			} else {
				defer sqliteStore.Close()
				triageStore = sqliteStore
				queueStore = sqliteStore
			}
		}
	}

	var resolveRef cli.ResolveRef
	if cfg.Ingest.RepositoryDir != "" {
		engine := gitadapter.NewEngine(cfg.Ingest.RepositoryDir)
		resolveRef = func(ref string) (source.Tree, error) {
			return engine.TreeAt(ref)
		}
	}

	scorer := scoring.NewEngine(cfg.Scoring.Weights)

	orchestrator := triage.NewOrchestrator(triage.OrchestratorDeps{
		Source: source.NewAnalyzer(),
		Binary: binary.NewExtractor(binary.Options{
			MinStringLength: cfg.Extraction.Binary.MinStringLength,
			MaxStrings:      cfg.Extraction.Binary.MaxStrings,
		}),
		Matcher: bindiff.NewNameMatcher(),
		Templates: logs.NewTemplateExtractor(logs.Options{
			MaxTemplates:  cfg.Extraction.Logs.MaxTemplates,
			MaxLineLength: cfg.Extraction.Logs.MaxLineLength,
			MaxSamples:    cfg.Extraction.Logs.MaxSamples,
		}),
		Correlator: logs.NewCorrelator(),
		Assembler:  evidence.NewAssembler(),
		Scorer:     scorer,
		DiffID:     determinism.DiffID,
		JSON:       json.NewWriter(nowFunc),
		Markdown:   markdown.NewWriter(nowFunc),
		Redactor:   redactor,
		Store:      triageStore,
		Logger:     logger,
	})

	root := cli.NewRootCommand(cli.Dependencies{
		Runner:        orchestrator,
		Scorer:        scorer,
		Store:         queueStore,
		ResolveRef:    resolveRef,
		DefaultOutput: cfg.Output.Directory,
		ConfigHash:    configHash,
		Version:       version.Value(),
	})

	if err := root.ExecuteContext(ctx); err != nil {
		if errors.Is(err, cli.ErrVersionRequested) {
			return nil
		}
		return fmt.Errorf("command failed: %w", err)
	}
	return nil
}

func defaultConfigPaths() []string {
	paths := []string{"."}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "sensor"))
	}
	return paths
}
