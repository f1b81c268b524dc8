package triage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/bkyoung/build-sensor/internal/analyzer/source"
	"github.com/bkyoung/build-sensor/internal/determinism"
	"github.com/bkyoung/build-sensor/internal/domain"
	"github.com/bkyoung/build-sensor/internal/evidence"
	"github.com/bkyoung/build-sensor/internal/store"
)

// SourceAnalyzer diffs two source trees into hunks and tagged features.
type SourceAnalyzer interface {
	Diff(ctx context.Context, from, to source.Tree) (source.Result, error)
}

// BinaryExtractor builds the feature set for one binary artifact.
type BinaryExtractor interface {
	Extract(ctx context.Context, buildID, component, path string) (domain.BinaryFeatureSet, error)
}

// BinaryMatcher pairs symbols between the two builds' feature sets.
type BinaryMatcher interface {
	Match(from, to domain.BinaryFeatureSet) []domain.BinaryDiffPair
}

// TemplateExtractor normalizes a log stream into deduplicated templates.
type TemplateExtractor interface {
	Extract(ctx context.Context, r io.Reader) ([]domain.LogTemplate, []domain.Notice, error)
}

// Correlator links log templates to strings found in the new binary.
type Correlator interface {
	Correlate(templates []domain.LogTemplate, set domain.BinaryFeatureSet) []domain.LogToBinaryMatch
}

// Assembler merges component outputs into a validated evidence bundle.
type Assembler interface {
	Assemble(in evidence.Input) (domain.EvidenceBundle, error)
}

// Scorer turns a bundle into a cited score result.
type Scorer interface {
	Score(bundle domain.EvidenceBundle) domain.ScoreResult
	Version() string
}

// Redactor scrubs secrets from raw log lines before they enter the pipeline.
type Redactor interface {
	Redact(input string) string
}

// Store defines the outbound port for persisting runs and scored diffs.
type Store interface {
	CreateRun(ctx context.Context, run store.Run) error
	SaveDiff(ctx context.Context, record store.DiffRecord) error
}

// ReportArtifact carries everything a report writer needs for one diff.
type ReportArtifact struct {
	OutputDir string
	Bundle    domain.EvidenceBundle
	Score     domain.ScoreResult
}

// JSONWriter persists the bundle and score to disk as JSON.
type JSONWriter interface {
	Write(ctx context.Context, artifact ReportArtifact) (string, error)
}

// MarkdownWriter renders an analyst-facing report to disk.
type MarkdownWriter interface {
	Write(ctx context.Context, artifact ReportArtifact) (string, error)
}

// DiffIDFunc derives the deterministic diff id for a build pair.
type DiffIDFunc func(buildFrom, buildTo, component string) string

// OrchestratorDeps captures the dependencies for the orchestrator.
type OrchestratorDeps struct {
	Source     SourceAnalyzer
	Binary     BinaryExtractor
	Matcher    BinaryMatcher
	Templates  TemplateExtractor
	Correlator Correlator
	Assembler  Assembler
	Scorer     Scorer
	DiffID     DiffIDFunc

	JSON     JSONWriter
	Markdown MarkdownWriter

	Redactor Redactor // Optional: log lines pass through unchanged without it
	Store    Store    // Optional: persistence for the triage queue
	Logger   Logger   // Optional: structured logging for warnings and info
}

// Request represents an inbound diff request. Source input is required,
// either as two trees or as pre-computed hunks; binary paths and the log
// stream are optional, and an absent artifact degrades that stage to empty
// output rather than failing the run.
type Request struct {
	BuildFrom string
	BuildTo   string
	Component string

	SourceFrom source.Tree
	SourceTo   source.Tree

	// Hunks carries externally ingested diff hunks (e.g. from a patch
	// file) when full trees are unavailable. Ignored if trees are set.
	Hunks []domain.DiffHunk

	BinaryFromPath string
	BinaryToPath   string

	LogStream io.Reader

	OutputDir  string
	ConfigHash string
}

// Result captures the orchestrator outcome.
type Result struct {
	RunID        string
	Bundle       domain.EvidenceBundle
	Score        domain.ScoreResult
	JSONPath     string
	MarkdownPath string
}

// Orchestrator implements the two-phase diff pipeline: concurrent
// per-artifact extraction, then sequential correlation, assembly, scoring,
// and reporting.
type Orchestrator struct {
	deps OrchestratorDeps
}

// NewOrchestrator wires the orchestrator dependencies.
func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	return &Orchestrator{deps: deps}
}

func (o *Orchestrator) validateDependencies() error {
	if o.deps.Source == nil {
		return errors.New("source analyzer is required")
	}
	if o.deps.Binary == nil {
		return errors.New("binary extractor is required")
	}
	if o.deps.Matcher == nil {
		return errors.New("binary matcher is required")
	}
	if o.deps.Templates == nil {
		return errors.New("template extractor is required")
	}
	if o.deps.Correlator == nil {
		return errors.New("correlator is required")
	}
	if o.deps.Assembler == nil {
		return errors.New("assembler is required")
	}
	if o.deps.Scorer == nil {
		return errors.New("scorer is required")
	}
	if o.deps.DiffID == nil {
		return errors.New("diff id function is required")
	}
	if o.deps.JSON == nil {
		return errors.New("json writer is required")
	}
	if o.deps.Markdown == nil {
		return errors.New("markdown writer is required")
	}
	// Redactor, Store, and Logger are optional
	return nil
}

func validateRequest(req Request) error {
	if req.BuildFrom == "" || req.BuildTo == "" {
		return errors.New("both build labels are required")
	}
	if req.Component == "" {
		return errors.New("component is required")
	}
	if (req.SourceFrom == nil || req.SourceTo == nil) && req.Hunks == nil {
		return errors.New("source input is required: two trees or pre-computed hunks")
	}
	return nil
}

// extraction holds the phase-one outputs that phase two consumes.
type extraction struct {
	sourceDiff source.Result
	binFrom    domain.BinaryFeatureSet
	binTo      domain.BinaryFeatureSet
	templates  []domain.LogTemplate
	notices    []domain.Notice
}

// Run executes the full diff pipeline for one build pair.
func (o *Orchestrator) Run(ctx context.Context, req Request) (Result, error) {
	if err := o.validateDependencies(); err != nil {
		return Result{}, err
	}
	if err := validateRequest(req); err != nil {
		return Result{}, err
	}

	diffID := o.deps.DiffID(req.BuildFrom, req.BuildTo, req.Component)
	o.logInfo(ctx, "starting diff pipeline", map[string]interface{}{
		"diffID":    diffID,
		"buildFrom": req.BuildFrom,
		"buildTo":   req.BuildTo,
		"component": req.Component,
	})

	ext, err := o.extractAll(ctx, req)
	if err != nil {
		return Result{}, err
	}

	// Phase two is sequential: every step reads the full phase-one output.
	pairs := o.deps.Matcher.Match(ext.binFrom, ext.binTo)
	matches := o.deps.Correlator.Correlate(ext.templates, ext.binTo)

	bundle, err := o.deps.Assembler.Assemble(evidence.Input{
		DiffID:             diffID,
		BuildFrom:          req.BuildFrom,
		BuildTo:            req.BuildTo,
		Component:          req.Component,
		Hunks:              ext.sourceDiff.Hunks,
		SourceFeatures:     ext.sourceDiff.Features,
		BinaryFeaturesFrom: ext.binFrom,
		BinaryFeaturesTo:   ext.binTo,
		BinaryDiffPairs:    pairs,
		LogTemplates:       ext.templates,
		LogToBinaryMatches: matches,
		Notices:            ext.notices,
	})
	if err != nil {
		return Result{}, fmt.Errorf("bundle assembly failed: %w", err)
	}

	result := o.deps.Scorer.Score(bundle)
	if err := evidence.ValidateResult(bundle, result); err != nil {
		return Result{}, fmt.Errorf("score result cites unresolvable evidence: %w", err)
	}

	runID := o.persist(ctx, req, bundle, result)

	jsonPath, err := o.deps.JSON.Write(ctx, ReportArtifact{OutputDir: req.OutputDir, Bundle: bundle, Score: result})
	if err != nil {
		return Result{}, fmt.Errorf("json write failed: %w", err)
	}
	markdownPath, err := o.deps.Markdown.Write(ctx, ReportArtifact{OutputDir: req.OutputDir, Bundle: bundle, Score: result})
	if err != nil {
		return Result{}, fmt.Errorf("markdown write failed: %w", err)
	}

	o.logInfo(ctx, "diff pipeline complete", map[string]interface{}{
		"diffID":     diffID,
		"totalScore": result.TotalScore,
		"reasons":    len(result.Reasons),
	})

	return Result{
		RunID:        runID,
		Bundle:       bundle,
		Score:        result,
		JSONPath:     jsonPath,
		MarkdownPath: markdownPath,
	}, nil
}

// extractAll runs the per-artifact extractors concurrently. Extractors never
// share state; each writes its own slot and the first hard error wins.
func (o *Orchestrator) extractAll(ctx context.Context, req Request) (extraction, error) {
	var ext extraction
	var mu sync.Mutex
	var wg sync.WaitGroup
	errChan := make(chan error, 4)

	run := func(task func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := task(); err != nil {
				errChan <- err
			}
		}()
	}

	run(func() error {
		var diff source.Result
		if req.SourceFrom != nil && req.SourceTo != nil {
			var err error
			diff, err = o.deps.Source.Diff(ctx, req.SourceFrom, req.SourceTo)
			if err != nil {
				return fmt.Errorf("source diff failed: %w", err)
			}
		} else {
			diff = source.AnalyzeHunks(req.Hunks)
		}
		mu.Lock()
		ext.sourceDiff = diff
		ext.notices = append(ext.notices, diff.Notices...)
		mu.Unlock()
		return nil
	})

	run(func() error {
		set, err := o.extractBinary(ctx, req.BuildFrom, req.Component, req.BinaryFromPath)
		if err != nil {
			return err
		}
		mu.Lock()
		ext.binFrom = set
		mu.Unlock()
		return nil
	})

	run(func() error {
		set, err := o.extractBinary(ctx, req.BuildTo, req.Component, req.BinaryToPath)
		if err != nil {
			return err
		}
		mu.Lock()
		ext.binTo = set
		mu.Unlock()
		return nil
	})

	run(func() error {
		if req.LogStream == nil {
			return nil
		}
		stream, err := o.redactStream(req.LogStream)
		if err != nil {
			return fmt.Errorf("log redaction failed: %w", err)
		}
		templates, notices, err := o.deps.Templates.Extract(ctx, stream)
		if err != nil {
			return fmt.Errorf("log template extraction failed: %w", err)
		}
		mu.Lock()
		ext.templates = templates
		ext.notices = append(ext.notices, notices...)
		mu.Unlock()
		return nil
	})

	wg.Wait()
	close(errChan)
	if err := <-errChan; err != nil {
		return extraction{}, err
	}

	// Degraded stages already recorded themselves in the feature sets;
	// surface them as bundle notices too so the report shows them inline.
	for _, set := range []domain.BinaryFeatureSet{ext.binFrom, ext.binTo} {
		if set.Status != domain.ExtractionOK && set.Notice != "" {
			ext.notices = append(ext.notices, domain.Notice{
				Stage:   "binary_extraction",
				Subject: set.BuildID,
				Message: set.Notice,
			})
			o.logWarning(ctx, "binary extraction degraded", map[string]interface{}{
				"buildID": set.BuildID,
				"status":  string(set.Status),
				"notice":  set.Notice,
			})
		}
	}

	return ext, nil
}

// extractBinary handles the absent-artifact case: no path means an empty OK
// feature set, which downstream stages treat as "nothing to compare".
func (o *Orchestrator) extractBinary(ctx context.Context, buildID, component, path string) (domain.BinaryFeatureSet, error) {
	if path == "" {
		return domain.BinaryFeatureSet{BuildID: buildID, Component: component, Status: domain.ExtractionOK}, nil
	}
	set, err := o.deps.Binary.Extract(ctx, buildID, component, path)
	if err != nil {
		return domain.BinaryFeatureSet{}, fmt.Errorf("binary extraction failed for %s: %w", buildID, err)
	}
	return set, nil
}

// redactStream scrubs the log stream line by line before template
// extraction. Placeholders are stable, so redaction cannot perturb
// template ids between runs.
func (o *Orchestrator) redactStream(r io.Reader) (io.Reader, error) {
	if o.deps.Redactor == nil {
		return r, nil
	}

	var sb strings.Builder
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		sb.WriteString(o.deps.Redactor.Redact(scanner.Text()))
		sb.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return strings.NewReader(sb.String()), nil
}

// persist records the run and scored diff when a store is configured.
// Store failures never break the pipeline; the artifacts on disk remain
// the source of truth.
func (o *Orchestrator) persist(ctx context.Context, req Request, bundle domain.EvidenceBundle, result domain.ScoreResult) string {
	if o.deps.Store == nil {
		return ""
	}

	now := time.Now()
	runID := store.GenerateRunID(now)

	if err := o.deps.Store.CreateRun(ctx, store.Run{
		RunID:      runID,
		Timestamp:  now,
		BuildFrom:  req.BuildFrom,
		BuildTo:    req.BuildTo,
		Component:  req.Component,
		ConfigHash: req.ConfigHash,
		Seed:       int64(determinism.GenerateSeed(req.BuildFrom, req.BuildTo, req.Component)),
	}); err != nil {
		o.logWarning(ctx, "failed to create run record", map[string]interface{}{
			"runID": runID,
			"error": err.Error(),
		})
		return runID
	}

	bundleJSON, err := json.Marshal(bundle)
	if err != nil {
		o.logWarning(ctx, "failed to marshal bundle for persistence", map[string]interface{}{
			"diffID": bundle.DiffID,
			"error":  err.Error(),
		})
		return runID
	}
	scoreJSON, err := json.Marshal(result)
	if err != nil {
		o.logWarning(ctx, "failed to marshal score for persistence", map[string]interface{}{
			"diffID": bundle.DiffID,
			"error":  err.Error(),
		})
		return runID
	}

	if err := o.deps.Store.SaveDiff(ctx, store.DiffRecord{
		DiffID:         bundle.DiffID,
		RunID:          runID,
		BuildFrom:      bundle.BuildFrom,
		BuildTo:        bundle.BuildTo,
		Component:      bundle.Component,
		TotalScore:     result.TotalScore,
		RuleSetVersion: result.RuleSetVersion,
		TriageState:    store.TriagePending,
		BundleJSON:     bundleJSON,
		ScoreJSON:      scoreJSON,
		CreatedAt:      now,
	}); err != nil {
		o.logWarning(ctx, "failed to save diff record", map[string]interface{}{
			"diffID": bundle.DiffID,
			"error":  err.Error(),
		})
	}

	return runID
}

func (o *Orchestrator) logInfo(ctx context.Context, message string, fields map[string]interface{}) {
	if o.deps.Logger != nil {
		o.deps.Logger.LogInfo(ctx, message, fields)
	}
}

func (o *Orchestrator) logWarning(ctx context.Context, message string, fields map[string]interface{}) {
	if o.deps.Logger != nil {
		o.deps.Logger.LogWarning(ctx, message, fields)
	}
}
