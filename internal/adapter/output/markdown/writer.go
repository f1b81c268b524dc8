package markdown

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/bkyoung/build-sensor/internal/domain"
	"github.com/bkyoung/build-sensor/internal/usecase/triage"
)

type clock func() string

// Writer renders scored diffs into analyst-facing Markdown reports.
type Writer struct {
	now clock
}

// NewWriter constructs a Markdown writer with a timestamp supplier.
func NewWriter(now clock) *Writer {
	return &Writer{now: now}
}

// Write persists a Markdown report to disk.
func (w *Writer) Write(ctx context.Context, artifact triage.ReportArtifact) (string, error) {
	if err := os.MkdirAll(artifact.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	filename := fmt.Sprintf("%s_%s_%s.md",
		sanitise(artifact.Bundle.Component),
		sanitise(artifact.Bundle.DiffID),
		w.now(),
	)
	path := filepath.Join(artifact.OutputDir, filename)

	content := buildContent(artifact)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write markdown: %w", err)
	}

	return path, nil
}

func buildContent(artifact triage.ReportArtifact) string {
	bundle := artifact.Bundle
	score := artifact.Score

	var builder strings.Builder
	caser := cases.Title(language.English)

	builder.WriteString("# Build Diff Report\n\n")
	builder.WriteString(fmt.Sprintf("- Component: %s\n", bundle.Component))
	builder.WriteString(fmt.Sprintf("- Builds: %s -> %s\n", bundle.BuildFrom, bundle.BuildTo))
	builder.WriteString(fmt.Sprintf("- Diff: %s\n", bundle.DiffID))
	builder.WriteString(fmt.Sprintf("- Rule set: %s\n", score.RuleSetVersion))
	builder.WriteString(fmt.Sprintf("- Score: %.2f\n\n", score.TotalScore))

	if len(bundle.Notices) > 0 {
		builder.WriteString("## Notices\n\n")
		for _, notice := range bundle.Notices {
			builder.WriteString(fmt.Sprintf("- [%s] %s: %s\n", notice.Stage, notice.Subject, notice.Message))
		}
		builder.WriteString("\n")
	}

	if len(score.Reasons) == 0 {
		builder.WriteString("No scoring rule matched this diff.\n")
		return builder.String()
	}

	builder.WriteString("## Reasons\n\n")
	for _, reason := range score.Reasons {
		builder.WriteString(fmt.Sprintf("### %s (+%.2f)\n", reason.Text, reason.ScoreContribution))
		for _, ref := range reason.EvidenceRefs {
			// A reason citing evidence outside the bundle is a pipeline
			// defect; never render such a citation.
			if !bundle.Resolves(ref) {
				continue
			}
			builder.WriteString(fmt.Sprintf("- %s `%s`: %s\n",
				caser.String(strings.ReplaceAll(string(ref.RefType), "_", " ")),
				ref.StableID,
				describeRef(bundle, ref),
			))
		}
		builder.WriteString("\n")
	}

	if len(bundle.SourceFeatures) > 0 {
		builder.WriteString("## Source Features\n\n")
		for _, feature := range bundle.SourceFeatures {
			builder.WriteString(fmt.Sprintf("- %s: %s (%s, hunks: %s)\n",
				caser.String(strings.ReplaceAll(string(feature.Kind), "_", " ")),
				feature.Description,
				feature.FilePath,
				strings.Join(feature.HunkIDs, ", "),
			))
		}
		builder.WriteString("\n")
	}

	return builder.String()
}

// describeRef resolves a citation into a short human description.
func describeRef(bundle domain.EvidenceBundle, ref domain.EvidenceRef) string {
	switch ref.RefType {
	case domain.RefDiffHunk:
		for _, hunk := range bundle.DiffHunks {
			if hunk.HunkID == ref.StableID {
				return fmt.Sprintf("%s @ -%d,+%d", hunk.FilePath, hunk.OldStart, hunk.NewStart)
			}
		}
	case domain.RefSourceFeature:
		for _, feature := range bundle.SourceFeatures {
			if feature.FeatureID == ref.StableID {
				return feature.Description
			}
		}
	case domain.RefLogTemplate:
		for _, tpl := range bundle.LogTemplates {
			if tpl.TemplateID == ref.StableID {
				return fmt.Sprintf("[%s:%s] %s", tpl.Subsystem, tpl.Category, tpl.FormatString)
			}
		}
	case domain.RefSymbol, domain.RefString:
		return "binary feature"
	}
	return "evidence"
}

func sanitise(value string) string {
	if value == "" {
		return "unknown"
	}
	value = strings.ToLower(value)
	value = strings.ReplaceAll(value, string(filepath.Separator), "-")
	value = strings.ReplaceAll(value, " ", "-")
	return value
}
