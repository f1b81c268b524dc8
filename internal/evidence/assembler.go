// Package evidence assembles per-artifact extraction and correlation output
// into one internally consistent bundle. The assembler is pure aggregation:
// structural validation and ordering normalization, no business logic.
package evidence

import (
	"errors"
	"fmt"
	"sort"

	"github.com/bkyoung/build-sensor/internal/domain"
)

// ErrDanglingRef marks a stable id referenced somewhere in a bundle that does
// not resolve within that bundle. This indicates a logic defect in an
// extractor, not a data-quality issue, so assembly fails rather than
// silently dropping the reference.
var ErrDanglingRef = errors.New("stable id does not resolve within bundle")

// Input carries every component's output for one diff run.
type Input struct {
	DiffID    string
	BuildFrom string
	BuildTo   string
	Component string

	Hunks              []domain.DiffHunk
	SourceFeatures     []domain.SourceFeature
	BinaryFeaturesFrom domain.BinaryFeatureSet
	BinaryFeaturesTo   domain.BinaryFeatureSet
	BinaryDiffPairs    []domain.BinaryDiffPair
	LogTemplates       []domain.LogTemplate
	LogToBinaryMatches []domain.LogToBinaryMatch
	Notices            []domain.Notice
}

// Assembler merges component outputs into an EvidenceBundle.
type Assembler struct{}

// NewAssembler constructs a bundle assembler.
func NewAssembler() *Assembler {
	return &Assembler{}
}

// Assemble normalizes ordering, then validates that every cross-entity
// reference resolves. The returned bundle is complete and immutable; callers
// replace it wholesale by re-running the diff.
func (a *Assembler) Assemble(in Input) (domain.EvidenceBundle, error) {
	bundle := domain.EvidenceBundle{
		DiffID:             in.DiffID,
		BuildFrom:          in.BuildFrom,
		BuildTo:            in.BuildTo,
		Component:          in.Component,
		DiffHunks:          sortedHunks(in.Hunks),
		SourceFeatures:     in.SourceFeatures,
		BinaryFeaturesFrom: in.BinaryFeaturesFrom,
		BinaryFeaturesTo:   in.BinaryFeaturesTo,
		BinaryDiffPairs:    in.BinaryDiffPairs,
		// Templates and matches keep their extractor-given first-seen order;
		// that order is part of the template id stability contract.
		LogTemplates:       in.LogTemplates,
		LogToBinaryMatches: in.LogToBinaryMatches,
		Notices:            in.Notices,
	}

	if err := Validate(bundle); err != nil {
		return domain.EvidenceBundle{}, err
	}
	return bundle, nil
}

// sortedHunks fixes file-path order, then position order within a file.
func sortedHunks(hunks []domain.DiffHunk) []domain.DiffHunk {
	out := make([]domain.DiffHunk, len(hunks))
	copy(out, hunks)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].FilePath != out[j].FilePath {
			return out[i].FilePath < out[j].FilePath
		}
		if out[i].OldStart != out[j].OldStart {
			return out[i].OldStart < out[j].OldStart
		}
		return out[i].NewStart < out[j].NewStart
	})
	return out
}

// Validate checks the bundle's structural invariant: every stable id
// referenced by a feature, pair, or match resolves to an entity present in
// the same bundle.
func Validate(b domain.EvidenceBundle) error {
	hunkIDs := make(map[string]struct{}, len(b.DiffHunks))
	for _, h := range b.DiffHunks {
		hunkIDs[h.HunkID] = struct{}{}
	}
	for _, f := range b.SourceFeatures {
		if len(f.HunkIDs) == 0 {
			return fmt.Errorf("source feature %s cites no hunks: %w", f.FeatureID, ErrDanglingRef)
		}
		for _, id := range f.HunkIDs {
			if _, ok := hunkIDs[id]; !ok {
				return fmt.Errorf("source feature %s cites hunk %s: %w", f.FeatureID, id, ErrDanglingRef)
			}
		}
	}

	symbols := make(map[string]map[string]struct{}, 2)
	symbols["from"] = symbolSet(b.BinaryFeaturesFrom)
	symbols["to"] = symbolSet(b.BinaryFeaturesTo)
	for _, p := range b.BinaryDiffPairs {
		if p.SymbolFrom == "" && p.SymbolTo == "" {
			return fmt.Errorf("binary diff pair with no symbols: %w", ErrDanglingRef)
		}
		if p.SymbolFrom != "" {
			if _, ok := symbols["from"][p.SymbolFrom]; !ok {
				return fmt.Errorf("pair symbol %s not in from-build features: %w", p.SymbolFrom, ErrDanglingRef)
			}
		}
		if p.SymbolTo != "" {
			if _, ok := symbols["to"][p.SymbolTo]; !ok {
				return fmt.Errorf("pair symbol %s not in to-build features: %w", p.SymbolTo, ErrDanglingRef)
			}
		}
	}

	templateIDs := make(map[string]struct{}, len(b.LogTemplates))
	for _, t := range b.LogTemplates {
		templateIDs[t.TemplateID] = struct{}{}
	}
	stringIDs := make(map[string]struct{})
	for _, set := range []domain.BinaryFeatureSet{b.BinaryFeaturesFrom, b.BinaryFeaturesTo} {
		for _, s := range set.Strings {
			stringIDs[domain.StringID(s)] = struct{}{}
		}
	}
	for _, m := range b.LogToBinaryMatches {
		if _, ok := templateIDs[m.TemplateID]; !ok {
			return fmt.Errorf("match cites template %s: %w", m.TemplateID, ErrDanglingRef)
		}
		if _, ok := stringIDs[m.StringID]; !ok {
			return fmt.Errorf("match cites string %s: %w", m.StringID, ErrDanglingRef)
		}
	}
	return nil
}

// ValidateResult enforces the citation contract on a score result against
// the bundle that produced it: no empty citation lists, no dangling refs.
// This is the enforcement point for any downstream enrichment too.
func ValidateResult(b domain.EvidenceBundle, res domain.ScoreResult) error {
	ids := b.StableIDs()
	for _, reason := range res.Reasons {
		if len(reason.EvidenceRefs) == 0 {
			return fmt.Errorf("reason %q cites no evidence: %w", reason.Text, domain.ErrNoEvidence)
		}
		for _, ref := range reason.EvidenceRefs {
			if _, ok := ids[ref.StableID]; !ok {
				return fmt.Errorf("reason %q cites %s: %w", reason.Text, ref.StableID, ErrDanglingRef)
			}
		}
	}
	return nil
}

func symbolSet(set domain.BinaryFeatureSet) map[string]struct{} {
	out := make(map[string]struct{}, len(set.Symbols))
	for _, s := range set.Symbols {
		out[s] = struct{}{}
	}
	return out
}
