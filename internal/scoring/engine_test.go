package scoring_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bkyoung/build-sensor/internal/domain"
	"github.com/bkyoung/build-sensor/internal/evidence"
	"github.com/bkyoung/build-sensor/internal/scoring"
)

func TestScore_EmptyBundle(t *testing.T) {
	engine := scoring.NewEngine(nil)

	result := engine.Score(domain.EvidenceBundle{DiffID: "diff_empty"})

	assert.Equal(t, "diff_empty", result.DiffID)
	assert.Zero(t, result.TotalScore, "no matching pattern is a legitimate zero outcome")
	assert.Empty(t, result.Reasons)
}

func allocBundle(withGuard bool) domain.EvidenceBundle {
	hunkID := domain.HunkID("parser.c", 3, 3, []string{"+ buf = malloc(count * sizeof(struct entry));"})
	bundle := domain.EvidenceBundle{
		DiffID: "diff_alloc",
		DiffHunks: []domain.DiffHunk{
			{FilePath: "parser.c", OldStart: 3, NewStart: 3, NewCount: 1, HunkID: hunkID,
				Lines: []string{"+ buf = malloc(count * sizeof(struct entry));"}},
		},
		SourceFeatures: []domain.SourceFeature{
			{
				FeatureID:   domain.FeatureID(domain.FeatureAllocMath, []string{hunkID}),
				Kind:        domain.FeatureAllocMath,
				Description: "allocation-size arithmetic in parser.c",
				FilePath:    "parser.c",
				HunkIDs:     []string{hunkID},
			},
		},
	}
	if withGuard {
		bundle.SourceFeatures = append(bundle.SourceFeatures, domain.SourceFeature{
			FeatureID:   domain.FeatureID(domain.FeatureBoundsCheck, []string{hunkID}),
			Kind:        domain.FeatureBoundsCheck,
			Description: "bounds/overflow guard added in parser.c",
			FilePath:    "parser.c",
			HunkIDs:     []string{hunkID},
		})
	}
	return bundle
}

func TestScore_UnguardedAllocationOutscoresGuarded(t *testing.T) {
	engine := scoring.NewEngine(nil)

	unguarded := engine.Score(allocBundle(false))
	guarded := engine.Score(allocBundle(true))

	require.Len(t, unguarded.Reasons, 1)
	assert.Equal(t, 3.0, unguarded.Reasons[0].ScoreContribution)

	var allocContribution float64
	for _, r := range guarded.Reasons {
		if r.ScoreContribution == 1.0 {
			allocContribution = r.ScoreContribution
		}
	}
	assert.Equal(t, 1.0, allocContribution,
		"a guarded allocation contributes less than an unguarded one")
}

func TestScore_EveryReasonCitesResolvableEvidence(t *testing.T) {
	bundle := allocBundle(true)
	bundle.LogTemplates = []domain.LogTemplate{
		{TemplateID: domain.TemplateID("parser", "decode", "invalid magic"), Subsystem: "parser", Category: "decode", FormatString: "invalid magic"},
	}
	bundle.BinaryFeaturesTo = domain.BinaryFeatureSet{
		BuildID: "22B200", Component: "libparser",
		Strings: []string{"invalid magic"}, Symbols: []string{"_parse_v2"},
		Status: domain.ExtractionOK,
	}
	bundle.BinaryDiffPairs = []domain.BinaryDiffPair{{SymbolTo: "_parse_v2", Basis: domain.MatchNone}}
	bundle.LogToBinaryMatches = []domain.LogToBinaryMatch{
		{
			TemplateID:    bundle.LogTemplates[0].TemplateID,
			MatchedString: "invalid magic",
			StringID:      domain.StringID("invalid magic"),
		},
	}

	result := scoring.NewEngine(nil).Score(bundle)

	require.NotEmpty(t, result.Reasons)
	for _, reason := range result.Reasons {
		assert.NotEmpty(t, reason.EvidenceRefs, "reason %q must cite evidence", reason.Text)
	}
	assert.NoError(t, evidence.ValidateResult(bundle, result))
}

func TestScore_TotalIsSumOfContributions(t *testing.T) {
	result := scoring.NewEngine(nil).Score(allocBundle(true))

	var sum float64
	for _, r := range result.Reasons {
		sum += r.ScoreContribution
	}
	assert.Equal(t, sum, result.TotalScore, "no hidden adjustment beyond the reason sum")
}

func TestScore_Deterministic(t *testing.T) {
	bundle := allocBundle(true)
	engine := scoring.NewEngine(nil)

	first := engine.Score(bundle)
	second := engine.Score(bundle)

	assert.Equal(t, first, second, "recomputation on an unchanged bundle is identical")
}

func TestScore_UnmatchedSymbolNeedsSourceChanges(t *testing.T) {
	bundle := domain.EvidenceBundle{
		DiffID: "diff_binonly",
		BinaryFeaturesTo: domain.BinaryFeatureSet{
			Symbols: []string{"_new"}, Status: domain.ExtractionOK,
		},
		BinaryDiffPairs: []domain.BinaryDiffPair{{SymbolTo: "_new", Basis: domain.MatchNone}},
	}

	result := scoring.NewEngine(nil).Score(bundle)

	assert.Empty(t, result.Reasons, "the unmatched-symbol rule only fires alongside source changes")
}

func TestScore_WeightOverrides(t *testing.T) {
	engine := scoring.NewEngine(scoring.Weights{scoring.RuleAllocUnguarded: 10})

	result := engine.Score(allocBundle(false))

	require.Len(t, result.Reasons, 1)
	assert.Equal(t, 10.0, result.Reasons[0].ScoreContribution)
}

func TestVersionCoversWeights(t *testing.T) {
	defaults := scoring.NewEngine(nil)
	tweaked := scoring.NewEngine(scoring.Weights{scoring.RuleParsing: 9})

	assert.NotEqual(t, defaults.Version(), tweaked.Version())
	assert.Equal(t, defaults.Version(), scoring.NewEngine(nil).Version())
}
