package evidence_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bkyoung/build-sensor/internal/domain"
	"github.com/bkyoung/build-sensor/internal/evidence"
)

func validInput() evidence.Input {
	hunkID := domain.HunkID("parser.c", 3, 3, []string{"+ if (count > MAX) return;"})
	tplID := domain.TemplateID("parser", "decode", "invalid magic")
	return evidence.Input{
		DiffID:    "diff_abc",
		BuildFrom: "22A100",
		BuildTo:   "22B200",
		Component: "libparser",
		Hunks: []domain.DiffHunk{
			{FilePath: "parser.c", OldStart: 3, NewStart: 3, NewCount: 1, Lines: []string{"+ if (count > MAX) return;"}, HunkID: hunkID},
		},
		SourceFeatures: []domain.SourceFeature{
			{
				FeatureID: domain.FeatureID(domain.FeatureBoundsCheck, []string{hunkID}),
				Kind:      domain.FeatureBoundsCheck,
				FilePath:  "parser.c",
				HunkIDs:   []string{hunkID},
			},
		},
		BinaryFeaturesFrom: domain.BinaryFeatureSet{
			BuildID: "22A100", Component: "libparser",
			Symbols: []string{"_parse"}, Strings: []string{"invalid magic"},
			Status: domain.ExtractionOK,
		},
		BinaryFeaturesTo: domain.BinaryFeatureSet{
			BuildID: "22B200", Component: "libparser",
			Symbols: []string{"_parse"}, Strings: []string{"invalid magic"},
			Status: domain.ExtractionOK,
		},
		BinaryDiffPairs: []domain.BinaryDiffPair{
			{SymbolFrom: "_parse", SymbolTo: "_parse", Basis: domain.MatchByName},
		},
		LogTemplates: []domain.LogTemplate{
			{TemplateID: tplID, Subsystem: "parser", Category: "decode", FormatString: "invalid magic"},
		},
		LogToBinaryMatches: []domain.LogToBinaryMatch{
			{TemplateID: tplID, MatchedString: "invalid magic", StringID: domain.StringID("invalid magic")},
		},
	}
}

func TestAssemble_ValidBundle(t *testing.T) {
	in := validInput()

	bundle, err := evidence.NewAssembler().Assemble(in)
	require.NoError(t, err)

	assert.Equal(t, "diff_abc", bundle.DiffID)
	assert.Len(t, bundle.DiffHunks, 1)
	assert.Len(t, bundle.LogToBinaryMatches, 1)
}

func TestAssemble_NormalizesHunkOrder(t *testing.T) {
	in := validInput()
	extra := domain.DiffHunk{FilePath: "aaa.c", OldStart: 1, NewStart: 1, Lines: []string{"- x"}, HunkID: domain.HunkID("aaa.c", 1, 1, []string{"- x"})}
	in.Hunks = append(in.Hunks, extra)

	bundle, err := evidence.NewAssembler().Assemble(in)
	require.NoError(t, err)

	assert.Equal(t, "aaa.c", bundle.DiffHunks[0].FilePath)
	assert.Equal(t, "parser.c", bundle.DiffHunks[1].FilePath)
}

func TestAssemble_DanglingFeatureHunkFails(t *testing.T) {
	in := validInput()
	in.SourceFeatures[0].HunkIDs = []string{"hunk:doesnotexist00"}

	_, err := evidence.NewAssembler().Assemble(in)

	require.ErrorIs(t, err, evidence.ErrDanglingRef)
}

func TestAssemble_DanglingMatchTemplateFails(t *testing.T) {
	in := validInput()
	in.LogToBinaryMatches[0].TemplateID = "tpl:doesnotexist0000"

	_, err := evidence.NewAssembler().Assemble(in)

	require.ErrorIs(t, err, evidence.ErrDanglingRef)
}

func TestAssemble_PairSymbolOutsideFeatureSetsFails(t *testing.T) {
	in := validInput()
	in.BinaryDiffPairs = append(in.BinaryDiffPairs, domain.BinaryDiffPair{SymbolTo: "_ghost", Basis: domain.MatchNone})

	_, err := evidence.NewAssembler().Assemble(in)

	require.ErrorIs(t, err, evidence.ErrDanglingRef)
}

func TestValidateResult(t *testing.T) {
	bundle, err := evidence.NewAssembler().Assemble(validInput())
	require.NoError(t, err)

	hunkID := bundle.DiffHunks[0].HunkID

	t.Run("accepts resolvable citations", func(t *testing.T) {
		reason, err := domain.NewReason("guard added", 2.5, domain.EvidenceRef{RefType: domain.RefDiffHunk, StableID: hunkID})
		require.NoError(t, err)
		res := domain.ScoreResult{DiffID: bundle.DiffID, TotalScore: 2.5, Reasons: []domain.Reason{reason}}

		assert.NoError(t, evidence.ValidateResult(bundle, res))
	})

	t.Run("rejects dangling citations", func(t *testing.T) {
		res := domain.ScoreResult{Reasons: []domain.Reason{{
			Text:         "phantom",
			EvidenceRefs: []domain.EvidenceRef{{RefType: domain.RefDiffHunk, StableID: "hunk:phantom0000000"}},
		}}}

		assert.ErrorIs(t, evidence.ValidateResult(bundle, res), evidence.ErrDanglingRef)
	})

	t.Run("rejects empty citation lists", func(t *testing.T) {
		res := domain.ScoreResult{Reasons: []domain.Reason{{Text: "empty"}}}

		assert.ErrorIs(t, evidence.ValidateResult(bundle, res), domain.ErrNoEvidence)
	})
}
