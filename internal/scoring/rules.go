package scoring

import (
	"fmt"

	"github.com/bkyoung/build-sensor/internal/domain"
)

// Weights maps a rule id to its score contribution. Magnitudes are rule
// parameters, overridable from configuration; the defaults mirror the
// weights the sensor has always shipped with.
type Weights map[string]float64

// Rule ids double as weight keys.
const (
	RuleAllocUnguarded  = "alloc_unguarded"
	RuleAllocGuarded    = "alloc_guarded"
	RuleBoundsCheck     = "bounds_check"
	RuleParsing         = "parsing"
	RulePrivilegeCheck  = "privilege_check"
	RuleLogCorrelation  = "log_binary_correlation"
	RuleSymbolUnmatched = "symbol_unmatched"
)

// DefaultWeights returns the compiled-in contribution per rule.
func DefaultWeights() Weights {
	return Weights{
		RuleAllocUnguarded:  3.0,
		RuleAllocGuarded:    1.0,
		RuleBoundsCheck:     2.5,
		RuleParsing:         2.0,
		RulePrivilegeCheck:  2.5,
		RuleLogCorrelation:  1.2,
		RuleSymbolUnmatched: 1.0,
	}
}

// rule is one (pattern-predicate, contribution, reason-template) entry. Rules
// are data, not branching logic: adding one cannot perturb another's ordering
// or contribution.
type rule struct {
	id       string
	evaluate func(b domain.EvidenceBundle, weight float64) []domain.Reason
}

// ruleTable is evaluated in declaration order, which fixes reasons[] ordering.
// Contributions are commutative, so the total is order-independent.
var ruleTable = []rule{
	{RuleAllocUnguarded, evalAlloc(false)},
	{RuleAllocGuarded, evalAlloc(true)},
	{RuleBoundsCheck, evalFeatureKind(domain.FeatureBoundsCheck, "%s")},
	{RuleParsing, evalFeatureKind(domain.FeatureParsing, "%s")},
	{RulePrivilegeCheck, evalFeatureKind(domain.FeaturePrivilegeCheck, "%s")},
	{RuleLogCorrelation, evalLogCorrelation},
	{RuleSymbolUnmatched, evalSymbolUnmatched},
}

// evalAlloc scores allocation-size arithmetic. An allocation with no bounds
// check citing the same hunk is the high-risk case; a guarded one still
// contributes, at a fraction of the weight.
func evalAlloc(guarded bool) func(domain.EvidenceBundle, float64) []domain.Reason {
	return func(b domain.EvidenceBundle, weight float64) []domain.Reason {
		guardedHunks := make(map[string]struct{})
		for _, f := range b.SourceFeatures {
			if f.Kind != domain.FeatureBoundsCheck {
				continue
			}
			for _, id := range f.HunkIDs {
				guardedHunks[id] = struct{}{}
			}
		}

		var reasons []domain.Reason
		for _, f := range b.SourceFeatures {
			if f.Kind != domain.FeatureAllocMath {
				continue
			}
			if hasGuard(f.HunkIDs, guardedHunks) != guarded {
				continue
			}
			text := fmt.Sprintf("allocation-size arithmetic without adjacent bounds check: %s", f.Description)
			if guarded {
				text = fmt.Sprintf("allocation-size arithmetic with adjacent bounds check: %s", f.Description)
			}
			reasons = appendReason(reasons, text, weight, featureRefs(f)...)
		}
		return reasons
	}
}

func hasGuard(hunkIDs []string, guardedHunks map[string]struct{}) bool {
	for _, id := range hunkIDs {
		if _, ok := guardedHunks[id]; ok {
			return true
		}
	}
	return false
}

// evalFeatureKind emits one reason per source feature of the given kind.
func evalFeatureKind(kind domain.FeatureKind, format string) func(domain.EvidenceBundle, float64) []domain.Reason {
	return func(b domain.EvidenceBundle, weight float64) []domain.Reason {
		var reasons []domain.Reason
		for _, f := range b.SourceFeatures {
			if f.Kind != kind {
				continue
			}
			reasons = appendReason(reasons, fmt.Sprintf(format, f.Description), weight, featureRefs(f)...)
		}
		return reasons
	}
}

// evalLogCorrelation scores every template whose literal content also lives
// in the binary's string table, citing both the template and the string.
func evalLogCorrelation(b domain.EvidenceBundle, weight float64) []domain.Reason {
	var reasons []domain.Reason
	for _, m := range b.LogToBinaryMatches {
		text := fmt.Sprintf("log template correlated to binary string %q", m.MatchedString)
		reasons = appendReason(reasons, text, weight,
			domain.EvidenceRef{RefType: domain.RefLogTemplate, StableID: m.TemplateID},
			domain.EvidenceRef{RefType: domain.RefString, StableID: m.StringID},
		)
	}
	return reasons
}

// evalSymbolUnmatched flags symbols present on only one side of a component
// that also has source changes, a hint of renamed or rewritten logic.
func evalSymbolUnmatched(b domain.EvidenceBundle, weight float64) []domain.Reason {
	if len(b.DiffHunks) == 0 {
		return nil
	}
	var reasons []domain.Reason
	for _, p := range b.BinaryDiffPairs {
		if p.Basis != domain.MatchNone {
			continue
		}
		side := "removed from"
		name := p.SymbolFrom
		if p.SymbolTo != "" {
			side = "introduced in"
			name = p.SymbolTo
		}
		text := fmt.Sprintf("symbol %s %s the newer build alongside source changes", name, side)
		reasons = appendReason(reasons, text, weight,
			domain.EvidenceRef{RefType: domain.RefSymbol, StableID: p.StableID()},
		)
	}
	return reasons
}

func featureRefs(f domain.SourceFeature) []domain.EvidenceRef {
	refs := []domain.EvidenceRef{{RefType: domain.RefSourceFeature, StableID: f.FeatureID}}
	for _, id := range f.HunkIDs {
		refs = append(refs, domain.EvidenceRef{RefType: domain.RefDiffHunk, StableID: id})
	}
	return refs
}

// appendReason funnels every rule through the non-empty-citation constructor.
func appendReason(reasons []domain.Reason, text string, weight float64, refs ...domain.EvidenceRef) []domain.Reason {
	reason, err := domain.NewReason(text, weight, refs...)
	if err != nil {
		// Unreachable by construction: every rule supplies refs.
		return reasons
	}
	return append(reasons, reason)
}
