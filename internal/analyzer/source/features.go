package source

import (
	"regexp"
	"strings"

	"github.com/bkyoung/build-sensor/internal/domain"
)

// Feature derivation is rules-only: fixed pattern classes over hunk line
// content, no model in the loop. Each detected feature cites the hunk that
// produced it; a hunk yielding zero features is a legitimate empty outcome.

var allocMathPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(malloc|calloc|realloc|kalloc|ALLOC)\s*\(\s*[^)]*\*`),
	regexp.MustCompile(`(?i)size\s*=\s*[^;]*\*`),
	regexp.MustCompile(`(?i)length\s*\*\s*sizeof`),
	regexp.MustCompile(`(?i)count\s*\*\s*sizeof`),
}

var boundsCheckPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(bounds_check|range_check|overflow_check)\b`),
	regexp.MustCompile(`(?i)if\s*\(\s*\w+\s*[<>]=?\s*`),
	regexp.MustCompile(`(?i)assert\s*\(\s*[^)]*[<>]`),
}

var parsingPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(parse|deserialize|decode|unpack)\b`),
	regexp.MustCompile(`(?i)sscanf|fscanf|scanf`),
	regexp.MustCompile(`(?i)json_|xml_|plist_`),
}

var privilegePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(entitlement|sandbox|privilege|capability|root_only)\b`),
	regexp.MustCompile(`(?i)check_entitlement|require_entitlement`),
	regexp.MustCompile(`SECURITY_|kauth_`),
}

type featureClass struct {
	kind        domain.FeatureKind
	patterns    []*regexp.Regexp
	description string
}

// featureClasses is evaluated in declaration order for every hunk, which
// keeps feature ordering stable across reruns.
var featureClasses = []featureClass{
	{domain.FeatureAllocMath, allocMathPatterns, "allocation-size arithmetic"},
	{domain.FeatureBoundsCheck, boundsCheckPatterns, "bounds/overflow guard"},
	{domain.FeatureParsing, parsingPatterns, "external-input parsing logic"},
	{domain.FeaturePrivilegeCheck, privilegePatterns, "privilege-check primitive"},
}

const snippetLines = 20
const snippetCap = 500

// extractFeatures scans each hunk against every pattern class, emitting at
// most one feature per class per hunk.
func extractFeatures(hunks []domain.DiffHunk) []domain.SourceFeature {
	var features []domain.SourceFeature
	for _, hunk := range hunks {
		head := hunk.Lines
		if len(head) > snippetLines {
			head = head[:snippetLines]
		}
		snippet := strings.Join(head, "\n")
		if len(snippet) > snippetCap {
			snippet = snippet[:snippetCap]
		}

		for _, class := range featureClasses {
			if !matchesAny(class.patterns, snippet) {
				continue
			}
			desc := class.description
			if class.kind == domain.FeatureBoundsCheck && onlyOnAddedLines(class.patterns, hunk.Lines) {
				desc += " added"
			}
			hunkIDs := []string{hunk.HunkID}
			features = append(features, domain.SourceFeature{
				FeatureID:   domain.FeatureID(class.kind, hunkIDs),
				Kind:        class.kind,
				Description: desc + " in " + hunk.FilePath,
				FilePath:    hunk.FilePath,
				HunkIDs:     hunkIDs,
				Snippet:     snippet,
			})
		}
	}
	return features
}

func matchesAny(patterns []*regexp.Regexp, s string) bool {
	for _, p := range patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

// onlyOnAddedLines reports whether every line matching the class appears on
// the "+" side of the hunk, marking a guard introduced by this change.
func onlyOnAddedLines(patterns []*regexp.Regexp, lines []string) bool {
	matchedAdded := false
	for _, line := range lines {
		if !matchesAny(patterns, line) {
			continue
		}
		if strings.HasPrefix(line, "+ ") {
			matchedAdded = true
		} else {
			return false
		}
	}
	return matchedAdded
}
