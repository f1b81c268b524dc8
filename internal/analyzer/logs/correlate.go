package logs

import (
	"strings"

	"github.com/bkyoung/build-sensor/internal/domain"
)

// minFragmentLength keeps tiny literal fragments (a lone word boundary or
// punctuation) from matching half the string table.
const minFragmentLength = 6

// Correlator matches template format strings against a binary's string
// table. This is a pure substring-membership test; no fuzzy matching, so
// results stay auditable and reproducible.
type Correlator struct{}

// NewCorrelator constructs a log-to-binary correlator.
func NewCorrelator() *Correlator {
	return &Correlator{}
}

// Correlate emits one match per (template, binary string) pair where the
// template's format string, or a literal fragment of it, appears verbatim in
// the string. Templates are walked in input order and strings in table order.
func (c *Correlator) Correlate(templates []domain.LogTemplate, set domain.BinaryFeatureSet) []domain.LogToBinaryMatch {
	var matches []domain.LogToBinaryMatch
	for _, tpl := range templates {
		fragments := literalFragments(tpl.FormatString)
		for _, s := range set.Strings {
			if !contains(s, tpl.FormatString, fragments) {
				continue
			}
			matches = append(matches, domain.LogToBinaryMatch{
				TemplateID:    tpl.TemplateID,
				MatchedString: s,
				StringID:      domain.StringID(s),
			})
		}
	}
	return matches
}

func contains(binaryString, format string, fragments []string) bool {
	if binaryString == format {
		return true
	}
	for _, frag := range fragments {
		if strings.Contains(binaryString, frag) {
			return true
		}
	}
	return false
}

// literalFragments splits a format string on its placeholders, keeping the
// literal pieces long enough to be meaningful membership probes.
func literalFragments(format string) []string {
	var fragments []string
	for _, piece := range strings.Split(format, placeholder) {
		piece = strings.TrimSpace(piece)
		if len(piece) >= minFragmentLength {
			fragments = append(fragments, piece)
		}
	}
	return fragments
}
