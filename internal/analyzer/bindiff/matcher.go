// Package bindiff pairs symbols between two builds' extracted binary
// features. The shipped matcher is deliberately narrow so a heavier binary
// diffing engine can be substituted without changing callers or the evidence
// bundle schema.
package bindiff

import "github.com/bkyoung/build-sensor/internal/domain"

// Matcher is the capability a binary diff engine must provide. NameMatcher is
// the only variant shipped today; a future deep matcher (basic-block or
// call-graph based) slots in behind the same contract.
type Matcher interface {
	Match(from, to domain.BinaryFeatureSet) []domain.BinaryDiffPair
}

// NameMatcher matches symbols by exact name equality. Symbols appearing on
// only one side are recorded as unmatched pairs, which is an outcome in its
// own right, not an error.
type NameMatcher struct{}

// NewNameMatcher constructs the name-equality matcher.
func NewNameMatcher() *NameMatcher {
	return &NameMatcher{}
}

// Match walks the "to" build's symbols in order, pairing each with the "from"
// build by name, then appends the "from"-only leftovers. A name repeating on
// one side keeps its first occurrence, so output order is stable across runs.
func (m *NameMatcher) Match(from, to domain.BinaryFeatureSet) []domain.BinaryDiffPair {
	fromSeen := make(map[string]struct{}, len(from.Symbols))
	fromOrder := make([]string, 0, len(from.Symbols))
	for _, name := range from.Symbols {
		if _, ok := fromSeen[name]; ok {
			continue
		}
		fromSeen[name] = struct{}{}
		fromOrder = append(fromOrder, name)
	}

	var pairs []domain.BinaryDiffPair
	toSeen := make(map[string]struct{}, len(to.Symbols))
	for _, name := range to.Symbols {
		if _, ok := toSeen[name]; ok {
			continue
		}
		toSeen[name] = struct{}{}
		if _, ok := fromSeen[name]; ok {
			pairs = append(pairs, domain.BinaryDiffPair{SymbolFrom: name, SymbolTo: name, Basis: domain.MatchByName})
		} else {
			pairs = append(pairs, domain.BinaryDiffPair{SymbolTo: name, Basis: domain.MatchNone})
		}
	}

	for _, name := range fromOrder {
		if _, ok := toSeen[name]; !ok {
			pairs = append(pairs, domain.BinaryDiffPair{SymbolFrom: name, Basis: domain.MatchNone})
		}
	}
	return pairs
}
