package domain

// EvidenceRef is the only vocabulary by which a downstream consumer (score
// reason, report) may point at evidence. Its StableID must resolve within the
// bundle it is paired with; a dangling ref is a contract violation.
type EvidenceRef struct {
	RefType    RefType `json:"refType"`
	ArtifactID string  `json:"artifactId,omitempty"`
	StableID   string  `json:"stableId"`
}

// EvidenceBundle aggregates all extracted and correlated evidence for one
// (build_from, build_to, component) triple. Created once per diff run and
// immutable thereafter; re-running a diff replaces the bundle.
type EvidenceBundle struct {
	DiffID    string `json:"diffId"`
	BuildFrom string `json:"buildFrom"`
	BuildTo   string `json:"buildTo"`
	Component string `json:"component"`

	DiffHunks          []DiffHunk         `json:"diffHunks"`
	SourceFeatures     []SourceFeature    `json:"sourceFeatures"`
	BinaryFeaturesFrom BinaryFeatureSet   `json:"binaryFeaturesFrom"`
	BinaryFeaturesTo   BinaryFeatureSet   `json:"binaryFeaturesTo"`
	BinaryDiffPairs    []BinaryDiffPair   `json:"binaryDiffPairs"`
	LogTemplates       []LogTemplate      `json:"logTemplates"`
	LogToBinaryMatches []LogToBinaryMatch `json:"logToBinaryMatches"`

	Notices []Notice `json:"notices,omitempty"`
}

// StableIDs returns every identifier resolvable within the bundle, keyed for
// membership tests. Symbol and string ids from both builds are included.
func (b EvidenceBundle) StableIDs() map[string]struct{} {
	ids := make(map[string]struct{})
	for _, h := range b.DiffHunks {
		ids[h.HunkID] = struct{}{}
	}
	for _, f := range b.SourceFeatures {
		ids[f.FeatureID] = struct{}{}
	}
	for _, set := range []BinaryFeatureSet{b.BinaryFeaturesFrom, b.BinaryFeaturesTo} {
		for _, sym := range set.Symbols {
			ids[SymbolID(sym)] = struct{}{}
		}
		for _, s := range set.Strings {
			ids[StringID(s)] = struct{}{}
		}
	}
	for _, p := range b.BinaryDiffPairs {
		ids[p.StableID()] = struct{}{}
	}
	for _, t := range b.LogTemplates {
		ids[t.TemplateID] = struct{}{}
	}
	for _, m := range b.LogToBinaryMatches {
		ids[m.StringID] = struct{}{}
	}
	return ids
}

// Resolves reports whether the ref's stable id exists in the bundle.
func (b EvidenceBundle) Resolves(ref EvidenceRef) bool {
	_, ok := b.StableIDs()[ref.StableID]
	return ok
}
