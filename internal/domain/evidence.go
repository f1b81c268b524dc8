package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// ArtifactKind identifies the class of an ingested build artifact.
type ArtifactKind string

const (
	ArtifactSource ArtifactKind = "source"
	ArtifactBinary ArtifactKind = "binary"
	ArtifactLog    ArtifactKind = "log"
)

// RefType is the vocabulary of evidence kinds an EvidenceRef may point at.
// Stable identifiers are namespaced by ref type so an id from one extractor
// can never collide with an id from another.
type RefType string

const (
	RefDiffHunk      RefType = "diff_hunk"
	RefSourceFeature RefType = "source_feature"
	RefSymbol        RefType = "symbol"
	RefString        RefType = "string"
	RefLogTemplate   RefType = "log_template"
)

// idPrefixes maps a ref type to the namespace prefix carried by its stable ids.
var idPrefixes = map[RefType]string{
	RefDiffHunk:      "hunk:",
	RefSourceFeature: "feat:",
	RefSymbol:        "sym:",
	RefString:        "str:",
	RefLogTemplate:   "tpl:",
}

// stableHash returns the first 16 hex characters of the SHA-256 of payload.
// All stable identifiers in a bundle derive from this so identical inputs
// always yield identical ids.
func stableHash(payload string) string {
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])[:16]
}

// DiffHunk is one contiguous region of line-level change between two
// versions of a file. Immutable once produced.
type DiffHunk struct {
	FilePath string   `json:"filePath"`
	OldStart int      `json:"oldStart"`
	OldCount int      `json:"oldCount"`
	NewStart int      `json:"newStart"`
	NewCount int      `json:"newCount"`
	Lines    []string `json:"lines"`
	HunkID   string   `json:"hunkId"`
}

// HunkID derives the stable identifier for a hunk from its file position and
// the first few changed lines.
func HunkID(filePath string, oldStart, newStart int, lines []string) string {
	head := lines
	if len(head) > 5 {
		head = head[:5]
	}
	payload := fmt.Sprintf("%s:%d:%d:%s", filePath, oldStart, newStart, strings.Join(head, "|"))
	return idPrefixes[RefDiffHunk] + stableHash(payload)
}

// FeatureKind tags the security-relevant pattern class a SourceFeature records.
type FeatureKind string

const (
	FeatureAllocMath      FeatureKind = "alloc_math"
	FeatureBoundsCheck    FeatureKind = "bounds_check"
	FeatureParsing        FeatureKind = "parsing"
	FeaturePrivilegeCheck FeatureKind = "privilege_check"
)

// SourceFeature is a tagged observation derived from one or more diff hunks.
// HunkIDs only ever reference hunks produced by the same diff.
type SourceFeature struct {
	FeatureID   string      `json:"featureId"`
	Kind        FeatureKind `json:"kind"`
	Description string      `json:"description"`
	FilePath    string      `json:"filePath"`
	HunkIDs     []string    `json:"hunkIds"`
	Snippet     string      `json:"snippet"`
}

// FeatureID derives the stable identifier for a source feature.
func FeatureID(kind FeatureKind, hunkIDs []string) string {
	payload := string(kind) + ":" + strings.Join(hunkIDs, ",")
	return idPrefixes[RefSourceFeature] + stableHash(payload)
}

// ExtractionStatus classifies the outcome of a binary feature extraction.
type ExtractionStatus string

const (
	// ExtractionOK means the artifact parsed cleanly.
	ExtractionOK ExtractionStatus = "ok"
	// ExtractionTruncated means the artifact was malformed or cut short;
	// feature fields are empty rather than partial garbage.
	ExtractionTruncated ExtractionStatus = "truncated"
	// ExtractionUnsupported means the artifact's format was not recognized.
	// Distinct from truncated so callers can skip rather than alarm.
	ExtractionUnsupported ExtractionStatus = "unsupported"
)

// BinaryFeatureSet holds everything extracted from one compiled artifact.
type BinaryFeatureSet struct {
	BuildID   string           `json:"buildId"`
	Component string           `json:"component"`
	Strings   []string         `json:"strings"`
	Imports   []string         `json:"imports"`
	Symbols   []string         `json:"symbols"`
	Status    ExtractionStatus `json:"status"`
	Notice    string           `json:"notice,omitempty"`
}

// SymbolID returns the stable identifier for a binary symbol name.
func SymbolID(name string) string {
	return idPrefixes[RefSymbol] + name
}

// StringID returns the stable identifier for a binary string-table entry.
func StringID(value string) string {
	return idPrefixes[RefString] + stableHash(value)
}

// MatchBasis records how a BinaryDiffPair was matched across builds.
type MatchBasis string

const (
	MatchByName MatchBasis = "name"
	MatchByAddr MatchBasis = "address"
	// MatchNone marks a symbol present on only one side. Unmatched is a
	// recordable outcome, not an error.
	MatchNone MatchBasis = "none"
)

// BinaryDiffPair pairs a symbol across two builds. Either side may be empty
// when the basis is MatchNone.
type BinaryDiffPair struct {
	SymbolFrom string     `json:"symbolFrom"`
	SymbolTo   string     `json:"symbolTo"`
	Basis      MatchBasis `json:"basis"`
}

// StableID returns the identifier a reason cites for this pair: the surviving
// symbol name, preferring the "to" side.
func (p BinaryDiffPair) StableID() string {
	if p.SymbolTo != "" {
		return SymbolID(p.SymbolTo)
	}
	return SymbolID(p.SymbolFrom)
}

// LogTemplate is one distinct message shape observed in a build's log stream,
// with variable tokens normalized out.
type LogTemplate struct {
	TemplateID   string   `json:"templateId"`
	Subsystem    string   `json:"subsystem"`
	Category     string   `json:"category"`
	FormatString string   `json:"formatString"`
	Samples      []string `json:"samples,omitempty"`
}

// TemplateID derives the stable identifier for a log template.
func TemplateID(subsystem, category, formatString string) string {
	payload := subsystem + "|" + category + "|" + formatString
	return idPrefixes[RefLogTemplate] + stableHash(payload)
}

// LogToBinaryMatch records a template whose literal content also appears in a
// binary's string table.
type LogToBinaryMatch struct {
	TemplateID    string `json:"templateId"`
	MatchedString string `json:"matchedString"`
	StringID      string `json:"stringId"`
}

// Notice records a non-fatal, per-artifact degradation (skipped file,
// truncated binary) kept alongside whatever partial evidence was produced.
type Notice struct {
	Stage   string `json:"stage"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}
