package source

import (
	"bytes"
	"context"
	"strings"
	"unicode/utf8"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/bkyoung/build-sensor/internal/domain"
)

// Result carries everything one source diff run produced: ordered hunks,
// derived features, and skip notices for files that could not be diffed.
type Result struct {
	Hunks    []domain.DiffHunk
	Features []domain.SourceFeature
	Notices  []domain.Notice
}

// Analyzer computes unified-diff hunks between two source trees and derives
// security-relevant features from hunk content. Each invocation is a pure
// function of its inputs.
type Analyzer struct{}

// NewAnalyzer constructs a source diff analyzer.
func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// Diff walks the union of both trees in file-path order and emits one hunk
// per contiguous changed region. A file present on only one side produces an
// added/removed sentinel hunk; a file that cannot be decoded as text is
// skipped with a recorded notice, never a fatal error.
func (a *Analyzer) Diff(ctx context.Context, from, to Tree) (Result, error) {
	fromFiles, err := from.Files()
	if err != nil {
		return Result{}, err
	}
	toFiles, err := to.Files()
	if err != nil {
		return Result{}, err
	}

	fromSet := pathSet(fromFiles)
	toSet := pathSet(toFiles)

	var result Result
	for _, path := range unionPaths(fromFiles, toFiles) {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		fromLines, notice := readLines(from, path, fromSet)
		if notice != nil {
			result.Notices = append(result.Notices, *notice)
			continue
		}
		toLines, notice := readLines(to, path, toSet)
		if notice != nil {
			result.Notices = append(result.Notices, *notice)
			continue
		}

		result.Hunks = append(result.Hunks, diffFile(path, fromLines, toLines)...)
	}

	result.Features = extractFeatures(result.Hunks)
	return result, nil
}

// AnalyzeHunks derives features for hunks ingested from outside the tree
// walk, such as a pre-computed patch file. The hunks pass through untouched.
func AnalyzeHunks(hunks []domain.DiffHunk) Result {
	return Result{Hunks: hunks, Features: extractFeatures(hunks)}
}

func pathSet(paths []string) map[string]struct{} {
	set := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		set[p] = struct{}{}
	}
	return set
}

// readLines loads one side of a file. A nil slice with a nil notice means the
// file does not exist on that side (the added/removed sentinel case).
func readLines(tree Tree, path string, present map[string]struct{}) ([]string, *domain.Notice) {
	if _, ok := present[path]; !ok {
		return nil, nil
	}
	data, err := tree.ReadFile(path)
	if err != nil {
		return nil, &domain.Notice{
			Stage:   "source_diff",
			Subject: path,
			Message: "unreadable: " + err.Error(),
		}
	}
	if !isText(data) {
		return nil, &domain.Notice{
			Stage:   "source_diff",
			Subject: path,
			Message: "not decodable as text; skipped",
		}
	}
	return splitLines(data), nil
}

// isText rejects content that cannot be treated as line-oriented text.
func isText(data []byte) bool {
	if bytes.IndexByte(data, 0) >= 0 {
		return false
	}
	return utf8.Valid(data)
}

func splitLines(data []byte) []string {
	if len(data) == 0 {
		return nil
	}
	lines := strings.Split(string(data), "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// diffFile produces the ordered hunks for one file. nil on a side means the
// file is absent there and the missing side's range is recorded as 0/0.
func diffFile(path string, fromLines, toLines []string) []domain.DiffHunk {
	switch {
	case fromLines == nil && toLines == nil:
		return nil
	case fromLines == nil:
		return []domain.DiffHunk{sentinelHunk(path, nil, toLines)}
	case toLines == nil:
		return []domain.DiffHunk{sentinelHunk(path, fromLines, nil)}
	}

	matcher := difflib.NewMatcher(fromLines, toLines)

	var hunks []domain.DiffHunk
	var run []difflib.OpCode
	flush := func() {
		if len(run) > 0 {
			hunks = append(hunks, hunkFromRun(path, fromLines, toLines, run))
			run = nil
		}
	}
	for _, op := range matcher.GetOpCodes() {
		if op.Tag == 'e' {
			flush()
			continue
		}
		run = append(run, op)
	}
	flush()
	return hunks
}

// sentinelHunk covers a file that exists on only one side.
func sentinelHunk(path string, fromLines, toLines []string) domain.DiffHunk {
	hunk := domain.DiffHunk{FilePath: path}
	if toLines != nil {
		hunk.NewStart = 1
		hunk.NewCount = len(toLines)
		for _, l := range toLines {
			hunk.Lines = append(hunk.Lines, "+ "+l)
		}
	} else {
		hunk.OldStart = 1
		hunk.OldCount = len(fromLines)
		for _, l := range fromLines {
			hunk.Lines = append(hunk.Lines, "- "+l)
		}
	}
	hunk.HunkID = domain.HunkID(path, hunk.OldStart, hunk.NewStart, hunk.Lines)
	return hunk
}

// hunkFromRun converts a contiguous run of non-equal opcodes into one hunk.
func hunkFromRun(path string, fromLines, toLines []string, run []difflib.OpCode) domain.DiffHunk {
	first := run[0]
	hunk := domain.DiffHunk{FilePath: path}

	for _, op := range run {
		hunk.OldCount += op.I2 - op.I1
		hunk.NewCount += op.J2 - op.J1
		for _, l := range fromLines[op.I1:op.I2] {
			hunk.Lines = append(hunk.Lines, "- "+l)
		}
		for _, l := range toLines[op.J1:op.J2] {
			hunk.Lines = append(hunk.Lines, "+ "+l)
		}
	}

	// Unified-diff convention: a zero-count side anchors on the line before
	// the change instead of the line of the change.
	if hunk.OldCount > 0 {
		hunk.OldStart = first.I1 + 1
	} else {
		hunk.OldStart = first.I1
	}
	if hunk.NewCount > 0 {
		hunk.NewStart = first.J1 + 1
	} else {
		hunk.NewStart = first.J1
	}

	hunk.HunkID = domain.HunkID(path, hunk.OldStart, hunk.NewStart, hunk.Lines)
	return hunk
}
