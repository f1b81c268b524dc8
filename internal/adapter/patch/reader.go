// Package patch ingests pre-computed unified diff files as an alternative to
// diffing two full source trees, for cases where only a patch survived from
// the build system.
package patch

import (
	"fmt"
	"io"
	"strings"

	"github.com/sourcegraph/go-diff/diff"

	"github.com/bkyoung/build-sensor/internal/domain"
)

// Read parses a multi-file unified diff into hunks. Context lines are
// dropped; only changed lines participate in feature derivation and hunk
// identity, matching the tree-walk analyzer's output shape.
func Read(r io.Reader) ([]domain.DiffHunk, error) {
	fileDiffs, err := diff.NewMultiFileDiffReader(r).ReadAllFiles()
	if err != nil {
		return nil, fmt.Errorf("parse unified diff: %w", err)
	}

	var hunks []domain.DiffHunk
	for _, fd := range fileDiffs {
		path := filePath(fd)
		for _, h := range fd.Hunks {
			hunk := convertHunk(path, h)
			if len(hunk.Lines) == 0 {
				continue
			}
			hunks = append(hunks, hunk)
		}
	}
	return hunks, nil
}

// filePath prefers the new-side name; git prefixes a/ and b/ are stripped.
func filePath(fd *diff.FileDiff) string {
	name := fd.NewName
	if name == "" || name == "/dev/null" {
		name = fd.OrigName
	}
	name = strings.TrimPrefix(name, "a/")
	name = strings.TrimPrefix(name, "b/")
	return name
}

func convertHunk(path string, h *diff.Hunk) domain.DiffHunk {
	var lines []string
	var oldCount, newCount int

	for _, line := range strings.Split(string(h.Body), "\n") {
		switch {
		case strings.HasPrefix(line, "+"):
			lines = append(lines, "+ "+line[1:])
			newCount++
		case strings.HasPrefix(line, "-"):
			lines = append(lines, "- "+line[1:])
			oldCount++
		}
	}

	oldStart := int(h.OrigStartLine)
	newStart := int(h.NewStartLine)

	return domain.DiffHunk{
		FilePath: path,
		OldStart: oldStart,
		OldCount: oldCount,
		NewStart: newStart,
		NewCount: newCount,
		Lines:    lines,
		HunkID:   domain.HunkID(path, oldStart, newStart, lines),
	}
}
