package determinism

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// DiffID creates the deterministic identifier for one diff run over a
// (build_from, build_to, component) triple. The same triple always yields the
// same id, so re-running a diff replaces its prior bundle instead of
// accumulating duplicates.
func DiffID(buildFrom, buildTo, component string) string {
	input := fmt.Sprintf("%s|%s|%s", buildFrom, buildTo, component)
	hash := sha256.Sum256([]byte(input))
	return "diff_" + hex.EncodeToString(hash[:])[:16]
}

// GenerateSeed creates a deterministic uint64 seed from the diff triple, for
// collaborators that want reproducible sampling over a bundle.
// The returned value is guaranteed to fit in a signed int64.
func GenerateSeed(buildFrom, buildTo, component string) uint64 {
	input := fmt.Sprintf("%s|%s|%s", buildFrom, buildTo, component)
	hash := sha256.Sum256([]byte(input))
	seed := binary.BigEndian.Uint64(hash[:8])

	// Mask off the high bit so the value stays in int64 range.
	seed = seed & 0x7FFFFFFFFFFFFFFF

	return seed
}
