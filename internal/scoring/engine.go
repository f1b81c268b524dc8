// Package scoring converts an evidence bundle into a total priority score
// plus cited reasons. The engine performs no I/O and no artifact lookups: it
// is a pure, replayable function of the bundle passed to it.
package scoring

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/bkyoung/build-sensor/internal/domain"
)

// baseVersion names the rule code generation. The full rule-set version also
// covers the effective weights, so a recomputation identity check catches
// configuration drift as well as code drift.
const baseVersion = "sensor-rules-v1"

// Engine is a fixed, versioned set of scoring rules.
type Engine struct {
	weights Weights
	version string
}

// NewEngine constructs an engine with the default weights overlaid by the
// provided overrides. Unknown override keys are ignored.
func NewEngine(overrides Weights) *Engine {
	weights := DefaultWeights()
	for id := range weights {
		if w, ok := overrides[id]; ok {
			weights[id] = w
		}
	}
	return &Engine{weights: weights, version: versionFor(weights)}
}

// Version identifies the rule set plus effective weights.
func (e *Engine) Version() string {
	return e.version
}

// Score evaluates every rule against the bundle. A bundle matching no rule
// is a legitimate zero-score outcome, never an error; the total is the plain
// sum of contributions with no normalization or capping.
func (e *Engine) Score(bundle domain.EvidenceBundle) domain.ScoreResult {
	result := domain.ScoreResult{
		DiffID:         bundle.DiffID,
		Reasons:        []domain.Reason{},
		RuleSetVersion: e.version,
	}
	for _, r := range ruleTable {
		for _, reason := range r.evaluate(bundle, e.weights[r.id]) {
			result.Reasons = append(result.Reasons, reason)
			result.TotalScore += reason.ScoreContribution
		}
	}
	return result
}

func versionFor(weights Weights) string {
	ids := make([]string, 0, len(weights))
	for id := range weights {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var payload strings.Builder
	for _, id := range ids {
		fmt.Fprintf(&payload, "%s=%g;", id, weights[id])
	}
	sum := sha256.Sum256([]byte(payload.String()))
	return baseVersion + "+w" + hex.EncodeToString(sum[:])[:8]
}
