package domain

import "errors"

// ErrNoEvidence is returned when a reason is constructed without citations.
var ErrNoEvidence = errors.New("reason must cite at least one evidence ref")

// Reason is a scored, evidence-cited explanation contributing to a total
// priority score. EvidenceRefs is never empty.
type Reason struct {
	Text              string        `json:"text"`
	ScoreContribution float64       `json:"scoreContribution"`
	EvidenceRefs      []EvidenceRef `json:"evidenceRefs"`
}

// NewReason constructs a Reason, rejecting an empty citation list so a
// reason without evidence cannot exist.
func NewReason(text string, contribution float64, refs ...EvidenceRef) (Reason, error) {
	if len(refs) == 0 {
		return Reason{}, ErrNoEvidence
	}
	return Reason{
		Text:              text,
		ScoreContribution: contribution,
		EvidenceRefs:      refs,
	}, nil
}

// ScoreResult is the scoring engine's output for one bundle. TotalScore is
// the sum of contributions across reasons with no other adjustment, and is an
// open-ended relative ranking signal, not a bounded probability.
type ScoreResult struct {
	DiffID         string   `json:"diffId"`
	TotalScore     float64  `json:"totalScore"`
	Reasons        []Reason `json:"reasons"`
	RuleSetVersion string   `json:"ruleSetVersion"`
}
