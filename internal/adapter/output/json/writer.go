package json

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bkyoung/build-sensor/internal/usecase/triage"
)

// Writer implements the triage.JSONWriter interface. One file carries both
// the evidence bundle and the score result so the artifact is self-contained:
// every reason's citation resolves inside the same document.
type Writer struct {
	now func() string
}

// NewWriter creates a new JSON writer with a timestamp supplier.
func NewWriter(now func() string) *Writer {
	return &Writer{now: now}
}

// report is the on-disk shape of one scored diff.
type report struct {
	Bundle interface{} `json:"bundle"`
	Score  interface{} `json:"score"`
}

// Write persists the bundle and score to disk as a JSON file.
func (w *Writer) Write(ctx context.Context, artifact triage.ReportArtifact) (string, error) {
	if err := os.MkdirAll(artifact.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	filename := fmt.Sprintf("%s_%s_%s.json",
		sanitise(artifact.Bundle.Component),
		sanitise(artifact.Bundle.DiffID),
		w.now(),
	)
	path := filepath.Join(artifact.OutputDir, filename)

	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create json file: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(report{Bundle: artifact.Bundle, Score: artifact.Score}); err != nil {
		return "", fmt.Errorf("encode report to json: %w", err)
	}

	return path, nil
}

func sanitise(value string) string {
	if value == "" {
		return "unknown"
	}
	value = strings.ToLower(value)
	value = strings.ReplaceAll(value, string(filepath.Separator), "-")
	value = strings.ReplaceAll(value, " ", "-")
	return value
}
