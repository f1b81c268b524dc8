package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GenerateRunID creates a unique, time-ordered run ID.
// Format: run-<timestamp>-<suffix>
// Example: run-20260823T143052Z-a3f9c2d1
func GenerateRunID(timestamp time.Time) string {
	ts := timestamp.UTC().Format("20060102T150405Z")
	return fmt.Sprintf("run-%s-%s", ts, uuid.NewString()[:8])
}

// CalculateConfigHash creates a deterministic hash of a configuration so a
// stored run records exactly which settings produced it. The input must be
// JSON-serializable.
func CalculateConfigHash(config interface{}) (string, error) {
	data, err := json.Marshal(config)
	if err != nil {
		return "", fmt.Errorf("marshal config for hashing: %w", err)
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:8]), nil
}
