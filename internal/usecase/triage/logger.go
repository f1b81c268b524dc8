package triage

import "context"

// Logger provides structured logging for the triage use case.
// The orchestrator logs warnings for degraded stages and info messages for
// pipeline milestones; fields carry ids and error details.
type Logger interface {
	// LogWarning logs a warning message with structured fields.
	LogWarning(ctx context.Context, message string, fields map[string]interface{})

	// LogInfo logs an informational message with structured fields.
	LogInfo(ctx context.Context, message string, fields map[string]interface{})
}
