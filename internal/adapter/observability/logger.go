// Package observability provides the structured logger the pipeline uses for
// warnings and milestones. Output goes through the standard log package so
// tests and callers can redirect it.
package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"
)

// LogLevel defines the logging verbosity level.
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

// LogFormat defines the output format for logs.
type LogFormat int

const (
	LogFormatHuman LogFormat = iota
	LogFormatJSON
)

// ParseLevel maps a config string to a level; unknown values mean info.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(s) {
	case "debug":
		return LogLevelDebug
	case "warn", "warning":
		return LogLevelWarn
	case "error":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

// ParseFormat maps a config string to a format; unknown values mean human.
func ParseFormat(s string) LogFormat {
	if strings.ToLower(s) == "json" {
		return LogFormatJSON
	}
	return LogFormatHuman
}

// DefaultLogger writes structured logs to the standard logger.
type DefaultLogger struct {
	level  LogLevel
	format LogFormat
}

// NewDefaultLogger creates a logger with the specified config.
func NewDefaultLogger(level LogLevel, format LogFormat) *DefaultLogger {
	return &DefaultLogger{level: level, format: format}
}

// LogDebug logs a debug message with structured fields.
func (l *DefaultLogger) LogDebug(ctx context.Context, message string, fields map[string]interface{}) {
	l.emit(LogLevelDebug, "debug", message, fields)
}

// LogInfo logs an informational message with structured fields.
func (l *DefaultLogger) LogInfo(ctx context.Context, message string, fields map[string]interface{}) {
	l.emit(LogLevelInfo, "info", message, fields)
}

// LogWarning logs a warning message with structured fields.
func (l *DefaultLogger) LogWarning(ctx context.Context, message string, fields map[string]interface{}) {
	l.emit(LogLevelWarn, "warning", message, fields)
}

// LogError logs an error message with structured fields.
func (l *DefaultLogger) LogError(ctx context.Context, message string, fields map[string]interface{}) {
	l.emit(LogLevelError, "error", message, fields)
}

func (l *DefaultLogger) emit(level LogLevel, name, message string, fields map[string]interface{}) {
	if l.level > level {
		return
	}

	if l.format == LogFormatJSON {
		entry := map[string]interface{}{"level": name, "message": message}
		if len(fields) > 0 {
			entry["fields"] = fields
		}
		data, err := json.Marshal(entry)
		if err != nil {
			log.Printf(`{"level":"error","message":"log entry not serializable: %v"}`, err)
			return
		}
		log.Printf("%s", data)
		return
	}

	if len(fields) == 0 {
		log.Printf("[%s] %s", strings.ToUpper(name), message)
		return
	}
	log.Printf("[%s] %s (%s)", strings.ToUpper(name), message, formatFields(fields))
}

// formatFields renders fields as sorted key=value pairs so human output is
// stable across runs.
func formatFields(fields map[string]interface{}) string {
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", key, fields[key]))
	}
	return strings.Join(parts, ", ")
}
