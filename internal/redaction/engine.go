// Package redaction scrubs secrets from raw log lines before they are kept
// as template samples or persisted. Placeholders are stable hashes of the
// secret, so redacting the same stream twice yields identical output and
// template ids stay deterministic.
package redaction

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

// Engine performs regex-based secret detection and redaction.
type Engine struct {
	patterns []*regexp.Regexp
}

// NewEngine creates a redaction engine with the default secret patterns.
func NewEngine() *Engine {
	return &Engine{patterns: defaultPatterns()}
}

// Redact scans input for secrets and replaces them with stable placeholders.
func (e *Engine) Redact(input string) string {
	result := input
	seen := make(map[string]string) // secret -> placeholder

	for _, pattern := range e.patterns {
		for _, match := range pattern.FindAllString(result, -1) {
			if _, ok := seen[match]; ok {
				continue
			}
			seen[match] = placeholderFor(match)
		}
	}

	for secret, placeholder := range seen {
		result = strings.ReplaceAll(result, secret, placeholder)
	}
	return result
}

// IsRedacted reports whether content carries redaction placeholders.
func (e *Engine) IsRedacted(content string) bool {
	return strings.Contains(content, "<REDACTED:")
}

// placeholderFor derives a stable, unique placeholder for a secret.
func placeholderFor(secret string) string {
	hash := sha256.Sum256([]byte(secret))
	return fmt.Sprintf("<REDACTED:%s>", hex.EncodeToString(hash[:])[:8])
}

// defaultPatterns covers the secret shapes that show up in crash reports and
// service logs.
func defaultPatterns() []*regexp.Regexp {
	patterns := []string{
		// AWS Access Key ID
		`AKIA[0-9A-Z]{16}`,
		// GitHub tokens
		`gh[posr]_[a-zA-Z0-9]{20,}`,
		// Google API keys
		`AIza[0-9A-Za-z\-_]{35}`,
		// JWT tokens
		`eyJ[a-zA-Z0-9_-]+\.eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`,
		// Private keys (PEM format)
		`-----BEGIN\s+(?:RSA|EC|OPENSSH|DSA|ENCRYPTED)\s+PRIVATE\s+KEY-----[\s\S]*?-----END\s+(?:RSA|EC|OPENSSH|DSA|ENCRYPTED)\s+PRIVATE\s+KEY-----`,
		// Bearer tokens logged by HTTP middleware
		`Bearer\s+[a-zA-Z0-9_\-\.]{16,}`,
		// key=... / token=... query parameters
		`(?:api_key|apiKey|access_token|token)=[a-zA-Z0-9_\-\.]{12,}`,
	}

	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		compiled = append(compiled, regexp.MustCompile(pattern))
	}
	return compiled
}
