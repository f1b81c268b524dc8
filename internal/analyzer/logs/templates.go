// Package logs reduces raw log lines to message templates and correlates
// template content against binary string tables.
package logs

import (
	"bufio"
	"context"
	"io"
	"regexp"
	"strings"

	"github.com/bkyoung/build-sensor/internal/domain"
)

// placeholder stands in for every variable token so structurally identical
// messages collapse to one template regardless of argument values.
const placeholder = "%@"

var (
	subsystemPrefix = regexp.MustCompile(`^\[([\w.\-]+):([\w.\-]+)\]\s*`)
	formatSpecifier = regexp.MustCompile(`%[-+ #0]*\d*(?:\.\d+)?(?:ll|l|h|z)?[@dDiIsSuUxXfFpc]`)
	quotedString    = regexp.MustCompile(`"[^"]*"|'[^']*'`)
	hexToken        = regexp.MustCompile(`\b0[xX][0-9a-fA-F]+\b`)
	numberToken     = regexp.MustCompile(`\b\d+\b`)
	whitespaceRun   = regexp.MustCompile(`\s+`)
)

// Options bound template extraction.
type Options struct {
	// MaxTemplates caps the distinct templates kept from one stream.
	MaxTemplates int
	// MaxLineLength drops lines longer than this before normalization.
	MaxLineLength int
	// MaxSamples caps the raw sample lines retained per template.
	MaxSamples int
}

// DefaultOptions are the extraction caps applied when a limit is unset.
func DefaultOptions() Options {
	return Options{MaxTemplates: 100, MaxLineLength: 400, MaxSamples: 3}
}

// TemplateExtractor reduces a build's raw log stream to deduplicated message
// templates in first-seen order, which keeps template ids stable across
// reruns of the same stream.
type TemplateExtractor struct {
	opts Options
}

// NewTemplateExtractor constructs a template extractor.
func NewTemplateExtractor(opts Options) *TemplateExtractor {
	def := DefaultOptions()
	if opts.MaxTemplates <= 0 {
		opts.MaxTemplates = def.MaxTemplates
	}
	if opts.MaxLineLength <= 0 {
		opts.MaxLineLength = def.MaxLineLength
	}
	if opts.MaxSamples <= 0 {
		opts.MaxSamples = def.MaxSamples
	}
	return &TemplateExtractor{opts: opts}
}

// Extract reads the stream line by line. Lines may carry an optional
// "[subsystem:category]" prefix; everything else lands under default/default.
func (e *TemplateExtractor) Extract(ctx context.Context, r io.Reader) ([]domain.LogTemplate, []domain.Notice, error) {
	var templates []domain.LogTemplate
	index := make(map[string]int)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		raw := strings.TrimSpace(scanner.Text())
		if raw == "" || len(raw) > e.opts.MaxLineLength {
			continue
		}

		subsystem, category, message := splitSubsystem(raw)
		format := Normalize(message)
		if format == "" {
			continue
		}

		id := domain.TemplateID(subsystem, category, format)
		if at, ok := index[id]; ok {
			if len(templates[at].Samples) < e.opts.MaxSamples {
				templates[at].Samples = append(templates[at].Samples, message)
			}
			continue
		}
		if len(templates) >= e.opts.MaxTemplates {
			continue
		}
		index[id] = len(templates)
		templates = append(templates, domain.LogTemplate{
			TemplateID:   id,
			Subsystem:    subsystem,
			Category:     category,
			FormatString: format,
			Samples:      []string{message},
		})
	}

	var notices []domain.Notice
	if err := scanner.Err(); err != nil {
		notices = append(notices, domain.Notice{
			Stage:   "log_templates",
			Subject: "stream",
			Message: "log stream cut short: " + err.Error(),
		})
	}
	return templates, notices, nil
}

func splitSubsystem(line string) (subsystem, category, message string) {
	if m := subsystemPrefix.FindStringSubmatch(line); m != nil {
		return m[1], m[2], line[len(m[0]):]
	}
	return "default", "default", line
}

// Normalize collapses variable tokens (format specifiers, quoted strings, hex
// addresses, numbers) to one placeholder and squeezes whitespace, yielding
// the message's template shape.
func Normalize(message string) string {
	tpl := formatSpecifier.ReplaceAllString(message, placeholder)
	tpl = quotedString.ReplaceAllString(tpl, placeholder)
	tpl = hexToken.ReplaceAllString(tpl, placeholder)
	tpl = numberToken.ReplaceAllString(tpl, placeholder)
	tpl = whitespaceRun.ReplaceAllString(tpl, " ")
	return strings.TrimSpace(tpl)
}
