package logs_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bkyoung/build-sensor/internal/analyzer/logs"
	"github.com/bkyoung/build-sensor/internal/domain"
)

func TestExtract_CollapsesVariableTokens(t *testing.T) {
	stream := strings.NewReader(strings.Join([]string{
		"[parser:decode] read 100 entries at 0x7fff5000",
		"[parser:decode] read 250 entries at 0x7fff6140",
		`[parser:decode] rejected header "bad-magic"`,
	}, "\n"))

	templates, notices, err := logs.NewTemplateExtractor(logs.DefaultOptions()).Extract(context.Background(), stream)
	require.NoError(t, err)
	assert.Empty(t, notices)

	require.Len(t, templates, 2, "structurally identical messages collapse to one template")
	assert.Equal(t, "read %@ entries at %@", templates[0].FormatString)
	assert.Equal(t, "parser", templates[0].Subsystem)
	assert.Equal(t, "decode", templates[0].Category)
	assert.Len(t, templates[0].Samples, 2)
	assert.Equal(t, "rejected header %@", templates[1].FormatString)
}

func TestExtract_UnprefixedLinesUseDefaults(t *testing.T) {
	stream := strings.NewReader("connection reset by peer\n")

	templates, _, err := logs.NewTemplateExtractor(logs.DefaultOptions()).Extract(context.Background(), stream)
	require.NoError(t, err)

	require.Len(t, templates, 1)
	assert.Equal(t, "default", templates[0].Subsystem)
	assert.Equal(t, "default", templates[0].Category)
}

func TestExtract_Idempotent(t *testing.T) {
	const content = "[net:conn] socket 42 closed\n[net:conn] socket 977 closed\n[io:disk] write failed at 0xdeadbeef\n"

	first, _, err := logs.NewTemplateExtractor(logs.DefaultOptions()).Extract(context.Background(), strings.NewReader(content))
	require.NoError(t, err)
	second, _, err := logs.NewTemplateExtractor(logs.DefaultOptions()).Extract(context.Background(), strings.NewReader(content))
	require.NoError(t, err)

	assert.Equal(t, first, second, "re-extracting an unchanged stream yields identical templates and ids")
}

func TestExtract_FirstSeenOrder(t *testing.T) {
	stream := strings.NewReader("zeta happened\nalpha happened\nzeta happened\n")

	templates, _, err := logs.NewTemplateExtractor(logs.DefaultOptions()).Extract(context.Background(), stream)
	require.NoError(t, err)

	require.Len(t, templates, 2)
	assert.Equal(t, "zeta happened", templates[0].FormatString)
	assert.Equal(t, "alpha happened", templates[1].FormatString)
}

func TestExtract_FormatSpecifiersCollapse(t *testing.T) {
	stream := strings.NewReader("[kernel:vm] mapping %llu pages for pid %d\n")

	templates, _, err := logs.NewTemplateExtractor(logs.DefaultOptions()).Extract(context.Background(), stream)
	require.NoError(t, err)

	require.Len(t, templates, 1)
	assert.Equal(t, "mapping %@ pages for pid %@", templates[0].FormatString)
}

func TestCorrelate(t *testing.T) {
	templates := []domain.LogTemplate{
		{
			TemplateID:   domain.TemplateID("parser", "decode", "invalid magic in header"),
			Subsystem:    "parser",
			Category:     "decode",
			FormatString: "invalid magic in header",
		},
		{
			TemplateID:   domain.TemplateID("parser", "decode", "totally unrelated message"),
			Subsystem:    "parser",
			Category:     "decode",
			FormatString: "totally unrelated message",
		},
	}
	set := domain.BinaryFeatureSet{
		Strings: []string{"invalid magic in header", "_parse_header", "/usr/lib/libz.dylib"},
	}

	matches := logs.NewCorrelator().Correlate(templates, set)

	require.Len(t, matches, 1, "a literal present in the table matches once, an unrelated string not at all")
	assert.Equal(t, templates[0].TemplateID, matches[0].TemplateID)
	assert.Equal(t, "invalid magic in header", matches[0].MatchedString)
	assert.Equal(t, domain.StringID("invalid magic in header"), matches[0].StringID)
}

func TestCorrelate_FragmentOfTemplatedMessage(t *testing.T) {
	tpl := domain.LogTemplate{
		TemplateID:   domain.TemplateID("parser", "decode", "read %@ entries at %@"),
		FormatString: "read %@ entries at %@",
	}
	set := domain.BinaryFeatureSet{Strings: []string{"read %llu entries at %p"}}

	matches := logs.NewCorrelator().Correlate([]domain.LogTemplate{tpl}, set)

	require.Len(t, matches, 1, "a literal fragment of the format string matches verbatim")
}

func TestCorrelate_ShortFragmentsIgnored(t *testing.T) {
	tpl := domain.LogTemplate{
		TemplateID:   domain.TemplateID("d", "d", "at %@ ok %@"),
		FormatString: "at %@ ok %@",
	}
	set := domain.BinaryFeatureSet{Strings: []string{"this string contains at somewhere"}}

	matches := logs.NewCorrelator().Correlate([]domain.LogTemplate{tpl}, set)

	assert.Empty(t, matches, "fragments below the minimum length are not membership probes")
}
