package binary_test

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	binaryanalyzer "github.com/bkyoung/build-sensor/internal/analyzer/binary"
	"github.com/bkyoung/build-sensor/internal/domain"
)

// minimalELF returns a valid 64-bit little-endian ELF header with no program
// or section headers, optionally followed by trailing payload bytes.
func minimalELF(trailer []byte) []byte {
	header := make([]byte, 64)
	copy(header, []byte{0x7f, 'E', 'L', 'F'})
	header[4] = 2 // ELFCLASS64
	header[5] = 1 // little-endian
	header[6] = 1 // EV_CURRENT
	binary.LittleEndian.PutUint16(header[16:], 2)    // ET_EXEC
	binary.LittleEndian.PutUint16(header[18:], 0x3e) // EM_X86_64
	binary.LittleEndian.PutUint32(header[20:], 1)    // version
	binary.LittleEndian.PutUint16(header[52:], 64)   // ehsize
	return append(header, trailer...)
}

func writeArtifact(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestExtract_MinimalELF(t *testing.T) {
	path := writeArtifact(t, "lib.so", minimalELF([]byte("a_long_embedded_string\x00sh\x00")))

	set, err := binaryanalyzer.NewExtractor(binaryanalyzer.DefaultOptions()).
		Extract(context.Background(), "22A100", "libparser", path)
	require.NoError(t, err)

	assert.Equal(t, domain.ExtractionOK, set.Status)
	assert.Equal(t, "22A100", set.BuildID)
	assert.Equal(t, "libparser", set.Component)
	assert.Contains(t, set.Strings, "a_long_embedded_string")
	assert.NotContains(t, set.Strings, "sh", "runs below the minimum length are dropped")
	assert.Empty(t, set.Symbols, "header-only binary carries no symbol table")
}

func TestExtract_TruncatedMidHeader(t *testing.T) {
	path := writeArtifact(t, "trunc.bin", []byte{0x7f, 'E'})

	set, err := binaryanalyzer.NewExtractor(binaryanalyzer.DefaultOptions()).
		Extract(context.Background(), "22A100", "libparser", path)
	require.NoError(t, err, "truncation is a degradation, not a failure")

	assert.Equal(t, domain.ExtractionTruncated, set.Status)
	assert.NotEmpty(t, set.Notice)
	assert.Empty(t, set.Strings)
	assert.Empty(t, set.Imports)
	assert.Empty(t, set.Symbols)
}

func TestExtract_MalformedBodyWithValidMagic(t *testing.T) {
	// Valid magic, garbage body: recorded as truncated/malformed, not unsupported.
	data := append([]byte{0x7f, 'E', 'L', 'F'}, []byte("not really an elf file at all")...)
	path := writeArtifact(t, "bad.so", data)

	set, err := binaryanalyzer.NewExtractor(binaryanalyzer.DefaultOptions()).
		Extract(context.Background(), "22A100", "libparser", path)
	require.NoError(t, err)

	assert.Equal(t, domain.ExtractionTruncated, set.Status)
	assert.Empty(t, set.Strings)
}

func TestExtract_UnsupportedFormat(t *testing.T) {
	path := writeArtifact(t, "script.sh", []byte("#!/bin/sh\necho hello\n"))

	set, err := binaryanalyzer.NewExtractor(binaryanalyzer.DefaultOptions()).
		Extract(context.Background(), "22A100", "libparser", path)
	require.NoError(t, err)

	assert.Equal(t, domain.ExtractionUnsupported, set.Status, "unknown magic is unsupported, distinct from malformed")
}

func TestScanStrings(t *testing.T) {
	data := []byte("short\x00a_printable_run\x01another_run_here\xffa_printable_run\x00")

	strings := binaryanalyzer.ScanStrings(data, 6, 10)

	assert.Equal(t, []string{"a_printable_run", "another_run_here"}, strings,
		"first-seen order, de-duplicated, below-threshold runs dropped")
}

func TestScanStringsCap(t *testing.T) {
	data := []byte("first_string\x00second_string\x00third_string\x00")

	strings := binaryanalyzer.ScanStrings(data, 6, 2)

	assert.Len(t, strings, 2)
}
