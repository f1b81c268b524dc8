package binary

import (
	"bytes"
	"context"
	"debug/elf"
	"debug/macho"
	"fmt"
	"os"

	"github.com/bkyoung/build-sensor/internal/domain"
)

// Options bound the extraction walk.
type Options struct {
	// MinStringLength is the shortest printable run kept from the string walk.
	MinStringLength int
	// MaxStrings caps the string table to keep bundles bounded by artifact size.
	MaxStrings int
}

// DefaultOptions are the extraction thresholds applied when a cap is unset.
func DefaultOptions() Options {
	return Options{MinStringLength: 6, MaxStrings: 2000}
}

// Extractor pulls strings, imports, and symbols out of one compiled artifact.
// Extraction is read-only and format-aware: ELF and Mach-O are recognized by
// header magic, anything else is reported as unsupported rather than malformed.
type Extractor struct {
	opts Options
}

// NewExtractor constructs a binary feature extractor.
func NewExtractor(opts Options) *Extractor {
	if opts.MinStringLength <= 0 {
		opts.MinStringLength = DefaultOptions().MinStringLength
	}
	if opts.MaxStrings <= 0 {
		opts.MaxStrings = DefaultOptions().MaxStrings
	}
	return &Extractor{opts: opts}
}

// Extract builds the feature set for one artifact. A malformed or truncated
// binary yields empty fields plus a truncation notice instead of an error;
// partial information is preferable to total failure, but the degradation is
// recorded so downstream consumers can discount it.
func (e *Extractor) Extract(ctx context.Context, buildID, component, path string) (domain.BinaryFeatureSet, error) {
	set := domain.BinaryFeatureSet{BuildID: buildID, Component: component, Status: domain.ExtractionOK}

	if err := ctx.Err(); err != nil {
		return set, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		set.Status = domain.ExtractionTruncated
		set.Notice = fmt.Sprintf("unreadable artifact: %v", err)
		return set, nil
	}
	if len(data) < 4 {
		set.Status = domain.ExtractionTruncated
		set.Notice = "artifact truncated before header magic"
		return set, nil
	}

	format := sniffFormat(data)
	if format == formatUnknown {
		set.Status = domain.ExtractionUnsupported
		set.Notice = "unrecognized header magic"
		return set, nil
	}

	symbols, imports, err := readSymbolTables(format, data)
	if err != nil {
		// Valid magic but an unparseable body: degrade to empty-with-notice.
		set.Status = domain.ExtractionTruncated
		set.Notice = fmt.Sprintf("malformed %s artifact: %v", format, err)
		return set, nil
	}

	set.Strings = ScanStrings(data, e.opts.MinStringLength, e.opts.MaxStrings)
	set.Symbols = dedupe(symbols)
	set.Imports = dedupe(imports)
	return set, nil
}

type binaryFormat string

const (
	formatUnknown binaryFormat = ""
	formatELF     binaryFormat = "elf"
	formatMachO   binaryFormat = "mach-o"
)

func sniffFormat(data []byte) binaryFormat {
	if bytes.HasPrefix(data, []byte{0x7f, 'E', 'L', 'F'}) {
		return formatELF
	}
	machoMagics := [][]byte{
		{0xfe, 0xed, 0xfa, 0xce}, {0xfe, 0xed, 0xfa, 0xcf}, // big-endian 32/64
		{0xce, 0xfa, 0xed, 0xfe}, {0xcf, 0xfa, 0xed, 0xfe}, // little-endian 32/64
		{0xca, 0xfe, 0xba, 0xbe}, // fat
	}
	for _, magic := range machoMagics {
		if bytes.HasPrefix(data, magic) {
			return formatMachO
		}
	}
	return formatUnknown
}

func readSymbolTables(format binaryFormat, data []byte) (symbols, imports []string, err error) {
	switch format {
	case formatELF:
		return readELF(data)
	case formatMachO:
		return readMachO(data)
	}
	return nil, nil, fmt.Errorf("no reader for format %q", format)
}

func readELF(data []byte) (symbols, imports []string, err error) {
	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	// A stripped binary legitimately has no symbol table.
	if syms, symErr := f.Symbols(); symErr == nil {
		for _, s := range syms {
			if s.Name != "" {
				symbols = append(symbols, s.Name)
			}
		}
	}
	if dynSyms, dynErr := f.DynamicSymbols(); dynErr == nil {
		for _, s := range dynSyms {
			if s.Name != "" {
				symbols = append(symbols, s.Name)
			}
		}
	}

	if libs, libErr := f.ImportedLibraries(); libErr == nil {
		imports = libs
	}
	return symbols, imports, nil
}

func readMachO(data []byte) (symbols, imports []string, err error) {
	f, err := openMachO(data)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	if f.Symtab != nil {
		for _, s := range f.Symtab.Syms {
			if s.Name != "" {
				symbols = append(symbols, s.Name)
			}
		}
	}
	if libs, libErr := f.ImportedLibraries(); libErr == nil {
		imports = libs
	}
	return symbols, imports, nil
}

// openMachO handles both thin and fat artifacts; for a fat binary the first
// architecture slice stands in for the whole artifact.
func openMachO(data []byte) (*macho.File, error) {
	if bytes.HasPrefix(data, []byte{0xca, 0xfe, 0xba, 0xbe}) {
		fat, err := macho.NewFatFile(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		if len(fat.Arches) == 0 {
			return nil, fmt.Errorf("fat binary with no architectures")
		}
		return fat.Arches[0].File, nil
	}
	return macho.NewFile(bytes.NewReader(data))
}

// ScanStrings walks raw bytes for printable ASCII runs of at least minLen,
// de-duplicated in first-seen order and capped at maxStrings.
func ScanStrings(data []byte, minLen, maxStrings int) []string {
	var out []string
	seen := make(map[string]struct{})
	start := -1

	flush := func(end int) {
		if start < 0 || end-start < minLen {
			start = -1
			return
		}
		s := string(data[start:end])
		start = -1
		if _, ok := seen[s]; ok {
			return
		}
		seen[s] = struct{}{}
		if len(out) < maxStrings {
			out = append(out, s)
		}
	}

	for i, b := range data {
		if b >= 0x20 && b <= 0x7e {
			if start < 0 {
				start = i
			}
			continue
		}
		flush(i)
	}
	flush(len(data))
	return out
}

func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	var out []string
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
