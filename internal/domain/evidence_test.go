package domain_test

import (
	"strings"
	"testing"

	"github.com/bkyoung/build-sensor/internal/domain"
)

func TestHunkIDDeterministic(t *testing.T) {
	lines := []string{"- old line", "+ new line"}

	first := domain.HunkID("parser.c", 10, 10, lines)
	second := domain.HunkID("parser.c", 10, 10, lines)

	if first != second {
		t.Fatalf("expected deterministic hunk ids, got %s and %s", first, second)
	}
	if !strings.HasPrefix(first, "hunk:") {
		t.Errorf("hunk id %s missing namespace prefix", first)
	}
}

func TestHunkIDDistinctInputs(t *testing.T) {
	lines := []string{"+ added"}

	a := domain.HunkID("parser.c", 10, 10, lines)
	b := domain.HunkID("parser.c", 20, 20, lines)
	c := domain.HunkID("other.c", 10, 10, lines)

	if a == b || a == c {
		t.Fatalf("distinct inputs must not collide: %s %s %s", a, b, c)
	}
}

func TestStableIDNamespacesDoNotCollide(t *testing.T) {
	// A symbol whose name happens to equal a template's format string must
	// still yield a distinct identifier.
	sym := domain.SymbolID("connection reset")
	tpl := domain.TemplateID("net", "default", "connection reset")

	if sym == tpl {
		t.Fatalf("cross-kind collision: %s", sym)
	}
	if !strings.HasPrefix(sym, "sym:") || !strings.HasPrefix(tpl, "tpl:") {
		t.Errorf("expected namespaced ids, got %s and %s", sym, tpl)
	}
}

func TestBinaryDiffPairStableIDPrefersToSide(t *testing.T) {
	matched := domain.BinaryDiffPair{SymbolFrom: "_parse", SymbolTo: "_parse", Basis: domain.MatchByName}
	removed := domain.BinaryDiffPair{SymbolFrom: "_legacy", Basis: domain.MatchNone}

	if matched.StableID() != domain.SymbolID("_parse") {
		t.Errorf("matched pair id = %s", matched.StableID())
	}
	if removed.StableID() != domain.SymbolID("_legacy") {
		t.Errorf("removed pair id = %s", removed.StableID())
	}
}
