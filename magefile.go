//go:build mage

package main

import (
	"fmt"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

var (
	// Default target executed when none is specified.
	Default = CI
)

// CI runs the full pipeline: format, lint, test, build.
func CI() {
	mg.SerialDeps(Format, Lint, Test, Build)
}

// Format updates Go sources using gofmt.
func Format() error {
	return run("go", "fmt", "./...")
}

// Lint executes go vet to perform static analysis.
func Lint() error {
	return run("go", "vet", "./...")
}

// Test runs the full Go test suite.
func Test() error {
	return run("go", "test", "./...")
}

// Build compiles all packages, then the sensor binary with the version
// stamped in.
func Build() error {
	if err := run("go", "build", "./..."); err != nil {
		return err
	}

	ldflags := fmt.Sprintf("-X github.com/bkyoung/build-sensor/internal/version.version=%s", resolveVersion())
	return run("go", "build", "-ldflags", ldflags, "-o", "sensor", "./cmd/sensor")
}

func run(cmd string, args ...string) error {
	if err := sh.RunV(cmd, args...); err != nil {
		return fmt.Errorf("%s %v: %w", cmd, args, err)
	}
	return nil
}

// resolveVersion stamps the nearest tag, marked dirty when the tree has
// uncommitted changes or HEAD has moved past the tag.
func resolveVersion() string {
	const defaultVersion = "v0.0.0"

	tag, err := sh.Output("git", "describe", "--tags", "--abbrev=0")
	if err != nil || strings.TrimSpace(tag) == "" {
		return defaultVersion
	}
	tag = strings.TrimSpace(tag)

	if status, err := sh.Output("git", "status", "--porcelain"); err == nil && strings.TrimSpace(status) != "" {
		return tag + "-dirty"
	}
	if _, err := sh.Output("git", "describe", "--tags", "--exact-match"); err != nil {
		return tag + "-dirty"
	}
	return tag
}
