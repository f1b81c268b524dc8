// Package repository provides source.Tree implementations over real build
// inputs: a plain directory snapshot and a git ref.
package repository

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DirTree exposes a directory snapshot as a source tree.
// All paths are resolved relative to the root directory and path traversal
// attempts are blocked.
type DirTree struct {
	root string
}

// NewDirTree creates a tree rooted at the given directory.
func NewDirTree(root string) *DirTree {
	return &DirTree{root: root}
}

// Files lists every regular file under the root as a slash-separated
// relative path, sorted. Version control metadata is skipped.
func (t *DirTree) Files() ([]string, error) {
	var paths []string

	err := filepath.WalkDir(t.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			if entry.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(t.root, path)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", t.root, err)
	}

	sort.Strings(paths)
	return paths, nil
}

// ReadFile reads the contents of a file at the given relative path.
func (t *DirTree) ReadFile(path string) ([]byte, error) {
	resolved, err := t.resolvePath(path)
	if err != nil {
		return nil, fmt.Errorf("invalid path %q: %w", path, err)
	}
	return os.ReadFile(resolved)
}

// resolvePath resolves a path and validates it's within the tree root.
// It follows symlinks to prevent bypassing the root directory check.
func (t *DirTree) resolvePath(path string) (string, error) {
	resolved := path
	if !filepath.IsAbs(path) {
		resolved = filepath.Join(t.root, filepath.FromSlash(path))
	}
	resolved = filepath.Clean(resolved)

	realRoot, err := filepath.EvalSymlinks(t.root)
	if err != nil {
		realRoot = filepath.Clean(t.root)
	}

	realPath, err := filepath.EvalSymlinks(resolved)
	if err != nil {
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("resolving symlinks: %w", err)
		}
		rel, relErr := filepath.Rel(realRoot, resolved)
		if relErr != nil || strings.HasPrefix(rel, "..") {
			return "", fmt.Errorf("path traversal detected")
		}
		return resolved, nil
	}

	rel, err := filepath.Rel(realRoot, realPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("path traversal detected")
	}

	return realPath, nil
}
