// Package git materializes source trees from a git repository so builds can
// be addressed by ref or commit instead of by exported directory.
package git

import (
	"fmt"
	"sort"

	goGit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Engine opens a repository and resolves refs to tree snapshots.
type Engine struct {
	repoDir string
}

// NewEngine constructs a Git engine for the provided repository directory.
func NewEngine(repoDir string) *Engine {
	return &Engine{repoDir: repoDir}
}

// TreeAt resolves ref to a commit and returns its tree as a source tree.
func (e *Engine) TreeAt(ref string) (*RefTree, error) {
	repo, err := goGit.PlainOpenWithOptions(e.repoDir, &goGit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	commit, err := resolveCommit(repo, ref)
	if err != nil {
		return nil, fmt.Errorf("resolve ref %s: %w", ref, err)
	}

	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("load tree for %s: %w", ref, err)
	}

	return &RefTree{tree: tree, commit: commit.Hash.String()}, nil
}

func resolveCommit(repo *goGit.Repository, ref string) (*object.Commit, error) {
	candidates := []string{
		ref,
		fmt.Sprintf("refs/heads/%s", ref),
		fmt.Sprintf("refs/tags/%s", ref),
		fmt.Sprintf("refs/remotes/origin/%s", ref),
	}

	var lastErr error
	for _, candidate := range candidates {
		hash, err := repo.ResolveRevision(plumbing.Revision(candidate))
		if err != nil {
			lastErr = err
			continue
		}
		return repo.CommitObject(*hash)
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, fmt.Errorf("unable to resolve ref %s", ref)
}

// RefTree is an immutable snapshot of one commit's tree.
type RefTree struct {
	tree   *object.Tree
	commit string
}

// Commit returns the resolved commit hash behind this snapshot.
func (t *RefTree) Commit() string {
	return t.commit
}

// Files lists every blob path in the tree, sorted.
func (t *RefTree) Files() ([]string, error) {
	var paths []string
	err := t.tree.Files().ForEach(func(f *object.File) error {
		paths = append(paths, f.Name)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate tree: %w", err)
	}
	sort.Strings(paths)
	return paths, nil
}

// ReadFile reads one blob's contents by its tree path.
func (t *RefTree) ReadFile(path string) ([]byte, error) {
	file, err := t.tree.File(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	contents, err := file.Contents()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return []byte(contents), nil
}
