package source

import "sort"

// Tree abstracts a resolved source tree handed over by the ingestion
// collaborator. Implementations exist for plain directories and for git refs;
// the analyzer never discovers artifacts on its own.
type Tree interface {
	// Files lists every regular file as a slash-separated relative path.
	Files() ([]string, error)

	// ReadFile returns the raw contents of one listed file.
	ReadFile(path string) ([]byte, error)
}

// unionPaths merges the file lists of both trees into one sorted, de-duplicated
// slice. Sorting fixes the file-path iteration order the hunk contract promises.
func unionPaths(from, to []string) []string {
	seen := make(map[string]struct{}, len(from)+len(to))
	var paths []string
	for _, list := range [][]string{from, to} {
		for _, p := range list {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)
	return paths
}
