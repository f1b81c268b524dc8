package repository_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bkyoung/build-sensor/internal/adapter/repository"
)

func writeFile(t *testing.T, root, path, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(path))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func TestDirTree_Files(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "parser.c", "int main() {}\n")
	writeFile(t, root, "lib/decode.c", "void decode() {}\n")
	writeFile(t, root, ".git/config", "[core]\n")

	tree := repository.NewDirTree(root)

	files, err := tree.Files()
	require.NoError(t, err)

	assert.Equal(t, []string{"lib/decode.c", "parser.c"}, files, "sorted, slash-separated, no .git")
}

func TestDirTree_ReadFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "lib/decode.c", "void decode() {}\n")

	tree := repository.NewDirTree(root)

	data, err := tree.ReadFile("lib/decode.c")
	require.NoError(t, err)
	assert.Equal(t, "void decode() {}\n", string(data))
}

func TestDirTree_BlocksPathTraversal(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "parser.c", "x")

	tree := repository.NewDirTree(root)

	_, err := tree.ReadFile("../../etc/passwd")
	assert.Error(t, err)
}
