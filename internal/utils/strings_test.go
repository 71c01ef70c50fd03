package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeJSON(t *testing.T) {
	require.Equal(t, "", NormalizeJSON(""))
	require.Equal(t, `{"a":1,"b":[1,2]}`, NormalizeJSON("{ \"b\": [1, 2],\n \"a\": 1 }"))
	require.Equal(t, "not json", NormalizeJSON("not json"))
}

func TestGlobFiltered(t *testing.T) {
	base := t.TempDir()
	for _, f := range []string{"handler.py", "pkg/util.py", "pkg/__pycache__/util.cpython-39.pyc", "tests/test_handler.py", "README.md"} {
		p := filepath.Join(base, filepath.FromSlash(f))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	}

	got, err := GlobFiltered(base, []string{"**"}, []string{"**/__pycache__/**", "tests/**", "*.md"})
	require.NoError(t, err)
	rels := make([]string, 0, len(got))
	for _, g := range got {
		rel, _ := filepath.Rel(base, g)
		rels = append(rels, filepath.ToSlash(rel))
	}
	require.ElementsMatch(t, []string{"handler.py", "pkg/util.py"}, rels)
}

func TestGlobFiltered_MissingBase(t *testing.T) {
	_, err := GlobFiltered(filepath.Join(t.TempDir(), "missing"), []string{"**"}, nil)
	require.Error(t, err)
}
