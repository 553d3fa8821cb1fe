package assertions

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestFileLoader_Resolve(t *testing.T) {
	dir := t.TempDir()
	writeTempFile(t, dir, "expected.txt", "hello world")
	writeTempFile(t, dir, "expected.json", `{"words": ["a", "b"]}`)
	writeTempFile(t, dir, "expected.yaml", "words:\n  - a\n  - b\n")
	writeTempFile(t, dir, "expected.csv", "a,b\n")

	loader := &FileLoader{BaseDir: dir}

	t.Run("literal values pass through", func(t *testing.T) {
		v, err := loader.Resolve("plain string")
		require.NoError(t, err)
		require.Equal(t, "plain string", v)

		n, err := loader.Resolve(42)
		require.NoError(t, err)
		require.Equal(t, 42, n)
	})

	t.Run("txt file", func(t *testing.T) {
		v, err := loader.Resolve("file://expected.txt")
		require.NoError(t, err)
		require.Equal(t, "hello world", v)
	})

	t.Run("json file", func(t *testing.T) {
		v, err := loader.Resolve("file://expected.json")
		require.NoError(t, err)
		m, ok := v.(map[string]any)
		require.True(t, ok)
		require.Equal(t, []any{"a", "b"}, m["words"])
	})

	t.Run("yaml file", func(t *testing.T) {
		v, err := loader.Resolve("file://expected.yaml")
		require.NoError(t, err)
		m, ok := v.(map[string]any)
		require.True(t, ok)
		require.Equal(t, []any{"a", "b"}, m["words"])
	})

	t.Run("unsupported extension rejected", func(t *testing.T) {
		_, err := loader.Resolve("file://expected.csv")
		require.Error(t, err)
		require.Contains(t, err.Error(), "Unsupported file type")
	})

	t.Run("package ref without resolver errors", func(t *testing.T) {
		_, err := loader.Resolve("package:my-org/checks")
		require.Error(t, err)
	})

	t.Run("package ref delegates to resolver", func(t *testing.T) {
		withPackages := &FileLoader{
			BaseDir: dir,
			Packages: func(name string) (any, error) {
				require.Equal(t, "my-org/checks", name)
				return "resolved", nil
			},
		}
		v, err := withPackages.Resolve("package:my-org/checks")
		require.NoError(t, err)
		require.Equal(t, "resolved", v)
	})
}
