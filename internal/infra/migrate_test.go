package infra

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocateMigrations(t *testing.T) {
	root := t.TempDir()
	migrations := filepath.Join(root, "db", "migrations")
	require.NoError(t, os.MkdirAll(migrations, 0o755))
	nested := filepath.Join(root, "test", "integration", "testutil")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	t.Run("walks up from a nested package", func(t *testing.T) {
		dir, err := LocateMigrations(nested)
		require.NoError(t, err)
		assert.Equal(t, migrations, dir)
	})

	t.Run("finds it from the root", func(t *testing.T) {
		dir, err := LocateMigrations(root)
		require.NoError(t, err)
		assert.Equal(t, migrations, dir)
	})

	t.Run("a file named like the directory is skipped", func(t *testing.T) {
		other := t.TempDir()
		require.NoError(t, os.MkdirAll(filepath.Join(other, "db"), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(other, "db", "migrations"), nil, 0o644))
		_, err := LocateMigrations(other)
		assert.ErrorContains(t, err, "no db/migrations directory")
	})
}
