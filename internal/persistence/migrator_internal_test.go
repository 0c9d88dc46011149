package persistence

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractVersion(t *testing.T) {
	assert.Equal(t, "000001", extractVersion("000001_event_log.up.sql"))
	assert.Equal(t, "000002", extractVersion("000002_checkpoints.down.sql"))
	assert.Equal(t, "plain.sql", extractVersion("plain.sql"))
}

func TestListMigrationFiles_SortsAndFilters(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"000002_b.up.sql", "000001_a.up.sql", "000001_a.down.sql", "README.md",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("--"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "000003_dir.up.sql"), 0o755))

	m := NewMigrator(nil, dir)
	up, err := m.listMigrationFiles(".up.sql")
	require.NoError(t, err)
	assert.Equal(t, []string{"000001_a.up.sql", "000002_b.up.sql"}, up)

	down, err := m.listMigrationFiles(".down.sql")
	require.NoError(t, err)
	assert.Equal(t, []string{"000001_a.down.sql"}, down)
}

func TestRepositoryMigrationsArePaired(t *testing.T) {
	m := NewMigrator(nil, filepath.Join("..", "..", "migrations"))
	up, err := m.listMigrationFiles(".up.sql")
	require.NoError(t, err)
	require.NotEmpty(t, up)

	for _, f := range up {
		down := f[:len(f)-len(".up.sql")] + ".down.sql"
		_, err := os.Stat(filepath.Join(m.migrationsDir, down))
		assert.NoError(t, err, "missing %s", down)
	}
}
