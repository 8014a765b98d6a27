package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListMigrationFilesAndCount(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"000002_b.up.sql", "000001_a.up.sql", "000001_a.down.sql", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o600))
	}

	files := listMigrationFiles(dir)
	assert.Equal(t, []string{"000001_a.up.sql", "000002_b.up.sql"}, files)
	assert.Equal(t, uint64(2), parseVersion("000002_b.up.sql"))
	assert.Equal(t, 1, countApplied(files, 1, 2))
	assert.Equal(t, 0, countApplied(files, 2, 2))
}

func TestConfigURLAndDSN(t *testing.T) {
	cfg := Config{Host: "db", Port: "5432", User: "bot", Password: "p@ss", Name: "xl"}
	assert.True(t, cfg.Enabled())
	assert.Equal(t, "postgres://bot:p%40ss@db:5432/xl?sslmode=disable", cfg.URL())
	assert.Contains(t, cfg.DSN(), "sslmode=disable")
	assert.False(t, Config{}.Enabled())
}
