package db

import (
	"testing"
	"testing/fstest"

	"github.com/campaign-hub/backend/migrations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingFilesOrdersUpMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"000002_usage.up.sql":  {Data: []byte("SELECT 2")},
		"000001_init.up.sql":   {Data: []byte("SELECT 1")},
		"000001_init.down.sql": {Data: []byte("SELECT 0")},
		"README.md":            {Data: []byte("notes")},
		"000010_later.up.sql":  {Data: []byte("SELECT 10")},
	}

	files, err := pendingFiles(fsys)
	require.NoError(t, err)
	assert.Equal(t, []string{"000001_init.up.sql", "000002_usage.up.sql", "000010_later.up.sql"}, files)
}

func TestEmbeddedMigrationsPresent(t *testing.T) {
	files, err := pendingFiles(migrations.FS)
	require.NoError(t, err)
	require.NotEmpty(t, files)
	assert.Equal(t, "000001_init.up.sql", files[0])
}
