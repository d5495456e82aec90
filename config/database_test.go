package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetDB(t *testing.T) {
	original := DB
	defer func() { DB = original }()

	DB = nil
	assert.Nil(t, GetDB(), "GetDB should return nil when DB is not initialized")
}

func TestDSN(t *testing.T) {
	tests := []struct {
		name        string
		path        string
		foreignKeys bool
		want        string
	}{
		{
			name:        "file store with foreign keys",
			path:        "northwind.db",
			foreignKeys: true,
			want:        "file:northwind.db?_foreign_keys=1&_journal_mode=WAL&_busy_timeout=5000",
		},
		{
			name:        "file store without foreign keys",
			path:        "/tmp/nw.db",
			foreignKeys: false,
			want:        "file:/tmp/nw.db?_foreign_keys=0&_journal_mode=WAL&_busy_timeout=5000",
		},
		{
			name:        "in-memory store",
			path:        ":memory:",
			foreignKeys: true,
			want:        "file::memory:?_foreign_keys=1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DSN(tt.path, tt.foreignKeys))
		})
	}
}

func TestOpenDatabaseEnforcesForeignKeys(t *testing.T) {
	db, err := OpenDatabase(filepath.Join(t.TempDir(), "fk.db"), true)
	require.NoError(t, err)

	var enabled int
	require.NoError(t, db.Raw("PRAGMA foreign_keys").Scan(&enabled).Error)
	assert.Equal(t, 1, enabled)
}

func TestOpenDatabaseWithoutForeignKeys(t *testing.T) {
	db, err := OpenDatabase(filepath.Join(t.TempDir(), "nofk.db"), false)
	require.NoError(t, err)

	var enabled int
	require.NoError(t, db.Raw("PRAGMA foreign_keys").Scan(&enabled).Error)
	assert.Equal(t, 0, enabled)
}

func TestOpenDatabaseRequiresPath(t *testing.T) {
	_, err := OpenDatabase("", true)
	assert.Error(t, err)
}

func TestConnectDatabase(t *testing.T) {
	original := DB
	defer func() { DB = original }()

	cfg := &Config{DatabasePath: filepath.Join(t.TempDir(), "connect.db"), ForeignKeys: true}
	require.NoError(t, ConnectDatabase(cfg))
	assert.NotNil(t, GetDB())
}

func TestConnectDatabaseUnwritableLocation(t *testing.T) {
	original := DB
	defer func() { DB = original }()

	cfg := &Config{DatabasePath: filepath.Join(t.TempDir(), "missing", "dir", "nw.db"), ForeignKeys: true}
	assert.Error(t, ConnectDatabase(cfg), "Should fail when the store directory does not exist")
}
