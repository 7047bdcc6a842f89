// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package sqlite

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_AppliesWAL(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "wal.sqlite"), DefaultConfig())
	require.NoError(t, err)
	defer db.Close()

	var mode string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)

	v, err := UserVersion(db)
	require.NoError(t, err)
	assert.Equal(t, 0, v)
}

func TestOpen_MissingDirectoryFails(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing", "x.sqlite"), DefaultConfig())
	assert.Error(t, err)
}

func TestVerifyIntegrity_Healthy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "healthy.sqlite")
	db, err := Open(path, DefaultConfig())
	require.NoError(t, err)
	_, err = db.Exec("CREATE TABLE t (id INTEGER PRIMARY KEY, data TEXT)")
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO t (data) VALUES ('a'), ('b')")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	issues, err := VerifyIntegrity(path, "quick")
	require.NoError(t, err)
	assert.Nil(t, issues)

	issues, err = VerifyIntegrity(path, "full")
	require.NoError(t, err)
	assert.Nil(t, issues)
}
