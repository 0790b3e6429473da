// SPDX-FileCopyrightText: Copyright 2025 Sellermesh, Inc.
// SPDX-License-Identifier: Apache-2.0

package keyfile_test

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sellermesh/adsgate/pkg/secrets/aes"
	"github.com/sellermesh/adsgate/pkg/secrets/keyfile"
)

func TestLoadOrCreateGeneratesAndReuses(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "cache", ".encryption.key")

	key1, err := keyfile.LoadOrCreate(path)
	require.NoError(t, err)
	assert.Len(t, key1, aes.KeySize)

	key2, err := keyfile.LoadOrCreate(path)
	require.NoError(t, err)
	assert.Equal(t, key1, key2)
}

func TestLoadOrCreatePermissions(t *testing.T) {
	t.Parallel()

	if runtime.GOOS == "windows" {
		t.Skip("file modes are not meaningful on windows")
	}

	path := filepath.Join(t.TempDir(), ".encryption.key")
	_, err := keyfile.LoadOrCreate(path)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestLoadOrCreateRejectsTruncatedKey(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), ".encryption.key")
	require.NoError(t, os.WriteFile(path, []byte("too-short"), 0600))

	_, err := keyfile.LoadOrCreate(path)
	assert.Error(t, err)
}
