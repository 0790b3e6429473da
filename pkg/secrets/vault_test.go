// SPDX-FileCopyrightText: Copyright 2025 Sellermesh, Inc.
// SPDX-License-Identifier: Apache-2.0

package secrets_test

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sellermesh/adsgate/pkg/secrets"
	"github.com/sellermesh/adsgate/pkg/secrets/aes"
)

func newTestVault(t *testing.T, dir string) *secrets.Vault {
	t.Helper()
	return secrets.NewVault(secrets.Options{CacheDir: dir, DisableKeyring: true})
}

func TestVaultStoreAndGet(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	vault := newTestVault(t, dir)

	require.NoError(t, vault.Store(secrets.Entry{
		ID:       secrets.RefreshTokenID,
		Kind:     "refresh",
		Value:    "Atzr|refresh-token",
		Metadata: map[string]string{"source": "oauth_flow"},
	}))

	got, ok := vault.Get(secrets.RefreshTokenID)
	require.True(t, ok)
	assert.Equal(t, "Atzr|refresh-token", got.Value)
	assert.Equal(t, "refresh", got.Kind)
	assert.False(t, got.StoredAt.IsZero())
}

func TestVaultFileIsEncrypted(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	vault := newTestVault(t, dir)
	require.NoError(t, vault.Store(secrets.Entry{ID: "k", Kind: "refresh", Value: "v"}))

	data, err := os.ReadFile(filepath.Join(dir, "secrets.enc"))
	require.NoError(t, err)
	assert.True(t, aes.IsEncrypted(data))
	assert.NotContains(t, string(data), "v")
}

func TestVaultSurvivesReopen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	vault := newTestVault(t, dir)
	require.NoError(t, vault.Store(secrets.Entry{ID: "k", Kind: "refresh", Value: "persisted"}))

	reopened := newTestVault(t, dir)
	got, ok := reopened.Get("k")
	require.True(t, ok)
	assert.Equal(t, "persisted", got.Value)
}

func TestVaultReloadOnMiss(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	first := newTestVault(t, dir)
	second := newTestVault(t, dir)

	// A secret written through one vault instance becomes visible to the
	// other on its next miss.
	require.NoError(t, first.Store(secrets.Entry{ID: "shared", Kind: "refresh", Value: "cross-process"}))

	got, ok := second.Get("shared")
	require.True(t, ok)
	assert.Equal(t, "cross-process", got.Value)
}

func TestVaultDropsExpired(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	vault := newTestVault(t, dir)

	past := time.Now().Add(-time.Minute)
	require.NoError(t, vault.Store(secrets.Entry{ID: "old", Kind: "access", Value: "dead", ExpiresAt: &past}))

	_, ok := vault.Get("old")
	assert.False(t, ok)
}

func TestVaultDelete(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	vault := newTestVault(t, dir)
	require.NoError(t, vault.Store(secrets.Entry{ID: "k", Kind: "refresh", Value: "v"}))

	require.NoError(t, vault.Delete("k"))
	_, ok := vault.Get("k")
	assert.False(t, ok)

	// Deleting an absent id is a no-op.
	require.NoError(t, vault.Delete("k"))
}

func TestVaultClear(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	vault := newTestVault(t, dir)
	require.NoError(t, vault.Store(secrets.Entry{ID: "k", Kind: "refresh", Value: "v"}))

	require.NoError(t, vault.Clear())
	_, ok := vault.Get("k")
	assert.False(t, ok)
	_, err := os.Stat(filepath.Join(dir, "secrets.enc"))
	assert.True(t, os.IsNotExist(err))
}

func TestVaultRejectsEmptyID(t *testing.T) {
	t.Parallel()

	vault := newTestVault(t, t.TempDir())
	assert.Error(t, vault.Store(secrets.Entry{Kind: "refresh", Value: "v"}))
}

func TestVaultExplicitBase64Key(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	key := base64.StdEncoding.EncodeToString(make([]byte, aes.KeySize))

	vault := secrets.NewVault(secrets.Options{CacheDir: dir, EncryptionKey: key, DisableKeyring: true})
	require.NoError(t, vault.Store(secrets.Entry{ID: "k", Kind: "refresh", Value: "v"}))

	// Same key decrypts; no key file should have been generated.
	reopened := secrets.NewVault(secrets.Options{CacheDir: dir, EncryptionKey: key, DisableKeyring: true})
	got, ok := reopened.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", got.Value)

	_, err := os.Stat(filepath.Join(dir, ".vault_encryption.key"))
	assert.True(t, os.IsNotExist(err))
}

func TestVaultPasswordDerivedKeyIsDeterministic(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	vault := secrets.NewVault(secrets.Options{CacheDir: dir, EncryptionKey: "hunter2", DisableKeyring: true})
	require.NoError(t, vault.Store(secrets.Entry{ID: "k", Kind: "refresh", Value: "derived"}))

	same := secrets.NewVault(secrets.Options{CacheDir: dir, EncryptionKey: "hunter2", DisableKeyring: true})
	got, ok := same.Get("k")
	require.True(t, ok)
	assert.Equal(t, "derived", got.Value)

	// A different password cannot read the vault.
	wrong := secrets.NewVault(secrets.Options{CacheDir: dir, EncryptionKey: "letmein", DisableKeyring: true})
	_, ok = wrong.Get("k")
	assert.False(t, ok)
}
