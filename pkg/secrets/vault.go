// SPDX-FileCopyrightText: Copyright 2025 Sellermesh, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package secrets implements the bootstrap vault: a small encrypted
// key/value store for the long-lived secret obtained through the interactive
// authorization flow. It is deliberately independent of the token store so a
// refresh token survives restarts even when token persistence is off.
package secrets

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/adrg/xdg"
	"github.com/zalando/go-keyring"
	"golang.org/x/crypto/pbkdf2"

	"github.com/sellermesh/adsgate/pkg/errors"
	"github.com/sellermesh/adsgate/pkg/logger"
	"github.com/sellermesh/adsgate/pkg/secrets/aes"
	"github.com/sellermesh/adsgate/pkg/secrets/keyfile"
)

// RefreshTokenID is the vault entry holding the refresh token captured by
// the interactive authorization flow.
const RefreshTokenID = "oauth_refresh_token"

const (
	vaultFileName = "secrets.enc"
	vaultKeyName  = ".vault_encryption.key"

	keyringService = "adsgate"
	keyringUser    = "vault-encryption-key"
)

// kdfSalt is fixed so the same password always derives the same key. The
// vault's threat model is at-rest protection, not password storage.
var kdfSalt = []byte("adsgate-vault-salt")

const kdfIterations = 100000

// Entry is one stored secret.
type Entry struct {
	ID        string            `json:"id"`
	Kind      string            `json:"kind"`
	Value     string            `json:"value"`
	StoredAt  time.Time         `json:"stored_at"`
	ExpiresAt *time.Time        `json:"expires_at,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func (e Entry) expired() bool {
	return e.ExpiresAt != nil && time.Now().After(*e.ExpiresAt)
}

// Vault is the encrypted key/value store. Values are cached decrypted in
// memory; a cache miss re-reads the file so a secret written by another
// process is picked up without a restart.
type Vault struct {
	mu    sync.Mutex
	path  string
	key   []byte
	cache map[string]Entry
}

// Options configures NewVault.
type Options struct {
	// Path is an explicit vault file location. Empty resolves through
	// CacheDir and then the user data directory.
	Path string

	// CacheDir is the configured storage directory override.
	CacheDir string

	// EncryptionKey is either a base64-encoded 32-byte key or a password
	// to derive one from.
	EncryptionKey string

	// DisableKeyring skips the OS keyring key source. Tests set this.
	DisableKeyring bool
}

// NewVault creates the vault and loads any persisted secrets. Key
// establishment never fails construction; without a key the vault still
// serves its in-memory cache and refuses to persist.
func NewVault(opts Options) *Vault {
	v := &Vault{
		path:  resolveVaultPath(opts.Path, opts.CacheDir),
		cache: make(map[string]Entry),
	}
	v.key = v.resolveKey(opts)
	v.loadLocked()
	return v
}

// Store saves a secret and rewrites the encrypted file.
func (v *Vault) Store(entry Entry) error {
	if entry.ID == "" {
		return errors.New(errors.ErrConfig, "secret id must not be empty")
	}
	if v.key == nil {
		return errors.New(errors.ErrEncryptionPolicy,
			"refusing to persist secret without an encryption key")
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if entry.StoredAt.IsZero() {
		entry.StoredAt = time.Now().UTC()
	}
	v.cache[entry.ID] = entry
	if err := v.saveLocked(); err != nil {
		return err
	}
	logger.Debugf("Stored %s secret %s", entry.Kind, entry.ID)
	return nil
}

// Get retrieves a secret by id. A miss re-reads the file once in case
// another process wrote the secret after this vault loaded.
func (v *Vault) Get(id string) (Entry, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if entry, ok := v.cache[id]; ok {
		if entry.expired() {
			delete(v.cache, id)
			if err := v.saveLocked(); err != nil {
				logger.Warnf("Failed to rewrite vault after expiry: %v", err)
			}
			return Entry{}, false
		}
		return entry, true
	}

	v.loadLocked()
	entry, ok := v.cache[id]
	if ok && entry.expired() {
		delete(v.cache, id)
		return Entry{}, false
	}
	return entry, ok
}

// Delete removes a secret and rewrites the file.
func (v *Vault) Delete(id string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, ok := v.cache[id]; !ok {
		return nil
	}
	delete(v.cache, id)
	return v.saveLocked()
}

// Clear removes all secrets and the vault file.
func (v *Vault) Clear() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.cache = make(map[string]Entry)
	if err := os.Remove(v.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(errors.ErrStorage, "failed to remove vault file", err)
	}
	return nil
}

// saveLocked rewrites the whole vault as one encrypted blob. Expired entries
// are dropped on the way out. Callers hold v.mu.
func (v *Vault) saveLocked() error {
	if v.key == nil {
		return errors.New(errors.ErrEncryptionPolicy,
			"refusing to persist secret without an encryption key")
	}

	live := make(map[string]Entry, len(v.cache))
	for id, entry := range v.cache {
		if entry.expired() {
			continue
		}
		live[id] = entry
	}

	data, err := json.Marshal(live)
	if err != nil {
		return errors.Wrap(errors.ErrStorage, "failed to serialize vault", err)
	}
	blob, err := aes.Encrypt(data, v.key)
	if err != nil {
		return errors.Wrap(errors.ErrStorage, "failed to encrypt vault", err)
	}

	if err := os.MkdirAll(filepath.Dir(v.path), 0700); err != nil {
		return errors.Wrap(errors.ErrStorage, "failed to create vault directory", err)
	}
	tmp := v.path + ".tmp"
	if err := os.WriteFile(tmp, blob, 0600); err != nil {
		return errors.Wrap(errors.ErrStorage, "failed to write vault file", err)
	}
	if err := os.Rename(tmp, v.path); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(errors.ErrStorage, "failed to replace vault file", err)
	}
	return nil
}

// loadLocked replaces the cache from the encrypted file, dropping expired
// entries. A missing, corrupt, or undecryptable file leaves the vault empty.
// Callers hold v.mu (or the vault is not yet shared).
func (v *Vault) loadLocked() {
	blob, err := os.ReadFile(v.path) // #nosec G304 -- path is resolved from configuration
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warnf("Failed to read vault file %s: %v", v.path, err)
		}
		return
	}
	if v.key == nil {
		logger.Warnf("Vault file %s exists but no key is available, ignoring", v.path)
		return
	}

	data, err := aes.Decrypt(blob, v.key)
	if err != nil {
		logger.Warnf("Failed to decrypt vault file %s, starting fresh: %v", v.path, err)
		return
	}

	var entries map[string]Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		logger.Warnf("Vault file %s is corrupt, starting fresh: %v", v.path, err)
		return
	}

	v.cache = make(map[string]Entry, len(entries))
	for id, entry := range entries {
		if entry.expired() {
			continue
		}
		v.cache[id] = entry
	}
	logger.Debugf("Loaded %d secret(s) from vault", len(v.cache))
}

// resolveKey establishes the vault encryption key. An explicit value is used
// directly when it decodes to a 32-byte key and otherwise treated as a
// password to derive from; after that the OS keyring is tried best-effort,
// and finally a key file is loaded or created next to the vault.
func (v *Vault) resolveKey(opts Options) []byte {
	if opts.EncryptionKey != "" {
		if key, err := base64.StdEncoding.DecodeString(opts.EncryptionKey); err == nil && len(key) == aes.KeySize {
			return key
		}
		if key, err := base64.URLEncoding.DecodeString(opts.EncryptionKey); err == nil && len(key) == aes.KeySize {
			return key
		}
		return pbkdf2.Key([]byte(opts.EncryptionKey), kdfSalt, kdfIterations, aes.KeySize, sha256.New)
	}

	if !opts.DisableKeyring {
		if key := keyFromKeyring(); key != nil {
			return key
		}
	}

	key, err := keyfile.LoadOrCreate(filepath.Join(filepath.Dir(v.path), vaultKeyName))
	if err != nil {
		logger.Warnf("Failed to establish vault key: %v", err)
		return nil
	}
	return key
}

// keyFromKeyring loads the vault key from the OS keyring, generating and
// storing one on first use. Any keyring failure falls through to the key
// file; headless hosts commonly have no keyring at all.
func keyFromKeyring() []byte {
	stored, err := keyring.Get(keyringService, keyringUser)
	if err == nil {
		key, decErr := base64.StdEncoding.DecodeString(stored)
		if decErr == nil && len(key) == aes.KeySize {
			return key
		}
		logger.Warnf("Keyring holds an invalid vault key, ignoring")
		return nil
	}
	if err != keyring.ErrNotFound {
		logger.Debugf("OS keyring unavailable: %v", err)
		return nil
	}

	key, err := generateKey()
	if err != nil {
		return nil
	}
	if err := keyring.Set(keyringService, keyringUser, base64.StdEncoding.EncodeToString(key)); err != nil {
		logger.Debugf("Failed to store vault key in keyring: %v", err)
		return nil
	}
	logger.Info("Generated vault encryption key in OS keyring")
	return key
}

func generateKey() ([]byte, error) {
	key := make([]byte, aes.KeySize)
	if _, err := rand.Read(key); err != nil {
		logger.Warnf("Failed to generate vault key: %v", err)
		return nil, err
	}
	return key, nil
}

func resolveVaultPath(explicit, cacheDir string) string {
	if explicit != "" {
		return explicit
	}
	if cacheDir != "" {
		return filepath.Join(cacheDir, vaultFileName)
	}
	return filepath.Join(xdg.DataHome, "adsgate", vaultFileName)
}
