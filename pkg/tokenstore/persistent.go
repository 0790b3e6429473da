// SPDX-FileCopyrightText: Copyright 2025 Sellermesh, Inc.
// SPDX-License-Identifier: Apache-2.0

package tokenstore

import (
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"

	"github.com/sellermesh/adsgate/pkg/errors"
	"github.com/sellermesh/adsgate/pkg/logger"
	"github.com/sellermesh/adsgate/pkg/secrets/aes"
	"github.com/sellermesh/adsgate/pkg/secrets/keyfile"
)

const (
	tokenFileName = "tokens.json"
	keyFileName   = ".token_encryption.key"
)

// PersistentStore layers an encrypted on-disk mirror over the in-memory
// store. Only refresh tokens are mirrored; access tokens and broker JWTs are
// short-lived and cheap to re-derive, so they stay memory-only.
type PersistentStore struct {
	mem  *MemoryStore
	path string

	// key is nil when no encryption key could be established. In that case
	// Set of a refresh token fails closed unless plaintext persistence was
	// explicitly allowed.
	key            []byte
	allowPlaintext bool
}

// PersistentOptions configures NewPersistentStore.
type PersistentOptions struct {
	// Path is an explicit token file location. Empty resolves through
	// CacheDir, the container cache, and finally the user cache directory.
	Path string

	// CacheDir is the configured cache directory override.
	CacheDir string

	// EncryptionKey is an explicit base64-encoded AES-256 key. Invalid
	// values are logged and ignored in favor of a generated key.
	EncryptionKey string

	// AllowPlaintext disables the fail-closed encryption policy.
	AllowPlaintext bool
}

// NewPersistentStore creates a persistent token store and loads any
// previously persisted refresh tokens. Construction never fails on key or
// load problems; those degrade to an empty, fail-closed store so the process
// can still serve from memory.
func NewPersistentStore(opts PersistentOptions) *PersistentStore {
	s := &PersistentStore{
		mem:            NewMemoryStore(),
		path:           resolveTokenPath(opts.Path, opts.CacheDir),
		allowPlaintext: opts.AllowPlaintext,
	}
	s.key = resolveKey(opts.EncryptionKey, filepath.Join(filepath.Dir(s.path), keyFileName))
	if s.key == nil && s.allowPlaintext {
		logger.Warnf("Plaintext token storage explicitly allowed! "+
			"Refresh tokens at %s will be stored UNENCRYPTED. This is INSECURE.", s.path)
	}
	s.load()
	return s
}

// Get retrieves a token from the memory layer.
func (s *PersistentStore) Get(key Key) (Entry, bool) {
	return s.mem.Get(key)
}

// Set stores a token. Refresh tokens are additionally mirrored to disk; if
// that would mean writing plaintext and plaintext was not explicitly allowed,
// the entry is rejected before anything is written.
func (s *PersistentStore) Set(key Key, entry Entry) error {
	if key.Kind == KindRefresh && s.key == nil && !s.allowPlaintext {
		return errors.New(errors.ErrEncryptionPolicy,
			"refusing to persist refresh token without an encryption key; "+
				"set AMAZON_ADS_ENCRYPTION_KEY or AMAZON_ADS_ALLOW_PLAINTEXT_PERSIST=true")
	}

	if err := s.mem.Set(key, entry); err != nil {
		return err
	}
	if key.Kind == KindRefresh {
		return s.flush()
	}
	return nil
}

// Invalidate removes a token, rewriting the mirror when a refresh token goes.
func (s *PersistentStore) Invalidate(key Key) error {
	if err := s.mem.Invalidate(key); err != nil {
		return err
	}
	if key.Kind == KindRefresh {
		return s.flush()
	}
	return nil
}

// InvalidateMatching removes matching tokens and rewrites the mirror when the
// filter could have touched refresh tokens.
func (s *PersistentStore) InvalidateMatching(f Filter) int {
	removed := s.mem.InvalidateMatching(f)
	if removed > 0 && (f.Kind == "" || f.Kind == KindRefresh) {
		if err := s.flush(); err != nil {
			logger.Warnf("Failed to rewrite persisted tokens: %v", err)
		}
	}
	return removed
}

// Clear removes all tokens and the on-disk mirror.
func (s *PersistentStore) Clear() error {
	if err := s.mem.Clear(); err != nil {
		return err
	}
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(errors.ErrStorage, "failed to remove token file", err)
	}
	return nil
}

// load reads the persisted blob into the memory layer, dropping anything
// expired. A missing file is a normal first run; a corrupt or undecryptable
// one is logged and treated as empty.
func (s *PersistentStore) load() {
	data, err := os.ReadFile(s.path) // #nosec G304 -- path is resolved from configuration
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warnf("Failed to read persisted tokens from %s: %v", s.path, err)
		}
		return
	}

	if aes.IsEncrypted(data) {
		if s.key == nil {
			logger.Warnf("Persisted tokens at %s are encrypted but no key is available, ignoring", s.path)
			return
		}
		data, err = aes.Decrypt(data, s.key)
		if err != nil {
			logger.Warnf("Failed to decrypt persisted tokens at %s, ignoring: %v", s.path, err)
			return
		}
	}

	var entries map[string]Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		logger.Warnf("Persisted token file %s is corrupt, ignoring: %v", s.path, err)
		return
	}

	loaded := 0
	for raw, entry := range entries {
		key, err := ParseKey(raw)
		if err != nil || entry.IsExpired() {
			continue
		}
		if err := s.mem.Set(key, entry); err == nil {
			loaded++
		}
	}
	if loaded > 0 {
		logger.Infof("Loaded %d persisted refresh token(s)", loaded)
	}
}

// flush rewrites the on-disk mirror from the current refresh tokens. The file
// is written to a temp name and renamed so readers never see a partial blob.
func (s *PersistentStore) flush() error {
	refresh := make(map[string]Entry)
	for raw, entry := range s.mem.snapshot() {
		key, err := ParseKey(raw)
		if err != nil || key.Kind != KindRefresh {
			continue
		}
		refresh[raw] = entry
	}

	if len(refresh) == 0 {
		if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
			return errors.Wrap(errors.ErrStorage, "failed to remove token file", err)
		}
		return nil
	}

	data, err := json.Marshal(refresh)
	if err != nil {
		return errors.Wrap(errors.ErrStorage, "failed to serialize tokens", err)
	}

	if s.key != nil {
		data, err = aes.Encrypt(data, s.key)
		if err != nil {
			return errors.Wrap(errors.ErrStorage, "failed to encrypt tokens", err)
		}
	} else if !s.allowPlaintext {
		return errors.New(errors.ErrEncryptionPolicy,
			"refusing to persist refresh token without an encryption key")
	} else {
		logger.Warnf("Persisting refresh tokens UNENCRYPTED to %s", s.path)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return errors.Wrap(errors.ErrStorage, "failed to create cache directory", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return errors.Wrap(errors.ErrStorage, "failed to write token file", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(errors.ErrStorage, "failed to replace token file", err)
	}
	return nil
}

// resolveKey establishes the at-rest encryption key: an explicit env key
// wins, an invalid one is logged loudly and replaced with a generated key,
// and without any explicit key one is loaded or created next to the store.
func resolveKey(explicit, keyPath string) []byte {
	if explicit != "" {
		key, err := base64.StdEncoding.DecodeString(explicit)
		if err == nil && len(key) == aes.KeySize {
			return key
		}
		logger.Errorf("AMAZON_ADS_ENCRYPTION_KEY is not a valid base64 AES-256 key, falling back to a generated key")
	}

	key, err := keyfile.LoadOrCreate(keyPath)
	if err != nil {
		logger.Warnf("Failed to establish encryption key at %s: %v", keyPath, err)
		return nil
	}
	return key
}

// resolveTokenPath picks the token file location: explicit path, then the
// configured cache dir, then the container cache mount, then the user cache.
func resolveTokenPath(explicit, cacheDir string) string {
	if explicit != "" {
		return explicit
	}
	if cacheDir != "" {
		return filepath.Join(cacheDir, tokenFileName)
	}
	if info, err := os.Stat("/app/.cache"); err == nil && info.IsDir() {
		return filepath.Join("/app/.cache", tokenFileName)
	}
	return filepath.Join(xdg.CacheHome, "adsgate", tokenFileName)
}
