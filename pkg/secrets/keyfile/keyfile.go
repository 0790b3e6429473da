// SPDX-FileCopyrightText: Copyright 2025 Sellermesh, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package keyfile manages the generated encryption keys that the encrypted
// stores fall back to when no explicit key is configured. Keys are persisted
// owner-only next to the data they protect; first-time creation is guarded
// with a file lock so two processes starting together agree on one key.
package keyfile

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/sellermesh/adsgate/pkg/logger"
	"github.com/sellermesh/adsgate/pkg/secrets/aes"
)

// LoadOrCreate returns the key stored at path, generating and persisting a
// fresh one when the file does not exist. The create path is serialized
// across processes with a lock file next to the key.
func LoadOrCreate(path string) ([]byte, error) {
	if key, err := load(path); err == nil {
		return key, nil
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return nil, fmt.Errorf("failed to lock key file: %w", err)
	}
	defer func() {
		_ = lock.Unlock()
	}()

	// Another process may have won the race while we waited for the lock.
	if key, err := load(path); err == nil {
		return key, nil
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	key := make([]byte, aes.KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	if err := os.WriteFile(path, key, 0600); err != nil {
		return nil, fmt.Errorf("failed to persist key: %w", err)
	}

	logger.Infof("Generated new encryption key at %s", path)
	return key, nil
}

func load(path string) ([]byte, error) {
	key, err := os.ReadFile(path) // #nosec G304 -- path is derived from the store location
	if err != nil {
		return nil, err
	}
	if len(key) != aes.KeySize {
		return nil, fmt.Errorf("key file %s has invalid length %d", path, len(key))
	}
	return key, nil
}
