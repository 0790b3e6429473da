// SPDX-FileCopyrightText: Copyright 2025 Sellermesh, Inc.
// SPDX-License-Identifier: Apache-2.0

package tokenstore

import (
	"github.com/sellermesh/adsgate/pkg/config"
	"github.com/sellermesh/adsgate/pkg/logger"
)

// New builds the token store selected by the configuration: the encrypted
// persistent store when AMAZON_ADS_TOKEN_PERSIST is set, the in-memory store
// otherwise.
func New(cfg *config.Settings) Store {
	if !cfg.TokenPersist {
		return NewMemoryStore()
	}

	logger.Info("Token persistence enabled")
	return NewPersistentStore(PersistentOptions{
		CacheDir:       cfg.CacheDir,
		EncryptionKey:  cfg.EncryptionKey,
		AllowPlaintext: cfg.AllowPlaintextPersist,
	})
}
