// SPDX-FileCopyrightText: Copyright 2025 Sellermesh, Inc.
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"github.com/sellermesh/adsgate/pkg/auth"
	"github.com/sellermesh/adsgate/pkg/auth/direct"
	"github.com/sellermesh/adsgate/pkg/auth/openbridge"
	"github.com/sellermesh/adsgate/pkg/config"
	"github.com/sellermesh/adsgate/pkg/networking"
	"github.com/sellermesh/adsgate/pkg/oauthflow"
	"github.com/sellermesh/adsgate/pkg/oauthstate"
	"github.com/sellermesh/adsgate/pkg/secrets"
	"github.com/sellermesh/adsgate/pkg/tokenstore"
)

// appContext bundles the application-scoped collaborators built once at
// startup and injected everywhere. There is deliberately no global instance.
type appContext struct {
	settings *config.Settings
	manager  *auth.Manager
	vault    *secrets.Vault
	states   *oauthstate.Store
}

// buildAppContext wires settings, registry, stores, vault, and manager.
func buildAppContext() (*appContext, error) {
	settings := config.Load()

	registry := auth.NewRegistry()
	if err := registry.Register(direct.ProviderType, direct.New); err != nil {
		return nil, err
	}
	if err := registry.Register(openbridge.ProviderType, openbridge.New); err != nil {
		return nil, err
	}

	vault := secrets.NewVault(secrets.Options{
		CacheDir:      settings.CacheDir,
		EncryptionKey: settings.EncryptionKey,
	})

	manager, err := auth.NewManager(auth.ManagerOptions{
		Settings: settings,
		Registry: registry,
		Deps: auth.ProviderDeps{
			Store:  tokenstore.New(settings),
			Client: networking.DefaultClient(),
			Vault:  vault,
		},
	})
	if err != nil {
		return nil, err
	}

	return &appContext{
		settings: settings,
		manager:  manager,
		vault:    vault,
		states: oauthstate.NewStore(oauthstate.Options{
			Secret:   settings.OAuthStateSecret,
			Persist:  settings.OAuthStatePersist,
			CacheDir: settings.CacheDir,
		}),
	}, nil
}

// buildFlow creates the interactive authorization flow when the direct
// client id is configured. Returns nil when it is not; the oauth tools then
// report that interactive authorization is unavailable.
func (c *appContext) buildFlow() (*oauthflow.Flow, error) {
	if c.settings.ClientID == "" {
		return nil, nil
	}
	return oauthflow.NewFlow(oauthflow.Options{
		ClientID:     c.settings.ClientID,
		ClientSecret: c.settings.ClientSecret,
		RedirectURI:  c.settings.OAuthRedirectURI,
		Region:       c.settings.Region,
		States:       c.states,
		Vault:        c.vault,
	})
}
