// SPDX-FileCopyrightText: Copyright 2025 Sellermesh, Inc.
// SPDX-License-Identifier: Apache-2.0

package auth_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sellermesh/adsgate/pkg/auth"
	"github.com/sellermesh/adsgate/pkg/errors"
)

func nopConstructor(_ auth.ProviderConfig, _ auth.ProviderDeps) (auth.Provider, error) {
	return &fakeProvider{}, nil
}

func TestRegistryRegisterAndCreate(t *testing.T) {
	t.Parallel()

	registry := auth.NewRegistry()
	require.NoError(t, registry.Register("direct", nopConstructor))
	require.NoError(t, registry.Register("openbridge", nopConstructor))

	provider, err := registry.Create("direct", auth.DirectConfig{}, auth.ProviderDeps{})
	require.NoError(t, err)
	assert.NotNil(t, provider)

	assert.Equal(t, []string{"direct", "openbridge"}, registry.Types())
}

func TestRegistryRejectsCollision(t *testing.T) {
	t.Parallel()

	registry := auth.NewRegistry()
	require.NoError(t, registry.Register("direct", nopConstructor))

	err := registry.Register("direct", nopConstructor)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrConfig))
}

func TestRegistryUnknownTypeListsRegistered(t *testing.T) {
	t.Parallel()

	registry := auth.NewRegistry()
	require.NoError(t, registry.Register("direct", nopConstructor))
	require.NoError(t, registry.Register("openbridge", nopConstructor))

	_, err := registry.Create("saml", nil, auth.ProviderDeps{})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrProviderNotFound))
	assert.Contains(t, err.Error(), "direct, openbridge")
}

func TestRegistryRejectsEmptyKeyAndNilConstructor(t *testing.T) {
	t.Parallel()

	registry := auth.NewRegistry()
	assert.Error(t, registry.Register("", nopConstructor))
	assert.Error(t, registry.Register("direct", nil))
}
