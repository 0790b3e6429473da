// SPDX-FileCopyrightText: Copyright 2025 Sellermesh, Inc.
// SPDX-License-Identifier: Apache-2.0

package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sellermesh/adsgate/pkg/auth"
	"github.com/sellermesh/adsgate/pkg/config"
	"github.com/sellermesh/adsgate/pkg/errors"
	"github.com/sellermesh/adsgate/pkg/tokenstore"
)

// fakeProvider is a scriptable identity-capable provider for manager tests.
type fakeProvider struct {
	typ         string
	region      string
	caps        auth.Capabilities
	identities  []auth.Identity
	headers     map[string]string
	credsCalls  int
	headerCalls int
}

func (f *fakeProvider) Type() string {
	if f.typ == "" {
		return "fake"
	}
	return f.typ
}

func (f *fakeProvider) Initialize(_ context.Context) error { return nil }

func (f *fakeProvider) GetToken(_ context.Context) (auth.Token, error) {
	return auth.Token{Value: "tok", ExpiresAt: time.Now().Add(time.Hour), Kind: tokenstore.KindAccess}, nil
}

func (f *fakeProvider) ValidateToken(t auth.Token) bool {
	return t.Valid(auth.DefaultValidationBuffer)
}

func (f *fakeProvider) Region() string { return f.region }

func (f *fakeProvider) GetHeaders(_ context.Context) (map[string]string, error) {
	f.headerCalls++
	if f.headers == nil {
		return map[string]string{}, nil
	}
	return f.headers, nil
}

func (f *fakeProvider) Capabilities() auth.Capabilities { return f.caps }

func (f *fakeProvider) Close() error { return nil }

func (f *fakeProvider) ListIdentities(_ context.Context, _ auth.IdentityFilter) ([]auth.Identity, error) {
	return f.identities, nil
}

func (f *fakeProvider) GetIdentity(_ context.Context, id string) (auth.Identity, error) {
	for _, ident := range f.identities {
		if ident.ID == id {
			return ident, nil
		}
	}
	return auth.Identity{}, errors.Newf(errors.ErrIdentityNotFound, "identity %q not found", id)
}

func (f *fakeProvider) GetIdentityCredentials(_ context.Context, id string) (*auth.Credentials, error) {
	if _, err := f.GetIdentity(context.Background(), id); err != nil {
		return nil, err
	}
	f.credsCalls++
	return &auth.Credentials{
		IdentityID:  id,
		AccessToken: "access-" + id,
		ExpiresAt:   time.Now().Add(time.Hour),
		Headers:     f.headers,
	}, nil
}

func settingsFrom(t *testing.T, env map[string]string) *config.Settings {
	t.Helper()

	v := viper.New()
	for key, value := range env {
		v.Set(key, value)
	}
	return config.LoadWith(v)
}

func newTestManager(t *testing.T, provider *fakeProvider, settings *config.Settings) *auth.Manager {
	t.Helper()

	registry := auth.NewRegistry()
	ctor := func(_ auth.ProviderConfig, _ auth.ProviderDeps) (auth.Provider, error) {
		return provider, nil
	}
	require.NoError(t, registry.Register(config.MethodDirect, ctor))
	require.NoError(t, registry.Register(config.MethodOpenbridge, ctor))

	m, err := auth.NewManager(auth.ManagerOptions{
		Settings: settings,
		Registry: registry,
		Deps:     auth.ProviderDeps{Store: tokenstore.NewMemoryStore()},
	})
	require.NoError(t, err)
	return m
}

func TestResolveMethod(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		env     map[string]string
		want    string
		wantErr bool
	}{
		{
			name: "override wins over everything",
			env: map[string]string{
				"auth_method_override":     config.MethodDirect,
				"openbridge_refresh_token": "secret",
			},
			want: config.MethodDirect,
		},
		{
			name:    "unknown override fails",
			env:     map[string]string{"auth_method_override": "saml"},
			wantErr: true,
		},
		{
			name: "configured non-default method",
			env: map[string]string{
				"auth_method":              config.MethodDirect,
				"openbridge_refresh_token": "secret",
			},
			want: config.MethodDirect,
		},
		{
			name: "broker secret alone resolves broker",
			env:  map[string]string{"openbridge_refresh_token": "secret"},
			want: config.MethodOpenbridge,
		},
		{
			name: "full direct triad outranks the broker default",
			env: map[string]string{
				"client_id":     "id",
				"client_secret": "secret",
				"refresh_token": "refresh",
			},
			want: config.MethodDirect,
		},
		{
			name: "broker default with secret outranks the triad",
			env: map[string]string{
				"openbridge_refresh_token": "broker-secret",
				"client_id":                "id",
				"client_secret":            "secret",
				"refresh_token":            "refresh",
			},
			want: config.MethodOpenbridge,
		},
		{
			name:    "nothing configured fails with remediation",
			env:     map[string]string{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			method, err := auth.ResolveMethod(settingsFrom(t, tt.env))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsType(err, errors.ErrConfig))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, method)
		})
	}
}

func TestResolveMethodRemediationNamesVariables(t *testing.T) {
	t.Parallel()

	_, err := auth.ResolveMethod(settingsFrom(t, nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENBRIDGE_REFRESH_TOKEN")
	assert.Contains(t, err.Error(), "AMAZON_AD_API_CLIENT_ID")
	assert.Contains(t, err.Error(), "AUTH_METHOD")
}

func TestSetActiveIdentityNotFoundLeavesActive(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{
		typ: config.MethodOpenbridge,
		identities: []auth.Identity{
			{ID: "identity-1", Attributes: map[string]string{"region": "eu"}},
			{ID: "identity-2", Attributes: map[string]string{"region": "na"}},
		},
	}
	m := newTestManager(t, provider, settingsFrom(t, map[string]string{"openbridge_refresh_token": "s"}))

	require.NoError(t, m.SetActiveIdentity(context.Background(), "identity-1"))

	err := m.SetActiveIdentity(context.Background(), "identity-999")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrIdentityNotFound))

	active, ok := m.ActiveIdentity()
	require.True(t, ok)
	assert.Equal(t, "identity-1", active.ID)
}

func TestReselectingIdentityKeepsCachedCredentials(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{
		typ: config.MethodOpenbridge,
		caps: auth.Capabilities{
			IdentityRegionRouting:   true,
			IdentitySpecificHeaders: true,
			RegionFromIdentity:      true,
		},
		identities: []auth.Identity{
			{ID: "identity-1", Attributes: map[string]string{"region": "eu"}},
			{ID: "identity-2", Attributes: map[string]string{"region": "na"}},
		},
	}
	m := newTestManager(t, provider, settingsFrom(t, map[string]string{"openbridge_refresh_token": "s"}))

	require.NoError(t, m.SetActiveIdentity(context.Background(), "identity-1"))
	_, err := m.GetActiveCredentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, provider.credsCalls)

	// Reselecting the same identity is a caching no-op.
	require.NoError(t, m.SetActiveIdentity(context.Background(), "identity-1"))
	_, err = m.GetActiveCredentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, provider.credsCalls)

	// An actual switch clears the bundle.
	require.NoError(t, m.SetActiveIdentity(context.Background(), "identity-2"))
	_, err = m.GetActiveCredentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, provider.credsCalls)
}

func TestCacheHitSkipsProviderWhenHeadersNotIdentitySpecific(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{
		typ:        config.MethodDirect,
		region:     "na",
		headers:    map[string]string{auth.HeaderClientID: "client"},
		identities: []auth.Identity{{ID: "direct-auth", Attributes: map[string]string{"region": "na"}}},
	}
	m := newTestManager(t, provider, settingsFrom(t, map[string]string{
		"client_id": "client", "client_secret": "s", "refresh_token": "r",
	}))

	require.NoError(t, m.SetActiveIdentity(context.Background(), "direct-auth"))

	// Seed the store as if a previous process had cached the token.
	require.NoError(t, m.SetToken(tokenstore.Key{
		ProviderType: config.MethodDirect,
		IdentityID:   "direct-auth",
		Kind:         tokenstore.KindAccess,
		Region:       "na",
	}, tokenstore.NewEntry("cached-access", time.Now().Add(time.Hour), nil)))

	creds, err := m.GetActiveCredentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cached-access", creds.AccessToken)
	assert.Equal(t, 0, provider.credsCalls, "store hit plus headers must not call the provider")
	assert.Equal(t, 1, provider.headerCalls)
}

func TestCacheHitInsufficientForIdentitySpecificHeaders(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{
		typ:        config.MethodOpenbridge,
		caps:       auth.Capabilities{IdentitySpecificHeaders: true},
		identities: []auth.Identity{{ID: "identity-1", Attributes: map[string]string{"region": "eu"}}},
	}
	m := newTestManager(t, provider, settingsFrom(t, map[string]string{"openbridge_refresh_token": "s"}))

	require.NoError(t, m.SetActiveIdentity(context.Background(), "identity-1"))
	require.NoError(t, m.SetToken(tokenstore.Key{
		ProviderType: config.MethodOpenbridge,
		IdentityID:   "identity-1",
		Kind:         tokenstore.KindAccess,
		Region:       "eu",
	}, tokenstore.NewEntry("cached-access", time.Now().Add(time.Hour), nil)))

	_, err := m.GetActiveCredentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, provider.credsCalls, "identity-specific headers always need the provider")
}

func TestGetHeadersAddsAuthorizationAndScope(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{
		typ:        config.MethodDirect,
		region:     "na",
		headers:    map[string]string{auth.HeaderClientID: "client"},
		identities: []auth.Identity{{ID: "direct-auth"}},
	}
	m := newTestManager(t, provider, settingsFrom(t, map[string]string{
		"client_id": "client", "client_secret": "s", "refresh_token": "r",
		"profile_id": "424242",
	}))

	headers, err := m.GetHeaders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer access-direct-auth", headers[auth.HeaderAuthorization])
	assert.Equal(t, "client", headers[auth.HeaderClientID])
	assert.Equal(t, "424242", headers[auth.HeaderScope])
}

func TestAutoAppliesSingleIdentity(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{
		typ:        config.MethodDirect,
		region:     "na",
		identities: []auth.Identity{{ID: "direct-auth"}},
	}
	m := newTestManager(t, provider, settingsFrom(t, map[string]string{
		"client_id": "c", "client_secret": "s", "refresh_token": "r",
	}))

	_, err := m.GetActiveCredentials(context.Background())
	require.NoError(t, err)

	active, ok := m.ActiveIdentity()
	require.True(t, ok)
	assert.Equal(t, "direct-auth", active.ID)
}

func TestProfileManagement(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{
		typ: config.MethodOpenbridge,
		identities: []auth.Identity{
			{ID: "identity-1"},
			{ID: "identity-2"},
		},
	}
	m := newTestManager(t, provider, settingsFrom(t, map[string]string{
		"openbridge_refresh_token": "s",
		"profile_id":               "default-profile",
	}))

	profile, explicit := m.Profile()
	assert.Equal(t, "default-profile", profile)
	assert.False(t, explicit)

	require.NoError(t, m.SetActiveIdentity(context.Background(), "identity-1"))
	m.SetProfile("identity-1-profile")

	profile, explicit = m.Profile()
	assert.Equal(t, "identity-1-profile", profile)
	assert.True(t, explicit)

	// Profiles are per identity.
	require.NoError(t, m.SetActiveIdentity(context.Background(), "identity-2"))
	profile, explicit = m.Profile()
	assert.Equal(t, "default-profile", profile)
	assert.False(t, explicit)

	require.NoError(t, m.SetActiveIdentity(context.Background(), "identity-1"))
	m.ClearProfile()
	profile, explicit = m.Profile()
	assert.Equal(t, "default-profile", profile)
	assert.False(t, explicit)
}

func TestActiveRegionFromIdentity(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{
		typ:        config.MethodOpenbridge,
		identities: []auth.Identity{{ID: "identity-1", Attributes: map[string]string{"region": "JP"}}},
	}
	m := newTestManager(t, provider, settingsFrom(t, map[string]string{"openbridge_refresh_token": "s"}))

	// Before any identity is set, the configured default applies.
	assert.Equal(t, "na", m.ActiveRegion())

	require.NoError(t, m.SetActiveIdentity(context.Background(), "identity-1"))
	assert.Equal(t, "fe", m.ActiveRegion(), "identity attribute is normalized")
}

func TestInvalidateTokensClearsBundle(t *testing.T) {
	t.Parallel()

	provider := &fakeProvider{
		typ:        config.MethodOpenbridge,
		caps:       auth.Capabilities{IdentitySpecificHeaders: true},
		identities: []auth.Identity{{ID: "identity-1"}},
	}
	m := newTestManager(t, provider, settingsFrom(t, map[string]string{"openbridge_refresh_token": "s"}))

	require.NoError(t, m.SetActiveIdentity(context.Background(), "identity-1"))
	_, err := m.GetActiveCredentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, provider.credsCalls)

	m.InvalidateTokens(tokenstore.Filter{ProviderType: config.MethodOpenbridge})

	_, err = m.GetActiveCredentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, provider.credsCalls)
}
