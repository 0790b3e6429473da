// SPDX-FileCopyrightText: Copyright 2025 Sellermesh, Inc.
// SPDX-License-Identifier: Apache-2.0

package mcptools

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sellermesh/adsgate/pkg/auth"
	"github.com/sellermesh/adsgate/pkg/config"
	"github.com/sellermesh/adsgate/pkg/errors"
	"github.com/sellermesh/adsgate/pkg/tokenstore"
)

type stubProvider struct {
	identities []auth.Identity
}

func (s *stubProvider) Type() string { return config.MethodOpenbridge }

func (s *stubProvider) Initialize(_ context.Context) error { return nil }

func (s *stubProvider) Region() string { return "" }

func (s *stubProvider) Close() error { return nil }

func (s *stubProvider) ValidateToken(t auth.Token) bool {
	return t.Valid(auth.DefaultValidationBuffer)
}
func (s *stubProvider) Capabilities() auth.Capabilities {
	return auth.Capabilities{IdentityRegionRouting: true, IdentitySpecificHeaders: true, RegionFromIdentity: true}
}

func (s *stubProvider) GetToken(_ context.Context) (auth.Token, error) {
	return auth.Token{Value: "jwt", ExpiresAt: time.Now().Add(time.Hour), Kind: tokenstore.KindProviderJWT}, nil
}

func (s *stubProvider) GetHeaders(_ context.Context) (map[string]string, error) {
	return map[string]string{}, nil
}

func (s *stubProvider) ListIdentities(_ context.Context, _ auth.IdentityFilter) ([]auth.Identity, error) {
	return s.identities, nil
}

func (s *stubProvider) GetIdentity(_ context.Context, id string) (auth.Identity, error) {
	for _, ident := range s.identities {
		if ident.ID == id {
			return ident, nil
		}
	}
	return auth.Identity{}, errors.Newf(errors.ErrIdentityNotFound, "identity %q not found", id)
}

func (s *stubProvider) GetIdentityCredentials(_ context.Context, id string) (*auth.Credentials, error) {
	if _, err := s.GetIdentity(context.Background(), id); err != nil {
		return nil, err
	}
	return &auth.Credentials{
		IdentityID:  id,
		AccessToken: "access",
		ExpiresAt:   time.Now().Add(time.Hour),
		Headers:     map[string]string{},
	}, nil
}

func newTestHandler(t *testing.T) *Handler {
	t.Helper()

	v := viper.New()
	v.Set("openbridge_refresh_token", "secret")
	settings := config.LoadWith(v)

	registry := auth.NewRegistry()
	provider := &stubProvider{identities: []auth.Identity{
		{ID: "identity-1", Type: "RemoteIdentity", Attributes: map[string]string{"region": "eu"}},
		{ID: "identity-2", Type: "RemoteIdentity", Attributes: map[string]string{"region": "na"}},
	}}
	require.NoError(t, registry.Register(config.MethodOpenbridge, func(_ auth.ProviderConfig, _ auth.ProviderDeps) (auth.Provider, error) {
		return provider, nil
	}))
	require.NoError(t, registry.Register(config.MethodDirect, func(_ auth.ProviderConfig, _ auth.ProviderDeps) (auth.Provider, error) {
		return provider, nil
	}))

	manager, err := auth.NewManager(auth.ManagerOptions{
		Settings: settings,
		Registry: registry,
		Deps:     auth.ProviderDeps{Store: tokenstore.NewMemoryStore()},
	})
	require.NoError(t, err)

	return NewHandler(manager, nil)
}

func callRequest(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func resultJSON(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()

	require.False(t, result.IsError)
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal([]byte(text.Text), &parsed))
	return parsed
}

func TestIdentityListTool(t *testing.T) {
	t.Parallel()

	h := newTestHandler(t)
	result, err := h.identityList(context.Background(), callRequest(nil))
	require.NoError(t, err)

	parsed := resultJSON(t, result)
	assert.Equal(t, float64(2), parsed["count"])
}

func TestIdentitySetAndActiveTools(t *testing.T) {
	t.Parallel()

	h := newTestHandler(t)

	result, err := h.identitySet(context.Background(), callRequest(map[string]any{"identity_id": "identity-1"}))
	require.NoError(t, err)
	parsed := resultJSON(t, result)
	assert.Equal(t, "identity-1", parsed["active_identity"])
	assert.Equal(t, "eu", parsed["region"])

	result, err = h.identityActive(context.Background(), callRequest(nil))
	require.NoError(t, err)
	parsed = resultJSON(t, result)
	assert.Equal(t, true, parsed["active"])
}

func TestIdentitySetUnknownReportsError(t *testing.T) {
	t.Parallel()

	h := newTestHandler(t)
	result, err := h.identitySet(context.Background(), callRequest(map[string]any{"identity_id": "identity-999"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestProfileTools(t *testing.T) {
	t.Parallel()

	h := newTestHandler(t)

	_, err := h.identitySet(context.Background(), callRequest(map[string]any{"identity_id": "identity-1"}))
	require.NoError(t, err)

	result, err := h.profileSet(context.Background(), callRequest(map[string]any{"profile_id": "12345"}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	result, err = h.profileGet(context.Background(), callRequest(nil))
	require.NoError(t, err)
	parsed := resultJSON(t, result)
	assert.Equal(t, "12345", parsed["profile_id"])
	assert.Equal(t, true, parsed["explicit"])

	result, err = h.profileClear(context.Background(), callRequest(nil))
	require.NoError(t, err)
	parsed = resultJSON(t, result)
	assert.Equal(t, true, parsed["cleared"])
}

func TestRegionActiveTool(t *testing.T) {
	t.Parallel()

	h := newTestHandler(t)
	_, err := h.identitySet(context.Background(), callRequest(map[string]any{"identity_id": "identity-1"}))
	require.NoError(t, err)

	result, err := h.regionActive(context.Background(), callRequest(nil))
	require.NoError(t, err)
	parsed := resultJSON(t, result)
	assert.Equal(t, "eu", parsed["region"])
	assert.Equal(t, "https://advertising-api-eu.amazon.com", parsed["endpoint"])
}

func TestCacheInvalidateTool(t *testing.T) {
	t.Parallel()

	h := newTestHandler(t)

	require.NoError(t, h.manager.SetToken(tokenstore.Key{
		ProviderType: config.MethodOpenbridge,
		IdentityID:   "identity-1",
		Kind:         tokenstore.KindAccess,
	}, tokenstore.NewEntry("tok", time.Now().Add(time.Hour), nil)))

	result, err := h.cacheInvalidate(context.Background(), callRequest(map[string]any{"identity_id": "identity-1"}))
	require.NoError(t, err)
	parsed := resultJSON(t, result)
	assert.Equal(t, float64(1), parsed["invalidated"])
}

func TestCacheInvalidateRejectsUnknownKind(t *testing.T) {
	t.Parallel()

	h := newTestHandler(t)
	result, err := h.cacheInvalidate(context.Background(), callRequest(map[string]any{"kind": "session"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestOAuthToolsWithoutFlow(t *testing.T) {
	t.Parallel()

	h := newTestHandler(t)

	result, err := h.oauthStart(context.Background(), callRequest(nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}
