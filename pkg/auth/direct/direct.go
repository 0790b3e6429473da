// SPDX-FileCopyrightText: Copyright 2025 Sellermesh, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package direct implements the self-managed OAuth2 provider: the operator
// supplies their own Login-with-Amazon client id, client secret, and refresh
// token, and the provider exchanges the refresh token at the region's token
// endpoint.
package direct

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/sellermesh/adsgate/pkg/auth"
	"github.com/sellermesh/adsgate/pkg/errors"
	"github.com/sellermesh/adsgate/pkg/logger"
	"github.com/sellermesh/adsgate/pkg/networking"
	"github.com/sellermesh/adsgate/pkg/regions"
	"github.com/sellermesh/adsgate/pkg/secrets"
	"github.com/sellermesh/adsgate/pkg/tokenstore"
)

// ProviderType is the registry key for this provider.
const ProviderType = "direct"

// IdentityID is the synthetic identity exposed by this single-account
// provider.
const IdentityID = "direct-auth"

// fallbackTTL is assumed when the token endpoint omits an expiry.
const fallbackTTL = 55 * time.Minute

// Provider is the self-managed OAuth2 provider.
type Provider struct {
	cfg    auth.DirectConfig
	region string
	store  tokenstore.Store
	vault  *secrets.Vault
	client *http.Client

	// tokenURL overrides the region token endpoint. Tests set it.
	tokenURL string

	mu    sync.Mutex
	token auth.Token
}

// New constructs the provider from its typed config. Registered in the
// provider registry under ProviderType.
func New(cfg auth.ProviderConfig, deps auth.ProviderDeps) (auth.Provider, error) {
	dc, ok := cfg.(auth.DirectConfig)
	if !ok {
		return nil, errors.Newf(errors.ErrConfig, "direct provider requires DirectConfig, got %T", cfg)
	}
	if dc.ClientID == "" {
		return nil, errors.New(errors.ErrConfig, "direct provider requires a client id (AMAZON_AD_API_CLIENT_ID)")
	}

	client := deps.Client
	if client == nil {
		client = networking.DefaultClient()
	}
	store := deps.Store
	if store == nil {
		store = tokenstore.NewMemoryStore()
	}

	region := regions.Normalize(dc.Region)
	if region == "" {
		region = regions.DefaultRegion
	}

	return &Provider{
		cfg:    dc,
		region: region,
		store:  store,
		vault:  deps.Vault,
		client: client,
	}, nil
}

// Type implements auth.Provider.
func (p *Provider) Type() string {
	return ProviderType
}

// Initialize implements auth.Provider.
func (p *Provider) Initialize(_ context.Context) error {
	if p.cfg.RefreshToken == "" {
		logger.Info("Direct provider has no refresh token yet, bootstrap flow required")
	}
	return nil
}

// GetToken returns a valid access token: unified-store hit, then the local
// cache, then a network refresh at the region's token endpoint.
func (p *Provider) GetToken(ctx context.Context) (auth.Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := p.accessKey()
	if entry, ok := p.store.Get(key); ok {
		return auth.Token{
			Value:     entry.Value,
			ExpiresAt: entry.ExpiresAt,
			Kind:      tokenstore.KindAccess,
			Metadata:  entry.Metadata,
		}, nil
	}

	if p.token.Valid(auth.DefaultValidationBuffer) {
		return p.token, nil
	}

	token, err := p.refreshLocked(ctx)
	if err != nil {
		return auth.Token{}, err
	}

	if err := p.store.Set(key, tokenstore.NewEntry(token.Value, token.ExpiresAt, nil)); err != nil {
		logger.Warnf("Failed to cache access token: %v", err)
	}
	p.token = token
	return token, nil
}

// refreshLocked exchanges the refresh token for an access token. When no
// refresh token was configured it attempts recovery from the bootstrap
// vault before failing with remediation text.
func (p *Provider) refreshLocked(ctx context.Context) (auth.Token, error) {
	refreshToken := p.cfg.RefreshToken
	if refreshToken == "" && p.vault != nil {
		if entry, ok := p.vault.Get(secrets.RefreshTokenID); ok {
			logger.Info("Recovered refresh token from bootstrap vault")
			refreshToken = entry.Value
			p.cfg.RefreshToken = refreshToken
		}
	}
	if refreshToken == "" {
		return auth.Token{}, errors.New(errors.ErrTokenMissing,
			"no refresh token available: set AMAZON_AD_API_REFRESH_TOKEN or run the oauth login flow")
	}

	tokenURL := p.tokenURL
	if tokenURL == "" {
		tokenURL = regions.OAuthEndpoint(p.region)
	}
	conf := &oauth2.Config{
		ClientID:     p.cfg.ClientID,
		ClientSecret: p.cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			TokenURL: tokenURL,
		},
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.client)
	tok, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return auth.Token{}, errors.Wrap(errors.ErrTokenRefresh, "refresh token exchange failed", err)
	}

	expiresAt := tok.Expiry
	if expiresAt.IsZero() {
		expiresAt = time.Now().Add(fallbackTTL)
	}
	logger.Debugf("Refreshed direct access token, valid until %s", expiresAt.UTC().Format(time.RFC3339))

	return auth.Token{
		Value:     tok.AccessToken,
		ExpiresAt: expiresAt,
		Kind:      tokenstore.KindAccess,
	}, nil
}

// ValidateToken implements auth.Provider.
func (p *Provider) ValidateToken(t auth.Token) bool {
	return t.Valid(auth.DefaultValidationBuffer)
}

// Region implements auth.Provider.
func (p *Provider) Region() string {
	return p.region
}

// GetHeaders returns the client-id header. Authorization is attached by the
// manager from the resolved token; returning the partial map even before a
// refresh token exists lets the bootstrap flow probe without a hard failure.
func (p *Provider) GetHeaders(_ context.Context) (map[string]string, error) {
	return map[string]string{
		auth.HeaderClientID: p.cfg.ClientID,
	}, nil
}

// Capabilities implements auth.Provider. Direct auth is single-account:
// nothing is identity-specific.
func (p *Provider) Capabilities() auth.Capabilities {
	return auth.Capabilities{}
}

// ListIdentities implements auth.IdentityProvider with the synthetic
// single identity.
func (p *Provider) ListIdentities(_ context.Context, _ auth.IdentityFilter) ([]auth.Identity, error) {
	return []auth.Identity{p.identity()}, nil
}

// GetIdentity implements auth.IdentityProvider.
func (p *Provider) GetIdentity(_ context.Context, id string) (auth.Identity, error) {
	if id != IdentityID {
		return auth.Identity{}, errors.Newf(errors.ErrIdentityNotFound, "identity %q not found", id)
	}
	return p.identity(), nil
}

// GetIdentityCredentials implements auth.IdentityProvider.
func (p *Provider) GetIdentityCredentials(ctx context.Context, id string) (*auth.Credentials, error) {
	if id != IdentityID {
		return nil, errors.Newf(errors.ErrIdentityNotFound, "identity %q not found", id)
	}

	token, err := p.GetToken(ctx)
	if err != nil {
		return nil, err
	}
	headers, err := p.GetHeaders(ctx)
	if err != nil {
		return nil, err
	}

	return &auth.Credentials{
		IdentityID:  IdentityID,
		AccessToken: token.Value,
		ExpiresAt:   token.ExpiresAt,
		BaseURL:     regions.APIEndpoint(p.region),
		Headers:     headers,
	}, nil
}

// accessKey builds the token-store key for the access token.
func (p *Provider) accessKey() tokenstore.Key {
	return tokenstore.Key{
		ProviderType: ProviderType,
		IdentityID:   IdentityID,
		Kind:         tokenstore.KindAccess,
		Region:       p.region,
	}
}

func (p *Provider) identity() auth.Identity {
	return auth.Identity{
		ID:   IdentityID,
		Type: ProviderType,
		Attributes: map[string]string{
			"region":     p.region,
			"client_id":  p.cfg.ClientID,
			"profile_id": p.cfg.ProfileID,
		},
	}
}

// Close implements auth.Provider.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.token = auth.Token{}
	return nil
}
