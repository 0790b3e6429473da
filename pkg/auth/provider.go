// SPDX-FileCopyrightText: Copyright 2025 Sellermesh, Inc.
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/sellermesh/adsgate/pkg/secrets"
	"github.com/sellermesh/adsgate/pkg/tokenstore"
)

// DefaultValidationBuffer is the freshness safety margin providers apply
// when validating a token before use.
const DefaultValidationBuffer = 5 * time.Minute

// Provider is a pluggable strategy for obtaining Amazon Ads credentials.
type Provider interface {
	// Type returns the provider-type key this provider registers under.
	Type() string

	// Initialize prepares the provider for use.
	Initialize(ctx context.Context) error

	// GetToken returns a valid access token, refreshing if needed.
	GetToken(ctx context.Context) (Token, error)

	// ValidateToken reports whether a token is still fresh enough to use.
	ValidateToken(t Token) bool

	// Region returns the provider-level region code, empty when the region
	// is controlled by the current identity.
	Region() string

	// GetHeaders returns the Amazon Ads API headers for the current state.
	GetHeaders(ctx context.Context) (map[string]string, error)

	// Capabilities describes how callers must adapt to this provider.
	Capabilities() Capabilities

	// Close releases provider resources.
	Close() error
}

// IdentityProvider is the optional identity capability. Providers that can
// address more than one account implement it; single-account providers may
// implement it with a synthetic identity.
type IdentityProvider interface {
	Provider

	// ListIdentities returns the identities reachable through this provider.
	ListIdentities(ctx context.Context, filter IdentityFilter) ([]Identity, error)

	// GetIdentity resolves one identity by id.
	GetIdentity(ctx context.Context, id string) (Identity, error)

	// GetIdentityCredentials returns request-ready credentials for one
	// identity.
	GetIdentityCredentials(ctx context.Context, id string) (*Credentials, error)
}

// ProviderDeps carries the shared collaborators a provider constructor
// receives. All fields are required except Vault, which only the direct
// provider consults.
type ProviderDeps struct {
	Store  tokenstore.Store
	Client *http.Client
	Vault  *secrets.Vault
}
