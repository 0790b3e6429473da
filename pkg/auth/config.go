// SPDX-FileCopyrightText: Copyright 2025 Sellermesh, Inc.
// SPDX-License-Identifier: Apache-2.0

package auth

// ProviderConfig is a typed construction parameter bundle for one provider
// kind. Each provider's constructor asserts the concrete type it expects and
// surfaces a shape error at construction instead of at first field access.
type ProviderConfig interface {
	providerConfig()
}

// DirectConfig configures the self-managed OAuth2 provider.
type DirectConfig struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	ProfileID    string
	Region       string
}

func (DirectConfig) providerConfig() {}

// OpenbridgeConfig configures the federated identity-broker provider.
type OpenbridgeConfig struct {
	// RefreshToken is the broker secret. It may be empty at construction
	// and supplied later at runtime.
	RefreshToken string

	Region string

	// DefaultIdentityID selects the identity applied when none is set.
	DefaultIdentityID string

	// Base URL overrides; empty selects the production endpoints.
	AuthBaseURL     string
	IdentityBaseURL string
	ServiceBaseURL  string
}

func (OpenbridgeConfig) providerConfig() {}
