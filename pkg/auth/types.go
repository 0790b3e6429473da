// SPDX-FileCopyrightText: Copyright 2025 Sellermesh, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package auth defines the provider model and the manager that orchestrates
// credential resolution for the gateway. Providers are pluggable strategies
// for obtaining Amazon Ads tokens; the manager is the only surface the
// request-dispatch layer talks to.
package auth

import (
	"time"

	"github.com/sellermesh/adsgate/pkg/tokenstore"
)

// Amazon Ads API header names attached to outbound requests.
const (
	HeaderAuthorization = "Authorization"
	HeaderClientID      = "Amazon-Advertising-API-ClientId"
	HeaderScope         = "Amazon-Advertising-API-Scope"
)

// Identity is one addressable account reachable through a provider.
type Identity struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Region returns the identity's region attribute, empty when absent.
func (i Identity) Region() string {
	return i.Attributes["region"]
}

// Token is a provider-level credential. Tokens are superseded on refresh,
// never mutated.
type Token struct {
	Value     string
	ExpiresAt time.Time
	Kind      tokenstore.Kind
	Metadata  map[string]string
}

// Valid reports whether the token is usable with the given safety buffer.
func (t Token) Valid(buffer time.Duration) bool {
	return t.Value != "" && time.Now().Before(t.ExpiresAt.Add(-buffer))
}

// Credentials is a fully resolved, request-ready bundle for one identity.
type Credentials struct {
	IdentityID  string
	AccessToken string
	ExpiresAt   time.Time
	BaseURL     string
	Headers     map[string]string
}

// Fresh reports whether the bundle is still usable with the given buffer.
func (c *Credentials) Fresh(buffer time.Duration) bool {
	return c != nil && c.AccessToken != "" && time.Now().Before(c.ExpiresAt.Add(-buffer))
}

// Capabilities describes provider behavior callers must adapt to. The flags
// replace runtime probing of optional methods: they are produced once per
// provider and consumed wherever a caller would otherwise type-check.
type Capabilities struct {
	// IdentityRegionRouting means requests must be routed to the region of
	// the current identity rather than a provider-wide region.
	IdentityRegionRouting bool

	// IdentitySpecificHeaders means header values change per identity, so a
	// cached access token alone is never enough to assemble credentials.
	IdentitySpecificHeaders bool

	// RegionFromIdentity means the region is an attribute of the current
	// identity and must be re-derived on every identity switch.
	RegionFromIdentity bool
}

// IdentityFilter narrows an identity listing.
type IdentityFilter struct {
	// Type filters by the provider's identity-type taxonomy.
	Type string

	// PageSize overrides the provider's listing page size when positive.
	PageSize int
}
