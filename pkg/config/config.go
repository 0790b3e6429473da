// SPDX-FileCopyrightText: Copyright 2025 Sellermesh, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package config contains the definition of the application settings and
// the logic required to load them from the environment.
//
// Several knobs have accumulated more than one environment variable name
// over time; the canonical name is bound first and legacy aliases after, so
// the canonical one wins when both are set.
package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Auth method names accepted in AUTH_METHOD / AMAZON_ADS_AUTH_METHOD.
const (
	MethodDirect     = "direct"
	MethodOpenbridge = "openbridge"
)

// Settings represents the configuration of the application.
type Settings struct {
	// AuthMethodOverride is an explicit auth method from the environment.
	// Empty means "resolve from the configured method and credentials".
	AuthMethodOverride string

	// AuthMethod is the configured (non-override) method. Defaults to
	// openbridge, which is only honored when a broker secret is present.
	AuthMethod string

	// Direct (self-managed) credential triad.
	ClientID     string
	ClientSecret string
	RefreshToken string

	// ProfileID is the default Amazon Ads profile (scope) id.
	ProfileID string

	// Region is the configured Amazon Ads region code.
	Region string

	// OpenbridgeRefreshToken is the broker secret (aka API key).
	OpenbridgeRefreshToken string

	// OpenbridgeRemoteIdentityID is the default identity for the broker.
	OpenbridgeRemoteIdentityID string

	// Broker base URL overrides; empty means the production endpoints.
	OpenbridgeAuthBaseURL     string
	OpenbridgeIdentityBaseURL string
	OpenbridgeServiceBaseURL  string

	// TokenPersist opts in to the encrypted persistent token store.
	TokenPersist bool

	// EncryptionKey is an explicit base64 AES-256 key for stores at rest.
	EncryptionKey string

	// AllowPlaintextPersist disables the fail-closed encryption policy.
	// Never set this outside of tests.
	AllowPlaintextPersist bool

	// CacheDir overrides the storage directory for persisted state.
	CacheDir string

	// OAuthStateSecret signs CSRF state tokens. Auto-generated when empty.
	OAuthStateSecret string

	// OAuthStatePersist opts in to writing OAuth states to disk.
	OAuthStatePersist bool

	// OAuthRedirectURI is the callback for the interactive bootstrap flow.
	OAuthRedirectURI string
}

// bindings maps setting keys to their env variable names, canonical first.
var bindings = map[string][]string{
	"auth_method_override":          {"AUTH_METHOD", "AMAZON_ADS_AUTH_METHOD"},
	"auth_method":                   {"ADSGATE_AUTH_METHOD"},
	"client_id":                     {"AMAZON_AD_API_CLIENT_ID", "AD_API_CLIENT_ID", "AMAZON_ADS_CLIENT_ID"},
	"client_secret":                 {"AMAZON_AD_API_CLIENT_SECRET", "AD_API_CLIENT_SECRET", "AMAZON_ADS_CLIENT_SECRET"},
	"refresh_token":                 {"AMAZON_AD_API_REFRESH_TOKEN", "AD_API_REFRESH_TOKEN", "AMAZON_ADS_REFRESH_TOKEN"},
	"profile_id":                    {"AMAZON_AD_API_PROFILE_ID", "AD_API_PROFILE_ID", "AMAZON_ADS_PROFILE_ID"},
	"region":                        {"AMAZON_ADS_REGION"},
	"openbridge_refresh_token":      {"OPENBRIDGE_REFRESH_TOKEN", "OPENBRIDGE_API_KEY"},
	"openbridge_remote_identity_id": {"OPENBRIDGE_REMOTE_IDENTITY_ID"},
	"openbridge_auth_base_url":      {"OPENBRIDGE_AUTH_BASE_URL"},
	"openbridge_identity_base_url":  {"OPENBRIDGE_IDENTITY_BASE_URL"},
	"openbridge_service_base_url":   {"OPENBRIDGE_SERVICE_BASE_URL"},
	"token_persist":                 {"AMAZON_ADS_TOKEN_PERSIST"},
	"encryption_key":                {"AMAZON_ADS_ENCRYPTION_KEY"},
	"allow_plaintext_persist":       {"AMAZON_ADS_ALLOW_PLAINTEXT_PERSIST"},
	"cache_dir":                     {"AMAZON_ADS_CACHE_DIR"},
	"oauth_state_secret":            {"OAUTH_STATE_SECRET"},
	"oauth_state_persist":           {"OAUTH_STATE_PERSIST"},
	"oauth_redirect_uri":            {"OAUTH_REDIRECT_URI"},
}

// Load reads settings from the process environment.
func Load() *Settings {
	return LoadWith(viper.New())
}

// LoadWith reads settings through the supplied viper instance. Tests can
// pre-set keys on it instead of mutating the process environment.
func LoadWith(v *viper.Viper) *Settings {
	for key, envs := range bindings {
		// BindEnv never fails when at least one variable name is given.
		_ = v.BindEnv(append([]string{key}, envs...)...)
	}
	v.SetDefault("auth_method", MethodOpenbridge)
	v.SetDefault("region", "na")

	return &Settings{
		AuthMethodOverride:         strings.ToLower(strings.TrimSpace(v.GetString("auth_method_override"))),
		AuthMethod:                 strings.ToLower(strings.TrimSpace(v.GetString("auth_method"))),
		ClientID:                   strings.TrimSpace(v.GetString("client_id")),
		ClientSecret:               strings.TrimSpace(v.GetString("client_secret")),
		RefreshToken:               strings.TrimSpace(v.GetString("refresh_token")),
		ProfileID:                  strings.TrimSpace(v.GetString("profile_id")),
		Region:                     strings.TrimSpace(v.GetString("region")),
		OpenbridgeRefreshToken:     strings.TrimSpace(v.GetString("openbridge_refresh_token")),
		OpenbridgeRemoteIdentityID: strings.TrimSpace(v.GetString("openbridge_remote_identity_id")),
		OpenbridgeAuthBaseURL:      strings.TrimSpace(v.GetString("openbridge_auth_base_url")),
		OpenbridgeIdentityBaseURL:  strings.TrimSpace(v.GetString("openbridge_identity_base_url")),
		OpenbridgeServiceBaseURL:   strings.TrimSpace(v.GetString("openbridge_service_base_url")),
		TokenPersist:               v.GetBool("token_persist"),
		EncryptionKey:              strings.TrimSpace(v.GetString("encryption_key")),
		AllowPlaintextPersist:      v.GetBool("allow_plaintext_persist"),
		CacheDir:                   strings.TrimSpace(v.GetString("cache_dir")),
		OAuthStateSecret:           v.GetString("oauth_state_secret"),
		OAuthStatePersist:          v.GetBool("oauth_state_persist"),
		OAuthRedirectURI:           strings.TrimSpace(v.GetString("oauth_redirect_uri")),
	}
}

// HasDirectCredentials reports whether the full self-managed triad is set.
func (s *Settings) HasDirectCredentials() bool {
	return s.ClientID != "" && s.ClientSecret != "" && s.RefreshToken != ""
}

// HasOpenbridgeCredentials reports whether a broker secret is set.
func (s *Settings) HasOpenbridgeCredentials() bool {
	return s.OpenbridgeRefreshToken != ""
}
