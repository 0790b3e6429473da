// SPDX-FileCopyrightText: Copyright 2025 Sellermesh, Inc.
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"sync"

	"github.com/sellermesh/adsgate/pkg/config"
	"github.com/sellermesh/adsgate/pkg/errors"
	"github.com/sellermesh/adsgate/pkg/logger"
	"github.com/sellermesh/adsgate/pkg/regions"
	"github.com/sellermesh/adsgate/pkg/tokenstore"
)

// ManagerOptions carries the collaborators a Manager is built from. Settings
// and Registry are required; the rest have working defaults.
type ManagerOptions struct {
	Settings *config.Settings
	Registry *Registry
	Deps     ProviderDeps
}

// Manager orchestrates credential resolution. One instance serves the whole
// process; callers reach providers only through it.
//
// A single mutex guards active identity, cached credentials, and profile
// state so an identity switch cannot interleave with a concurrent
// credential read.
type Manager struct {
	settings *config.Settings
	method   string
	provider Provider
	store    tokenstore.Store

	mu             sync.Mutex
	active         *Identity
	creds          *Credentials
	identityHint   string
	profiles       map[string]string
	defaultProfile string
}

// ResolveMethod picks the auth method from settings by priority: explicit
// override, explicit non-default configured method, the configured broker
// method when its secret is present, then auto-detection from whichever
// credentials are set. No resolvable method is a configuration error with
// remediation text naming every accepted variable.
func ResolveMethod(s *config.Settings) (string, error) {
	if s.AuthMethodOverride != "" {
		switch s.AuthMethodOverride {
		case config.MethodDirect, config.MethodOpenbridge:
			return s.AuthMethodOverride, nil
		default:
			return "", errors.Newf(errors.ErrConfig,
				"unknown auth method %q in AUTH_METHOD/AMAZON_ADS_AUTH_METHOD (accepted: %s, %s)",
				s.AuthMethodOverride, config.MethodDirect, config.MethodOpenbridge)
		}
	}

	if s.AuthMethod != "" && s.AuthMethod != config.MethodOpenbridge {
		if s.AuthMethod != config.MethodDirect {
			return "", errors.Newf(errors.ErrConfig,
				"unknown configured auth method %q (accepted: %s, %s)",
				s.AuthMethod, config.MethodDirect, config.MethodOpenbridge)
		}
		return config.MethodDirect, nil
	}

	// The broker default is only honored when its secret is actually set;
	// otherwise explicit credentials decide.
	if s.AuthMethod == config.MethodOpenbridge && s.HasOpenbridgeCredentials() {
		return config.MethodOpenbridge, nil
	}
	if s.HasDirectCredentials() {
		return config.MethodDirect, nil
	}
	if s.HasOpenbridgeCredentials() {
		return config.MethodOpenbridge, nil
	}

	return "", errors.New(errors.ErrConfig,
		"no auth method could be resolved: set OPENBRIDGE_REFRESH_TOKEN (or OPENBRIDGE_API_KEY) for broker auth, "+
			"or AMAZON_AD_API_CLIENT_ID, AMAZON_AD_API_CLIENT_SECRET and AMAZON_AD_API_REFRESH_TOKEN "+
			"(legacy: AD_API_* / AMAZON_ADS_*) for direct auth, "+
			"or force a method with AUTH_METHOD / AMAZON_ADS_AUTH_METHOD")
}

// NewManager resolves the auth method, builds the provider's typed config,
// and instantiates the provider through the registry.
func NewManager(opts ManagerOptions) (*Manager, error) {
	if opts.Settings == nil || opts.Registry == nil {
		return nil, errors.New(errors.ErrConfig, "manager requires settings and a provider registry")
	}
	if opts.Deps.Store == nil {
		opts.Deps.Store = tokenstore.New(opts.Settings)
	}

	method, err := ResolveMethod(opts.Settings)
	if err != nil {
		return nil, err
	}
	logger.Infof("Resolved auth method: %s", method)

	cfg, hint := providerConfigFor(method, opts.Settings)
	provider, err := opts.Registry.Create(method, cfg, opts.Deps)
	if err != nil {
		return nil, err
	}

	return &Manager{
		settings:       opts.Settings,
		method:         method,
		provider:       provider,
		store:          opts.Deps.Store,
		identityHint:   hint,
		profiles:       make(map[string]string),
		defaultProfile: opts.Settings.ProfileID,
	}, nil
}

// providerConfigFor maps settings onto the typed config for a method, plus a
// default-identity hint where the method has one.
func providerConfigFor(method string, s *config.Settings) (ProviderConfig, string) {
	switch method {
	case config.MethodDirect:
		return DirectConfig{
			ClientID:     s.ClientID,
			ClientSecret: s.ClientSecret,
			RefreshToken: s.RefreshToken,
			ProfileID:    s.ProfileID,
			Region:       s.Region,
		}, ""
	default:
		return OpenbridgeConfig{
			RefreshToken:      s.OpenbridgeRefreshToken,
			Region:            s.Region,
			DefaultIdentityID: s.OpenbridgeRemoteIdentityID,
			AuthBaseURL:       s.OpenbridgeAuthBaseURL,
			IdentityBaseURL:   s.OpenbridgeIdentityBaseURL,
			ServiceBaseURL:    s.OpenbridgeServiceBaseURL,
		}, s.OpenbridgeRemoteIdentityID
	}
}

// Initialize prepares the underlying provider.
func (m *Manager) Initialize(ctx context.Context) error {
	return m.provider.Initialize(ctx)
}

// Method returns the resolved auth method.
func (m *Manager) Method() string {
	return m.method
}

// Capabilities returns the active provider's capability flags.
func (m *Manager) Capabilities() Capabilities {
	return m.provider.Capabilities()
}

// ListIdentities delegates to the provider's identity capability, or
// synthesizes a single default identity for providers without one.
func (m *Manager) ListIdentities(ctx context.Context, filter IdentityFilter) ([]Identity, error) {
	if ip, ok := m.provider.(IdentityProvider); ok {
		return ip.ListIdentities(ctx, filter)
	}
	return []Identity{m.syntheticIdentity()}, nil
}

// GetIdentity resolves one identity by id.
func (m *Manager) GetIdentity(ctx context.Context, id string) (Identity, error) {
	if ip, ok := m.provider.(IdentityProvider); ok {
		return ip.GetIdentity(ctx, id)
	}
	ident := m.syntheticIdentity()
	if id != ident.ID {
		return Identity{}, errors.Newf(errors.ErrIdentityNotFound, "identity %q not found", id)
	}
	return ident, nil
}

func (m *Manager) syntheticIdentity() Identity {
	return Identity{
		ID:   "default",
		Type: m.provider.Type(),
		Attributes: map[string]string{
			"region": m.provider.Region(),
		},
	}
}

// SetActiveIdentity validates the identity exists and makes it active.
// Cached credentials are cleared only when the identity actually changes;
// reselecting the current identity is a caching no-op.
func (m *Manager) SetActiveIdentity(ctx context.Context, id string) error {
	ident, err := m.GetIdentity(ctx, id)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil && m.active.ID == ident.ID {
		m.active = &ident
		return nil
	}
	if m.active != nil {
		logger.Infof("Switching active identity %s -> %s", m.active.ID, ident.ID)
	}
	m.active = &ident
	m.creds = nil
	return nil
}

// ActiveIdentity returns the current active identity, if one is set.
func (m *Manager) ActiveIdentity() (Identity, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == nil {
		return Identity{}, false
	}
	return *m.active, true
}

// GetActiveCredentials resolves request-ready credentials for the active
// identity: in-process bundle first, then the token store, then the
// provider. Providers whose headers are identity-specific skip the
// store-hit shortcut; a cached token alone cannot rebuild their headers.
func (m *Manager) GetActiveCredentials(ctx context.Context) (*Credentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ip, identityCapable := m.provider.(IdentityProvider)
	if !identityCapable {
		return m.simpleCredentialsLocked(ctx)
	}

	if err := m.ensureActiveLocked(ctx, ip); err != nil {
		return nil, err
	}

	if m.creds.Fresh(DefaultValidationBuffer) && m.creds.IdentityID == m.active.ID {
		return m.creds, nil
	}

	caps := m.provider.Capabilities()
	key := m.accessKeyLocked()

	if entry, ok := m.store.Get(key); ok && !caps.IdentitySpecificHeaders {
		headers, err := m.provider.GetHeaders(ctx)
		if err != nil {
			return nil, err
		}
		m.creds = &Credentials{
			IdentityID:  m.active.ID,
			AccessToken: entry.Value,
			ExpiresAt:   entry.ExpiresAt,
			BaseURL:     regions.APIEndpoint(m.activeRegionLocked()),
			Headers:     headers,
		}
		return m.creds, nil
	}

	creds, err := ip.GetIdentityCredentials(ctx, m.active.ID)
	if err != nil {
		return nil, err
	}
	if creds.BaseURL == "" {
		creds.BaseURL = regions.APIEndpoint(m.activeRegionLocked())
	}

	if err := m.store.Set(key, tokenstore.NewEntry(creds.AccessToken, creds.ExpiresAt, nil)); err != nil {
		logger.Warnf("Failed to cache access token: %v", err)
	}
	m.creds = creds
	return m.creds, nil
}

// simpleCredentialsLocked serves providers without an identity capability:
// an in-process expiry check against the last bundle, else a fresh
// token-plus-headers assembly.
func (m *Manager) simpleCredentialsLocked(ctx context.Context) (*Credentials, error) {
	if m.creds.Fresh(DefaultValidationBuffer) {
		return m.creds, nil
	}

	token, err := m.provider.GetToken(ctx)
	if err != nil {
		return nil, err
	}
	headers, err := m.provider.GetHeaders(ctx)
	if err != nil {
		return nil, err
	}

	m.creds = &Credentials{
		IdentityID:  "default",
		AccessToken: token.Value,
		ExpiresAt:   token.ExpiresAt,
		BaseURL:     regions.APIEndpoint(m.provider.Region()),
		Headers:     headers,
	}
	return m.creds, nil
}

// ensureActiveLocked applies the configured default identity once, or falls
// back to the provider's only identity when the listing has exactly one.
func (m *Manager) ensureActiveLocked(ctx context.Context, ip IdentityProvider) error {
	if m.active != nil {
		return nil
	}

	if m.identityHint != "" {
		ident, err := ip.GetIdentity(ctx, m.identityHint)
		if err != nil {
			return errors.Wrap(errors.ErrIdentityNotFound,
				"configured default identity could not be resolved", err)
		}
		m.active = &ident
		m.identityHint = ""
		return nil
	}

	identities, err := ip.ListIdentities(ctx, IdentityFilter{})
	if err != nil {
		return err
	}
	if len(identities) == 1 {
		m.active = &identities[0]
		return nil
	}
	return errors.New(errors.ErrIdentityNotFound,
		"no active identity set: choose one with the identity_set tool")
}

// accessKeyLocked builds the token-store key for the active identity's
// access token.
func (m *Manager) accessKeyLocked() tokenstore.Key {
	return tokenstore.Key{
		ProviderType: m.provider.Type(),
		IdentityID:   m.active.ID,
		Kind:         tokenstore.KindAccess,
		Region:       m.activeRegionLocked(),
	}
}

// GetHeaders returns the outbound header map for the active identity:
// provider headers plus Authorization and, when a profile is set, the scope
// header.
func (m *Manager) GetHeaders(ctx context.Context) (map[string]string, error) {
	creds, err := m.GetActiveCredentials(ctx)
	if err != nil {
		return nil, err
	}

	headers := make(map[string]string, len(creds.Headers)+2)
	for k, v := range creds.Headers {
		headers[k] = v
	}
	headers[HeaderAuthorization] = "Bearer " + creds.AccessToken

	if profile, _ := m.Profile(); profile != "" {
		headers[HeaderScope] = profile
	}
	return headers, nil
}

// SetProfile sets the profile (scope) id for the active identity, or the
// process-wide default when no identity is active.
func (m *Manager) SetProfile(profileID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		m.profiles[m.active.ID] = profileID
		return
	}
	m.defaultProfile = profileID
}

// Profile returns the effective profile id and whether it was set explicitly
// for the active identity (false means the process-wide default applied).
func (m *Manager) Profile() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		if p, ok := m.profiles[m.active.ID]; ok && p != "" {
			return p, true
		}
	}
	return m.defaultProfile, false
}

// ClearProfile removes the active identity's explicit profile, falling back
// to the default.
func (m *Manager) ClearProfile() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		delete(m.profiles, m.active.ID)
	}
}

// ActiveRegion returns the effective region: the provider-level region when
// it exposes one, else the normalized region attribute of the active
// identity, else the configured default.
func (m *Manager) ActiveRegion() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.activeRegionLocked()
}

func (m *Manager) activeRegionLocked() string {
	if r := m.provider.Region(); r != "" {
		return regions.Normalize(r)
	}
	if m.active != nil {
		if r := m.active.Region(); r != "" {
			return regions.Normalize(r)
		}
	}
	return regions.Normalize(m.settings.Region)
}

// GetToken passes a read through to the token store.
func (m *Manager) GetToken(key tokenstore.Key) (tokenstore.Entry, bool) {
	return m.store.Get(key)
}

// SetToken passes a write through to the token store.
func (m *Manager) SetToken(key tokenstore.Key, entry tokenstore.Entry) error {
	return m.store.Set(key, entry)
}

// InvalidateToken removes one cached token.
func (m *Manager) InvalidateToken(key tokenstore.Key) error {
	return m.store.Invalidate(key)
}

// InvalidateTokens removes every cached token matching the filter and the
// in-process credential bundle when it could be affected.
func (m *Manager) InvalidateTokens(f tokenstore.Filter) int {
	m.mu.Lock()
	m.creds = nil
	m.mu.Unlock()

	return m.store.InvalidateMatching(f)
}

// Close releases the provider and clears cached tokens.
func (m *Manager) Close() error {
	m.mu.Lock()
	m.creds = nil
	m.active = nil
	m.mu.Unlock()

	err := m.provider.Close()
	if clearErr := m.store.Clear(); clearErr != nil && err == nil {
		err = clearErr
	}
	return err
}
