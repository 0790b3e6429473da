// SPDX-FileCopyrightText: Copyright 2025 Sellermesh, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package openbridge implements the federated identity-broker provider. The
// broker manages the Amazon-side credentials for many downstream accounts;
// this provider exchanges a broker secret for a platform JWT, lists the
// reachable identities, and fetches per-identity Amazon Ads tokens.
package openbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tidwall/gjson"

	"github.com/sellermesh/adsgate/pkg/auth"
	"github.com/sellermesh/adsgate/pkg/errors"
	"github.com/sellermesh/adsgate/pkg/logger"
	"github.com/sellermesh/adsgate/pkg/networking"
	"github.com/sellermesh/adsgate/pkg/regions"
	"github.com/sellermesh/adsgate/pkg/tokenstore"
)

// ProviderType is the registry key for this provider.
const ProviderType = "openbridge"

// Production broker endpoints, overridable per deployment.
const (
	DefaultAuthBaseURL     = "https://authentication.api.openbridge.io"
	DefaultIdentityBaseURL = "https://remote-identity.api.openbridge.io"
	DefaultServiceBaseURL  = "https://service.api.openbridge.io"
)

const (
	// defaultIdentityType is the broker's taxonomy id for Amazon Ads.
	defaultIdentityType = "14"

	defaultPageSize = 100

	// maxPages bounds identity pagination against a broken next-link.
	maxPages = 100

	// defaultTokenTTL is assumed when a returned Amazon token carries no
	// parseable expiry. Deliberately short so refresh checks stay frequent.
	defaultTokenTTL = 55 * time.Minute

	// jwtIdentityID keys the provider-wide broker JWT in the token store.
	jwtIdentityID = "broker"
)

// Provider is the identity-broker provider.
type Provider struct {
	region            string
	defaultIdentityID string
	authBaseURL       string
	identityBaseURL   string
	serviceBaseURL    string
	store             tokenstore.Store
	client            *http.Client

	mu           sync.Mutex
	refreshToken string
	jwt          auth.Token
	idCache      *identityCache
}

// New constructs the provider from its typed config. Registered in the
// provider registry under ProviderType.
func New(cfg auth.ProviderConfig, deps auth.ProviderDeps) (auth.Provider, error) {
	oc, ok := cfg.(auth.OpenbridgeConfig)
	if !ok {
		return nil, errors.Newf(errors.ErrConfig, "openbridge provider requires OpenbridgeConfig, got %T", cfg)
	}

	client := deps.Client
	if client == nil {
		client = networking.DefaultClient()
	}
	store := deps.Store
	if store == nil {
		store = tokenstore.NewMemoryStore()
	}

	return &Provider{
		region:            regions.Normalize(oc.Region),
		defaultIdentityID: oc.DefaultIdentityID,
		authBaseURL:       orDefault(oc.AuthBaseURL, DefaultAuthBaseURL),
		identityBaseURL:   orDefault(oc.IdentityBaseURL, DefaultIdentityBaseURL),
		serviceBaseURL:    orDefault(oc.ServiceBaseURL, DefaultServiceBaseURL),
		store:             store,
		client:            client,
		refreshToken:      oc.RefreshToken,
		idCache:           newIdentityCache(),
	}, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// Type implements auth.Provider.
func (p *Provider) Type() string {
	return ProviderType
}

// Initialize implements auth.Provider.
func (p *Provider) Initialize(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.refreshToken == "" {
		logger.Warn("OpenBridge provider has no refresh token yet")
	}
	return nil
}

// SetRefreshToken replaces the broker secret at runtime and drops state
// derived from the old one.
func (p *Provider) SetRefreshToken(token string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.refreshToken = token
	p.jwt = auth.Token{}
	p.idCache = newIdentityCache()
}

// GetToken returns a valid broker JWT, exchanging the refresh token when the
// cached one is stale.
func (p *Provider) GetToken(ctx context.Context) (auth.Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.getJWTLocked(ctx)
}

func (p *Provider) getJWTLocked(ctx context.Context) (auth.Token, error) {
	if p.jwt.Valid(auth.DefaultValidationBuffer) {
		return p.jwt, nil
	}

	key := p.jwtKey()
	if entry, ok := p.store.Get(key); ok {
		p.jwt = auth.Token{
			Value:     entry.Value,
			ExpiresAt: entry.ExpiresAt,
			Kind:      tokenstore.KindProviderJWT,
			Metadata:  entry.Metadata,
		}
		return p.jwt, nil
	}

	token, err := p.exchangeJWT(ctx)
	if err != nil {
		return auth.Token{}, err
	}

	if err := p.store.Set(key, tokenstore.NewEntry(token.Value, token.ExpiresAt, token.Metadata)); err != nil {
		logger.Warnf("Failed to cache broker JWT: %v", err)
	}
	p.jwt = token
	return token, nil
}

// exchangeJWT converts the broker refresh token to a platform JWT. The JWT
// is decoded without signature verification (trusted channel) purely to
// extract its own expiry.
func (p *Provider) exchangeJWT(ctx context.Context) (auth.Token, error) {
	if p.refreshToken == "" {
		return auth.Token{}, errors.New(errors.ErrTokenMissing,
			"no broker refresh token available: set OPENBRIDGE_REFRESH_TOKEN")
	}

	body, err := json.Marshal(map[string]any{
		"data": map[string]any{
			"type":       "APIAuth",
			"attributes": map[string]string{"refresh_token": p.refreshToken},
		},
	})
	if err != nil {
		return auth.Token{}, errors.Wrap(errors.ErrInternal, "failed to encode exchange request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.authBaseURL+"/auth/api/ref", bytes.NewReader(body))
	if err != nil {
		return auth.Token{}, errors.Wrap(errors.ErrInternal, "failed to build exchange request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return auth.Token{}, errors.Wrap(errors.ErrTokenRefresh, "broker token exchange failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return auth.Token{}, errors.Newf(errors.ErrTokenRefresh,
			"broker token exchange returned status %d", resp.StatusCode)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return auth.Token{}, errors.Wrap(errors.ErrTokenRefresh, "failed to read exchange response", err)
	}

	value := gjson.GetBytes(payload, "data.attributes.token").String()
	if value == "" {
		return auth.Token{}, errors.New(errors.ErrTokenRefresh, "no token in broker exchange response")
	}

	expiresAt, metadata := decodeBrokerJWT(value)
	logger.Debugf("Obtained broker JWT, valid until %s", expiresAt.UTC().Format(time.RFC3339))

	return auth.Token{
		Value:     value,
		ExpiresAt: expiresAt,
		Kind:      tokenstore.KindProviderJWT,
		Metadata:  metadata,
	}, nil
}

// decodeBrokerJWT extracts the expiry and identifying claims from the broker
// JWT. The broker uses a non-standard "expires_at" claim.
func decodeBrokerJWT(value string) (time.Time, map[string]string) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(value, claims); err != nil {
		logger.Warnf("Broker JWT could not be decoded, assuming default TTL: %v", err)
		return time.Now().Add(defaultTokenTTL), nil
	}

	expiresAt := time.Now().Add(defaultTokenTTL)
	if ts, ok := claims["expires_at"].(float64); ok && ts > 0 {
		expiresAt = time.Unix(int64(ts), 0)
	}

	metadata := make(map[string]string)
	for _, claim := range []string{"user_id", "account_id"} {
		if v, ok := claims[claim].(string); ok && v != "" {
			metadata[claim] = v
		}
	}
	return expiresAt, metadata
}

// ValidateToken implements auth.Provider.
func (p *Provider) ValidateToken(t auth.Token) bool {
	return t.Valid(auth.DefaultValidationBuffer)
}

// Region returns empty: the effective region always comes from the current
// identity's attributes.
func (p *Provider) Region() string {
	return ""
}

// GetHeaders returns an empty map: every header comes from identity-specific
// credentials.
func (p *Provider) GetHeaders(_ context.Context) (map[string]string, error) {
	return map[string]string{}, nil
}

// Capabilities implements auth.Provider. Everything is derived from the
// current identity.
func (p *Provider) Capabilities() auth.Capabilities {
	return auth.Capabilities{
		IdentityRegionRouting:   true,
		IdentitySpecificHeaders: true,
		RegionFromIdentity:      true,
	}
}

// ListIdentities pages through the broker's identity directory. Individual
// malformed records are skipped, never aborting the listing. Results are
// cached per (type, page size).
func (p *Provider) ListIdentities(ctx context.Context, filter auth.IdentityFilter) ([]auth.Identity, error) {
	identityType := orDefault(filter.Type, defaultIdentityType)
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	p.mu.Lock()
	if cached, ok := p.idCache.get(identityType, pageSize); ok {
		p.mu.Unlock()
		return cached, nil
	}
	jwtToken, err := p.getJWTLocked(ctx)
	apiKey := p.refreshToken
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}

	identities, err := p.fetchIdentities(ctx, jwtToken.Value, apiKey, identityType, pageSize)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.idCache.put(identityType, pageSize, identities)
	p.mu.Unlock()
	return identities, nil
}

func (p *Provider) fetchIdentities(ctx context.Context, jwtValue, apiKey, identityType string, pageSize int) ([]auth.Identity, error) {
	logger.Infof("Fetching remote identities (type=%s)", identityType)

	var identities []auth.Identity
	for page := 1; ; page++ {
		if page > maxPages {
			logger.Warnf("Reached maximum identity page limit (%d)", maxPages)
			break
		}

		params := url.Values{}
		params.Set("page", strconv.Itoa(page))
		params.Set("page_size", strconv.Itoa(pageSize))
		if identityType != "" {
			params.Set("remote_identity_type", identityType)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			p.identityBaseURL+"/sri?"+params.Encode(), nil)
		if err != nil {
			return nil, errors.Wrap(errors.ErrInternal, "failed to build identity request", err)
		}
		req.Header.Set("Authorization", "Bearer "+jwtValue)
		req.Header.Set("x-api-key", apiKey)

		resp, err := p.client.Do(req)
		if err != nil {
			return nil, errors.Wrap(errors.ErrIdentityNotFound, "identity listing failed", err)
		}
		payload, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, errors.Wrap(errors.ErrIdentityNotFound, "failed to read identity response", err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, errors.Newf(errors.ErrIdentityNotFound,
				"identity listing returned status %d", resp.StatusCode)
		}

		items := gjson.GetBytes(payload, "data").Array()
		logger.Debugf("Identity page %d has %d item(s)", page, len(items))

		for _, item := range items {
			ident, ok := parseIdentity(item)
			if !ok {
				logger.Warnf("Skipping malformed identity record")
				continue
			}
			identities = append(identities, ident)
		}

		if len(items) == 0 || gjson.GetBytes(payload, "links.next").String() == "" {
			break
		}
	}

	logger.Infof("Found %d remote identities", len(identities))
	return identities, nil
}

// parseIdentity converts one directory record. Attribute values are
// flattened to strings; a record without an id is malformed.
func parseIdentity(item gjson.Result) (auth.Identity, bool) {
	id := item.Get("id").String()
	if id == "" {
		return auth.Identity{}, false
	}

	attributes := make(map[string]string)
	item.Get("attributes").ForEach(func(key, value gjson.Result) bool {
		attributes[key.String()] = value.String()
		return true
	})

	return auth.Identity{
		ID:         id,
		Type:       orDefault(item.Get("type").String(), "RemoteIdentity"),
		Attributes: attributes,
	}, true
}

// GetIdentity resolves one identity from the directory listing.
func (p *Provider) GetIdentity(ctx context.Context, id string) (auth.Identity, error) {
	identities, err := p.ListIdentities(ctx, auth.IdentityFilter{})
	if err != nil {
		return auth.Identity{}, err
	}
	for _, ident := range identities {
		if ident.ID == id {
			return ident, nil
		}
	}
	return auth.Identity{}, errors.Newf(errors.ErrIdentityNotFound, "identity %q not found", id)
}

// GetIdentityCredentials fetches a fresh Amazon Ads token for one identity
// from the broker's per-identity token endpoint.
func (p *Provider) GetIdentityCredentials(ctx context.Context, id string) (*auth.Credentials, error) {
	identity, err := p.GetIdentity(ctx, id)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	jwtToken, err := p.getJWTLocked(ctx)
	apiKey := p.refreshToken
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/service/amzadv/token/%s", p.serviceBaseURL, url.PathEscape(id)), nil)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInternal, "failed to build credential request", err)
	}
	req.Header.Set("Authorization", "Bearer "+jwtToken.Value)
	req.Header.Set("x-api-key", apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(errors.ErrTokenRefresh, "identity credential fetch failed", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(errors.ErrTokenRefresh, "failed to read credential response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf(errors.ErrTokenRefresh,
			"identity credential fetch returned status %d", resp.StatusCode)
	}

	data := gjson.GetBytes(payload, "data")

	accessToken := data.Get("access_token").String()
	if accessToken == "" {
		return nil, errors.New(errors.ErrTokenRefresh, "no Amazon Ads token in broker response")
	}

	clientID, err := resolveClientID(data)
	if err != nil {
		return nil, err
	}
	scope := firstAlias(data, "scope", "profile_id", "profileId", "amazon_advertising_api_scope")

	expiresAt := amazonTokenExpiry(accessToken)

	identityRegion := regions.Normalize(orDefault(identity.Region(), "na"))
	headers := map[string]string{
		auth.HeaderClientID: clientID,
	}
	if scope != "" {
		headers[auth.HeaderScope] = scope
	}

	return &auth.Credentials{
		IdentityID:  id,
		AccessToken: accessToken,
		ExpiresAt:   expiresAt,
		BaseURL:     regions.APIEndpoint(identityRegion),
		Headers:     headers,
	}, nil
}

// resolveClientID extracts the client id from a response whose field name
// varies across broker versions. A literal "openbridge" placeholder is never
// accepted; the environment override is the fallback in both the missing and
// placeholder cases.
func resolveClientID(data gjson.Result) (string, error) {
	clientID := firstAlias(data,
		"client_id", "clientId",
		"amazon_advertising_api_client_id", "amazonAdvertisingApiClientId")

	switch {
	case clientID == "":
		if env := os.Getenv("AMAZON_AD_API_CLIENT_ID"); env != "" {
			logger.Info("Broker provided no client id, using AMAZON_AD_API_CLIENT_ID")
			return env, nil
		}
		return "", errors.New(errors.ErrTokenRefresh,
			"no client id from broker and AMAZON_AD_API_CLIENT_ID not set")

	case strings.EqualFold(clientID, ProviderType):
		logger.Warn("Broker returned a placeholder client id")
		if env := os.Getenv("AMAZON_AD_API_CLIENT_ID"); env != "" {
			return env, nil
		}
		return "", errors.New(errors.ErrTokenRefresh,
			"broker returned a placeholder client id and AMAZON_AD_API_CLIENT_ID not set")

	default:
		return clientID, nil
	}
}

func firstAlias(data gjson.Result, names ...string) string {
	for _, name := range names {
		if v := data.Get(name).String(); v != "" {
			return v
		}
	}
	return ""
}

// amazonTokenExpiry decodes the returned token's own expiry when it is a
// JWT, else assumes a conservative default. The broker is expected to return
// fresh tokens; a near-expired one is an upstream contract violation worth
// logging, not silently trusting.
func amazonTokenExpiry(accessToken string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		logger.Debugf("Amazon token is not a decodable JWT, using default TTL")
		return time.Now().Add(defaultTokenTTL)
	}

	var expiresAt time.Time
	if ts, ok := claims["exp"].(float64); ok && ts > 0 {
		expiresAt = time.Unix(int64(ts), 0)
	} else if ts, ok := claims["expires_at"].(float64); ok && ts > 0 {
		expiresAt = time.Unix(int64(ts), 0)
	} else {
		return time.Now().Add(defaultTokenTTL)
	}

	remaining := time.Until(expiresAt)
	if remaining < 0 {
		logger.Errorf("Broker returned an already-expired Amazon token")
	} else if remaining < auth.DefaultValidationBuffer {
		logger.Warnf("Broker returned an Amazon token expiring in %.0f seconds", remaining.Seconds())
	}
	return expiresAt
}

func (p *Provider) jwtKey() tokenstore.Key {
	return tokenstore.Key{
		ProviderType: ProviderType,
		IdentityID:   jwtIdentityID,
		Kind:         tokenstore.KindProviderJWT,
	}
}

// Close implements auth.Provider.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.jwt = auth.Token{}
	p.idCache = newIdentityCache()
	return nil
}
