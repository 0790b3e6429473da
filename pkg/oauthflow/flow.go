// SPDX-FileCopyrightText: Copyright 2025 Sellermesh, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package oauthflow runs the interactive authorization-code flow that
// bootstraps the direct provider: it builds the Login-with-Amazon consent
// URL, serves the local callback, exchanges the returned code, and stores
// the resulting refresh token in the bootstrap vault.
package oauthflow

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/sellermesh/adsgate/pkg/errors"
	"github.com/sellermesh/adsgate/pkg/logger"
	"github.com/sellermesh/adsgate/pkg/networking"
	"github.com/sellermesh/adsgate/pkg/oauthstate"
	"github.com/sellermesh/adsgate/pkg/regions"
	"github.com/sellermesh/adsgate/pkg/secrets"
)

// AuthorizeURL is the Login-with-Amazon consent page.
const AuthorizeURL = "https://www.amazon.com/ap/oa"

// Scope requested for Amazon Ads API access.
const Scope = "cpc_advertising:campaign_management"

// CallbackPath is where the local server receives the authorization code.
const CallbackPath = "/auth/callback"

// sessionRetention bounds how long finished attempts stay queryable. Pending
// attempts past it can no longer complete, their state has long expired.
const sessionRetention = time.Hour

// Status of one authorization attempt.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Session is the caller-visible view of one authorization attempt.
type Session struct {
	ID          string    `json:"id"`
	AuthURL     string    `json:"auth_url"`
	Status      Status    `json:"status"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	CompletedAt time.Time `json:"completed_at,omitzero"`
}

type session struct {
	Session
	state string
}

// Options configures NewFlow.
type Options struct {
	ClientID     string
	ClientSecret string

	// RedirectURI must match the URI registered with the LWA security
	// profile. Empty defaults to localhost on port 9080.
	RedirectURI string

	Region string

	States *oauthstate.Store
	Vault  *secrets.Vault
	Client *http.Client
}

// Flow manages interactive authorization attempts.
type Flow struct {
	clientID     string
	clientSecret string
	redirectURI  string
	region       string
	states       *oauthstate.Store
	vault        *secrets.Vault
	client       *http.Client

	// tokenURL overrides the region token endpoint. Tests set it.
	tokenURL string

	mu       sync.Mutex
	sessions map[string]*session
}

// NewFlow creates the flow. ClientID, States, and Vault are required.
func NewFlow(opts Options) (*Flow, error) {
	if opts.ClientID == "" {
		return nil, errors.New(errors.ErrConfig,
			"oauth flow requires a client id (AMAZON_AD_API_CLIENT_ID)")
	}
	if opts.States == nil || opts.Vault == nil {
		return nil, errors.New(errors.ErrConfig, "oauth flow requires a state store and a vault")
	}

	redirectURI := opts.RedirectURI
	if redirectURI == "" {
		redirectURI = "http://localhost:9080" + CallbackPath
	}
	client := opts.Client
	if client == nil {
		client = networking.DefaultClient()
	}

	return &Flow{
		clientID:     opts.ClientID,
		clientSecret: opts.ClientSecret,
		redirectURI:  redirectURI,
		region:       regions.Normalize(opts.Region),
		states:       opts.States,
		vault:        opts.Vault,
		client:       client,
		sessions:     make(map[string]*session),
	}, nil
}

// Start begins an authorization attempt and returns the consent URL the
// user must visit. The CSRF state is bound to the exact URL it protects.
func (f *Flow) Start(fingerprint string) (Session, error) {
	params := url.Values{}
	params.Set("client_id", f.clientID)
	params.Set("scope", Scope)
	params.Set("response_type", "code")
	params.Set("redirect_uri", f.redirectURI)
	baseURL := AuthorizeURL + "?" + params.Encode()

	state, err := f.states.Generate(baseURL, fingerprint)
	if err != nil {
		return Session{}, err
	}
	authURL := baseURL + "&state=" + url.QueryEscape(state)

	s := &session{
		Session: Session{
			ID:        uuid.NewString(),
			AuthURL:   authURL,
			Status:    StatusPending,
			CreatedAt: time.Now().UTC(),
		},
		state: state,
	}

	f.mu.Lock()
	f.pruneLocked(time.Now())
	f.sessions[s.ID] = s
	f.mu.Unlock()

	logger.Infof("Started OAuth flow %s", s.ID)
	return s.Session, nil
}

// Status reports the state of one authorization attempt.
func (f *Flow) Status(sessionID string) (Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, ok := f.sessions[sessionID]
	if !ok {
		return Session{}, errors.Newf(errors.ErrStateValidation, "unknown oauth session %q", sessionID)
	}
	return s.Session, nil
}

// Router returns the HTTP handler serving the OAuth callback.
func (f *Flow) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get(CallbackPath, f.handleCallback)
	return r
}

// Serve runs the callback server until ctx is canceled.
func (f *Flow) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           f.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	logger.Infof("OAuth callback server listening on %s", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (f *Flow) handleCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	state := query.Get("state")
	code := query.Get("code")

	if errParam := query.Get("error"); errParam != "" {
		f.completeByState(state, StatusFailed, "authorization denied: "+errParam)
		respond(w, http.StatusBadRequest, "Authorization was denied. You can close this window.")
		return
	}

	if _, err := f.states.Validate(state, requestFingerprint(r)); err != nil {
		// The precise reason stays in the logs.
		respond(w, http.StatusBadRequest, "Invalid or expired authorization state. Restart the login flow.")
		return
	}

	if code == "" {
		f.completeByState(state, StatusFailed, "callback carried no authorization code")
		respond(w, http.StatusBadRequest, "Missing authorization code. Restart the login flow.")
		return
	}

	if err := f.exchange(r.Context(), code); err != nil {
		logger.Errorf("OAuth code exchange failed: %v", err)
		f.completeByState(state, StatusFailed, "code exchange failed")
		respond(w, http.StatusBadGateway, "Token exchange failed. Check the server logs and retry.")
		return
	}

	f.completeByState(state, StatusCompleted, "")
	respond(w, http.StatusOK, "Authorization complete. You can close this window.")
}

// exchange trades the authorization code for tokens and stores the refresh
// token in the bootstrap vault.
func (f *Flow) exchange(ctx context.Context, code string) error {
	tokenURL := f.tokenURL
	if tokenURL == "" {
		tokenURL = regions.OAuthEndpoint(f.region)
	}

	conf := &oauth2.Config{
		ClientID:     f.clientID,
		ClientSecret: f.clientSecret,
		RedirectURL:  f.redirectURI,
		Endpoint:     oauth2.Endpoint{TokenURL: tokenURL},
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, f.client)
	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		return errors.Wrap(errors.ErrTokenRefresh, "authorization code exchange failed", err)
	}
	if tok.RefreshToken == "" {
		return errors.New(errors.ErrTokenRefresh, "token response carried no refresh token")
	}

	if err := f.vault.Store(secrets.Entry{
		ID:    secrets.RefreshTokenID,
		Kind:  "refresh",
		Value: tok.RefreshToken,
		Metadata: map[string]string{
			"source": "oauth_flow",
			"scope":  Scope,
		},
	}); err != nil {
		return err
	}

	logger.Info("Stored refresh token from interactive authorization")
	return nil
}

// pruneLocked drops sessions past the retention window so the map stays
// bounded for the process lifetime. Callers hold f.mu.
func (f *Flow) pruneLocked(now time.Time) {
	cutoff := now.Add(-sessionRetention)
	for id, s := range f.sessions {
		if s.Status == StatusPending {
			if s.CreatedAt.Before(cutoff) {
				delete(f.sessions, id)
			}
			continue
		}
		if s.CompletedAt.Before(cutoff) {
			delete(f.sessions, id)
		}
	}
}

func (f *Flow) completeByState(state string, status Status, errMsg string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, s := range f.sessions {
		if s.state == state {
			s.Status = status
			s.Error = errMsg
			s.CompletedAt = time.Now().UTC()
			return
		}
	}
}

// requestFingerprint identifies the requester loosely. Mismatches are logged
// by the state store, never fatal.
func requestFingerprint(r *http.Request) string {
	return r.RemoteAddr + "|" + r.UserAgent()
}

func respond(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, "<html><body><p>%s</p></body></html>", msg)
}
