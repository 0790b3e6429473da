// SPDX-FileCopyrightText: Copyright 2025 Sellermesh, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package oauthstate tracks outstanding interactive-authorization attempts
// and protects the callback against CSRF. Each issued state binds to the
// exact authorization URL it protects and is consumable exactly once.
package oauthstate

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sellermesh/adsgate/pkg/errors"
	"github.com/sellermesh/adsgate/pkg/logger"
)

const (
	// DefaultTTL is how long an issued state stays valid.
	DefaultTTL = 10 * time.Minute

	// DefaultGrace is how long past expiry an entry is kept so a late
	// callback fails "expired" instead of "not found".
	DefaultGrace = time.Hour

	// sigLen is the hex length of the signature suffix.
	sigLen = 16

	stateFileName = "oauth_state.json"
)

// Reason is the precise validation outcome. External callers only ever see
// the generic error; the reason feeds internal logs and tests.
type Reason string

const (
	ReasonOK                Reason = "ok"
	ReasonNotFound          Reason = "not_found"
	ReasonExpired           Reason = "expired"
	ReasonAlreadyUsed       Reason = "already_used"
	ReasonSignatureMismatch Reason = "signature_mismatch"
	ReasonMalformed         Reason = "malformed"
)

// entry is the server-side record for one outstanding attempt.
type entry struct {
	Nonce       string    `json:"nonce"`
	AuthURL     string    `json:"auth_url"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	Completed   bool      `json:"completed"`
}

// Store issues and validates CSRF state tokens.
type Store struct {
	mu      sync.Mutex
	secret  []byte
	ttl     time.Duration
	grace   time.Duration
	entries map[string]entry

	// persistPath is empty when persistence is disabled.
	persistPath string
}

// Options configures NewStore.
type Options struct {
	// Secret signs state tokens. A random secret is generated when empty,
	// which is fine for a single process but ties issued states to it.
	Secret string

	// Persist enables writing the state map to disk after each mutation.
	Persist bool

	// CacheDir is where the persisted state file lives.
	CacheDir string

	// TTL and Grace override the defaults when positive.
	TTL   time.Duration
	Grace time.Duration
}

// NewStore creates a state store, loading any persisted states.
func NewStore(opts Options) *Store {
	s := &Store{
		ttl:     DefaultTTL,
		grace:   DefaultGrace,
		entries: make(map[string]entry),
	}
	if opts.TTL > 0 {
		s.ttl = opts.TTL
	}
	if opts.Grace > 0 {
		s.grace = opts.Grace
	}

	if opts.Secret != "" {
		s.secret = []byte(opts.Secret)
	} else {
		s.secret = make([]byte, 32)
		if _, err := rand.Read(s.secret); err != nil {
			// Out of entropy is unrecoverable for signing anyway.
			panic(fmt.Sprintf("failed to generate state secret: %v", err))
		}
		logger.Debug("Generated ephemeral OAuth state signing secret")
	}

	if opts.Persist {
		dir := opts.CacheDir
		if dir == "" {
			dir = os.TempDir()
		}
		s.persistPath = filepath.Join(dir, stateFileName)
		s.load()
	}
	return s
}

// Generate issues a state token bound to authURL. The token is a random
// component plus a short signature suffix over the component, a nonce, and
// the protected URL.
func (s *Store) Generate(authURL, fingerprint string) (string, error) {
	base, err := randomToken(32)
	if err != nil {
		return "", errors.Wrap(errors.ErrInternal, "failed to generate state", err)
	}
	nonce, err := randomToken(16)
	if err != nil {
		return "", errors.Wrap(errors.ErrInternal, "failed to generate nonce", err)
	}

	state := base + "." + s.sign(base, nonce, authURL)
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Keyed by the random component so a tampered signature suffix still
	// resolves the record and fails the signature check, not the lookup.
	s.entries[base] = entry{
		Nonce:       nonce,
		AuthURL:     authURL,
		Fingerprint: fingerprint,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.ttl),
	}
	s.persistLocked()
	return state, nil
}

// Validate consumes a state token. The returned error is deliberately
// generic; the Reason carries the precise branch for logging and tests.
// A fingerprint mismatch is logged but never fails validation.
func (s *Store) Validate(state, fingerprint string) (Reason, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purgeLocked()

	reason := s.validateLocked(state, fingerprint)
	if reason != ReasonOK {
		logger.Warnf("OAuth state validation failed: %s", reason)
		return reason, errors.New(errors.ErrStateValidation, "state validation failed")
	}
	return ReasonOK, nil
}

func (s *Store) validateLocked(state, fingerprint string) Reason {
	base, sig, ok := strings.Cut(state, ".")
	if !ok || base == "" || len(sig) != sigLen {
		return ReasonMalformed
	}

	e, found := s.entries[base]
	if !found {
		return ReasonNotFound
	}
	if time.Now().After(e.ExpiresAt) {
		return ReasonExpired
	}
	if e.Completed {
		return ReasonAlreadyUsed
	}

	expected := s.sign(base, e.Nonce, e.AuthURL)
	if !hmac.Equal([]byte(sig), []byte(expected)) {
		return ReasonSignatureMismatch
	}

	if e.Fingerprint != "" && fingerprint != "" && e.Fingerprint != fingerprint {
		logger.Warnf("OAuth state fingerprint changed between start and callback")
	}

	e.Completed = true
	s.entries[base] = e
	s.persistLocked()
	return ReasonOK
}

// Pending reports whether a state exists and has not been consumed yet.
func (s *Store) Pending(state string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	base, _, _ := strings.Cut(state, ".")
	e, ok := s.entries[base]
	return ok && !e.Completed && time.Now().Before(e.ExpiresAt)
}

// Completed reports whether a state was successfully consumed.
func (s *Store) Completed(state string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	base, _, _ := strings.Cut(state, ".")
	e, ok := s.entries[base]
	return ok && e.Completed
}

// sign computes the signature suffix for a state component.
func (s *Store) sign(base, nonce, authURL string) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s:%s:%s", base, nonce, authURL)
	return hex.EncodeToString(mac.Sum(nil))[:sigLen]
}

// purgeLocked drops entries once expiry plus the grace period has elapsed.
// Inside the grace window an entry stays so validation can answer "expired".
func (s *Store) purgeLocked() {
	cutoff := time.Now().Add(-s.grace)
	purged := 0
	for state, e := range s.entries {
		if e.ExpiresAt.Before(cutoff) {
			delete(s.entries, state)
			purged++
		}
	}
	if purged > 0 {
		s.persistLocked()
		logger.Debugf("Purged %d stale OAuth state(s)", purged)
	}
}

// persistLocked writes the state map as plain JSON via temp file + rename.
// States carry no secrets (the signing key never leaves memory), so the
// file is not encrypted.
func (s *Store) persistLocked() {
	if s.persistPath == "" {
		return
	}

	data, err := json.Marshal(s.entries)
	if err != nil {
		logger.Warnf("Failed to serialize OAuth states: %v", err)
		return
	}
	if err := os.MkdirAll(filepath.Dir(s.persistPath), 0700); err != nil {
		logger.Warnf("Failed to create OAuth state directory: %v", err)
		return
	}
	tmp := s.persistPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		logger.Warnf("Failed to write OAuth state file: %v", err)
		return
	}
	if err := os.Rename(tmp, s.persistPath); err != nil {
		_ = os.Remove(tmp)
		logger.Warnf("Failed to replace OAuth state file: %v", err)
	}
}

func (s *Store) load() {
	data, err := os.ReadFile(s.persistPath) // #nosec G304 -- path is resolved from configuration
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warnf("Failed to read OAuth state file: %v", err)
		}
		return
	}
	if err := json.Unmarshal(data, &s.entries); err != nil {
		logger.Warnf("OAuth state file is corrupt, starting fresh: %v", err)
		s.entries = make(map[string]entry)
	}
}

func randomToken(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
