// SPDX-FileCopyrightText: Copyright 2025 Sellermesh, Inc.
// SPDX-License-Identifier: Apache-2.0

package oauthstate_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sellermesh/adsgate/pkg/oauthstate"
)

const authURL = "https://www.amazon.com/ap/oa?client_id=abc&scope=advertising::campaign_management"

func TestValidateSucceedsExactlyOnce(t *testing.T) {
	t.Parallel()

	store := oauthstate.NewStore(oauthstate.Options{Secret: "test-secret"})
	state, err := store.Generate(authURL, "")
	require.NoError(t, err)
	require.Contains(t, state, ".")

	reason, err := store.Validate(state, "")
	require.NoError(t, err)
	assert.Equal(t, oauthstate.ReasonOK, reason)
	assert.True(t, store.Completed(state))

	reason, err = store.Validate(state, "")
	require.Error(t, err)
	assert.Equal(t, oauthstate.ReasonAlreadyUsed, reason)
}

func TestValidateUnknownState(t *testing.T) {
	t.Parallel()

	store := oauthstate.NewStore(oauthstate.Options{Secret: "test-secret"})

	reason, err := store.Validate("bm90LWEtcmVhbC1zdGF0ZQ.0123456789abcdef", "")
	require.Error(t, err)
	assert.Equal(t, oauthstate.ReasonNotFound, reason)
}

func TestValidateMalformedState(t *testing.T) {
	t.Parallel()

	store := oauthstate.NewStore(oauthstate.Options{Secret: "test-secret"})

	tests := []struct {
		name  string
		state string
	}{
		{name: "no separator", state: "justonepiece"},
		{name: "empty", state: ""},
		{name: "short signature", state: "base.abc"},
		{name: "empty base", state: ".0123456789abcdef"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			reason, err := store.Validate(tt.state, "")
			require.Error(t, err)
			assert.Equal(t, oauthstate.ReasonMalformed, reason)
		})
	}
}

func TestValidateTamperedSignature(t *testing.T) {
	t.Parallel()

	store := oauthstate.NewStore(oauthstate.Options{Secret: "test-secret"})
	state, err := store.Generate(authURL, "")
	require.NoError(t, err)

	// Flip the last signature character.
	last := state[len(state)-1]
	flipped := byte('0')
	if last == '0' {
		flipped = '1'
	}
	tampered := state[:len(state)-1] + string(flipped)

	reason, err := store.Validate(tampered, "")
	require.Error(t, err)
	assert.Equal(t, oauthstate.ReasonSignatureMismatch, reason)

	// The untampered state is still consumable.
	reason, err = store.Validate(state, "")
	require.NoError(t, err)
	assert.Equal(t, oauthstate.ReasonOK, reason)
}

func TestValidateExpiredBeforeGrace(t *testing.T) {
	t.Parallel()

	store := oauthstate.NewStore(oauthstate.Options{
		Secret: "test-secret",
		TTL:    10 * time.Millisecond,
		Grace:  time.Hour,
	})
	state, err := store.Generate(authURL, "")
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)

	reason, err := store.Validate(state, "")
	require.Error(t, err)
	assert.Equal(t, oauthstate.ReasonExpired, reason, "inside the grace window the failure is expired, not not-found")
}

func TestValidatePurgedAfterGrace(t *testing.T) {
	t.Parallel()

	store := oauthstate.NewStore(oauthstate.Options{
		Secret: "test-secret",
		TTL:    5 * time.Millisecond,
		Grace:  5 * time.Millisecond,
	})
	state, err := store.Generate(authURL, "")
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)

	reason, err := store.Validate(state, "")
	require.Error(t, err)
	assert.Equal(t, oauthstate.ReasonNotFound, reason)
}

func TestFingerprintMismatchDoesNotFail(t *testing.T) {
	t.Parallel()

	store := oauthstate.NewStore(oauthstate.Options{Secret: "test-secret"})
	state, err := store.Generate(authURL, "203.0.113.7|firefox")
	require.NoError(t, err)

	reason, err := store.Validate(state, "198.51.100.9|chrome")
	require.NoError(t, err)
	assert.Equal(t, oauthstate.ReasonOK, reason)
}

func TestStateBoundToAuthURL(t *testing.T) {
	t.Parallel()

	store := oauthstate.NewStore(oauthstate.Options{Secret: "test-secret"})

	s1, err := store.Generate(authURL, "")
	require.NoError(t, err)
	s2, err := store.Generate(authURL, "")
	require.NoError(t, err)
	assert.NotEqual(t, s1, s2, "each attempt gets a distinct state")

	// A signature from one state over another's base never verifies.
	base1 := strings.SplitN(s1, ".", 2)[0]
	sig2 := strings.SplitN(s2, ".", 2)[1]
	reason, err := store.Validate(base1+"."+sig2, "")
	require.Error(t, err)
	assert.Equal(t, oauthstate.ReasonSignatureMismatch, reason)
}

func TestPersistedStatesSurviveReopen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := oauthstate.NewStore(oauthstate.Options{Secret: "test-secret", Persist: true, CacheDir: dir})
	state, err := store.Generate(authURL, "")
	require.NoError(t, err)

	reopened := oauthstate.NewStore(oauthstate.Options{Secret: "test-secret", Persist: true, CacheDir: dir})
	assert.True(t, reopened.Pending(state))

	reason, err := reopened.Validate(state, "")
	require.NoError(t, err)
	assert.Equal(t, oauthstate.ReasonOK, reason)
}
