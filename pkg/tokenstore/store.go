// SPDX-FileCopyrightText: Copyright 2025 Sellermesh, Inc.
// SPDX-License-Identifier: Apache-2.0

package tokenstore

// Filter selects keys for bulk invalidation. Zero-valued fields match
// everything.
type Filter struct {
	ProviderType string
	IdentityID   string
	Kind         Kind
	Region       string
}

// Matches reports whether the key satisfies every set field of the filter.
func (f Filter) Matches(k Key) bool {
	if f.ProviderType != "" && k.ProviderType != f.ProviderType {
		return false
	}
	if f.IdentityID != "" && k.IdentityID != f.IdentityID {
		return false
	}
	if f.Kind != "" && k.Kind != f.Kind {
		return false
	}
	if f.Region != "" && k.Region != f.Region {
		return false
	}
	return true
}

// Store is the unified token cache contract. A Get never returns an entry
// that is expired (or inside the expiry buffer); implementations drop such
// entries instead.
type Store interface {
	// Get retrieves a token by key. The second return is false when the key
	// is absent or the entry has expired.
	Get(key Key) (Entry, bool)

	// Set stores or replaces a token.
	Set(key Key, entry Entry) error

	// Invalidate removes a specific token.
	Invalidate(key Key) error

	// InvalidateMatching removes every token matching the filter and
	// returns the number removed.
	InvalidateMatching(f Filter) int

	// Clear removes all stored tokens.
	Clear() error
}
