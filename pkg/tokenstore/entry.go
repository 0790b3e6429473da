// SPDX-FileCopyrightText: Copyright 2025 Sellermesh, Inc.
// SPDX-License-Identifier: Apache-2.0

package tokenstore

import (
	"time"
)

// DefaultExpiryBuffer is how long before literal expiry an entry is already
// treated as stale. Refreshing inside the buffer keeps callers from ever
// sending a token that dies mid-request.
const DefaultExpiryBuffer = 5 * time.Minute

// Entry is a stored token with metadata.
type Entry struct {
	Value     string            `json:"value"`
	ExpiresAt time.Time         `json:"expires_at"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// NewEntry creates an entry stamped with the current time.
func NewEntry(value string, expiresAt time.Time, metadata map[string]string) Entry {
	return Entry{
		Value:     value,
		ExpiresAt: expiresAt,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
}

// IsExpired reports whether the entry is expired or inside the default
// expiry buffer.
func (e Entry) IsExpired() bool {
	return e.IsExpiredWithin(DefaultExpiryBuffer)
}

// IsExpiredWithin reports whether the entry expires within the given buffer.
func (e Entry) IsExpiredWithin(buffer time.Duration) bool {
	return !time.Now().Before(e.ExpiresAt.Add(-buffer))
}
