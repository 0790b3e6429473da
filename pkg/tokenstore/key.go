// SPDX-FileCopyrightText: Copyright 2025 Sellermesh, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package tokenstore implements the unified token cache shared by every
// authentication provider. Entries are addressed by a composite key so one
// store can hold refresh tokens, access tokens, and broker JWTs for any
// number of identities without collisions.
package tokenstore

import (
	"fmt"
	"strings"
)

// Kind labels the type of token stored under a key.
type Kind string

const (
	// KindRefresh is a long-lived exchange credential.
	KindRefresh Kind = "refresh"

	// KindAccess is a short-lived API credential.
	KindAccess Kind = "access"

	// KindProviderJWT is a broker-issued platform credential.
	KindProviderJWT Kind = "provider_jwt"
)

// Sentinels used when serializing absent optional key fields.
const (
	regionGlobal = "global"
	fieldNone    = "none"
)

// Key uniquely addresses a cached token by provider, identity, kind, and
// optional scope qualifiers.
type Key struct {
	ProviderType string
	IdentityID   string
	Kind         Kind
	Region       string
	Marketplace  string
	ProfileID    string
}

// String serializes the key to its storage form. Absent optional fields are
// written as sentinel markers so the round trip through ParseKey is lossless.
func (k Key) String() string {
	parts := []string{
		k.ProviderType,
		k.IdentityID,
		string(k.Kind),
		orSentinel(k.Region, regionGlobal),
		orSentinel(k.Marketplace, fieldNone),
		orSentinel(k.ProfileID, fieldNone),
	}
	return strings.Join(parts, ":")
}

// ParseKey parses a serialized key produced by String.
func ParseKey(s string) (Key, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 6 {
		return Key{}, fmt.Errorf("invalid token key format: %s", s)
	}

	kind := Kind(parts[2])
	switch kind {
	case KindRefresh, KindAccess, KindProviderJWT:
	default:
		return Key{}, fmt.Errorf("invalid token kind in key: %s", parts[2])
	}

	return Key{
		ProviderType: parts[0],
		IdentityID:   parts[1],
		Kind:         kind,
		Region:       fromSentinel(parts[3], regionGlobal),
		Marketplace:  fromSentinel(parts[4], fieldNone),
		ProfileID:    fromSentinel(parts[5], fieldNone),
	}, nil
}

func orSentinel(value, sentinel string) string {
	if value == "" {
		return sentinel
	}
	return value
}

func fromSentinel(value, sentinel string) string {
	if value == sentinel {
		return ""
	}
	return value
}
