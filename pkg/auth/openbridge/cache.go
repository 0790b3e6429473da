// SPDX-FileCopyrightText: Copyright 2025 Sellermesh, Inc.
// SPDX-License-Identifier: Apache-2.0

package openbridge

import (
	"fmt"

	"github.com/sellermesh/adsgate/pkg/auth"
)

// identityCacheMax bounds the number of distinct (type, page size) listings
// kept. Eviction is FIFO; listings are cheap to refetch.
const identityCacheMax = 32

type identityCache struct {
	entries map[string][]auth.Identity
	order   []string
}

func newIdentityCache() *identityCache {
	return &identityCache{entries: make(map[string][]auth.Identity)}
}

func cacheKey(identityType string, pageSize int) string {
	return fmt.Sprintf("%s:%d", identityType, pageSize)
}

func (c *identityCache) get(identityType string, pageSize int) ([]auth.Identity, bool) {
	identities, ok := c.entries[cacheKey(identityType, pageSize)]
	return identities, ok
}

func (c *identityCache) put(identityType string, pageSize int, identities []auth.Identity) {
	key := cacheKey(identityType, pageSize)
	if _, exists := c.entries[key]; !exists {
		if len(c.order) >= identityCacheMax {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.entries, oldest)
		}
		c.order = append(c.order, key)
	}
	c.entries[key] = identities
}
