// SPDX-FileCopyrightText: Copyright 2025 Sellermesh, Inc.
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"sort"
	"strings"

	"github.com/sellermesh/adsgate/pkg/errors"
)

// Constructor builds a provider from its typed config and shared
// collaborators.
type Constructor func(cfg ProviderConfig, deps ProviderDeps) (Provider, error)

// Registry maps provider-type keys to constructors. Registries are
// instance-scoped; callers build one at startup and inject it wherever
// providers are created.
type Registry struct {
	constructors map[string]Constructor
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{constructors: make(map[string]Constructor)}
}

// Register adds a constructor under the given provider-type key. Registering
// the same key twice is a programming error and fails loudly.
func (r *Registry) Register(providerType string, ctor Constructor) error {
	if providerType == "" {
		return errors.New(errors.ErrConfig, "provider type must not be empty")
	}
	if ctor == nil {
		return errors.Newf(errors.ErrConfig, "constructor for provider type %q must not be nil", providerType)
	}
	if _, exists := r.constructors[providerType]; exists {
		return errors.Newf(errors.ErrConfig, "provider type %q is already registered", providerType)
	}
	r.constructors[providerType] = ctor
	return nil
}

// Create instantiates a provider by type key. An unknown key fails with the
// list of registered types.
func (r *Registry) Create(providerType string, cfg ProviderConfig, deps ProviderDeps) (Provider, error) {
	ctor, ok := r.constructors[providerType]
	if !ok {
		return nil, errors.Newf(errors.ErrProviderNotFound,
			"unknown provider type %q, registered types: %s", providerType, strings.Join(r.Types(), ", "))
	}
	return ctor(cfg, deps)
}

// Types returns the registered provider-type keys, sorted.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.constructors))
	for t := range r.constructors {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
