// SPDX-FileCopyrightText: Copyright 2025 Sellermesh, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package regions holds the Amazon Ads region tables: the advertising API
// endpoint and the Login-with-Amazon token endpoint for each region code.
// Everything that needs region routing goes through this package instead of
// keeping its own mapping.
package regions

import (
	"strings"
)

// DefaultRegion is used when no region is configured or a lookup fails.
const DefaultRegion = "na"

// apiEndpoints maps region codes to advertising API base URLs.
var apiEndpoints = map[string]string{
	"na": "https://advertising-api.amazon.com",
	"eu": "https://advertising-api-eu.amazon.com",
	"fe": "https://advertising-api-fe.amazon.com",
}

// oauthEndpoints maps region codes to LWA token endpoints.
var oauthEndpoints = map[string]string{
	"na": "https://api.amazon.com/auth/o2/token",
	"eu": "https://api.amazon.co.uk/auth/o2/token",
	"fe": "https://api.amazon.co.jp/auth/o2/token",
}

var displayNames = map[string]string{
	"na": "North America",
	"eu": "Europe",
	"fe": "Far East",
}

// aliases maps marketplace-style names to canonical region codes.
var aliases = map[string]string{
	"us":            "na",
	"ca":            "na",
	"mx":            "na",
	"br":            "na",
	"uk":            "eu",
	"gb":            "eu",
	"de":            "eu",
	"fr":            "eu",
	"it":            "eu",
	"es":            "eu",
	"in":            "eu",
	"jp":            "fe",
	"au":            "fe",
	"sg":            "fe",
	"north america": "na",
	"europe":        "eu",
	"far east":      "fe",
}

// APIEndpoint returns the advertising API base URL for a region code.
// Unknown regions fall back to the default region's endpoint.
func APIEndpoint(region string) string {
	if ep, ok := apiEndpoints[Normalize(region)]; ok {
		return ep
	}
	return apiEndpoints[DefaultRegion]
}

// OAuthEndpoint returns the LWA token endpoint for a region code.
// Unknown regions fall back to the default region's endpoint.
func OAuthEndpoint(region string) string {
	if ep, ok := oauthEndpoints[Normalize(region)]; ok {
		return ep
	}
	return oauthEndpoints[DefaultRegion]
}

// DisplayName returns a human-readable name for a region code.
func DisplayName(region string) string {
	if name, ok := displayNames[Normalize(region)]; ok {
		return name
	}
	return displayNames[DefaultRegion]
}

// Normalize lowercases a region string and resolves marketplace aliases
// ("us" -> "na", "uk" -> "eu", ...). It returns the input lowercased when no
// canonical code matches, so callers can distinguish unknown values.
func Normalize(region string) string {
	r := strings.ToLower(strings.TrimSpace(region))
	if _, ok := apiEndpoints[r]; ok {
		return r
	}
	if canonical, ok := aliases[r]; ok {
		return canonical
	}
	return r
}

// IsValid reports whether region resolves to a known region code.
func IsValid(region string) bool {
	_, ok := apiEndpoints[Normalize(region)]
	return ok
}

// All returns the known canonical region codes.
func All() []string {
	return []string{"na", "eu", "fe"}
}
