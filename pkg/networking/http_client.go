// SPDX-FileCopyrightText: Copyright 2025 Sellermesh, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package networking builds the outbound HTTP clients used by the
// authentication providers. Connect, TLS handshake, and response-header
// phases are bounded by independent timeouts rather than one aggregate
// deadline, so a slow token endpoint fails in a predictable way.
package networking

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"
)

// HTTPTimeout is the overall timeout for outgoing HTTP requests.
const HTTPTimeout = 30 * time.Second

// ValidatingTransport validates request URLs prior to forwarding.
type ValidatingTransport struct {
	Transport http.RoundTripper

	// AllowHTTP permits plain-HTTP endpoints. Only tests and local broker
	// overrides should set this.
	AllowHTTP bool
}

// RoundTrip validates the request URL prior to forwarding
func (t *ValidatingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	parsed, err := url.Parse(req.URL.String())
	if err != nil {
		return nil, fmt.Errorf("the supplied URL %s is malformed", req.URL.String())
	}
	if parsed.Scheme != "https" && !t.AllowHTTP {
		return nil, fmt.Errorf("the supplied URL %s is not HTTPS scheme", req.URL.String())
	}
	return t.Transport.RoundTrip(req)
}

// ValidateEndpointURL checks that a configured endpoint parses and uses a
// scheme we are willing to talk to.
func ValidateEndpointURL(endpoint string) error {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return fmt.Errorf("unsupported URL scheme: %s", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("URL has no host: %s", endpoint)
	}
	return nil
}

// HTTPClientBuilder provides a fluent interface for building HTTP clients
type HTTPClientBuilder struct {
	clientTimeout         time.Duration
	connectTimeout        time.Duration
	tlsHandshakeTimeout   time.Duration
	responseHeaderTimeout time.Duration
	allowHTTP             bool
}

// NewHTTPClientBuilder returns a new HTTPClientBuilder
func NewHTTPClientBuilder() *HTTPClientBuilder {
	return &HTTPClientBuilder{
		clientTimeout:         HTTPTimeout,
		connectTimeout:        10 * time.Second,
		tlsHandshakeTimeout:   10 * time.Second,
		responseHeaderTimeout: 10 * time.Second,
	}
}

// WithTimeout sets the overall client timeout
func (b *HTTPClientBuilder) WithTimeout(d time.Duration) *HTTPClientBuilder {
	b.clientTimeout = d
	return b
}

// WithConnectTimeout sets the dial timeout
func (b *HTTPClientBuilder) WithConnectTimeout(d time.Duration) *HTTPClientBuilder {
	b.connectTimeout = d
	return b
}

// WithResponseHeaderTimeout sets the response-header timeout
func (b *HTTPClientBuilder) WithResponseHeaderTimeout(d time.Duration) *HTTPClientBuilder {
	b.responseHeaderTimeout = d
	return b
}

// WithHTTP allows plain-HTTP endpoints, e.g. broker URLs pointed at a
// local test server.
func (b *HTTPClientBuilder) WithHTTP(allow bool) *HTTPClientBuilder {
	b.allowHTTP = allow
	return b
}

// Build creates the configured HTTP client
func (b *HTTPClientBuilder) Build() *http.Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: b.connectTimeout,
		}).DialContext,
		TLSHandshakeTimeout:   b.tlsHandshakeTimeout,
		ResponseHeaderTimeout: b.responseHeaderTimeout,
	}

	return &http.Client{
		Transport: &ValidatingTransport{
			Transport: transport,
			AllowHTTP: b.allowHTTP,
		},
		Timeout: b.clientTimeout,
	}
}

// DefaultClient returns a client with the default timeouts and HTTPS-only
// validation. Providers share one of these per process.
func DefaultClient() *http.Client {
	return NewHTTPClientBuilder().Build()
}
