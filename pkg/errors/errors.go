// SPDX-FileCopyrightText: Copyright 2025 Sellermesh, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package errors defines the error types used across the adsgate
// authentication core.
package errors

import (
	"fmt"
)

// Error types
const (
	// ErrConfig is returned when the application configuration is invalid
	// or no usable auth method can be resolved from it.
	ErrConfig = "config"

	// ErrProviderNotFound is returned when an unknown provider type is requested.
	ErrProviderNotFound = "provider_not_found"

	// ErrIdentityNotFound is returned when an identity cannot be resolved.
	ErrIdentityNotFound = "identity_not_found"

	// ErrTokenRefresh is returned when a token refresh or exchange fails.
	ErrTokenRefresh = "token_refresh"

	// ErrTokenMissing is returned when no credential is available to refresh from.
	ErrTokenMissing = "token_missing"

	// ErrEncryptionPolicy is returned when persistence would violate the
	// no-plaintext-at-rest guarantee.
	ErrEncryptionPolicy = "encryption_policy"

	// ErrStateValidation is returned to external callers when an OAuth state
	// token fails validation for any reason.
	ErrStateValidation = "state_validation"

	// ErrStorage is returned when a store cannot read or write its backing file.
	ErrStorage = "storage"

	// ErrInternal is returned when there is an internal error
	ErrInternal = "internal"
)

// Error represents an error in the application
type Error struct {
	// Type is the error type
	Type string

	// Message is the error message
	Message string

	// Cause is the underlying error
	Cause error
}

// Error returns the error message
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new error with the given type and message
func New(errType string, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
	}
}

// Newf creates a new error with the given type and a formatted message
func Newf(errType string, format string, args ...any) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new error that wraps cause with the given type and message
func Wrap(errType string, message string, cause error) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Cause:   cause,
	}
}

// IsType reports whether err is an *Error of the given type.
func IsType(err error, errType string) bool {
	e, ok := err.(*Error)
	return ok && e.Type == errType
}
