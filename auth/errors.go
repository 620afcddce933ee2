// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2023 HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package auth

import (
	"errors"
	"fmt"
)

// ErrorKind classifies the failures that can come out of token
// acquisition and the factory functions. Callers that care about a
// particular condition should use the Is* helpers rather than matching
// kinds directly, so that wrapped errors are recognized too.
type ErrorKind int

const (
	// ErrorUnknown is the zero value and never produced by this package.
	ErrorUnknown ErrorKind = iota

	// ErrorInvalidCredentials indicates that the identity endpoint
	// rejected the authentication exchange (HTTP 401 or 403).
	ErrorInvalidCredentials

	// ErrorNetworkFailure indicates a transport-level failure talking to
	// the identity endpoint, including cancellation and retry exhaustion.
	ErrorNetworkFailure

	// ErrorMalformedResponse indicates that the identity endpoint
	// answered with something that could not be understood as a token.
	ErrorMalformedResponse

	// ErrorConfig indicates that configuration passed to FromConfig was
	// missing required fields or contradictory.
	ErrorConfig

	// ErrorMissingEnv indicates that FromEnv could not find a required
	// environment variable for the implied authentication method.
	ErrorMissingEnv

	// ErrorEndpointNotFound indicates that a service endpoint could not
	// be resolved from the catalog.
	ErrorEndpointNotFound
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorInvalidCredentials:
		return "invalid credentials"
	case ErrorNetworkFailure:
		return "network failure"
	case ErrorMalformedResponse:
		return "malformed response"
	case ErrorConfig:
		return "configuration error"
	case ErrorMissingEnv:
		return "missing environment variable"
	case ErrorEndpointNotFound:
		return "endpoint not found"
	default:
		return "unknown error"
	}
}

// Error is the error type produced by this package. It carries a Kind
// for classification and optionally wraps an underlying cause.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates an Error of the given kind with a formatted message.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError creates an Error of the given kind wrapping an underlying
// cause.
func WrapError(kind ErrorKind, inner error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: inner}
}

// Kind returns the ErrorKind of err, or ErrorUnknown if err was not
// produced by this package.
func Kind(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrorUnknown
}

// IsInvalidCredentials returns true only if the given error represents a
// rejected authentication exchange. This allows callers to recognize a
// bad password as distinct from operational errors such as poor network
// connectivity.
func IsInvalidCredentials(err error) bool {
	return Kind(err) == ErrorInvalidCredentials
}

// IsNetworkFailure returns true if the given error represents a
// transport-level failure reaching the identity endpoint.
func IsNetworkFailure(err error) bool {
	return Kind(err) == ErrorNetworkFailure
}

// IsMalformedResponse returns true if the given error represents an
// identity endpoint response that could not be parsed into a token.
func IsMalformedResponse(err error) bool {
	return Kind(err) == ErrorMalformedResponse
}

// IsConfigError returns true if the given error came from invalid or
// contradictory configuration passed to FromConfig.
func IsConfigError(err error) bool {
	return Kind(err) == ErrorConfig
}

// IsMissingEnv returns true if the given error came from a required
// environment variable being absent in FromEnv.
func IsMissingEnv(err error) bool {
	return Kind(err) == ErrorMissingEnv
}

// IsEndpointNotFound returns true if the given error represents a
// service endpoint that could not be resolved from the catalog.
func IsEndpointNotFound(err error) bool {
	return Kind(err) == ErrorEndpointNotFound
}
