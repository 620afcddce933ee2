// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2023 HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package auth

import (
	"context"
	"net/url"
)

// NoAuth is the authentication method for deployments that require no
// authentication at all, or where authentication is already handled by
// a proxy in front of the services. Its Token never fails, never
// contacts any endpoint, and always returns the same empty sentinel
// token with no catalog.
type NoAuth struct {
	// endpoint, when set, is handed out for every service type so that
	// standalone services can still be addressed.
	endpoint *url.URL
}

var _ AuthMethod = NoAuth{}

// NewNoAuth creates a NoAuth method without any endpoint; DefaultEndpoint
// will always answer negatively.
func NewNoAuth() NoAuth {
	return NoAuth{}
}

// NewNoAuthWithEndpoint creates a NoAuth method that resolves every
// service type to the given endpoint, for talking to a standalone
// service that has no identity service next to it.
func NewNoAuthWithEndpoint(endpoint string) (NoAuth, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return NoAuth{}, WrapError(ErrorConfig, err, "invalid endpoint %q for no-auth", endpoint)
	}
	return NoAuth{endpoint: u}, nil
}

// Token implements AuthMethod by returning the empty sentinel token.
func (n NoAuth) Token(_ context.Context) (Token, error) {
	return Token{}, nil
}

// CloneBoxed implements AuthMethod. NoAuth carries no mutable state, so
// the clone is simply a copy.
func (n NoAuth) CloneBoxed() AuthMethod {
	return n
}

// DefaultEndpoint implements AuthMethod.
func (n NoAuth) DefaultEndpoint(_ string) (*url.URL, bool) {
	if n.endpoint == nil {
		return nil, false
	}
	u := *n.endpoint
	return &u, true
}
