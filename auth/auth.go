// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2023 HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package auth provides authentication methods for Identity API
// v3-style (Keystone) clouds.
//
// The central abstraction is AuthMethod: something that can produce a
// currently-valid token on demand, refreshing it transparently when it
// expires. Three implementations are provided: NoAuth for deployments
// that require no authentication, PasswordAuth for the common
// username/password exchange, and Identity as the general form that can
// wrap any v3 authentication method (password, pre-issued token,
// application credential).
//
// Instances are typically constructed by FromEnv or FromConfig rather
// than directly.
package auth

import (
	"context"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/opentofu/openstackauth/internal/httpclient"
	"github.com/opentofu/openstackauth/logging"
)

// AuthMethod is the capability shared by all authentication strategies:
// produce a valid token, duplicate the strategy without knowing its
// concrete type, and resolve service endpoints from the catalog that
// came with the token.
//
// Implementations are safe for use from multiple goroutines. At most
// one authentication exchange is in flight per instance at a time;
// callers that arrive during a refresh block until it completes and
// then observe its result.
type AuthMethod interface {
	// Token returns a currently valid token, performing the underlying
	// authentication exchange if none is cached or the cached one has
	// expired. A failed exchange does not invalidate the instance; a
	// later call may succeed.
	Token(ctx context.Context) (Token, error)

	// CloneBoxed returns a new AuthMethod with the same credential
	// configuration and the same dynamic type, but a token cache that
	// is independent of the original's: one instance refreshing never
	// races another's reads.
	CloneBoxed() AuthMethod

	// DefaultEndpoint resolves the endpoint of the given service type
	// from the cached catalog. It never triggers an exchange; the
	// second return value is false when no token has been fetched yet
	// or the catalog has no such service.
	DefaultEndpoint(serviceType string) (*url.URL, bool)
}

const (
	defaultRetryMax     = 2
	defaultRetryWaitMin = 1 * time.Second
	defaultRetryWaitMax = 30 * time.Second
)

// newRetryClient builds the retryablehttp client used for identity
// exchanges. Retries apply only to transport-level failures and 5xx
// responses; a definitive 4xx answer from the identity endpoint is
// surfaced immediately and never re-sent.
func newRetryClient() *retryablehttp.Client {
	client := retryablehttp.NewClient()
	client.HTTPClient = httpclient.New()
	client.RetryMax = defaultRetryMax
	client.RetryWaitMin = defaultRetryWaitMin
	client.RetryWaitMax = defaultRetryWaitMax
	client.Logger = log.New(logging.LogOutput(), "", log.Flags())
	return client
}

// tokenCache holds the zero-or-one cached token of an AuthMethod
// instance and serializes refreshes. The mutex is held for the whole
// exchange so that concurrent callers during a refresh block and then
// receive the refreshed token instead of triggering duplicate
// exchanges.
type tokenCache struct {
	mu  sync.Mutex
	tok *Token

	// now is replaceable in tests to simulate expiry.
	now func() time.Time
}

func (c *tokenCache) clock() time.Time {
	if c.now != nil {
		return c.now()
	}
	return time.Now()
}

// get returns the cached token if still valid, otherwise runs fetch and
// caches its result. On fetch failure no state is written, so other
// callers never observe a partial update.
func (c *tokenCache) get(ctx context.Context, fetch func(ctx context.Context) (Token, error)) (Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tok != nil && c.tok.ValidAt(c.clock()) {
		return *c.tok, nil
	}
	if c.tok != nil {
		log.Printf("[DEBUG] cached token expired at %s, re-authenticating", c.tok.ExpiresAt)
	}

	tok, err := fetch(ctx)
	if err != nil {
		return Token{}, err
	}
	c.tok = &tok
	return tok, nil
}

// snapshot returns a deep copy of the cached token, or nil if none has
// been fetched yet.
func (c *tokenCache) snapshot() *Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tok == nil {
		return nil
	}
	tok := c.tok.clone()
	return &tok
}
