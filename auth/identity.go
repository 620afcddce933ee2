// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2023 HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package auth

import (
	"context"
	"log"
	"net/url"

	"github.com/hashicorp/go-retryablehttp"
)

// Identity is the general Identity API v3 authentication method. Unlike
// PasswordAuth, which is fixed to the password exchange, an Identity
// instance wraps whichever v3 method was selected when it was built:
// password, a pre-issued token, or an application credential.
//
// Instances are built with NewIdentity:
//
//	method, err := auth.NewIdentity(authURL).
//		WithPassword("demo", "secret", "Default").
//		WithProjectScope("demo", "Default").
//		Create()
type Identity struct {
	authURL  *url.URL
	identity identitySection
	scope    *scopeSection

	region        string
	endpointIface string
	client        *retryablehttp.Client
	cache         tokenCache
}

var _ AuthMethod = (*Identity)(nil)

// IdentityBuilder accumulates the configuration for an Identity method.
// Exactly one authentication sub-method must be selected before Create.
type IdentityBuilder struct {
	authURL  string
	identity *identitySection
	scope    *scopeSection
	region   string
	iface    string
	client   *retryablehttp.Client
	err      *Error
}

// NewIdentity starts building an Identity method against the given
// identity endpoint.
func NewIdentity(authURL string) *IdentityBuilder {
	return &IdentityBuilder{authURL: authURL}
}

func (b *IdentityBuilder) setMethod(section identitySection) *IdentityBuilder {
	if b.identity != nil {
		b.err = NewError(ErrorConfig, "authentication methods %v and %v are mutually exclusive",
			b.identity.Methods, section.Methods)
		return b
	}
	b.identity = &section
	return b
}

// WithPassword selects the password sub-method.
func (b *IdentityBuilder) WithPassword(username, password, userDomain string) *IdentityBuilder {
	if userDomain == "" {
		userDomain = "Default"
	}
	return b.setMethod(identitySection{
		Methods: []string{"password"},
		Password: &passwordMethodBody{
			User: userSpec{
				Name:     username,
				Domain:   &domainSpec{Name: userDomain},
				Password: password,
			},
		},
	})
}

// WithToken selects the pre-issued token sub-method: the given token is
// exchanged for a fresh one, typically to re-scope it.
func (b *IdentityBuilder) WithToken(token string) *IdentityBuilder {
	return b.setMethod(identitySection{
		Methods: []string{"token"},
		Token:   &tokenMethodBody{ID: token},
	})
}

// WithApplicationCredential selects the application credential
// sub-method.
func (b *IdentityBuilder) WithApplicationCredential(id, secret string) *IdentityBuilder {
	return b.setMethod(identitySection{
		Methods:               []string{"application_credential"},
		ApplicationCredential: &appCredMethodBody{ID: id, Secret: secret},
	})
}

// WithProjectScope requests tokens scoped to the given project. The
// domain falls back to "Default" when empty.
func (b *IdentityBuilder) WithProjectScope(project, domain string) *IdentityBuilder {
	if domain == "" {
		domain = "Default"
	}
	b.scope = &scopeSection{
		Project: &projectSpec{
			Name:   project,
			Domain: &domainSpec{Name: domain},
		},
	}
	return b
}

// WithRegion sets the region preference used when resolving endpoints
// from the catalog.
func (b *IdentityBuilder) WithRegion(region string) *IdentityBuilder {
	b.region = region
	return b
}

// WithEndpointInterface sets the interface ("public", "internal",
// "admin") preference used when resolving endpoints from the catalog.
func (b *IdentityBuilder) WithEndpointInterface(iface string) *IdentityBuilder {
	b.iface = iface
	return b
}

// withClient overrides the HTTP client, for tests.
func (b *IdentityBuilder) withClient(client *retryablehttp.Client) *IdentityBuilder {
	b.client = client
	return b
}

// Create validates the accumulated configuration and returns the
// Identity method.
func (b *IdentityBuilder) Create() (*Identity, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.identity == nil {
		return nil, NewError(ErrorConfig, "no authentication method selected")
	}
	if b.authURL == "" {
		return nil, NewError(ErrorConfig, "identity authentication requires an auth URL")
	}

	u, err := url.Parse(b.authURL)
	if err != nil {
		return nil, WrapError(ErrorConfig, err, "invalid auth URL %q", b.authURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, NewError(ErrorConfig, "auth URL %q must be HTTP or HTTPS", b.authURL)
	}

	// Application credentials carry their own scope; Keystone rejects
	// an explicit one next to them.
	if b.identity.ApplicationCredential != nil && b.scope != nil {
		return nil, NewError(ErrorConfig, "application credentials cannot be combined with an explicit scope")
	}

	client := b.client
	if client == nil {
		client = newRetryClient()
	}

	return &Identity{
		authURL:       u,
		identity:      *b.identity,
		scope:         b.scope,
		region:        b.region,
		endpointIface: b.iface,
		client:        client,
	}, nil
}

// Token implements AuthMethod by dispatching to the configured
// sub-method's exchange.
func (i *Identity) Token(ctx context.Context) (Token, error) {
	return i.cache.get(ctx, func(ctx context.Context) (Token, error) {
		req := authTokenRequest{Auth: authSection{Identity: i.identity, Scope: i.scope}}
		log.Printf("[TRACE] issuing %s", req)
		return v3Exchange(ctx, i.client, i.authURL, req)
	})
}

// CloneBoxed implements AuthMethod. The credential configuration is
// immutable and shared; the token cache is copied by value so that the
// clone refreshes independently.
func (i *Identity) CloneBoxed() AuthMethod {
	clone := &Identity{
		authURL:       i.authURL,
		identity:      i.identity,
		scope:         i.scope,
		region:        i.region,
		endpointIface: i.endpointIface,
		client:        i.client,
	}
	clone.cache.tok = i.cache.snapshot()
	clone.cache.now = i.cache.now
	return clone
}

// DefaultEndpoint implements AuthMethod using the catalog of the cached
// token, if one has been fetched.
func (i *Identity) DefaultEndpoint(serviceType string) (*url.URL, bool) {
	tok := i.cache.snapshot()
	if tok == nil {
		return nil, false
	}
	return tok.Catalog.Endpoint(serviceType, i.endpointIface, i.region)
}
