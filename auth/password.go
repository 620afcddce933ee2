// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2023 HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package auth

import (
	"context"
	"net/url"

	"github.com/hashicorp/go-retryablehttp"
)

// PasswordOpts configures a PasswordAuth method.
type PasswordOpts struct {
	// AuthURL is the identity endpoint, conventionally ending in /v3.
	AuthURL string

	// Username and Password identify the user.
	Username string
	Password string

	// UserDomainName qualifies the user name; "Default" when empty.
	UserDomainName string

	// ProjectName and ProjectDomainName select the project scope of the
	// issued token. An unscoped token is requested when ProjectName is
	// empty.
	ProjectName       string
	ProjectDomainName string

	// Region and Interface are preferences applied when resolving
	// endpoints from the catalog; "public" interface when empty.
	Region    string
	Interface string
}

// PasswordAuth authenticates with a username and password against an
// Identity API v3 endpoint, caching the issued token until it expires.
type PasswordAuth struct {
	authURL *url.URL
	opts    PasswordOpts
	client  *retryablehttp.Client
	cache   tokenCache
}

var _ AuthMethod = (*PasswordAuth)(nil)

// NewPasswordAuth creates a PasswordAuth method from the given options.
func NewPasswordAuth(opts PasswordOpts) (*PasswordAuth, error) {
	if opts.AuthURL == "" {
		return nil, NewError(ErrorConfig, "password authentication requires an auth URL")
	}
	if opts.Username == "" || opts.Password == "" {
		return nil, NewError(ErrorConfig, "password authentication requires both a username and a password")
	}
	u, err := url.Parse(opts.AuthURL)
	if err != nil {
		return nil, WrapError(ErrorConfig, err, "invalid auth URL %q", opts.AuthURL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, NewError(ErrorConfig, "auth URL %q must be HTTP or HTTPS", opts.AuthURL)
	}

	return &PasswordAuth{
		authURL: u,
		opts:    opts,
		client:  newRetryClient(),
	}, nil
}

func (p *PasswordAuth) request() authTokenRequest {
	userDomain := p.opts.UserDomainName
	if userDomain == "" {
		userDomain = "Default"
	}

	req := authTokenRequest{
		Auth: authSection{
			Identity: identitySection{
				Methods: []string{"password"},
				Password: &passwordMethodBody{
					User: userSpec{
						Name:     p.opts.Username,
						Domain:   &domainSpec{Name: userDomain},
						Password: p.opts.Password,
					},
				},
			},
		},
	}

	if p.opts.ProjectName != "" {
		projectDomain := p.opts.ProjectDomainName
		if projectDomain == "" {
			projectDomain = userDomain
		}
		req.Auth.Scope = &scopeSection{
			Project: &projectSpec{
				Name:   p.opts.ProjectName,
				Domain: &domainSpec{Name: projectDomain},
			},
		}
	}

	return req
}

// Token implements AuthMethod by exchanging the username and password
// for a (possibly project-scoped) token when no valid one is cached.
func (p *PasswordAuth) Token(ctx context.Context) (Token, error) {
	return p.cache.get(ctx, func(ctx context.Context) (Token, error) {
		return v3Exchange(ctx, p.client, p.authURL, p.request())
	})
}

// CloneBoxed implements AuthMethod. The clone copies the credential
// configuration and the current token by value; its later refreshes do
// not affect this instance.
func (p *PasswordAuth) CloneBoxed() AuthMethod {
	clone := &PasswordAuth{
		authURL: p.authURL,
		opts:    p.opts,
		client:  p.client,
	}
	clone.cache.tok = p.cache.snapshot()
	clone.cache.now = p.cache.now
	return clone
}

// DefaultEndpoint implements AuthMethod using the catalog of the cached
// token, if one has been fetched.
func (p *PasswordAuth) DefaultEndpoint(serviceType string) (*url.URL, bool) {
	tok := p.cache.snapshot()
	if tok == nil {
		return nil, false
	}
	return tok.Catalog.Endpoint(serviceType, p.opts.Interface, p.opts.Region)
}
