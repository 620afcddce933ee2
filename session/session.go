// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2023 HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package session provides a thin request layer on top of an
// authentication method: it attaches tokens to outgoing calls, resolves
// service endpoints from the catalog and caches per-service discovery
// information.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"path"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/opentofu/openstackauth/auth"
	"github.com/opentofu/openstackauth/internal/httpclient"
	"github.com/opentofu/openstackauth/logging"
)

const authTokenHeader = "X-Auth-Token"

const (
	defaultRetryMax     = 2
	defaultRetryWaitMin = 1 * time.Second
	defaultRetryWaitMax = 30 * time.Second
)

// Session issues authenticated requests to the services of one cloud.
// It owns its AuthMethod instance: use Clone, not shared references,
// to drive multiple request pipelines from the same credentials.
type Session struct {
	authMethod auth.AuthMethod
	client     *retryablehttp.Client

	endpointIface string
	region        string

	mu       sync.Mutex
	services map[string]ServiceInfo
}

// Option customizes a Session.
type Option func(*Session)

// WithRegion restricts endpoint resolution to the given region.
func WithRegion(region string) Option {
	return func(s *Session) { s.region = region }
}

// WithEndpointInterface selects which endpoint visibility to use,
// "public" by default.
func WithEndpointInterface(iface string) Option {
	return func(s *Session) { s.endpointIface = iface }
}

// WithClient overrides the HTTP client used for service requests.
func WithClient(client *retryablehttp.Client) Option {
	return func(s *Session) { s.client = client }
}

// New creates a Session around the given authentication method.
func New(method auth.AuthMethod, opts ...Option) *Session {
	s := &Session{
		authMethod: method,
		services:   make(map[string]ServiceInfo),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		client := retryablehttp.NewClient()
		client.HTTPClient = httpclient.New()
		client.RetryMax = defaultRetryMax
		client.RetryWaitMin = defaultRetryWaitMin
		client.RetryWaitMax = defaultRetryWaitMax
		client.Logger = log.New(logging.LogOutput(), "", log.Flags())
		s.client = client
	}
	return s
}

// Auth exposes the session's authentication method.
func (s *Session) Auth() auth.AuthMethod {
	return s.authMethod
}

// Clone returns an independent session with the same configuration: the
// authentication method is cloned (separate token cache) and the
// service discovery cache starts empty.
func (s *Session) Clone() *Session {
	return &Session{
		authMethod:    s.authMethod.CloneBoxed(),
		client:        s.client,
		endpointIface: s.endpointIface,
		region:        s.region,
		services:      make(map[string]ServiceInfo),
	}
}

// Endpoint resolves the endpoint of the given service type,
// authenticating first if no catalog has been fetched yet. Session
// preferences, when set, take precedence over whatever region or
// interface the method itself was configured with.
func (s *Session) Endpoint(ctx context.Context, serviceType string) (*url.URL, error) {
	tok, err := s.authMethod.Token(ctx)
	if err != nil {
		return nil, err
	}

	if s.endpointIface != "" || s.region != "" {
		if u, ok := tok.Catalog.Endpoint(serviceType, s.endpointIface, s.region); ok {
			return u, nil
		}
		// Methods without a catalog (a fixed no-auth endpoint) are
		// not subject to catalog preferences.
		if len(tok.Catalog) == 0 {
			if u, ok := s.authMethod.DefaultEndpoint(serviceType); ok {
				return u, nil
			}
		}
		return nil, auth.NewError(auth.ErrorEndpointNotFound,
			"no %q endpoint for interface %q in region %q", serviceType, s.endpointIface, s.region)
	}

	if u, ok := s.authMethod.DefaultEndpoint(serviceType); ok {
		return u, nil
	}
	// The method may not track a catalog at all; fall back to the one
	// of the token we just obtained.
	if u, ok := tok.Catalog.Endpoint(serviceType, "", ""); ok {
		return u, nil
	}
	return nil, auth.NewError(auth.ErrorEndpointNotFound, "no %q endpoint in the service catalog", serviceType)
}

// ServiceInfo returns the discovery information for the given service
// type, fetching and caching it on first use. The majorVersion is the
// discovery document ID prefix to select when a service advertises
// several APIs, e.g. "v2".
func (s *Session) ServiceInfo(ctx context.Context, serviceType, majorVersion string) (ServiceInfo, error) {
	s.mu.Lock()
	if info, ok := s.services[serviceType]; ok {
		s.mu.Unlock()
		return info, nil
	}
	s.mu.Unlock()

	endpoint, err := s.Endpoint(ctx, serviceType)
	if err != nil {
		return ServiceInfo{}, err
	}

	info, err := fetchServiceInfo(ctx, s.client, endpoint, serviceType, majorVersion)
	if err != nil {
		return ServiceInfo{}, err
	}

	s.mu.Lock()
	s.services[serviceType] = info
	s.mu.Unlock()
	return info, nil
}

// Request issues an authenticated request against the given service.
// The subpath is joined to the service endpoint; query may be nil. A
// non-2xx answer is returned as an error; the caller owns the response
// body otherwise.
func (s *Session) Request(ctx context.Context, method, serviceType, subpath string, query url.Values, body io.Reader) (*http.Response, error) {
	endpoint, err := s.Endpoint(ctx, serviceType)
	if err != nil {
		return nil, err
	}

	u := *endpoint
	u.Path = path.Join(u.Path, subpath)
	if query != nil {
		u.RawQuery = query.Encode()
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("cannot build %s request to %s: %w", method, &u, err)
	}

	tok, err := s.authMethod.Token(ctx)
	if err != nil {
		return nil, err
	}
	if tok.ID != "" {
		req.Header.Set(authTokenHeader, tok.ID)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	log.Printf("[TRACE] sending HTTP %s request to %s", method, &u)
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, auth.WrapError(auth.ErrorNetworkFailure, err, "%s %s failed", method, &u)
	}

	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		switch resp.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return nil, auth.NewError(auth.ErrorInvalidCredentials, "%s %s rejected: %s", method, &u, resp.Status)
		default:
			return nil, fmt.Errorf("%s %s returned %s: %s", method, &u, resp.Status, respBody)
		}
	}

	return resp, nil
}

// GetJSON issues a GET request and decodes the JSON response into out.
func (s *Session) GetJSON(ctx context.Context, serviceType, subpath string, query url.Values, out any) error {
	resp, err := s.Request(ctx, http.MethodGet, serviceType, subpath, query, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(out); err != nil {
		return auth.WrapError(auth.ErrorMalformedResponse, err, "cannot decode %s response", subpath)
	}
	return nil
}

// PostJSON issues a POST request with a JSON body and decodes the JSON
// response into out; out may be nil when the response body is
// irrelevant.
func (s *Session) PostJSON(ctx context.Context, serviceType, subpath string, in, out any) error {
	encoded, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("cannot encode %s request: %w", subpath, err)
	}

	resp, err := s.Request(ctx, http.MethodPost, serviceType, subpath, nil, bytes.NewReader(encoded))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		return nil
	}
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(out); err != nil {
		return auth.WrapError(auth.ErrorMalformedResponse, err, "cannot decode %s response", subpath)
	}
	return nil
}
