// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2023 HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package auth

import (
	"net/url"
	"time"
)

// expirySkew is subtracted from a token's lifetime when deciding
// whether it is still usable, so that a token handed to a caller does
// not expire while the caller's request is in flight.
const expirySkew = 30 * time.Second

// Token is an issued authentication token together with its expiry and
// the service catalog returned alongside it. A Token is a value: copies
// are independent and a Token is never mutated after issue.
type Token struct {
	// ID is the opaque token value to send in the X-Auth-Token header.
	ID string

	// ExpiresAt is the instant the identity service will stop honoring
	// the token. The zero value means the token never expires, which is
	// the case for the NoAuth sentinel token.
	ExpiresAt time.Time

	// Catalog lists the service endpoints the token grants access to.
	Catalog Catalog
}

// ValidAt reports whether the token is still usable at the given
// instant, accounting for the expiry skew allowance.
func (t Token) ValidAt(now time.Time) bool {
	if t.ExpiresAt.IsZero() {
		return true
	}
	return now.Add(expirySkew).Before(t.ExpiresAt)
}

// clone returns a deep copy of the token so that clones of an
// AuthMethod never share catalog storage with the original, down to the
// endpoint URLs.
func (t Token) clone() Token {
	out := t
	out.Catalog = make(Catalog, len(t.Catalog))
	for i, entry := range t.Catalog {
		endpoints := make([]Endpoint, len(entry.Endpoints))
		for j, ep := range entry.Endpoints {
			if ep.URL != nil {
				u := *ep.URL
				ep.URL = &u
			}
			endpoints[j] = ep
		}
		entry.Endpoints = endpoints
		out.Catalog[i] = entry
	}
	return out
}

// Endpoint is a single service endpoint from the catalog.
type Endpoint struct {
	// Interface is the endpoint visibility: "public", "internal" or "admin".
	Interface string

	// Region is the region the endpoint serves, empty if region-less.
	Region string

	// URL is the endpoint address.
	URL *url.URL
}

// CatalogEntry describes one service in the catalog.
type CatalogEntry struct {
	// Type is the service type, e.g. "identity" or "compute".
	Type string

	// Name is the deployment-specific service name, e.g. "keystone".
	Name string

	// Endpoints are the endpoints available for the service.
	Endpoints []Endpoint
}

// Catalog is the set of services returned alongside a token.
type Catalog []CatalogEntry

// Endpoint resolves the endpoint of the given service type, preferring
// the given interface and region. Empty endpointInterface means
// "public"; empty region matches any. The second return value is false
// when no matching endpoint exists.
func (c Catalog) Endpoint(serviceType, endpointInterface, region string) (*url.URL, bool) {
	if endpointInterface == "" {
		endpointInterface = "public"
	}
	for _, entry := range c {
		if entry.Type != serviceType {
			continue
		}
		for _, ep := range entry.Endpoints {
			if ep.Interface != endpointInterface {
				continue
			}
			if region != "" && ep.Region != region {
				continue
			}
			return ep.URL, true
		}
	}
	return nil, false
}
