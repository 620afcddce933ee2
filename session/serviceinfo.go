// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2023 HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package session

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	version "github.com/hashicorp/go-version"

	"github.com/opentofu/openstackauth/auth"
)

// ServiceInfo describes one service API as discovered from its root
// endpoint: where it lives and which API versions it speaks.
type ServiceInfo struct {
	// RootURL is the versioned root endpoint of the service.
	RootURL *url.URL

	// CurrentVersion is the newest API version the service supports,
	// nil if the service does not advertise versions.
	CurrentVersion *version.Version

	// MinimumVersion is the oldest supported API version, nil if the
	// service only advertises a current version.
	MinimumVersion *version.Version
}

// Supports reports whether the service accepts the given API version.
func (i ServiceInfo) Supports(v *version.Version) bool {
	if i.CurrentVersion == nil {
		return false
	}
	if i.MinimumVersion == nil {
		return v.Equal(i.CurrentVersion)
	}
	return v.GreaterThanOrEqual(i.MinimumVersion) && v.LessThanOrEqual(i.CurrentVersion)
}

// Pick returns the highest of the candidate versions that the service
// supports, or nil if none of them is.
func (i ServiceInfo) Pick(candidates []*version.Version) *version.Version {
	var best *version.Version
	for _, v := range candidates {
		if !i.Supports(v) {
			continue
		}
		if best == nil || v.GreaterThan(best) {
			best = v
		}
	}
	return best
}

// Version discovery documents as served from service root endpoints.
// A root may describe a single version or a list of them.

type versionRoot struct {
	Version  *versionDoc  `json:"version"`
	Versions []versionDoc `json:"versions"`
}

type versionDoc struct {
	ID         string    `json:"id"`
	Status     string    `json:"status"`
	Links      []linkDoc `json:"links"`
	Version    string    `json:"version"`
	MinVersion string    `json:"min_version"`
}

type linkDoc struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

func (d versionDoc) intoServiceInfo() (ServiceInfo, error) {
	var root *url.URL
	for _, link := range d.Links {
		if link.Rel != "self" {
			continue
		}
		u, err := url.Parse(link.Href)
		if err != nil {
			return ServiceInfo{}, auth.WrapError(auth.ErrorMalformedResponse, err, "invalid self link in version document")
		}
		root = u
		break
	}
	if root == nil {
		return ServiceInfo{}, auth.NewError(auth.ErrorMalformedResponse, "version document carries no self link")
	}

	info := ServiceInfo{RootURL: root}
	if d.Version != "" {
		v, err := version.NewVersion(d.Version)
		if err != nil {
			return ServiceInfo{}, auth.WrapError(auth.ErrorMalformedResponse, err, "invalid version %q in version document", d.Version)
		}
		info.CurrentVersion = v
	}
	if d.MinVersion != "" {
		v, err := version.NewVersion(d.MinVersion)
		if err != nil {
			return ServiceInfo{}, auth.WrapError(auth.ErrorMalformedResponse, err, "invalid min_version %q in version document", d.MinVersion)
		}
		info.MinimumVersion = v
	}
	return info, nil
}

// isRootPath reports whether the URL path has nothing left to strip.
func isRootPath(u *url.URL) bool {
	p := strings.Trim(u.Path, "/")
	return p == ""
}

// parentURL strips the last path segment, so that a versioned endpoint
// like /v2.1 can fall back to the unversioned root.
func parentURL(u *url.URL) *url.URL {
	out := *u
	out.Path = path.Dir(strings.TrimSuffix(u.Path, "/"))
	if out.Path == "." {
		out.Path = "/"
	}
	return &out
}

// fetchServiceInfo retrieves and parses the version discovery document
// for a service. Some deployments register endpoints one level below
// the discovery document, so a 404 walks up one path segment at a time
// until the root is reached.
func fetchServiceInfo(ctx context.Context, client *retryablehttp.Client, endpoint *url.URL, serviceType, majorVersion string) (ServiceInfo, error) {
	log.Printf("[DEBUG] fetching %s service info from %s", serviceType, endpoint)

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return ServiceInfo{}, auth.WrapError(auth.ErrorNetworkFailure, err, "cannot build discovery request for %s", endpoint)
	}

	resp, err := client.Do(req)
	if err != nil {
		return ServiceInfo{}, auth.WrapError(auth.ErrorNetworkFailure, err, "%s endpoint %s unreachable", serviceType, endpoint)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		if isRootPath(endpoint) {
			return ServiceInfo{}, auth.NewError(auth.ErrorEndpointNotFound, "no version discovery document for service %s", serviceType)
		}
		log.Printf("[DEBUG] got HTTP 404 from %s, trying parent endpoint", endpoint)
		return fetchServiceInfo(ctx, client, parentURL(endpoint), serviceType, majorVersion)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusMultipleChoices {
		return ServiceInfo{}, auth.NewError(auth.ErrorMalformedResponse, "unexpected answer %s from %s discovery at %s", resp.Status, serviceType, endpoint)
	}

	var root versionRoot
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(&root); err != nil {
		return ServiceInfo{}, auth.WrapError(auth.ErrorMalformedResponse, err, "cannot decode version discovery document from %s", endpoint)
	}

	switch {
	case root.Version != nil:
		return root.Version.intoServiceInfo()
	case len(root.Versions) > 0:
		for _, doc := range root.Versions {
			if doc.ID == majorVersion || strings.HasPrefix(doc.ID, majorVersion+".") {
				return doc.intoServiceInfo()
			}
		}
		return ServiceInfo{}, auth.NewError(auth.ErrorEndpointNotFound, "service %s does not support API %s", serviceType, majorVersion)
	default:
		return ServiceInfo{}, auth.NewError(auth.ErrorMalformedResponse, "empty version discovery document from %s", endpoint)
	}
}
