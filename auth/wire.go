// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2023 HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/opentofu/openstackauth/logging"
)

// subjectTokenHeader is where Keystone returns the issued token value;
// the response body only carries the token's metadata.
const subjectTokenHeader = "X-Subject-Token"

// Request and response bodies for POST /v3/auth/tokens.

type authTokenRequest struct {
	Auth authSection `json:"auth"`
}

type authSection struct {
	Identity identitySection `json:"identity"`
	Scope    *scopeSection   `json:"scope,omitempty"`
}

type identitySection struct {
	Methods               []string            `json:"methods"`
	Password              *passwordMethodBody `json:"password,omitempty"`
	Token                 *tokenMethodBody    `json:"token,omitempty"`
	ApplicationCredential *appCredMethodBody  `json:"application_credential,omitempty"`
}

type passwordMethodBody struct {
	User userSpec `json:"user"`
}

type userSpec struct {
	Name     string      `json:"name"`
	Domain   *domainSpec `json:"domain,omitempty"`
	Password string      `json:"password"`
}

type domainSpec struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

type tokenMethodBody struct {
	ID string `json:"id"`
}

type appCredMethodBody struct {
	ID     string `json:"id,omitempty"`
	Name   string `json:"name,omitempty"`
	Secret string `json:"secret"`
}

type scopeSection struct {
	Project *projectSpec `json:"project,omitempty"`
	Domain  *domainSpec  `json:"domain,omitempty"`
}

type projectSpec struct {
	ID     string      `json:"id,omitempty"`
	Name   string      `json:"name,omitempty"`
	Domain *domainSpec `json:"domain,omitempty"`
}

type authTokenResponse struct {
	Token tokenBody `json:"token"`
}

type tokenBody struct {
	ExpiresAt string             `json:"expires_at"`
	Catalog   []catalogEntryBody `json:"catalog"`
}

type catalogEntryBody struct {
	Type      string         `json:"type"`
	Name      string         `json:"name"`
	Endpoints []endpointBody `json:"endpoints"`
}

type endpointBody struct {
	Interface string `json:"interface"`
	Region    string `json:"region"`
	URL       string `json:"url"`
}

// tokensURL appends the auth/tokens resource to the configured identity
// endpoint, which conventionally already ends in the /v3 prefix.
func tokensURL(authURL *url.URL) string {
	u := *authURL
	u.Path = strings.TrimSuffix(u.Path, "/") + "/auth/tokens"
	return u.String()
}

// v3Exchange performs a single token issue request against the identity
// endpoint and translates the outcome into the package's error
// taxonomy. It is shared by PasswordAuth and Identity.
func v3Exchange(ctx context.Context, client *retryablehttp.Client, authURL *url.URL, body authTokenRequest) (Token, error) {
	reqBody, err := json.Marshal(body)
	if err != nil {
		// Request bodies are built from plain strings; this does not
		// happen outside of programming errors.
		return Token{}, WrapError(ErrorMalformedResponse, err, "cannot encode token request")
	}

	endpoint := tokensURL(authURL)
	log.Printf("[DEBUG] requesting a token from %s", endpoint)

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return Token{}, WrapError(ErrorNetworkFailure, err, "cannot build token request for %s", endpoint)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		// Covers connection failures, cancellation and retry
		// exhaustion on 5xx answers alike.
		return Token{}, WrapError(ErrorNetworkFailure, err, "identity endpoint %s unreachable", endpoint)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		// OK
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Token{}, NewError(ErrorInvalidCredentials, "identity endpoint %s rejected the credentials: %s", endpoint, resp.Status)
	default:
		return Token{}, NewError(ErrorMalformedResponse, "unexpected answer %s from identity endpoint %s", resp.Status, endpoint)
	}

	id := resp.Header.Get(subjectTokenHeader)
	if id == "" {
		return Token{}, NewError(ErrorMalformedResponse, "identity endpoint %s returned no %s header", endpoint, subjectTokenHeader)
	}

	var decoded authTokenResponse
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(&decoded); err != nil {
		return Token{}, WrapError(ErrorMalformedResponse, err, "cannot decode token response from %s", endpoint)
	}

	tok, err := decoded.Token.intoToken(id)
	if err != nil {
		return Token{}, err
	}

	log.Printf("[DEBUG] received a token from %s expiring at %s with %d catalog entries",
		endpoint, tok.ExpiresAt, len(tok.Catalog))
	if logging.IsDebugOrHigher() {
		for _, entry := range tok.Catalog {
			log.Printf("[DEBUG] catalog: %s %q with %d endpoints", entry.Type, entry.Name, len(entry.Endpoints))
		}
	}
	return tok, nil
}

func (b tokenBody) intoToken(id string) (Token, error) {
	expires, err := time.Parse(time.RFC3339, b.ExpiresAt)
	if err != nil {
		return Token{}, WrapError(ErrorMalformedResponse, err, "invalid expires_at %q in token response", b.ExpiresAt)
	}

	catalog := make(Catalog, 0, len(b.Catalog))
	for _, entry := range b.Catalog {
		endpoints := make([]Endpoint, 0, len(entry.Endpoints))
		for _, ep := range entry.Endpoints {
			u, err := url.Parse(ep.URL)
			if err != nil {
				return Token{}, WrapError(ErrorMalformedResponse, err,
					"invalid %s endpoint URL %q in catalog", entry.Type, ep.URL)
			}
			endpoints = append(endpoints, Endpoint{
				Interface: ep.Interface,
				Region:    ep.Region,
				URL:       u,
			})
		}
		catalog = append(catalog, CatalogEntry{
			Type:      entry.Type,
			Name:      entry.Name,
			Endpoints: endpoints,
		})
	}

	return Token{ID: id, ExpiresAt: expires, Catalog: catalog}, nil
}

// String renders the request without secrets, for trace logging.
func (r authTokenRequest) String() string {
	return fmt.Sprintf("auth request via %v", r.Auth.Identity.Methods)
}
