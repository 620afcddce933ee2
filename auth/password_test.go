// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2023 HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package auth

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"
)

func newTestPasswordAuth(t *testing.T, authURL string) *PasswordAuth {
	t.Helper()
	method, err := NewPasswordAuth(PasswordOpts{
		AuthURL:           authURL,
		Username:          "a",
		Password:          "b",
		UserDomainName:    "Default",
		ProjectName:       "p",
		ProjectDomainName: "Default",
	})
	if err != nil {
		t.Fatal(err)
	}
	method.client = testClient()
	return method
}

func TestPasswordAuth_impl(t *testing.T) {
	var _ AuthMethod = (*PasswordAuth)(nil)
}

func TestPasswordAuthValidation(t *testing.T) {
	cases := []struct {
		name string
		opts PasswordOpts
	}{
		{"no auth url", PasswordOpts{Username: "a", Password: "b"}},
		{"no username", PasswordOpts{AuthURL: "https://id.example.com/v3", Password: "b"}},
		{"no password", PasswordOpts{AuthURL: "https://id.example.com/v3", Username: "a"}},
		{"bad scheme", PasswordOpts{AuthURL: "ftp://id.example.com/v3", Username: "a", Password: "b"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewPasswordAuth(tc.opts)
			if !IsConfigError(err) {
				t.Fatalf("expected a configuration error, got %v", err)
			}
		})
	}
}

func TestPasswordAuthTokenCached(t *testing.T) {
	fake := &fakeIdentity{}
	server := fake.server()
	defer server.Close()

	method := newTestPasswordAuth(t, server.URL+"/v3")

	tok, err := method.Token(context.Background())
	if err != nil {
		t.Fatalf("token acquisition failed: %s", err)
	}
	if tok.ID != "token-1" {
		t.Fatalf("wrong token %q", tok.ID)
	}

	again, err := method.Token(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if again.ID != tok.ID {
		t.Fatalf("expected the cached token %q, got %q", tok.ID, again.ID)
	}
	if fake.count() != 1 {
		t.Fatalf("expected exactly one exchange, got %d", fake.count())
	}
}

func TestPasswordAuthRequestBody(t *testing.T) {
	fake := &fakeIdentity{}
	server := fake.server()
	defer server.Close()

	method := newTestPasswordAuth(t, server.URL+"/v3")
	if _, err := method.Token(context.Background()); err != nil {
		t.Fatal(err)
	}

	authSec, ok := fake.lastRequest["auth"].(map[string]any)
	if !ok {
		t.Fatalf("no auth section in request: %v", fake.lastRequest)
	}
	identity := authSec["identity"].(map[string]any)
	methods := identity["methods"].([]any)
	if len(methods) != 1 || methods[0] != "password" {
		t.Fatalf("wrong methods %v", methods)
	}
	user := identity["password"].(map[string]any)["user"].(map[string]any)
	if user["name"] != "a" || user["password"] != "b" {
		t.Fatalf("wrong user spec %v", user)
	}
	scope := authSec["scope"].(map[string]any)["project"].(map[string]any)
	if scope["name"] != "p" {
		t.Fatalf("wrong project scope %v", scope)
	}
}

func TestPasswordAuthRefreshAfterExpiry(t *testing.T) {
	fake := &fakeIdentity{expiresIn: time.Hour}
	server := fake.server()
	defer server.Close()

	method := newTestPasswordAuth(t, server.URL+"/v3")

	now := time.Now()
	method.cache.now = func() time.Time { return now }

	tok, err := method.Token(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if tok.ID != "token-1" {
		t.Fatalf("wrong first token %q", tok.ID)
	}

	// Advance past the token's expiry; the next acquisition must
	// trigger a second exchange.
	now = now.Add(2 * time.Hour)

	tok, err = method.Token(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if tok.ID != "token-2" {
		t.Fatalf("expected a refreshed token, got %q", tok.ID)
	}
	if fake.count() != 2 {
		t.Fatalf("expected two exchanges, got %d", fake.count())
	}
}

func TestPasswordAuthInvalidCredentials(t *testing.T) {
	fake := &fakeIdentity{reject: http.StatusUnauthorized}
	server := fake.server()
	defer server.Close()

	method := newTestPasswordAuth(t, server.URL+"/v3")
	_, err := method.Token(context.Background())
	if !IsInvalidCredentials(err) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}

	// A rejected exchange must not poison the instance.
	fake.mu.Lock()
	fake.reject = 0
	fake.mu.Unlock()

	tok, err := method.Token(context.Background())
	if err != nil {
		t.Fatalf("retry after rejection failed: %s", err)
	}
	if tok.ID == "" {
		t.Fatal("expected a token after the rejection was lifted")
	}
}

func TestPasswordAuthMalformedResponse(t *testing.T) {
	t.Run("bad body", func(t *testing.T) {
		fake := &fakeIdentity{rawBody: `{"token": {"expires_at": "not a timestamp"}}`}
		server := fake.server()
		defer server.Close()

		method := newTestPasswordAuth(t, server.URL+"/v3")
		_, err := method.Token(context.Background())
		if !IsMalformedResponse(err) {
			t.Fatalf("expected malformed response, got %v", err)
		}
	})

	t.Run("missing subject token header", func(t *testing.T) {
		fake := &fakeIdentity{omitSubjectToken: true}
		server := fake.server()
		defer server.Close()

		method := newTestPasswordAuth(t, server.URL+"/v3")
		_, err := method.Token(context.Background())
		if !IsMalformedResponse(err) {
			t.Fatalf("expected malformed response, got %v", err)
		}
	})
}

func TestPasswordAuthNetworkFailure(t *testing.T) {
	fake := &fakeIdentity{}
	server := fake.server()
	method := newTestPasswordAuth(t, server.URL+"/v3")
	server.Close()

	_, err := method.Token(context.Background())
	if !IsNetworkFailure(err) {
		t.Fatalf("expected network failure, got %v", err)
	}
}

func TestPasswordAuthConcurrentRefresh(t *testing.T) {
	fake := &fakeIdentity{delay: 100 * time.Millisecond}
	server := fake.server()
	defer server.Close()

	method := newTestPasswordAuth(t, server.URL+"/v3")

	const callers = 8
	var wg sync.WaitGroup
	tokens := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := method.Token(context.Background())
			tokens[i], errs[i] = tok.ID, err
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d failed: %s", i, errs[i])
		}
		if tokens[i] != "token-1" {
			t.Fatalf("caller %d got token %q", i, tokens[i])
		}
	}
	if fake.count() != 1 {
		t.Fatalf("concurrent callers triggered %d exchanges, expected 1", fake.count())
	}
}

func TestPasswordAuthCloneIndependence(t *testing.T) {
	fake := &fakeIdentity{expiresIn: time.Hour}
	server := fake.server()
	defer server.Close()

	method := newTestPasswordAuth(t, server.URL+"/v3")

	now := time.Now()
	method.cache.now = func() time.Time { return now }

	orig, err := method.Token(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	clone, ok := method.CloneBoxed().(*PasswordAuth)
	if !ok {
		t.Fatalf("clone lost its dynamic type")
	}

	// The clone starts from a copy of the cached token.
	cloneTok, err := clone.Token(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if cloneTok.ID != orig.ID {
		t.Fatalf("expected the clone to start from the copied token")
	}

	// Force the clone to refresh; the original's cache must be
	// untouched.
	cloneNow := now.Add(2 * time.Hour)
	clone.cache.now = func() time.Time { return cloneNow }

	refreshed, err := clone.Token(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if refreshed.ID == orig.ID {
		t.Fatal("expected the clone to fetch a fresh token")
	}

	still, err := method.Token(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if still.ID != orig.ID {
		t.Fatalf("clone refresh leaked into the original: %q became %q", orig.ID, still.ID)
	}
}

func TestPasswordAuthDefaultEndpoint(t *testing.T) {
	fake := &fakeIdentity{}
	server := fake.server()
	defer server.Close()

	method := newTestPasswordAuth(t, server.URL+"/v3")

	// Before any token is fetched the catalog is unknown.
	if _, ok := method.DefaultEndpoint("compute"); ok {
		t.Fatal("expected no endpoint before authentication")
	}

	if _, err := method.Token(context.Background()); err != nil {
		t.Fatal(err)
	}

	u, ok := method.DefaultEndpoint("compute")
	if !ok {
		t.Fatal("expected a compute endpoint after authentication")
	}
	if u.String() != "https://compute.east.example.com/v2.1" {
		t.Fatalf("wrong endpoint %s", u)
	}

	if _, ok := method.DefaultEndpoint("object-store"); ok {
		t.Fatal("expected no endpoint for a service absent from the catalog")
	}
}

func TestPasswordAuthRegionPreference(t *testing.T) {
	fake := &fakeIdentity{}
	server := fake.server()
	defer server.Close()

	method, err := NewPasswordAuth(PasswordOpts{
		AuthURL:  server.URL + "/v3",
		Username: "a",
		Password: "b",
		Region:   "west",
	})
	if err != nil {
		t.Fatal(err)
	}
	method.client = testClient()

	if _, err := method.Token(context.Background()); err != nil {
		t.Fatal(err)
	}

	u, ok := method.DefaultEndpoint("compute")
	if !ok {
		t.Fatal("expected a compute endpoint")
	}
	if u.String() != "https://compute.west.example.com/v2.1" {
		t.Fatalf("region preference ignored, got %s", u)
	}
}
