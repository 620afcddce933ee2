// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2023 HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package auth

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// fakeIdentity is a minimal Keystone v3 token endpoint for tests. Each
// successful exchange issues a fresh token ID so that tests can tell
// refreshes apart, and the exchange counter backs the no-redundant-
// exchange assertions.
type fakeIdentity struct {
	mu        sync.Mutex
	exchanges int

	// expiresIn controls the lifetime of issued tokens.
	expiresIn time.Duration

	// delay, when set, stalls each exchange to widen race windows.
	delay time.Duration

	// reject, when set, answers every exchange with this status code.
	reject int

	// rawBody, when set, is served verbatim instead of a token document.
	rawBody string

	// omitSubjectToken leaves out the X-Subject-Token header.
	omitSubjectToken bool

	// lastRequest records the most recent request body for inspection.
	lastRequest map[string]any
}

func (f *fakeIdentity) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exchanges
}

func (f *fakeIdentity) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v3/auth/tokens" {
			http.NotFound(w, r)
			return
		}

		body, _ := io.ReadAll(r.Body)

		f.mu.Lock()
		f.exchanges++
		n := f.exchanges
		var decoded map[string]any
		_ = json.Unmarshal(body, &decoded)
		f.lastRequest = decoded
		delay := f.delay
		reject := f.reject
		rawBody := f.rawBody
		omit := f.omitSubjectToken
		expiresIn := f.expiresIn
		f.mu.Unlock()

		if delay > 0 {
			time.Sleep(delay)
		}
		if reject != 0 {
			http.Error(w, http.StatusText(reject), reject)
			return
		}
		if rawBody != "" {
			w.Header().Set(subjectTokenHeader, "broken")
			w.WriteHeader(http.StatusCreated)
			fmt.Fprint(w, rawBody)
			return
		}

		if expiresIn == 0 {
			expiresIn = time.Hour
		}
		if !omit {
			w.Header().Set(subjectTokenHeader, fmt.Sprintf("token-%d", n))
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{
			"token": {
				"expires_at": %q,
				"catalog": [
					{
						"type": "compute",
						"name": "nova",
						"endpoints": [
							{"interface": "public", "region": "east", "url": "https://compute.east.example.com/v2.1"},
							{"interface": "internal", "region": "east", "url": "https://compute.east.internal/v2.1"},
							{"interface": "public", "region": "west", "url": "https://compute.west.example.com/v2.1"}
						]
					},
					{
						"type": "identity",
						"name": "keystone",
						"endpoints": [
							{"interface": "public", "region": "east", "url": "https://identity.example.com/v3"}
						]
					}
				]
			}
		}`, time.Now().Add(expiresIn).UTC().Format(time.RFC3339))
	})
}

func (f *fakeIdentity) server() *httptest.Server {
	return httptest.NewServer(f.handler())
}

// testClient returns a retryablehttp client that fails fast, so that
// connection-failure tests do not sit in retry backoff.
func testClient() *retryablehttp.Client {
	client := retryablehttp.NewClient()
	client.RetryMax = 0
	client.Logger = nil
	return client
}
