// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2023 HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package httpclient

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/opentofu/openstackauth/version"
)

func TestUserAgentString_env(t *testing.T) {
	expectedBase := fmt.Sprintf("%s/%s", DefaultApplicationName, version.String())

	testCases := []struct {
		envVal   string
		expected string
	}{
		{"", expectedBase},
		{" ", expectedBase},
		{" \n", expectedBase},
		{"test", fmt.Sprintf("%s test", expectedBase)},
		{"test\n", fmt.Sprintf("%s test", expectedBase)},
		{"test test test", fmt.Sprintf("%s test test test", expectedBase)},
	}

	for i, tc := range testCases {
		t.Run(fmt.Sprintf("%d", i), func(t *testing.T) {
			if tc.envVal == "" {
				t.Setenv(uaEnvVar, "")
			} else {
				t.Setenv(uaEnvVar, tc.envVal)
			}

			actual := UserAgent(version.String())
			if tc.expected != actual {
				t.Fatalf("wrong user agent\n got: %s\nwant: %s", actual, tc.expected)
			}
		})
	}
}

func TestUserAgentRoundTripper(t *testing.T) {
	var gotUA string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.UserAgent()
	}))
	defer ts.Close()

	client := New()
	resp, err := client.Get(ts.URL)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	want := UserAgent(version.String())
	if gotUA != want {
		t.Fatalf("wrong User-Agent header\n got: %s\nwant: %s", gotUA, want)
	}

	// A caller-provided User-Agent must not be overridden.
	req, err := http.NewRequest("GET", ts.URL, nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("User-Agent", "custom/1.0")
	resp, err = client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if gotUA != "custom/1.0" {
		t.Fatalf("expected custom User-Agent to pass through, got %s", gotUA)
	}
}
