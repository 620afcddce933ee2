// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2023 HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package httpclient

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
)

const uaEnvVar = "OS_APPEND_USER_AGENT"

// DefaultApplicationName is the product token used in the User-Agent
// header when the embedding application does not override it.
const DefaultApplicationName = "openstackauth"

type userAgentRoundTripper struct {
	inner     http.RoundTripper
	userAgent string
}

func (rt *userAgentRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if _, ok := req.Header["User-Agent"]; !ok {
		req.Header.Set("User-Agent", rt.userAgent)
	}
	log.Printf("[TRACE] HTTP client %s request to %s", req.Method, req.URL.String())
	return rt.inner.RoundTrip(req)
}

// UserAgent returns the User-Agent string to send with outgoing
// requests, optionally extended via the OS_APPEND_USER_AGENT
// environment variable.
func UserAgent(version string) string {
	ua := fmt.Sprintf("%s/%s", DefaultApplicationName, version)

	if add := os.Getenv(uaEnvVar); add != "" {
		add = strings.TrimSpace(add)
		if len(add) > 0 {
			ua += " " + add
			log.Printf("[DEBUG] Using modified User-Agent: %s", ua)
		}
	}

	return ua
}
