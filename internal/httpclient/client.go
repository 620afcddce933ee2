// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2023 HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package httpclient

import (
	"net/http"

	cleanhttp "github.com/hashicorp/go-cleanhttp"

	"github.com/opentofu/openstackauth/version"
)

// New returns the DefaultPooledClient from the cleanhttp
// package that will also send the library's User-Agent string.
func New() *http.Client {
	cli := cleanhttp.DefaultPooledClient()
	cli.Transport = &userAgentRoundTripper{
		userAgent: UserAgent(version.String()),
		inner:     cli.Transport,
	}
	return cli
}
