// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2023 HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package version

import "runtime/debug"

// interestingDependencies names the modules whose versions are worth
// announcing in a debug log: the transport stack and the clouds.yaml
// parser, which between them explain most behavioral differences
// between builds. Keep this set small.
var interestingDependencies = map[string]struct{}{
	"github.com/hashicorp/go-retryablehttp": {},
	"github.com/hashicorp/go-cleanhttp":     {},
	"gopkg.in/yaml.v3":                      {},
}

// InterestingDependencies reports the compiled-in versions of the
// dependencies named in interestingDependencies, so that debug logs can
// be cross-referenced against their changelogs when chasing transport
// or parsing regressions. Returns nil when build info is unavailable.
func InterestingDependencies() []*debug.Module {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return nil
	}

	var mods []*debug.Module
	for _, mod := range info.Deps {
		if _, ok := interestingDependencies[mod.Path]; !ok {
			continue
		}
		if mod.Replace != nil {
			mod = mod.Replace
		}
		mods = append(mods, mod)
	}
	return mods
}
