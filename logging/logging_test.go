// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2023 HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package logging

import (
	"testing"

	"github.com/hashicorp/go-hclog"
)

func TestParseLogLevel(t *testing.T) {
	cases := []struct {
		in   string
		want hclog.Level
	}{
		{"", hclog.Off},
		{"TRACE", hclog.Trace},
		{"DEBUG", hclog.Debug},
		{"INFO", hclog.Info},
		{"WARN", hclog.Warn},
		{"ERROR", hclog.Error},
		{"JSON", hclog.Trace},
		// Unrecognized values log everything rather than nothing.
		{"YES", hclog.Trace},
	}

	for _, tc := range cases {
		if got := parseLogLevel(tc.in); got != tc.want {
			t.Errorf("parseLogLevel(%q) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestGlobalLogLevelFromEnv(t *testing.T) {
	t.Setenv(envLog, "debug")
	if got := globalLogLevel(); got != hclog.Debug {
		t.Fatalf("globalLogLevel() = %s, want debug", got)
	}
	if !IsDebugOrHigher() {
		t.Fatal("IsDebugOrHigher() = false with OS_LOG=debug")
	}

	t.Setenv(envLog, "")
	if got := globalLogLevel(); got != hclog.Off {
		t.Fatalf("globalLogLevel() = %s, want off", got)
	}
	if IsDebugOrHigher() {
		t.Fatal("IsDebugOrHigher() = true with OS_LOG unset")
	}
}

func TestHCLoggerSingleton(t *testing.T) {
	if HCLogger() == nil {
		t.Fatal("no global logger")
	}
	if HCLogger() != HCLogger() {
		t.Fatal("expected the same logger on every call")
	}
	if LogOutput() == nil {
		t.Fatal("no global log writer")
	}
}
