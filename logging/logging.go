// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2023 HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package logging routes the library's log output through hclog so that
// the conventional "[TRACE]"/"[DEBUG]" prefixes used throughout the
// codebase are parsed into proper levels, governed by the OS_LOG and
// OS_LOG_PATH environment variables.
//
// On first use (the first authentication method or session constructed)
// the package points the process-global standard log package at this
// writer, so the library's own log calls are filtered by OS_LOG like
// everything else. Embedding applications that manage their own log
// output should call log.SetOutput afterwards, or capture the stream
// via HCLogger.
package logging

import (
	"io"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/opentofu/openstackauth/version"
)

// These are the environmental variables that determine if we log, and if
// we log whether or not the log should go to a file.
const (
	envLog     = "OS_LOG"
	envLogFile = "OS_LOG_PATH"
)

var (
	// ValidLevels are the log level names that OS_LOG understands.
	ValidLevels = []string{"TRACE", "DEBUG", "INFO", "WARN", "ERROR", "OFF"}

	// logger is the global hclog logger
	logger hclog.Logger

	// logWriter is a global writer for logs, to be used with the std log package
	logWriter io.Writer

	initOnce sync.Once
)

func setup() {
	logger = newHCLogger("openstackauth")
	logWriter = logger.StandardWriter(&hclog.StandardLoggerOptions{InferLevels: true})
	log.SetOutput(logWriter)

	// Announce the versions of the dependencies that tend to explain
	// behavioral differences between builds, so a debug log can be
	// cross-referenced against their changelogs.
	for _, mod := range version.InterestingDependencies() {
		logger.Debug("using dependency", "path", mod.Path, "version", mod.Version)
	}
}

// newHCLogger returns a new hclog.Logger instance with the given name
func newHCLogger(name string) hclog.Logger {
	logOutput := io.Writer(os.Stderr)

	if logPath := os.Getenv(envLogFile); logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o666)
		if err == nil {
			logOutput = f
		}
	}

	return hclog.NewInterceptLogger(&hclog.LoggerOptions{
		Name:              name,
		Level:             globalLogLevel(),
		Output:            logOutput,
		IndependentLevels: true,
	})
}

// HCLogger returns the default global hclog logger. Embedding
// applications can register sinks on it to capture the library's log
// stream.
func HCLogger() hclog.Logger {
	initOnce.Do(setup)
	return logger
}

// LogOutput returns the writer that the std log package should use when
// emitting graded messages. Messages without a recognized "[LEVEL]"
// prefix are logged at INFO.
func LogOutput() io.Writer {
	initOnce.Do(setup)
	return logWriter
}

// IsDebugOrHigher returns whether or not the current log level is debug or trace
func IsDebugOrHigher() bool {
	level := globalLogLevel()
	return level == hclog.Debug || level == hclog.Trace
}

func globalLogLevel() hclog.Level {
	envLevel := strings.ToUpper(os.Getenv(envLog))
	if envLevel == "" {
		return hclog.Off
	}
	return parseLogLevel(envLevel)
}

func parseLogLevel(envLevel string) hclog.Level {
	if envLevel == "" {
		return hclog.Off
	}
	if envLevel == "JSON" {
		envLevel = "TRACE"
	}

	logLevel := hclog.Trace
	if isValidLogLevel(envLevel) {
		logLevel = hclog.LevelFromString(envLevel)
	}

	return logLevel
}

func isValidLogLevel(level string) bool {
	for _, l := range ValidLevels {
		if level == l {
			return true
		}
	}

	return false
}
