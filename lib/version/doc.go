// Copyright 2026 The Ariana Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports the streamer's build version.
//
// Release builds inject the variables with -ldflags:
//
//	go build -ldflags "-X github.com/ariana-dot-dev/ariana/lib/version.GitCommit=$(git rev-parse --short HEAD)"
//
// Development builds fall back to the VCS stamp the Go toolchain embeds.
package version
