// Copyright 2026 The Ariana Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the streamer's configuration.
//
// Configuration comes from a single file named by the --config flag
// ([LoadFile]) or the STREAMER_CONFIG environment variable ([Load]).
// There is no discovery. Without either, the streamer runs on
// [Default].
//
// Files are YAML. Files ending in .json or .jsonc are accepted too:
// comments and trailing commas are stripped first, and the result is
// parsed as YAML (JSON is a subset).
//
// A file may carry development, staging, and production sections that
// override the base webrtc and media blocks when the environment key
// matches.
package config
