// Copyright 2026 The Ariana Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds entrypoint helpers for the streamer binary.
package process
