// Copyright 2026 The Ariana Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds small helpers shared by the streamer's tests.
//
// Tests that wait on a channel use RequireReceive and friends instead
// of writing their own select with a timeout, so a hung goroutine fails
// the test with a message rather than hanging the run.
package testutil
