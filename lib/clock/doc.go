// Copyright 2026 The Ariana Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock is the time source of the streamer.
//
// Components that schedule work (the termination grace period, the
// renegotiation answer timeout, media timestamps) take a Clock instead
// of calling the time package. Production code passes Real(). Tests
// pass Fake() and drive time explicitly:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	timer := transport.NewTerminationTimer(c, ...)
//	timer.Request()
//	c.WaitForTimers(1)
//	c.Advance(11 * time.Second)
//
// WaitForTimers closes the gap between a goroutine registering a timer
// and the test advancing past it.
package clock
