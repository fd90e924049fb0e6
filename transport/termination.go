// Copyright 2026 The Ariana Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"sync"
	"time"

	"github.com/ariana-dot-dev/ariana/lib/clock"
)

// terminationRequest is compared by pointer: a newer Request or a Clear
// replaces it, which disarms the check scheduled for it.
type terminationRequest struct {
	requestedAt time.Time
}

// TerminationTimer turns "the connection may be dead" into a bounded
// grace period. A request that is still outstanding once timeout has
// elapsed calls onExpire exactly once. Clear cancels any outstanding
// request, so a connection that recovers inside the grace period is
// never closed.
type TerminationTimer struct {
	clock    clock.Clock
	timeout  time.Duration
	slack    time.Duration
	onExpire func()

	mu      sync.Mutex
	request *terminationRequest
}

// NewTerminationTimer returns a timer with no outstanding request.
func NewTerminationTimer(clk clock.Clock, timeout, slack time.Duration, onExpire func()) *TerminationTimer {
	return &TerminationTimer{
		clock:    clk,
		timeout:  timeout,
		slack:    slack,
		onExpire: onExpire,
	}
}

// Request records a termination request and schedules its check after
// timeout plus slack. A later Request supersedes this one.
func (t *TerminationTimer) Request() {
	request := &terminationRequest{requestedAt: t.clock.Now()}

	t.mu.Lock()
	t.request = request
	t.mu.Unlock()

	t.clock.AfterFunc(t.timeout+t.slack, func() { t.check(request) })
}

// Clear cancels the outstanding request, if any.
func (t *TerminationTimer) Clear() {
	t.mu.Lock()
	t.request = nil
	t.mu.Unlock()
}

// Pending reports whether a request is outstanding.
func (t *TerminationTimer) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.request != nil
}

func (t *TerminationTimer) check(request *terminationRequest) {
	t.mu.Lock()
	if t.request != request || t.clock.Now().Sub(request.requestedAt) < t.timeout {
		t.mu.Unlock()
		return
	}
	t.request = nil
	t.mu.Unlock()

	t.onExpire()
}
