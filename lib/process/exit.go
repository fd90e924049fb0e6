// Copyright 2026 The Ariana Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// Fatal writes "error: err" to stderr and exits with code 1. Use it in
// main for errors returned by run, where the logger may not exist yet.
// Cancellation is a normal shutdown and exits 0.
func Fatal(err error) {
	if errors.Is(err, context.Canceled) {
		os.Exit(0)
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
