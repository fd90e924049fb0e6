// Copyright 2026 The Ariana Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil classifies connection errors for the streamer's I/O
// loops.
package netutil

import (
	"errors"
	"io"
	"net"
	"os"
	"syscall"

	"github.com/gorilla/websocket"
)

// IsExpectedCloseError reports whether err is what a read or write
// loop sees when the other side goes away normally: EOF, a closed
// connection or pipe, a reset, or a WebSocket close frame with a normal
// or going-away code. Loops stop on these without logging an error.
func IsExpectedCloseError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) || errors.Is(err, os.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EPIPE || errno == syscall.ECONNRESET
	}
	return false
}
