// Copyright 2026 The Ariana Authors
// SPDX-License-Identifier: Apache-2.0

package ipc

import (
	"fmt"
	"io"
	"sync"

	"github.com/ariana-dot-dev/ariana/lib/codec"
)

// Conn is one end of the IPC pipe. In is the type this end receives,
// Out the type it sends. Send is safe for concurrent use; Receive must
// be called from a single goroutine.
type Conn[In, Out any] struct {
	decoder *codec.Decoder

	writeMu sync.Mutex
	encoder *codec.Encoder
}

// StreamerConn is the streamer's end of the pipe.
type StreamerConn = Conn[ServerIPCMessage, StreamerIPCMessage]

// ServerConn is the web server's end of the pipe.
type ServerConn = Conn[StreamerIPCMessage, ServerIPCMessage]

// NewConn returns a Conn reading from r and writing to w.
func NewConn[In, Out any](r io.Reader, w io.Writer) *Conn[In, Out] {
	return &Conn[In, Out]{
		decoder: codec.NewDecoder(r),
		encoder: codec.NewEncoder(w),
	}
}

// Receive blocks for the next message. It returns io.EOF once the peer
// closes its end.
func (c *Conn[In, Out]) Receive() (In, error) {
	var message In
	if err := c.decoder.Decode(&message); err != nil {
		return message, fmt.Errorf("decoding ipc message: %w", err)
	}
	return message, nil
}

// Send writes one message.
func (c *Conn[In, Out]) Send(message Out) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.encoder.Encode(message); err != nil {
		return fmt.Errorf("encoding ipc message: %w", err)
	}
	return nil
}
