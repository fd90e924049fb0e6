// Copyright 2026 The Ariana Authors
// SPDX-License-Identifier: Apache-2.0

package ipc

import "github.com/ariana-dot-dev/ariana/lib/streamapi"

// ServerIPCMessage flows from the web server into the streamer. Exactly
// one field is set.
type ServerIPCMessage struct {
	// WebSocket is a JSON text frame from the browser, already decoded.
	WebSocket *streamapi.ClientMessage `cbor:"web_socket,omitempty"`

	// WebSocketTransport is a binary frame from the browser carrying
	// input when data channels are unavailable: one channel byte
	// followed by the packet payload.
	WebSocketTransport []byte `cbor:"web_socket_transport,omitempty"`

	// Stop asks the streamer to shut down.
	Stop bool `cbor:"stop,omitempty"`
}

// StreamerIPCMessage flows from the streamer to the web server.
type StreamerIPCMessage struct {
	// WebSocket is forwarded to the browser as a JSON text frame.
	WebSocket *streamapi.ServerMessage `cbor:"web_socket,omitempty"`

	// Stop tells the web server the stream has ended.
	Stop bool `cbor:"stop,omitempty"`
}
