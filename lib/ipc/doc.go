// Copyright 2026 The Ariana Authors
// SPDX-License-Identifier: Apache-2.0

// Package ipc defines the CBOR messages exchanged between the web
// server and a streamer process over the streamer's stdin and stdout.
//
// The web server relays browser WebSocket traffic into the streamer as
// ServerIPCMessage values and forwards the streamer's
// StreamerIPCMessage values back to the browser. Both directions are a
// plain CBOR sequence; Conn frames it.
package ipc
