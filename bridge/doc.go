// Copyright 2026 The Ariana Authors
// SPDX-License-Identifier: Apache-2.0

// Package bridge serves the browser's signaling WebSocket directly from
// the streamer, for running without the web server in front of it.
//
// [Bridge] listens on ListenAddr and upgrades requests on Path to a
// WebSocket. It is an IPC channel for [stream.Session]: text frames are
// decoded as JSON client messages, binary frames are input packets for
// the WebSocket transport fallback, and outbound signaling messages are
// written back as JSON text frames. A Stop from the streamer closes the
// socket normally; a client that goes away is reported as a Stop.
//
// Only one client is served at a time. A second connection attempt is
// rejected with 409 Conflict until the first one closes.
//
// Liveness follows the usual WebSocket keepalive: the read deadline is
// 60 seconds and is refreshed by every pong, pings go out every 54
// seconds, and each write must finish within 10 seconds.
package bridge
