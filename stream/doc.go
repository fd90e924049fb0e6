// Copyright 2026 The Ariana Authors
// SPDX-License-Identifier: Apache-2.0

// Package stream runs one streaming session: it connects the web
// server's message channel, the WebRTC transport, and the host that
// produces media and consumes input.
//
// [Session.Run] reads inbound IPC messages and hands them to the
// transport, and polls the transport's events:
//
//   - SendSignalingEvent goes back to the web server.
//   - StartStreamEvent starts the [Host] with the client's settings.
//   - RecvPacketEvent and RequestIDREvent are forwarded to the host.
//   - ClosedEvent sends Stop to the web server and ends the session.
//
// A Stop message from the web server, or the channel closing, ends the
// session too. The transport is closed when Run returns.
//
// [FileHost] is a Host that replays an H.264 Annex B file, for
// development and tests without a game host.
package stream
