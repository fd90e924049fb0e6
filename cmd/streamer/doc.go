// Copyright 2026 The Ariana Authors
// SPDX-License-Identifier: Apache-2.0

// Streamer runs one WebRTC stream session. By default it speaks the
// CBOR IPC protocol with the web server over stdin and stdout; with
// --listen it serves the browser's signaling WebSocket itself. Video
// comes from an H.264 Annex B file replayed in a loop (--video-file).
// Logs go to stderr.
package main
