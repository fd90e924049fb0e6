// Copyright 2026 The Ariana Authors
// SPDX-License-Identifier: Apache-2.0

// Package streamapi defines the JSON messages exchanged between the
// browser client and the streamer.
//
// Enum-like messages are encoded as an object with exactly one key
// naming the variant, the shape the browser client already speaks:
//
//	{"WebRtc": {"Description": {"ty": "offer", "sdp": "v=0..."}}}
//	{"WebRtc": {"AddIceCandidate": {"candidate": "candidate:1 ...", "sdp_mid": "0"}}}
//	{"StartStream": {"bitrate": 10000, "fps": 60, ...}}
//
// In Go each variant is a pointer field; exactly one is non-nil in a
// valid message. Validate checks that.
package streamapi
