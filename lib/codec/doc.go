// Copyright 2026 The Ariana Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds the CBOR encoding configuration shared by the
// streamer and the web server that spawns it.
//
// The browser speaks JSON. The web server and the streamer process
// speak CBOR over the streamer's stdin/stdout, wrapping the browser's
// JSON message types without re-declaring them:
//
//	encoder := codec.NewEncoder(stdout)
//	decoder := codec.NewDecoder(stdin)
//
// # Struct Tags
//
// Types that only cross the process boundary carry `cbor` tags. Types
// that also reach the browser carry `json` tags; fxamacker/cbor reads
// `json` tags when `cbor` tags are absent, so one tag names the field
// in both encodings. Never put both tags on one field.
package codec
