// Copyright 2026 The Ariana Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport carries one interactive stream between a host and a
// browser over a WebRTC peer connection.
//
// A [Transport] owns the peer connection and composes the parts that
// act on it:
//
//   - [SignalingSession] applies remote descriptions, answers remote
//     offers, sends local offers when media is added, and relays ICE
//     candidates. Offers are serialized: at most one renegotiation is
//     outstanding, and a second caller waits for the first to finish.
//   - [SampleQueue] feeds one outbound track from a single delivery
//     goroutine. Important frames (key frames) are always admitted and
//     delivered first; other frames are dropped once the queue reaches
//     its capacity, so producers never block.
//   - [VideoPipeline] and [AudioPipeline] create their track on setup,
//     trigger renegotiation, and turn host output into queued samples.
//   - [ChannelRouter] maps data channel labels to fixed [ChannelID]
//     values and turns inbound messages into [RecvPacketEvent]s.
//   - [TerminationTimer] closes the stream when the connection stays
//     unhealthy for a grace period.
//   - [EventBus] delivers everything the stream orchestrator must act
//     on: remote close, stream start, input packets, signaling to send
//     to the browser, and key frame requests.
//
// Callbacks registered with pion hold weak pointers to their owner, so
// a Transport the orchestrator has dropped is not kept alive by its own
// callbacks, and a callback firing after teardown does nothing.
//
// Error policy: signaling failures, media write failures, full queues,
// and malformed input are logged and absorbed. Only a closed peer
// connection, or a termination grace period running out, ends the
// stream.
package transport
