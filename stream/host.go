// Copyright 2026 The Ariana Authors
// SPDX-License-Identifier: Apache-2.0

package stream

import (
	"context"

	"github.com/ariana-dot-dev/ariana/lib/streamapi"
	"github.com/ariana-dot-dev/ariana/transport"
)

// MediaSink is where a host delivers its encoded media and outbound
// packets.
type MediaSink interface {
	SetupVideo(setup transport.VideoSetup) error
	SendVideoUnit(unit transport.VideoUnit) transport.DecodeResult
	SetupAudio(audio transport.AudioConfig, opus transport.OpusConfig) error
	SendAudioSample(data []byte) bool
	Send(packet transport.OutboundPacket) error
}

var _ MediaSink = (*transport.Transport)(nil)

// Host produces the stream: it encodes video and audio into a
// MediaSink and applies the client's input.
type Host interface {
	// Start begins streaming with the client's settings and blocks
	// until ctx is cancelled or the host stops. A returned error ends
	// the session.
	Start(ctx context.Context, settings streamapi.StartStream, sink MediaSink) error

	// SendInput applies one input packet from the client.
	SendInput(channel transport.ChannelID, packet transport.InboundPacket)

	// RequestIDR asks for a key frame as soon as possible.
	RequestIDR()
}
